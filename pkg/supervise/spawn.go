package supervise

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Spawner starts the backing server. Spawn must not block until the server
// is ready; readiness is the supervisor's job.
type Spawner interface {
	Spawn(ctx context.Context) (Process, error)
}

// Process is a handle to a spawned server owned by the supervisor.
type Process interface {
	Info() ProcessInfo
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Exit returns nil while the process is running.
	Exit() *state.ExitInfo
	Stop(ctx context.Context, timeout time.Duration) error
}

type ProcessInfo struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	Command   []string  `json:"command"`
	Cwd       string    `json:"cwd"`
	StdoutLog string    `json:"stdout_log,omitempty"`
	StderrLog string    `json:"stderr_log,omitempty"`
	ExitInfo  string    `json:"exit_info,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type LogRotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type ExecSpawner struct {
	Name     string
	Command  []string
	Dir      string
	Env      map[string]string
	LogsDir  string
	Rotation LogRotation
	// StderrTail is how many stderr lines go into the exit info.
	StderrTail int
	// Detached writes straight to plain files instead of rotating writers so
	// the server keeps logging after the launcher exits.
	Detached bool
}

var _ Spawner = (*ExecSpawner)(nil)

func (e *ExecSpawner) Spawn(ctx context.Context) (Process, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("missing server command")
	}
	if e.LogsDir == "" {
		return nil, errors.New("missing logs dir")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := e.Name
	if name == "" {
		name = "server"
	}
	if err := os.MkdirAll(e.LogsDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir logs dir")
	}

	ts := time.Now().Format("20060102-150405")
	info := ProcessInfo{
		Name:      name,
		Command:   append([]string{}, e.Command...),
		Cwd:       e.Dir,
		StdoutLog: filepath.Join(e.LogsDir, name+"-"+ts+".stdout.log"),
		StderrLog: filepath.Join(e.LogsDir, name+"-"+ts+".stderr.log"),
		ExitInfo:  filepath.Join(e.LogsDir, name+"-"+ts+".exit.json"),
	}
	stdout, stderr, err := e.outputs(info)
	if err != nil {
		return nil, err
	}

	// The server must outlive the caller's context, so no CommandContext here.
	// #nosec G204 -- command comes from the project config.
	cmd := exec.Command(e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = mergeEnv(os.Environ(), e.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, errors.Wrapf(err, "start %s", e.Command[0])
	}
	info.PID = cmd.Process.Pid
	info.StartedAt = time.Now()
	log.Info().Str("server", name).Int("pid", info.PID).Strs("command", e.Command).Msg("server started")

	p := &execProcess{
		cmd:        cmd,
		info:       info,
		done:       make(chan struct{}),
		tailLines:  e.StderrTail,
		closeStdio: []io.Closer{stdout, stderr},
	}
	go p.wait()
	return p, nil
}

func (e *ExecSpawner) outputs(info ProcessInfo) (io.WriteCloser, io.WriteCloser, error) {
	if !e.Detached {
		// lumberjack opens lazily; the recorded paths must exist for a quiet server.
		for _, path := range []string{info.StdoutLog, info.StderrLog} {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return nil, nil, errors.Wrap(err, "create log file")
			}
			_ = f.Close()
		}
		return e.rotatingWriter(info.StdoutLog), e.rotatingWriter(info.StderrLog), nil
	}
	stdout, err := os.OpenFile(info.StdoutLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open stdout log")
	}
	stderr, err := os.OpenFile(info.StderrLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		_ = stdout.Close()
		return nil, nil, errors.Wrap(err, "open stderr log")
	}
	return stdout, stderr, nil
}

func (e *ExecSpawner) rotatingWriter(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(e.Rotation.MaxSizeMB, 10),
		MaxBackups: valOr(e.Rotation.MaxBackups, 3),
		MaxAge:     valOr(e.Rotation.MaxAgeDays, 7),
		Compress:   e.Rotation.Compress,
	}
}

type execProcess struct {
	cmd        *exec.Cmd
	info       ProcessInfo
	done       chan struct{}
	tailLines  int
	closeStdio []io.Closer

	mu   sync.Mutex
	exit *state.ExitInfo
}

func (p *execProcess) Info() ProcessInfo     { return p.info }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Exit() *state.ExitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

func (p *execProcess) wait() {
	waitErr := p.cmd.Wait()
	for _, c := range p.closeStdio {
		_ = c.Close()
	}

	info := state.ExitInfo{
		Name:      p.info.Name,
		PID:       p.info.PID,
		StartedAt: p.info.StartedAt,
		ExitedAt:  time.Now(),
	}
	if waitErr != nil {
		info.Error = waitErr.Error()
		var ee *exec.ExitError
		if stderrors.As(waitErr, &ee) {
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
				if ws.Signaled() {
					info.Signal = ws.Signal().String()
				}
				if ws.Exited() {
					code := ws.ExitStatus()
					info.ExitCode = &code
				}
			}
		}
	} else {
		code := 0
		info.ExitCode = &code
	}
	n := p.tailLines
	if n <= 0 {
		n = 25
	}
	if lines, err := state.TailLines(p.info.StderrLog, n, 2<<20); err == nil {
		info.StderrTail = lines
	}
	if err := state.WriteExitInfo(p.info.ExitInfo, info); err != nil {
		log.Warn().Err(err).Str("server", p.info.Name).Msg("write exit info")
	}
	log.Info().Str("server", p.info.Name).Int("pid", p.info.PID).Str("exit", info.Summary()).Msg("server exited")

	p.mu.Lock()
	p.exit = &info
	p.mu.Unlock()
	close(p.done)
}

// Stop sends SIGTERM to the process group, then SIGKILL once timeout elapses.
func (p *execProcess) Stop(ctx context.Context, timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	pid := p.info.PID
	pgid, pgErr := syscall.Getpgid(pid)
	signal := func(sig syscall.Signal) {
		if pgErr == nil {
			_ = syscall.Kill(-pgid, sig)
			return
		}
		_ = syscall.Kill(pid, sig)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	signal(syscall.SIGTERM)
	grace := time.NewTimer(timeout)
	defer grace.Stop()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		signal(syscall.SIGKILL)
		return ctx.Err()
	case <-grace.C:
	}

	log.Warn().Int("pid", pid).Dur("timeout", timeout).Msg("server ignored SIGTERM; killing")
	signal(syscall.SIGKILL)
	select {
	case <-p.done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.Errorf("failed to stop server pid %d", pid)
	}
}

// StopPID terminates a process group recorded by an earlier session, where
// there is no handle to wait on.
func StopPID(ctx context.Context, pid int, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}
	pgid, pgErr := syscall.Getpgid(pid)
	signal := func(sig syscall.Signal) {
		if pgErr == nil {
			_ = syscall.Kill(-pgid, sig)
			return
		}
		_ = syscall.Kill(pid, sig)
	}
	signal(syscall.SIGTERM)

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	deadline := time.Now().Add(timeout)
	killed := false
	for state.ProcessAlive(pid) {
		if !killed && time.Now().After(deadline) {
			signal(syscall.SIGKILL)
			killed = true
			deadline = time.Now().Add(2 * time.Second)
		} else if killed && time.Now().After(deadline) {
			return errors.Errorf("failed to stop server pid %d", pid)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := append([]string{}, base...)
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
