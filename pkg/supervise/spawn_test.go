package supervise

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webdevreplits/PlatformSupport/pkg/probe"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
)

func unusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestExecSpawner_StartStop(t *testing.T) {
	dir := t.TempDir()
	sp := &ExecSpawner{
		Name:    "sleep",
		Command: []string{"bash", "-c", "echo started; sleep 30"},
		Dir:     dir,
		Env:     map[string]string{"NODE_ENV": "production"},
		LogsDir: state.LogsDir(dir),
	}

	p, err := sp.Spawn(context.Background())
	require.NoError(t, err)
	pid := p.Info().PID
	require.Greater(t, pid, 0)
	require.True(t, state.ProcessAlive(pid))
	require.Nil(t, p.Exit())

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(p.Info().StdoutLog)
		return err == nil && strings.Contains(string(b), "started")
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx, 2*time.Second))

	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit")
	}
	require.NotNil(t, p.Exit())
	require.Equal(t, "signal terminated", p.Exit().Summary())

	info, err := state.ReadExitInfo(p.Info().ExitInfo)
	require.NoError(t, err)
	require.Equal(t, pid, info.PID)

	b, err := os.ReadFile(p.Info().StdoutLog)
	require.NoError(t, err)
	require.Contains(t, string(b), "started")
}

func TestExecSpawner_QuietServerHasLogFiles(t *testing.T) {
	dir := t.TempDir()
	sp := &ExecSpawner{Name: "quiet", Command: []string{"sleep", "30"}, Dir: dir, LogsDir: state.LogsDir(dir)}
	p, err := sp.Spawn(context.Background())
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Stop(ctx, 2*time.Second)
	}()

	require.FileExists(t, p.Info().StdoutLog)
	require.FileExists(t, p.Info().StderrLog)
	lines, err := state.TailLines(p.Info().StderrLog, 10, 0)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestExecSpawner_EnvIsInjected(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "env.txt")
	sp := &ExecSpawner{
		Command: []string{"bash", "-c", "echo $NODE_ENV > " + out},
		Dir:     dir,
		Env:     map[string]string{"NODE_ENV": "production"},
		LogsDir: state.LogsDir(dir),
	}
	p, err := sp.Spawn(context.Background())
	require.NoError(t, err)
	<-p.Done()

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "production\n", string(b))
	require.Equal(t, "exit code 0", p.Exit().Summary())
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	sp := &ExecSpawner{Command: []string{"definitely-not-a-real-binary-xyz"}, Dir: dir, LogsDir: state.LogsDir(dir)}
	_, err := sp.Spawn(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "definitely-not-a-real-binary-xyz")
}

func TestSupervisor_CrashingServerReportsStderr(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Prober: probe.NewHTTP("http://"+unusedAddr(t)+"/", 200*time.Millisecond, probe.PolicyAnyResponse),
		Spawner: &ExecSpawner{
			Name:    "web",
			Command: []string{"bash", "-c", "echo 'Error: Cannot find module express' >&2; exit 3"},
			Dir:     dir,
			LogsDir: state.LogsDir(dir),
		},
		MaxAttempts: 30,
		Interval:    100 * time.Millisecond,
	})

	ok, err := s.EnsureRunning(context.Background())
	require.False(t, ok)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit code 3")
	require.Contains(t, err.Error(), "Cannot find module express")
	require.Less(t, s.Status().Attempts, 30)
}

func TestSupervisor_ReadinessTimeoutStopsServer(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pid.txt")
	s := New(Options{
		Prober: &probe.TCP{Address: unusedAddr(t), Timeout: 100 * time.Millisecond},
		Spawner: &ExecSpawner{
			Name:    "web",
			Command: []string{"bash", "-c", "echo $$ > " + pidFile + "; sleep 30"},
			Dir:     dir,
			LogsDir: state.LogsDir(dir),
		},
		MaxAttempts:     3,
		Interval:        50 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
		StopOnFailure:   true,
	})

	ok, err := s.EnsureRunning(context.Background())
	require.False(t, ok)
	require.Error(t, err)

	pid := 0
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		_, err = fmt.Sscanf(string(b), "%d", &pid)
		return err == nil && pid > 0
	}, 2*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return !state.ProcessAlive(pid) }, 3*time.Second, 50*time.Millisecond)
}

func TestStopPID(t *testing.T) {
	dir := t.TempDir()
	sp := &ExecSpawner{Command: []string{"sleep", "30"}, Dir: dir, LogsDir: state.LogsDir(dir), Detached: true}
	p, err := sp.Spawn(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, StopPID(ctx, p.Info().PID, 2*time.Second))
	require.False(t, state.ProcessAlive(p.Info().PID))
	require.NoError(t, StopPID(ctx, 0, time.Second))
}
