package supervise

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/webdevreplits/PlatformSupport/pkg/probe"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
)

type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseStarting   Phase = "starting"
	PhaseReady      Phase = "ready"
	PhaseFailed     Phase = "failed"
	PhaseStopped    Phase = "stopped"
)

const (
	DefaultMaxAttempts = 30
	DefaultInterval    = 1 * time.Second
)

type Options struct {
	Prober  probe.Prober
	Spawner Spawner

	MaxAttempts     int
	Interval        time.Duration
	ShutdownTimeout time.Duration

	// StopOnFailure terminates a spawned server that never became ready.
	StopOnFailure bool

	Observers []Observer
}

type ProbeSummary struct {
	Outcome    probe.Outcome `json:"outcome"`
	StatusCode int           `json:"status_code,omitempty"`
	LatencyMs  int64         `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	Phase     Phase           `json:"phase"`
	Target    string          `json:"target"`
	Spawned   bool            `json:"spawned"`
	Adopted   bool            `json:"adopted"`
	Attempts  int             `json:"attempts"`
	Process   *ProcessInfo    `json:"process,omitempty"`
	LastProbe *ProbeSummary   `json:"last_probe,omitempty"`
	Message   string          `json:"message,omitempty"`
	ReadyAt   time.Time       `json:"ready_at,omitempty"`
	Exit      *state.ExitInfo `json:"exit,omitempty"`
}

// Supervisor makes sure one server answers at the prober's target. Once the
// server is ready the result is memoized until Reset or Close.
type Supervisor struct {
	opts Options

	// op serializes EnsureRunning and Close.
	op sync.Mutex

	mu     sync.RWMutex
	status Status
	proc   Process
}

func New(opts Options) *Supervisor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 3 * time.Second
	}
	s := &Supervisor{opts: opts}
	s.status = Status{Phase: PhaseNotStarted}
	if opts.Prober != nil {
		s.status.Target = opts.Prober.Target()
	}
	return s
}

// EnsureRunning returns true once a server answers at the target. A false
// result always comes with a non-nil error describing why.
func (s *Supervisor) EnsureRunning(ctx context.Context) (bool, error) {
	if s.opts.Prober == nil {
		return false, errors.New("supervisor has no prober")
	}
	s.op.Lock()
	defer s.op.Unlock()

	if s.Status().Phase == PhaseReady {
		return true, nil
	}

	s.update(func(st *Status) {
		st.Attempts = 0
		st.Message = ""
		st.Exit = nil
	})

	if res := s.probe(ctx, 0); res.Ready() {
		owned := s.currentProcess() != nil
		s.markReady(!owned)
		log.Info().Str("target", s.opts.Prober.Target()).Bool("owned", owned).Msg("server already answering")
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, s.fail(errors.Wrap(err, "ensure running"))
	}

	s.setPhase(PhaseStarting, "starting server")
	proc := s.currentProcess()
	if proc == nil || proc.Exit() != nil {
		var err error
		proc, err = s.spawn(ctx)
		if err != nil {
			return false, s.fail(errors.Wrap(err, "failed to start server"))
		}
	}

	ok, err := s.poll(ctx, proc)
	if ok {
		s.markReady(false)
		log.Info().Str("target", s.opts.Prober.Target()).Int("attempts", s.Status().Attempts).Msg("server ready")
		return true, nil
	}
	if s.opts.StopOnFailure {
		stopCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout+2*time.Second)
		if stopErr := proc.Stop(stopCtx, s.opts.ShutdownTimeout); stopErr != nil {
			log.Warn().Err(stopErr).Msg("stop unready server")
		}
		cancel()
		s.mu.Lock()
		if s.proc == proc {
			s.proc = nil
		}
		s.mu.Unlock()
	}
	return false, s.fail(err)
}

func (s *Supervisor) poll(ctx context.Context, proc Process) (bool, error) {
	var last probe.Result
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		last = s.probe(ctx, attempt)
		if last.Ready() {
			return true, nil
		}
		if exit := proc.Exit(); exit != nil {
			return false, exitError(exit)
		}
		if attempt == s.opts.MaxAttempts {
			break
		}

		t := time.NewTimer(s.opts.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, errors.Wrap(ctx.Err(), "waiting for server")
		case <-proc.Done():
			t.Stop()
			// One last look: something else may be serving the port.
			if res := s.probe(ctx, attempt+1); res.Ready() {
				return true, nil
			}
			return false, exitError(proc.Exit())
		case <-t.C:
		}
	}
	return false, errors.Errorf("server not ready after %d attempts (last probe %s)", s.opts.MaxAttempts, last.String())
}

func (s *Supervisor) probe(ctx context.Context, attempt int) probe.Result {
	res := s.opts.Prober.Probe(ctx)
	sum := &ProbeSummary{
		Outcome:    res.Outcome,
		StatusCode: res.StatusCode,
		LatencyMs:  res.Latency.Milliseconds(),
		At:         time.Now(),
	}
	if res.Err != nil {
		sum.Error = res.Err.Error()
	}
	s.update(func(st *Status) {
		if attempt > 0 {
			st.Attempts = attempt
		}
		st.LastProbe = sum
	})
	log.Debug().Int("attempt", attempt).Str("outcome", string(res.Outcome)).Dur("latency", res.Latency).Msg("probe")
	s.emit(Event{Type: EventProbeAttempt, Attempt: attempt, Probe: sum})
	return res
}

func (s *Supervisor) spawn(ctx context.Context) (proc Process, err error) {
	if s.opts.Spawner == nil {
		return nil, errors.New("supervisor has no spawner")
	}
	defer func() {
		if r := recover(); r != nil {
			proc = nil
			err = errors.Errorf("spawn panicked: %v", r)
		}
	}()
	proc, err = s.opts.Spawner.Spawn(ctx)
	if err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, errors.New("spawner returned no process")
	}

	info := proc.Info()
	s.mu.Lock()
	s.proc = proc
	s.status.Spawned = true
	s.status.Adopted = false
	s.status.Process = &info
	s.mu.Unlock()

	s.emit(Event{Type: EventProcessSpawned, PID: info.PID, Message: strings.Join(info.Command, " ")})
	go s.watch(proc)
	return proc, nil
}

// watch clears a memoized ready result when the owned server dies later on.
func (s *Supervisor) watch(proc Process) {
	<-proc.Done()
	exit := proc.Exit()

	s.mu.Lock()
	if s.proc != proc {
		s.mu.Unlock()
		return
	}
	s.status.Exit = exit
	wasReady := s.status.Phase == PhaseReady
	if wasReady {
		s.status.Phase = PhaseFailed
		s.status.Message = exitError(exit).Error()
	}
	s.mu.Unlock()

	ev := Event{Type: EventProcessExited, PID: proc.Info().PID}
	if exit != nil {
		ev.Message = exit.Summary()
	}
	s.emit(ev)
	if wasReady {
		log.Warn().Int("pid", proc.Info().PID).Msg("server exited after becoming ready")
		s.emit(Event{Type: EventPhaseChanged, Phase: PhaseFailed, Message: ev.Message})
	}
}

// Reset forgets a memoized result. The next EnsureRunning probes from scratch.
// An owned server keeps running.
func (s *Supervisor) Reset() {
	s.op.Lock()
	defer s.op.Unlock()
	s.setPhase(PhaseNotStarted, "")
	s.update(func(st *Status) {
		st.Attempts = 0
		st.LastProbe = nil
	})
}

// Close stops the server if this supervisor spawned it. A server that was
// already running before EnsureRunning is left alone.
func (s *Supervisor) Close(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	var err error
	if proc != nil {
		log.Info().Int("pid", proc.Info().PID).Msg("stopping server")
		err = proc.Stop(ctx, s.opts.ShutdownTimeout)
	}
	s.setPhase(PhaseStopped, "")
	return err
}

// Process returns the owned server handle, or nil.
func (s *Supervisor) Process() Process {
	return s.currentProcess()
}

func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.LastProbe != nil {
		lp := *st.LastProbe
		st.LastProbe = &lp
	}
	return st
}

func (s *Supervisor) currentProcess() Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proc
}

func (s *Supervisor) markReady(adopted bool) {
	s.update(func(st *Status) {
		st.ReadyAt = time.Now()
		if adopted {
			st.Adopted = true
		}
	})
	s.setPhase(PhaseReady, "server is running")
}

func (s *Supervisor) fail(err error) error {
	s.setPhase(PhaseFailed, err.Error())
	log.Error().Err(err).Str("target", s.opts.Prober.Target()).Msg("server not ready")
	return err
}

func (s *Supervisor) setPhase(p Phase, msg string) {
	s.mu.Lock()
	changed := s.status.Phase != p
	s.status.Phase = p
	s.status.Message = msg
	s.mu.Unlock()
	if changed {
		s.emit(Event{Type: EventPhaseChanged, Phase: p, Message: msg})
	}
}

func (s *Supervisor) update(fn func(st *Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func (s *Supervisor) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Phase == "" {
		ev.Phase = s.Status().Phase
	}
	for _, o := range s.opts.Observers {
		o.Observe(ev)
	}
}

func exitError(exit *state.ExitInfo) error {
	if exit == nil {
		return errors.New("server exited before becoming ready")
	}
	msg := fmt.Sprintf("server exited before becoming ready (%s)", exit.Summary())
	if n := len(exit.StderrTail); n > 0 {
		tail := exit.StderrTail
		if n > 5 {
			tail = tail[n-5:]
		}
		msg += ": " + strings.Join(tail, " | ")
	}
	return errors.New(msg)
}
