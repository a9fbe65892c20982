package cmds

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/webdevreplits/PlatformSupport/pkg/bootstrap"
	"github.com/webdevreplits/PlatformSupport/pkg/config"
	"github.com/webdevreplits/PlatformSupport/pkg/dashboard"
	"github.com/webdevreplits/PlatformSupport/pkg/envdetect"
	"github.com/webdevreplits/PlatformSupport/pkg/events"
	"github.com/webdevreplits/PlatformSupport/pkg/metrics"
	"github.com/webdevreplits/PlatformSupport/pkg/probe"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

// launcher wires the pieces shared by `up` and `tui`.
type launcher struct {
	opts     rootOptions
	cfg      *config.File
	env      envdetect.Kind
	sup      *supervise.Supervisor
	registry *prometheus.Registry
	pub      *events.Publisher

	onInstall []func(bootstrap.Result, error)
}

func newLauncher(opts rootOptions, cfg *config.File, detached bool, pub *events.Publisher) (*launcher, error) {
	prober, err := newProber(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, errors.Wrap(err, "register metrics")
	}

	observers := []supervise.Observer{m}
	if pub != nil {
		observers = append(observers, pub)
	}

	sup := supervise.New(supervise.Options{
		Prober:          prober,
		Spawner:         newSpawner(opts, cfg, detached),
		MaxAttempts:     cfg.Readiness.MaxAttempts,
		Interval:        cfg.Readiness.Interval,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		StopOnFailure:   true,
		Observers:       observers,
	})

	return &launcher{
		opts:     opts,
		cfg:      cfg,
		env:      envdetect.FromOS(),
		sup:      sup,
		registry: reg,
		pub:      pub,
	}, nil
}

func newProber(cfg *config.File) (probe.Prober, error) {
	if cfg.Readiness.Type == "tcp" {
		return &probe.TCP{Address: cfg.Server.Address(), Timeout: cfg.Readiness.Timeout}, nil
	}
	policy, err := probe.ParsePolicy(cfg.Readiness.Policy)
	if err != nil {
		return nil, err
	}
	return probe.NewHTTP(cfg.ProbeURL(), cfg.Readiness.Timeout, policy), nil
}

func newSpawner(opts rootOptions, cfg *config.File, detached bool) *supervise.ExecSpawner {
	return &supervise.ExecSpawner{
		Name:    cfg.Server.Name,
		Command: cfg.Server.Command,
		Dir:     cfg.ResolveWorkDir(opts.ProjectDir),
		Env:     cfg.Server.Env,
		LogsDir: state.LogsDir(opts.ProjectDir),
		Rotation: supervise.LogRotation{
			MaxSizeMB:  cfg.Logs.MaxSizeMB,
			MaxBackups: cfg.Logs.MaxBackups,
			MaxAgeDays: cfg.Logs.MaxAgeDays,
			Compress:   cfg.Logs.Compress,
		},
		Detached: detached,
	}
}

func newInstaller(opts rootOptions, cfg *config.File) *bootstrap.Installer {
	return &bootstrap.Installer{
		Dir:     cfg.ResolveWorkDir(opts.ProjectDir),
		Marker:  cfg.Deps.Marker,
		Command: cfg.Deps.Command,
	}
}

// newDashboard builds the dashboard. Its retry button re-runs ensure under ctx.
func (l *launcher) newDashboard(ctx context.Context) *dashboard.Server {
	d := dashboard.New(dashboard.Options{
		Title:       l.cfg.Dashboard.Title,
		Environment: l.env,
		AppURL:      l.cfg.Server.URL(),
		Port:        l.cfg.Server.Port,
		Source:      l.sup,
		Gatherer:    l.registry,
		Retry: func() {
			if ready, err := l.ensure(ctx); !ready {
				log.Error().Err(err).Msg("retry failed")
			}
		},
	})
	l.onInstall = append(l.onInstall, d.SetInstall)
	return d
}

// install runs the dependency bootstrap. Failures are reported, never fatal.
func (l *launcher) install(ctx context.Context) {
	if l.cfg.Deps.Skip {
		l.reportInstall(bootstrap.Result{Outcome: bootstrap.OutcomeSkipped}, nil)
		return
	}
	if l.pub != nil {
		l.pub.InstallStarted()
	}
	res, err := newInstaller(l.opts, l.cfg).Ensure(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("dependency install failed; continuing")
		l.notice(events.LevelWarn, "dependency install failed, launching anyway; run platformctl install to see the full output")
	}
	l.reportInstall(res, err)
}

func (l *launcher) reportInstall(res bootstrap.Result, err error) {
	if l.pub != nil {
		l.pub.InstallFinished(res, err)
	}
	for _, fn := range l.onInstall {
		fn(res, err)
	}
}

// launch installs dependencies, ensures the server is running and records
// it in the state file.
func (l *launcher) launch(ctx context.Context) (bool, error) {
	log.Info().Str("environment", l.env.Label()).Str("target", l.sup.Status().Target).Msg("launching")
	l.install(ctx)
	return l.ensure(ctx)
}

// ensure runs the supervisor and records a ready server in the state file.
func (l *launcher) ensure(ctx context.Context) (bool, error) {
	ready, err := l.sup.EnsureRunning(ctx)
	if !ready {
		if ctx.Err() == nil {
			l.notice(events.LevelError, troubleshootingHint(l.cfg))
		}
		return false, err
	}
	if err := l.saveState(); err != nil {
		log.Warn().Err(err).Msg("save state")
	}
	return true, nil
}

func (l *launcher) notice(level events.Level, text string) {
	if l.pub != nil {
		l.pub.Notice(level, text)
	}
}

func troubleshootingHint(cfg *config.File) string {
	return fmt.Sprintf("server did not answer at %s; check that port %d is free, dependencies are installed and DATABASE_URL is set, then see platformctl logs --stderr",
		cfg.ProbeURL(), cfg.Server.Port)
}

func (l *launcher) saveState() error {
	st := l.sup.Status()
	rec := &state.ServerRecord{
		Name:     l.cfg.Server.Name,
		Command:  l.cfg.Server.Command,
		Cwd:      l.cfg.ResolveWorkDir(l.opts.ProjectDir),
		Env:      state.SanitizeEnv(l.cfg.Server.Env),
		ProbeURL: st.Target,
		Adopted:  st.Adopted,
	}
	if p := st.Process; p != nil && !st.Adopted {
		rec.PID = p.PID
		rec.StdoutLog = p.StdoutLog
		rec.StderrLog = p.StderrLog
		rec.ExitInfo = p.ExitInfo
		rec.StartedAt = p.StartedAt
	}
	return state.Save(l.opts.ProjectDir, &state.State{
		ProjectDir:  l.opts.ProjectDir,
		Environment: l.env.String(),
		CreatedAt:   time.Now(),
		Server:      rec,
	})
}

// shutdown stops an owned server and clears the state it left behind.
func (l *launcher) shutdown() {
	spawned := l.sup.Process() != nil
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.Server.ShutdownTimeout+2*time.Second)
	defer cancel()
	if err := l.sup.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("stop server")
	}
	if spawned {
		if err := state.Remove(l.opts.ProjectDir); err != nil {
			log.Warn().Err(err).Msg("remove state")
		}
	}
}
