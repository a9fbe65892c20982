package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/webdevreplits/PlatformSupport/pkg/config"
	"github.com/webdevreplits/PlatformSupport/pkg/events"
	"github.com/webdevreplits/PlatformSupport/pkg/probe"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
	"gopkg.in/yaml.v3"
)

const serveEnv = "PLATFORMCTL_TEST_SERVE"

// The test binary doubles as the managed web app when serveEnv is set.
func TestMain(m *testing.M) {
	if addr := os.Getenv(serveEnv); addr != "" {
		http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("hello"))
		})
		_ = http.ListenAndServe(addr, nil)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func newTestRoot() *cobra.Command {
	root := &cobra.Command{Use: "platformctl", SilenceUsage: true, SilenceErrors: true}
	AddRootFlags(root)
	_ = AddCommands(root)
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newTestRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string, cfg *config.File) string {
	t.Helper()
	b, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := config.DefaultPath(dir)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestGetRootOptions(t *testing.T) {
	dir := t.TempDir()
	root := newTestRoot()
	require.NoError(t, root.PersistentFlags().Parse([]string{"--project-dir", dir, "--config", "custom.yaml", "--timeout", "5s"}))

	opts, err := getRootOptions(root)
	require.NoError(t, err)
	require.Equal(t, dir, opts.ProjectDir)
	require.Equal(t, filepath.Join(dir, "custom.yaml"), opts.Config)
	require.Equal(t, 5*time.Second, opts.Timeout)

	require.NoError(t, root.PersistentFlags().Parse([]string{"--timeout", "0s"}))
	_, err = getRootOptions(root)
	require.Error(t, err)
}

func TestApplyServerFlags(t *testing.T) {
	fs := serverFlagSet()
	require.NoError(t, fs.Parse([]string{"--port", "5173", "--policy", "success", "--max-attempts", "5", "--skip-install"}))

	cfg := config.Default()
	require.NoError(t, applyServerFlags(fs, cfg))
	require.Equal(t, 5173, cfg.Server.Port)
	require.Equal(t, "success", cfg.Readiness.Policy)
	require.Equal(t, 5, cfg.Readiness.MaxAttempts)
	require.True(t, cfg.Deps.Skip)
	require.Equal(t, config.DefaultProbeInterval, cfg.Readiness.Interval)

	bad := serverFlagSet()
	require.NoError(t, bad.Parse([]string{"--policy", "sometimes"}))
	require.Error(t, applyServerFlags(bad, config.Default()))
}

func TestNewProber(t *testing.T) {
	cfg := config.Default()
	p, err := newProber(cfg)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000/", p.Target())

	cfg.Readiness.Type = "tcp"
	p, err = newProber(cfg)
	require.NoError(t, err)
	_, ok := p.(*probe.TCP)
	require.True(t, ok)
}

func TestEnvCommand(t *testing.T) {
	t.Setenv("DATABRICKS_RUNTIME_VERSION", "")
	t.Setenv("REPL_ID", "abc")

	out, err := run(t, "env")
	require.NoError(t, err)
	require.Equal(t, "Replit\n", out)

	out, err = run(t, "env", "--json")
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"sandbox","label":"Replit"}`, out)
}

func TestInstallCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.File{Deps: config.Deps{Command: []string{"bash", "-c", "mkdir node_modules"}}}
	writeConfig(t, dir, cfg)

	out, err := run(t, "--project-dir", dir, "install")
	require.NoError(t, err)
	require.Contains(t, out, "installed")
	require.DirExists(t, filepath.Join(dir, "node_modules"))

	out, err = run(t, "--project-dir", dir, "install")
	require.NoError(t, err)
	require.Contains(t, out, "skipped")
}

func TestDownAndLogs_WithoutState(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "--project-dir", dir, "down")
	require.NoError(t, err)
	require.Contains(t, out, "nothing to stop")

	_, err = run(t, "--project-dir", dir, "logs")
	require.Error(t, err)
}

func TestUpDetach_AdoptsRunningServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	host, port := splitHostPort(t, srv.Listener.Addr().String())

	dir := t.TempDir()
	writeConfig(t, dir, &config.File{Server: config.Server{Host: host, Port: port, Command: []string{"false"}}})

	out, err := run(t, "--project-dir", dir, "up", "--detach", "--skip-install")
	require.NoError(t, err)
	require.Contains(t, out, "server ready at "+srv.URL)

	st, err := state.Load(dir)
	require.NoError(t, err)
	require.True(t, st.Server.Adopted)
	require.Zero(t, st.Server.PID)

	out, err = run(t, "--project-dir", dir, "status")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, probe.OutcomeReady, report.Probe.Outcome)
	require.Equal(t, http.StatusNotFound, report.Probe.StatusCode)
	require.True(t, report.Server.Adopted)

	_, err = run(t, "--project-dir", dir, "down")
	require.NoError(t, err)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.NoFileExists(t, state.StatePath(dir))
}

func TestUpDetach_SpawnsAndDownStops(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)
	addr := freeAddr(t)
	host, port := splitHostPort(t, addr)

	dir := t.TempDir()
	writeConfig(t, dir, &config.File{Server: config.Server{
		Host:    host,
		Port:    port,
		Command: []string{self},
		Env:     map[string]string{serveEnv: addr, "DATABASE_URL": "postgres://u:secret@db/app"},
	}})

	out, err := run(t, "--project-dir", dir, "up", "--detach", "--skip-install", "--interval", "100ms")
	require.NoError(t, err)
	require.Contains(t, out, "server ready at http://"+addr)

	st, err := state.Load(dir)
	require.NoError(t, err)
	require.False(t, st.Server.Adopted)
	require.Greater(t, st.Server.PID, 0)
	require.Equal(t, "production", st.Server.Env["NODE_ENV"])
	require.NotContains(t, st.Server.Env["DATABASE_URL"], "secret")
	pid := st.Server.PID
	require.True(t, state.ProcessAlive(pid))

	out, err = run(t, "--project-dir", dir, "status")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.Server.Alive)
	require.NotNil(t, report.Server.Stats)

	_, err = run(t, "--project-dir", dir, "logs", "--stderr")
	require.NoError(t, err)

	_, err = run(t, "--project-dir", dir, "--timeout", "5s", "down")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !state.ProcessAlive(pid) }, 5*time.Second, 50*time.Millisecond)
	require.NoFileExists(t, state.StatePath(dir))
}

func TestUp_FailsWithoutDashboard(t *testing.T) {
	host, port := splitHostPort(t, freeAddr(t))
	dir := t.TempDir()
	writeConfig(t, dir, &config.File{Server: config.Server{
		Host:    host,
		Port:    port,
		Command: []string{"bash", "-c", "echo 'listen EADDRINUSE' >&2; exit 1"},
	}})

	_, err := run(t, "--project-dir", dir, "up", "--no-dashboard", "--skip-install", "--interval", "50ms")
	require.Error(t, err)
	require.Contains(t, err.Error(), "EADDRINUSE")
	require.NoFileExists(t, state.StatePath(dir))
}

func TestLauncher_PublishesNotices(t *testing.T) {
	host, port := splitHostPort(t, freeAddr(t))
	dir := t.TempDir()
	cfg := &config.File{
		Server: config.Server{
			Host:    host,
			Port:    port,
			Command: []string{"bash", "-c", "exit 1"},
		},
		Readiness: config.Readiness{Interval: 50 * time.Millisecond, MaxAttempts: 3},
		Deps:      config.Deps{Command: []string{"bash", "-c", "exit 1"}},
	}
	cfg.ApplyDefaults()

	bus, err := events.NewInMemoryBus()
	require.NoError(t, err)
	var mu sync.Mutex
	var notices []events.Notice
	bus.AddHandler("test-notices", events.TopicLauncher, func(msg *message.Message) error {
		env, err := events.DecodeEnvelope(msg)
		if err != nil || env.Type != events.TypeNotice {
			return err
		}
		var n events.Notice
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			return err
		}
		mu.Lock()
		notices = append(notices, n)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()
	select {
	case <-bus.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("bus did not start")
	}

	l, err := newLauncher(rootOptions{ProjectDir: dir}, cfg, false, events.NewPublisher(bus.Publisher))
	require.NoError(t, err)
	ready, err := l.launch(ctx)
	l.shutdown()
	require.False(t, ready)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notices) == 2
	}, 3*time.Second, 20*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, events.LevelWarn, notices[0].Level)
	require.Contains(t, notices[0].Text, "dependency install failed")
	require.Equal(t, events.LevelError, notices[1].Level)
	require.Contains(t, notices[1].Text, strconv.Itoa(port))
	require.Contains(t, notices[1].Text, "platformctl logs --stderr")
}
