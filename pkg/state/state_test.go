package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRemove(t *testing.T) {
	dir := t.TempDir()

	st := &State{
		ProjectDir:  dir,
		Environment: "local",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		Server: &ServerRecord{
			Name:     "web",
			PID:      1234,
			Command:  []string{"npm", "run", "dev"},
			Cwd:      dir,
			Env:      SanitizeEnv(map[string]string{"NODE_ENV": "production", "SESSION_SECRET": "hunter2"}),
			ProbeURL: "http://localhost:5000/",
		},
	}
	require.NoError(t, Save(dir, st))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, st.CreatedAt, loaded.CreatedAt.UTC())
	require.Equal(t, "web", loaded.Server.Name)
	require.Equal(t, 1234, loaded.Server.PID)
	require.Equal(t, "production", loaded.Server.Env["NODE_ENV"])
	require.Equal(t, redactedValue, loaded.Server.Env["SESSION_SECRET"])

	require.NoError(t, Remove(dir))
	_, err = os.Stat(StatePath(dir))
	require.True(t, os.IsNotExist(err))
	require.NoError(t, Remove(dir))
}

func TestSanitizeEnv(t *testing.T) {
	out := SanitizeEnv(map[string]string{
		"NODE_ENV":     "production",
		"DATABASE_URL": "postgres://u:p@h/db",
		"api_token":    "abc",
		"PORT":         "5000",
	})
	require.Equal(t, "production", out["NODE_ENV"])
	require.Equal(t, "5000", out["PORT"])
	require.Equal(t, redactedValue, out["DATABASE_URL"])
	require.Equal(t, redactedValue, out["api_token"])
	require.Nil(t, SanitizeEnv(nil))
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "err.log")
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("line ")
		b.WriteString(string(rune('a' + i%26)))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	lines, err := TailLines(path, 3, 0)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, "line x", lines[2])

	empty := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	lines, err = TailLines(empty, 3, 0)
	require.NoError(t, err)
	require.Empty(t, lines)

	_, err = TailLines(filepath.Join(t.TempDir(), "missing.log"), 3, 0)
	require.Error(t, err)

	// a 10 byte window starts mid-line: " w\nline x\n"
	lines, err = TailLines(path, 5, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"line x"}, lines)
}

func TestExitInfoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "web.exit.json")
	code := 1
	require.NoError(t, WriteExitInfo(path, ExitInfo{Name: "web", PID: 42, ExitCode: &code, StderrTail: []string{"boom"}}))

	info, err := ReadExitInfo(path)
	require.NoError(t, err)
	require.Equal(t, "exit code 1", info.Summary())
	require.Equal(t, []string{"boom"}, info.StderrTail)

	require.Equal(t, "signal killed", ExitInfo{Signal: "killed"}.Summary())
}

func TestProcessAlive(t *testing.T) {
	require.True(t, ProcessAlive(os.Getpid()))
	require.False(t, ProcessAlive(0))
	require.False(t, ProcessAlive(-1))
}
