package state

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/webdevreplits/PlatformSupport/pkg/proc"
)

const (
	StateDirName  = ".platformctl"
	StateFilename = "state.json"
	LogsDirName   = "logs"
)

// State is what one launcher session leaves behind so that other invocations
// (status, logs, down) can find the managed server.
type State struct {
	ProjectDir  string        `json:"project_dir"`
	Environment string        `json:"environment"`
	CreatedAt   time.Time     `json:"created_at"`
	Server      *ServerRecord `json:"server,omitempty"`
}

type ServerRecord struct {
	Name      string            `json:"name"`
	PID       int               `json:"pid"`
	Command   []string          `json:"command"`
	Cwd       string            `json:"cwd"`
	Env       map[string]string `json:"env,omitempty"`
	StdoutLog string            `json:"stdout_log"`
	StderrLog string            `json:"stderr_log"`
	ExitInfo  string            `json:"exit_info,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	ProbeURL  string            `json:"probe_url"`

	// Adopted is true when the server was already answering and the
	// launcher did not spawn it.
	Adopted bool `json:"adopted,omitempty"`
}

func StatePath(projectDir string) string {
	return filepath.Join(projectDir, StateDirName, StateFilename)
}

func LogsDir(projectDir string) string {
	return filepath.Join(projectDir, StateDirName, LogsDirName)
}

func Load(projectDir string) (*State, error) {
	b, err := os.ReadFile(StatePath(projectDir))
	if err != nil {
		return nil, errors.Wrap(err, "read state")
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "parse state json")
	}
	return &s, nil
}

func Save(projectDir string, s *State) error {
	if s == nil {
		return errors.New("nil state")
	}
	if err := os.MkdirAll(filepath.Dir(StatePath(projectDir)), 0o755); err != nil {
		return errors.Wrap(err, "mkdir state dir")
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	tmp := StatePath(projectDir) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "write state")
	}
	if err := os.Rename(tmp, StatePath(projectDir)); err != nil {
		return errors.Wrap(err, "rename state")
	}
	return nil
}

func Remove(projectDir string) error {
	if err := os.Remove(StatePath(projectDir)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "remove state")
	}
	return nil
}

func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return stderrors.Is(err, syscall.EPERM)
}

func isZombie(pid int) bool {
	st, err := proc.ReadStats(pid)
	return err == nil && st.State == "Z"
}
