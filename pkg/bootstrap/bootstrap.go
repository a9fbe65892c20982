// Package bootstrap installs the web app's JavaScript dependencies when the
// install marker (node_modules by default) is missing.
package bootstrap

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeInstalled Outcome = "installed"
	OutcomeFailed    Outcome = "failed"
)

// Runner runs an install command in dir and returns its combined output.
type Runner func(ctx context.Context, dir string, command []string) ([]byte, error)

type Installer struct {
	Dir     string
	Marker  string
	Command []string
	Runner  Runner
	// OutputTail bounds how many output lines end up in an error.
	OutputTail int
}

type Result struct {
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
}

func (i *Installer) MarkerPath() string {
	marker := i.Marker
	if marker == "" {
		marker = "node_modules"
	}
	if filepath.IsAbs(marker) {
		return marker
	}
	return filepath.Join(i.Dir, marker)
}

// Ensure installs dependencies unless the marker exists. A failed install is
// returned as an error; callers are expected to report it and carry on.
func (i *Installer) Ensure(ctx context.Context) (Result, error) {
	if _, err := os.Stat(i.MarkerPath()); err == nil {
		log.Debug().Str("marker", i.MarkerPath()).Msg("dependencies present")
		return Result{Outcome: OutcomeSkipped}, nil
	} else if !os.IsNotExist(err) {
		return Result{Outcome: OutcomeFailed}, errors.Wrap(err, "stat dependency marker")
	}
	if len(i.Command) == 0 {
		return Result{Outcome: OutcomeFailed}, errors.New("missing install command")
	}

	run := i.Runner
	if run == nil {
		run = ExecRunner
	}

	log.Info().Strs("command", i.Command).Str("dir", i.Dir).Msg("installing dependencies")
	start := time.Now()
	out, err := run(ctx, i.Dir, i.Command)
	res := Result{Outcome: OutcomeInstalled, Duration: time.Since(start), Output: string(out)}
	if err != nil {
		res.Outcome = OutcomeFailed
		msg := strings.Join(i.Command, " ")
		if tail := lastLines(string(out), i.OutputTail); tail != "" {
			return res, errors.Wrapf(err, "%s failed: %s", msg, tail)
		}
		return res, errors.Wrapf(err, "%s failed", msg)
	}
	log.Info().Dur("duration", res.Duration).Msg("dependencies installed")
	return res, nil
}

func ExecRunner(ctx context.Context, dir string, command []string) ([]byte, error) {
	// #nosec G204 -- command comes from the project config.
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

func lastLines(s string, n int) string {
	if n <= 0 {
		n = 10
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
