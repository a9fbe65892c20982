package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/webdevreplits/PlatformSupport/pkg/envdetect"
	"github.com/webdevreplits/PlatformSupport/pkg/proc"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

type serverStatus struct {
	Name      string          `json:"name"`
	PID       int             `json:"pid,omitempty"`
	Alive     bool            `json:"alive"`
	Adopted   bool            `json:"adopted,omitempty"`
	StartedAt time.Time       `json:"started_at,omitempty"`
	Stdout    string          `json:"stdout_log,omitempty"`
	Stderr    string          `json:"stderr_log,omitempty"`
	Stats     *proc.Stats     `json:"stats,omitempty"`
	Exit      *state.ExitInfo `json:"exit,omitempty"`
}

type statusReport struct {
	ProjectDir  string                  `json:"project_dir"`
	Environment string                  `json:"environment"`
	ProbeURL    string                  `json:"probe_url"`
	Probe       *supervise.ProbeSummary `json:"probe"`
	Server      *serverStatus           `json:"server,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var tailLines int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the web app as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			prober, err := newProber(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			res := prober.Probe(ctx)
			cancel()

			report := statusReport{
				ProjectDir:  opts.ProjectDir,
				Environment: envdetect.FromOS().Label(),
				ProbeURL:    prober.Target(),
				Probe: &supervise.ProbeSummary{
					Outcome:    res.Outcome,
					StatusCode: res.StatusCode,
					LatencyMs:  res.Latency.Milliseconds(),
					At:         time.Now(),
				},
			}
			if res.Err != nil {
				report.Probe.Error = res.Err.Error()
			}

			if _, err := os.Stat(state.StatePath(opts.ProjectDir)); err == nil {
				st, err := state.Load(opts.ProjectDir)
				if err != nil {
					return err
				}
				if st.Server != nil {
					report.Server = describeServer(st.Server, tailLines)
				}
			}

			b, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return errors.Wrap(err, "marshal status")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().IntVar(&tailLines, "tail-lines", 25, "How many stderr lines to include for a dead server")
	cmd.Flags().AddFlagSet(serverFlagSet())
	return cmd
}

func describeServer(rec *state.ServerRecord, tailLines int) *serverStatus {
	s := &serverStatus{
		Name:      rec.Name,
		PID:       rec.PID,
		Adopted:   rec.Adopted,
		StartedAt: rec.StartedAt,
		Stdout:    rec.StdoutLog,
		Stderr:    rec.StderrLog,
	}
	if rec.PID <= 0 {
		return s
	}

	s.Alive = state.ProcessAlive(rec.PID)
	if s.Alive {
		if stats, err := proc.ReadStats(rec.PID); err == nil {
			s.Stats = stats
		}
		return s
	}

	if rec.ExitInfo != "" {
		if ei, err := state.ReadExitInfo(rec.ExitInfo); err == nil {
			s.Exit = ei
		}
	}
	if s.Exit == nil && tailLines > 0 && rec.StderrLog != "" {
		if lines, err := state.TailLines(rec.StderrLog, tailLines, 2<<20); err == nil {
			s.Exit = &state.ExitInfo{
				Name:       rec.Name,
				PID:        rec.PID,
				StartedAt:  rec.StartedAt,
				Error:      "exit info unavailable; stderr tail captured at status time",
				StderrTail: lines,
			}
		}
	}
	if s.Exit != nil && tailLines > 0 && len(s.Exit.StderrTail) > tailLines {
		s.Exit.StderrTail = append([]string{}, s.Exit.StderrTail[len(s.Exit.StderrTail)-tailLines:]...)
	}
	return s
}
