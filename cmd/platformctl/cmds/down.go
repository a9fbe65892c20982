package cmds

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

func newDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Stop the web app recorded in the state file",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			if _, err := os.Stat(state.StatePath(opts.ProjectDir)); os.IsNotExist(err) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing to stop")
				return nil
			}
			st, err := state.Load(opts.ProjectDir)
			if err != nil {
				return err
			}

			if st.Server != nil && st.Server.Adopted {
				log.Info().Str("url", st.Server.ProbeURL).Msg("server was not started by platformctl; leaving it running")
			} else if st.Server != nil && st.Server.PID > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
				defer cancel()
				if err := supervise.StopPID(ctx, st.Server.PID, cfg.Server.ShutdownTimeout); err != nil {
					return err
				}
				log.Info().Int("pid", st.Server.PID).Msg("server stopped")
			}

			if err := state.Remove(opts.ProjectDir); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
