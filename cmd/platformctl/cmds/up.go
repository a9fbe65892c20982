package cmds

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newUpCmd() *cobra.Command {
	var noDashboard bool
	var detach bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Install dependencies, start the web app and serve the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if detach {
				noDashboard = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l, err := newLauncher(opts, cfg, detach, nil)
			if err != nil {
				return err
			}
			dash := l.newDashboard(ctx)

			eg, egCtx := errgroup.WithContext(ctx)
			if !noDashboard {
				eg.Go(func() error {
					return dash.Run(egCtx, cfg.Dashboard.Addr)
				})
			}
			eg.Go(func() error {
				ready, err := l.launch(egCtx)
				if !ready {
					if noDashboard {
						return err
					}
					// The dashboard keeps serving the troubleshooting page.
					log.Error().Err(err).Msg("server failed to start")
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "server ready at %s\n", cfg.Server.URL())
				if !noDashboard {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dashboard at http://%s/\n", cfg.Dashboard.Addr)
				}
				return nil
			})

			waitErr := eg.Wait()
			if detach {
				return waitErr
			}
			if waitErr == nil && noDashboard {
				<-ctx.Done()
			}
			l.shutdown()
			if waitErr != nil && ctx.Err() != nil {
				return nil
			}
			return waitErr
		},
	}

	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "Do not serve the dashboard; keep the server in the foreground")
	cmd.Flags().BoolVar(&detach, "detach", false, "Leave the server running and exit once it is ready")
	cmd.Flags().AddFlagSet(serverFlagSet())
	return cmd
}
