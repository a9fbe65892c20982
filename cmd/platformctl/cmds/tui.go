package cmds

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/webdevreplits/PlatformSupport/pkg/events"
	"github.com/webdevreplits/PlatformSupport/pkg/tui"
	"github.com/webdevreplits/PlatformSupport/pkg/tui/models"
	"golang.org/x/sync/errgroup"
)

func newTuiCmd() *cobra.Command {
	var altScreen bool
	var detach bool
	var noDashboard bool

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the web app with a terminal progress view",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			bus, err := events.NewInMemoryBus()
			if err != nil {
				return err
			}
			l, err := newLauncher(opts, cfg, detach, events.NewPublisher(bus.Publisher))
			if err != nil {
				return err
			}

			rootOpts := models.RootOptions{
				Title:       cfg.Dashboard.Title,
				Environment: l.env.Label(),
				Target:      l.sup.Status().Target,
				MaxAttempts: cfg.Readiness.MaxAttempts,
			}
			if !noDashboard {
				rootOpts.DashboardURL = "http://" + cfg.Dashboard.Addr + "/"
			}
			model := models.NewRootModel(rootOpts)
			programOptions := []tea.ProgramOption{
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithContext(ctx),
			}
			if altScreen {
				programOptions = append(programOptions, tea.WithAltScreen())
			}
			program := tea.NewProgram(model, programOptions...)
			tui.RegisterForwarder(bus, program)

			eg, egCtx := errgroup.WithContext(ctx)
			if !noDashboard {
				dash := l.newDashboard(egCtx)
				eg.Go(func() error {
					// The view stays useful without the dashboard.
					if err := dash.Run(egCtx, cfg.Dashboard.Addr); err != nil {
						log.Warn().Err(err).Msg("dashboard stopped")
					}
					return nil
				})
			}
			eg.Go(func() error {
				err := bus.Run(egCtx)
				if stderrors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				select {
				case <-bus.Running():
				case <-egCtx.Done():
					return nil
				}
				ready, err := l.launch(egCtx)
				program.Send(tui.LaunchDoneMsg{Ready: ready, URL: cfg.Server.URL(), Err: err})
				return nil
			})
			eg.Go(func() error {
				_, err := program.Run()
				cancel()
				if stderrors.Is(err, tea.ErrProgramKilled) || stderrors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})

			err = eg.Wait()
			if !detach {
				l.shutdown()
			}
			if err != nil {
				return errors.Wrap(err, "tui")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "Use the terminal alternate screen buffer")
	cmd.Flags().BoolVar(&detach, "detach", false, "Leave the server running when the view is closed")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "Do not serve the dashboard alongside the view")
	cmd.Flags().AddFlagSet(serverFlagSet())
	return cmd
}
