package cmds

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/webdevreplits/PlatformSupport/pkg/state"
)

func newLogsCmd() *cobra.Command {
	var stderr bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of the web app's captured output",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if _, err := os.Stat(state.StatePath(opts.ProjectDir)); os.IsNotExist(err) {
				return errors.New("no state found; run platformctl up first")
			}
			st, err := state.Load(opts.ProjectDir)
			if err != nil {
				return err
			}
			if st.Server == nil || st.Server.Adopted {
				return errors.New("server was not started by platformctl; no captured output")
			}

			path := st.Server.StdoutLog
			if stderr {
				path = st.Server.StderrLog
			}
			tail, err := state.TailLines(path, lines, 4<<20)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			for _, l := range tail {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stderr, "stderr", false, "Show stderr instead of stdout")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	return cmd
}
