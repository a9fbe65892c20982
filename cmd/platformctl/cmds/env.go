package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/webdevreplits/PlatformSupport/pkg/envdetect"
)

func newEnvCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the detected hosting environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := envdetect.FromOS()
			if !asJSON {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), kind.Label())
				return nil
			}
			b, err := json.Marshal(map[string]string{"kind": kind.String(), "label": kind.Label()})
			if err != nil {
				return errors.Wrap(err, "marshal environment")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print kind and label as JSON")
	return cmd
}
