package cmds

import "github.com/spf13/cobra"

func AddCommands(root *cobra.Command) error {
	root.AddCommand(newUpCmd())
	root.AddCommand(newDownCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newEnvCmd())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newTuiCmd())
	return nil
}
