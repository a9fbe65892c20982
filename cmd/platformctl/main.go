package main

import (
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/spf13/cobra"
	"github.com/webdevreplits/PlatformSupport/cmd/platformctl/cmds"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "platformctl",
	Short:   "platformctl starts the Platform Support web app and frames it in a dashboard",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLoggerFromCobra(cmd)
	},
}

func main() {
	cobra.CheckErr(logging.AddLoggingLayerToRootCommand(rootCmd, "platformctl"))
	cmds.AddRootFlags(rootCmd)
	cobra.CheckErr(cmds.AddCommands(rootCmd))
	cobra.CheckErr(rootCmd.Execute())
}
