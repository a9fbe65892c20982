package cmds

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/webdevreplits/PlatformSupport/pkg/config"
)

type rootOptions struct {
	ProjectDir string
	Config     string
	Timeout    time.Duration
}

func AddRootFlags(root *cobra.Command) {
	root.PersistentFlags().String("project-dir", "", "Web app project directory (defaults to current directory)")
	root.PersistentFlags().String("config", "", "Path to config file (defaults to .platformctl.yaml under project-dir)")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "Timeout for stop and status operations")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	projectDir, err := cmd.Root().PersistentFlags().GetString("project-dir")
	if err != nil {
		return rootOptions{}, err
	}
	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return rootOptions{}, err
		}
	}
	projectDir, err = filepath.Abs(projectDir)
	if err != nil {
		return rootOptions{}, err
	}

	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath(projectDir)
	} else if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(projectDir, cfgPath)
	}

	timeout, err := cmd.Root().PersistentFlags().GetDuration("timeout")
	if err != nil {
		return rootOptions{}, err
	}
	if timeout <= 0 {
		return rootOptions{}, errors.New("timeout must be > 0")
	}

	return rootOptions{ProjectDir: projectDir, Config: cfgPath, Timeout: timeout}, nil
}

// serverFlagSet holds the flags that override the server and readiness
// sections of the config file.
func serverFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.String("host", "", "Host the web app listens on")
	fs.Int("port", 0, "Port the web app listens on")
	fs.Int("max-attempts", 0, "Readiness probes before giving up")
	fs.Duration("interval", 0, "Delay between readiness probes")
	fs.String("policy", "", "Readiness policy: any, not-server-error or success")
	fs.Bool("skip-install", false, "Do not run the dependency install")
	return fs
}

func applyServerFlags(fs *pflag.FlagSet, cfg *config.File) error {
	var err error
	if fs.Changed("host") {
		if cfg.Server.Host, err = fs.GetString("host"); err != nil {
			return err
		}
	}
	if fs.Changed("port") {
		if cfg.Server.Port, err = fs.GetInt("port"); err != nil {
			return err
		}
	}
	if fs.Changed("max-attempts") {
		if cfg.Readiness.MaxAttempts, err = fs.GetInt("max-attempts"); err != nil {
			return err
		}
	}
	if fs.Changed("interval") {
		if cfg.Readiness.Interval, err = fs.GetDuration("interval"); err != nil {
			return err
		}
	}
	if fs.Changed("policy") {
		if cfg.Readiness.Policy, err = fs.GetString("policy"); err != nil {
			return err
		}
	}
	if fs.Changed("skip-install") {
		if cfg.Deps.Skip, err = fs.GetBool("skip-install"); err != nil {
			return err
		}
	}
	cfg.ApplyDefaults()
	return errors.Wrap(cfg.Validate(), "invalid flags")
}

func loadConfig(cmd *cobra.Command, opts rootOptions) (*config.File, error) {
	cfg, err := config.LoadOptional(opts.Config)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Lookup("port") != nil {
		if err := applyServerFlags(cmd.Flags(), cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
