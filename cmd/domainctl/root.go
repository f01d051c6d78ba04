package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ignite/domainwatch/internal/app"
	"github.com/ignite/domainwatch/internal/config"
)

type cliConfig struct {
	ConfigPath string
	LogLevel   string

	// Derived runtime state.
	cfg *config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cc := &cliConfig{}

	root := &cobra.Command{
		Use:           "domainctl",
		Short:         "Operate a domainwatch deployment: lookups, registrations, poll cycles",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(usageErr)

	pf := root.PersistentFlags()
	pf.StringVar(&cc.ConfigPath, "config", "config/config.yaml", "Path to the YAML config (env vars override it)")
	pf.StringVar(&cc.LogLevel, "log-level", "warn", "Log level: debug|info|warn|error")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv(cc.ConfigPath)
		if err != nil {
			return &cliError{Code: 1, Err: fmt.Errorf("load config: %w", err), Cmd: cmd}
		}
		if cmd.Flags().Changed("log-level") || cfg.Log.Level == "" {
			cfg.Log.Level = cc.LogLevel
		}
		app.ConfigureLogging(cfg.Log)
		cc.cfg = cfg
		return nil
	}

	root.AddCommand(newCheckCmd(cc))
	root.AddCommand(newSuggestCmd(cc))
	root.AddCommand(newRegisterCmd(cc))
	root.AddCommand(newPendingCmd(cc))
	root.AddCommand(newPollCmd(cc))
	root.AddCommand(newMigrateCmd(cc))

	return root
}
