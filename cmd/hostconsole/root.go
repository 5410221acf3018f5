package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/hostconsole/internal/config"
)

// cliFlag maps a command-line flag to its config key.
type cliFlag struct {
	name string
	key  string
}

var boundFlags = []cliFlag{
	{"log-level", config.KeyLogLevel},
	{"log-format", config.KeyLogFormat},
	{"command-timeout", config.KeyCommandTimeout},
	{"reap-interval", config.KeyReapInterval},
	{"start-phase", config.KeyStartPhase},
	{"metrics-addr", config.KeyMetricsAddr},
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "hostconsole",
		Short:         "Script console for a Lua-hosted game",
		Long:          "hostconsole attaches to a Lua game host, funnels console commands into its script engine and routes the results back.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "path to a TOML configuration file")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console, json)")
	pf.Duration("command-timeout", 0, "how long a command may wait for the host")
	pf.Duration("reap-interval", 0, "how often stale commands are checked")
	pf.String("start-phase", "", "phase the host starts in")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address")

	// Only flags the user set override the file and environment.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		for _, f := range boundFlags {
			flag := cmd.Flags().Lookup(f.name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(f.key, flag); err != nil {
				return err
			}
		}
		return nil
	}

	load := func() (config.Config, error) {
		return config.Load(v, configFile)
	}

	rootCmd.AddCommand(
		newRunCmd(load),
		newConfigCmd(load),
		newVersionCmd(),
	)
	return rootCmd
}
