// Package cmd implements the syncwave command line: stream, receive, and
// stats subcommands over a shared set of persistent flags.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/config"
)

// RootCmd is the entry point, exported so main can just call Execute.
var RootCmd = &cobra.Command{
	Use:   "syncwave",
	Short: "LAN-synchronized audio broadcast",
}

var (
	logLevelFlag    string
	metricsAddrFlag string
	configFlag      string
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warning, error")
	flags.StringVar(&metricsAddrFlag, "metrics-addr", "", "address to serve /metrics and / (JSON) on, disabled if empty")
	flags.StringVar(&configFlag, "config", "", "optional YAML file providing flag defaults")
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// configureLogging applies the --log-level flag to the global logger.
func configureLogging() {
	lvl, err := log.ParseLevel(logLevelFlag)
	if err != nil {
		log.Warningf("unrecognized log level %q, defaulting to info", logLevelFlag)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// loadDefaults reads the optional --config file and applies its log_level
// unless --log-level was given on the command line.
func loadDefaults() (config.Defaults, error) {
	d, err := config.Load(configFlag)
	if err != nil {
		return d, fmt.Errorf("cmd: %w", err)
	}
	if d.LogLevel != "" && !RootCmd.PersistentFlags().Changed("log-level") {
		logLevelFlag = d.LogLevel
		configureLogging()
	}
	return d, nil
}

// applyStringDefault backfills *flag from def if the user never set the
// flag explicitly on the command line.
func applyStringDefault(cmd *cobra.Command, name string, flag *string, def string) {
	if def != "" && !cmd.Flags().Changed(name) {
		*flag = def
	}
}

// applyIntDefault backfills *flag from def (if non-zero) the same way.
func applyIntDefault(cmd *cobra.Command, name string, flag *int, def int) {
	if def != 0 && !cmd.Flags().Changed(name) {
		*flag = def
	}
}
