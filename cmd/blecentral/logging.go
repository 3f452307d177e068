package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srgg/blecentral/pkg/config"
)

// cliConfig holds the CLI-surface defaults (scan/connect timeouts,
// output format, coloring); the BLE domain runtime is configured
// separately via central.Config.
var cliConfig = config.DefaultConfig()

// configureLogger builds a logger whose level is taken from --log-level,
// falling back to the config default (silent) so the demo CLI's own
// table output isn't interleaved with framework logs unless asked for.
func configureLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	cfg := *cliConfig

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			cfg.LogLevel = logrus.DebugLevel
		case "info":
			cfg.LogLevel = logrus.InfoLevel
		case "warn":
			cfg.LogLevel = logrus.WarnLevel
		case "error":
			cfg.LogLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	}

	return cfg.NewLogger(), nil
}
