// Package config holds the blecentral CLI's surface settings: how long
// the scan and watch commands wait, how loudly the framework logs, and
// whether table output is colored. Domain-level tuning of the BLE
// runtime itself (minimum RSSI, stale-eviction interval, control-point
// timeout) lives in central.Config, not here.
package config

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the CLI-surface configuration.
type Config struct {
	// LogLevel gates framework logging. The CLI defaults to silence so
	// scan tables and measurement streams aren't interleaved with log
	// lines; --log-level raises it.
	LogLevel logrus.Level

	// ScanTimeout bounds the scan command's discovery window.
	ScanTimeout time.Duration

	// DeviceTimeout bounds the watch command's connect-and-discover
	// wait for a matched peripheral.
	DeviceTimeout time.Duration

	// Color enables ANSI coloring (github.com/fatih/color) of table
	// output.
	Color bool
}

// DefaultConfig returns the CLI defaults: silent logging, a 10 s scan
// window, a 30 s connection wait, colored output.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      logrus.PanicLevel,
		ScanTimeout:   10 * time.Second,
		DeviceTimeout: 30 * time.Second,
		Color:         true,
	}
}

// NewLogger builds the CLI's logger at c.LogLevel. At the silent
// default the logger's output is discarded outright instead of
// formatted and filtered, so notification-heavy watch sessions don't
// pay for logging nobody asked for.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	if c.LogLevel == logrus.PanicLevel {
		logger.SetOutput(io.Discard)
		return logger
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
