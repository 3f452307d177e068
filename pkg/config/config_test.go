package config

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsSilentWithColoredTables(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, logrus.PanicLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.DeviceTimeout)
	assert.True(t, cfg.Color)
}

func TestNewLoggerDiscardsOutputWhenSilent(t *testing.T) {
	logger := DefaultConfig().NewLogger()
	assert.Equal(t, io.Discard, logger.Out)
}

func TestNewLoggerFormatsAtRequestedLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = logrus.DebugLevel
	logger := cfg.NewLogger()

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.NotEqual(t, io.Discard, logger.Out)

	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.True(t, formatter.FullTimestamp)
	assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
}

func TestScanWindowShorterThanConnectionWait(t *testing.T) {
	// The scan command gives up on discovery well before the watch
	// command gives up on a connection: a peripheral that never
	// advertises is a fast no, one mid-discovery is worth waiting out.
	cfg := DefaultConfig()
	assert.Less(t, cfg.ScanTimeout, cfg.DeviceTimeout)
}
