package central

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// MinAdvertisementStaleInterval is the floor spec.md §4.2 requires the
// configuration schema enforce: LoadConfig clamps any smaller configured
// value up to this, rather than rejecting it outright, matching the
// teacher's defaultScanConfig pattern of normalizing rather than erroring
// on a too-small duration. NewManager uses the Config it is given as is.
const MinAdvertisementStaleInterval = 1 * time.Second

// Config is the configuration surface spec.md §6 names (min_rssi,
// advertisement_stale_interval) plus the control-point timeout spec.md
// §4.5 leaves configurable, modeled on the teacher's pkg/config.Config/
// NewLogger pattern and loaded from YAML the way srgg-blecli's profile
// files are.
type Config struct {
	MinRSSI                    int8          `yaml:"min_rssi" default:"-65"`
	AdvertisementStaleInterval time.Duration `yaml:"advertisement_stale_interval" default:"10s"`
	ControlPointTimeout        time.Duration `yaml:"control_point_timeout" default:"20s"`
	LogLevel                   logrus.Level  `yaml:"log_level" default:"4"` // logrus.InfoLevel
}

// DefaultConfig returns a Config with every field populated by its
// `default` struct tag via go-defaults, the same mechanism
// internal/testutils uses for its option structs.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// LoadConfig reads a YAML file into a Config seeded with defaults,
// clamping AdvertisementStaleInterval to the configured floor.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("central: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("central: parsing config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// UnmarshalYAML accepts durations in time.ParseDuration form ("10s",
// "1m30s") and log levels by logrus name ("info", "debug"), neither of
// which yaml.v3 handles for the underlying Go types on its own.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		MinRSSI                    *int8   `yaml:"min_rssi"`
		AdvertisementStaleInterval *string `yaml:"advertisement_stale_interval"`
		ControlPointTimeout        *string `yaml:"control_point_timeout"`
		LogLevel                   *string `yaml:"log_level"`
	}
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	if r.MinRSSI != nil {
		c.MinRSSI = *r.MinRSSI
	}
	if r.AdvertisementStaleInterval != nil {
		d, err := time.ParseDuration(*r.AdvertisementStaleInterval)
		if err != nil {
			return fmt.Errorf("advertisement_stale_interval: %w", err)
		}
		c.AdvertisementStaleInterval = d
	}
	if r.ControlPointTimeout != nil {
		d, err := time.ParseDuration(*r.ControlPointTimeout)
		if err != nil {
			return fmt.Errorf("control_point_timeout: %w", err)
		}
		c.ControlPointTimeout = d
	}
	if r.LogLevel != nil {
		lvl, err := logrus.ParseLevel(*r.LogLevel)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		c.LogLevel = lvl
	}
	return nil
}

func (c *Config) normalize() {
	if c.AdvertisementStaleInterval < MinAdvertisementStaleInterval {
		c.AdvertisementStaleInterval = MinAdvertisementStaleInterval
	}
	if c.ControlPointTimeout <= 0 {
		c.ControlPointTimeout = 20 * time.Second
	}
}

// NewLogger builds a logrus.Logger configured per this Config, matching
// pkg/config.Config.NewLogger's TextFormatter/FullTimestamp convention.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
