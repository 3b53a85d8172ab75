package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/pv/htmon/internal/logger"
)

const (
	// MinPollInterval is the shortest poll period the device is asked for
	MinPollInterval = 5 * time.Second

	DefaultDevice           = "/dev/ttyACM0"
	DefaultBaud             = 115200
	DefaultPollInterval     = 10 * time.Second
	DefaultSnapshotInterval = 600 * time.Second
)

type Config struct {
	Device           string
	Baud             int
	PollInterval     time.Duration
	OutputDir        string
	SnapshotInterval time.Duration
	Timezone         string
	MetricsFile      string
	LogFormat        string
	LogLevel         string
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Device:           DefaultDevice,
		Baud:             DefaultBaud,
		PollInterval:     DefaultPollInterval,
		SnapshotInterval: DefaultSnapshotInterval,
		LogFormat:        "text",
		LogLevel:         "info",
	}
}

// Parse reads the process flags. Warnings are returned for values that were
// corrected rather than rejected.
func Parse(args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet("htmon", flag.ContinueOnError)

	def := Default()
	configPath := fs.String("config", "", "YAML configuration file")
	device := fs.String("device", def.Device, "Serial device path, or \"dummy\" for the simulated device")
	baud := fs.Int("baud", def.Baud, "Serial baud rate")
	interval := fs.Int("interval", int(def.PollInterval/time.Second), "Poll interval in seconds (minimum 5)")
	output := fs.String("output", "", "Output directory for CSV files and plots")
	snapshot := fs.Int("snapshot-interval", int(def.SnapshotInterval/time.Second), "Plot snapshot period in seconds")
	timezone := fs.String("timezone", "", "IANA timezone for event times (empty = local)")
	metricsFile := fs.String("metrics-file", "", "Prometheus textfile written on every rotation")
	logFormat := fs.String("log-format", def.LogFormat, "Log format: text or json")
	logLevel := fs.String("log-level", def.LogLevel, "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg := Default()
	if *configPath != "" {
		file, err := LoadFromYAML(*configPath)
		if err != nil {
			return nil, nil, err
		}
		file.Apply(cfg)
	}

	// Flags given explicitly win over the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = *device
		case "baud":
			cfg.Baud = *baud
		case "interval":
			cfg.PollInterval = time.Duration(*interval) * time.Second
		case "output":
			cfg.OutputDir = *output
		case "snapshot-interval":
			cfg.SnapshotInterval = time.Duration(*snapshot) * time.Second
		case "timezone":
			cfg.Timezone = *timezone
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		case "log-format":
			cfg.LogFormat = *logFormat
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	warnings, err := cfg.Normalize()
	if err != nil {
		return nil, nil, err
	}
	return cfg, warnings, nil
}

// Normalize validates the configuration and clamps correctable values
func (c *Config) Normalize() ([]string, error) {
	var warnings []string

	if c.Device == "" {
		return nil, errors.New("device address is required")
	}
	if c.Baud <= 0 {
		return nil, fmt.Errorf("baud rate must be positive, got %d", c.Baud)
	}

	var clamped bool
	c.PollInterval, clamped = ClampPollInterval(int(c.PollInterval / time.Second))
	if clamped {
		warnings = append(warnings, fmt.Sprintf("poll interval is too small, using %s", MinPollInterval))
	}

	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}

	if _, err := c.Location(); err != nil {
		return nil, err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return nil, err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		warnings = append(warnings, fmt.Sprintf("unknown log format %q, using text", c.LogFormat))
		c.LogFormat = "text"
	}

	return warnings, nil
}

// Location resolves the timezone used to interpret event times
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ClampPollInterval converts seconds to a duration no shorter than
// MinPollInterval. The bool reports whether clamping happened.
func ClampPollInterval(seconds int) (time.Duration, bool) {
	d := time.Duration(seconds) * time.Second
	if d < MinPollInterval {
		return MinPollInterval, true
	}
	return d, false
}
