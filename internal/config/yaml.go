package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file layout
type FileConfig struct {
	Device           string     `yaml:"device"`
	Baud             int        `yaml:"baud"`
	PollInterval     int        `yaml:"poll_interval"`
	OutputDir        string     `yaml:"output_dir"`
	SnapshotInterval int        `yaml:"snapshot_interval"`
	Timezone         string     `yaml:"timezone"`
	MetricsFile      string     `yaml:"metrics_file"`
	Log              LogSection `yaml:"log"`
}

type LogSection struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// LoadFromYAML reads a configuration file. Zero values mean "not set".
func LoadFromYAML(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if file.Baud < 0 {
		return nil, fmt.Errorf("baud must be positive, got %d", file.Baud)
	}
	if file.PollInterval < 0 {
		return nil, fmt.Errorf("poll_interval must not be negative, got %d", file.PollInterval)
	}

	return &file, nil
}

// Apply copies every value set in the file onto cfg
func (f *FileConfig) Apply(cfg *Config) {
	if f.Device != "" {
		cfg.Device = f.Device
	}
	if f.Baud != 0 {
		cfg.Baud = f.Baud
	}
	if f.PollInterval != 0 {
		cfg.PollInterval = time.Duration(f.PollInterval) * time.Second
	}
	if f.OutputDir != "" {
		cfg.OutputDir = f.OutputDir
	}
	if f.SnapshotInterval != 0 {
		cfg.SnapshotInterval = time.Duration(f.SnapshotInterval) * time.Second
	}
	if f.Timezone != "" {
		cfg.Timezone = f.Timezone
	}
	if f.MetricsFile != "" {
		cfg.MetricsFile = f.MetricsFile
	}
	if f.Log.Format != "" {
		cfg.LogFormat = f.Log.Format
	}
	if f.Log.Level != "" {
		cfg.LogLevel = f.Log.Level
	}
}
