package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration the kiln binary loads from yaml.
type Config struct {
	DataDir     string        `yaml:"data_dir"`
	Workers     int           `yaml:"workers"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Log         LogConfig     `yaml:"log"`
	Storage     StorageConfig `yaml:"storage"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig mirrors the storage manager's tuning knobs.
type StorageConfig struct {
	Read  ReadConfig  `yaml:"read"`
	Write WriteConfig `yaml:"write"`
}

type ReadConfig struct {
	MaxReaders           int `yaml:"max_readers"`
	BufferDepthPerReader int `yaml:"buffer_depth_per_reader"`
}

type WriteConfig struct {
	MaxBatchSize     int      `yaml:"max_batch_size"`
	MaxBatchDuration Duration `yaml:"max_batch_duration"`
}

// Duration lets yaml carry durations in Go's notation ("10ms", "2s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Workers: 0, // one per CPU
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{
			Read:  ReadConfig{MaxReaders: 8, BufferDepthPerReader: 128},
			Write: WriteConfig{MaxBatchSize: 1000, MaxBatchDuration: Duration(10 * time.Millisecond)},
		},
	}
}

// Load reads a yaml config file, filling unset fields from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
