// Package config handles loading and parsing of CobaltStore configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for CobaltStore.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Persist PersistConfig `yaml:"persist"`
	Lease   LeaseConfig   `yaml:"lease"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
	// Format is the log output format: "text" or "json".
	Format string `yaml:"format"`
}

// PersistConfig holds state persistence settings. When disabled the store is
// purely in-memory and all state is lost on shutdown.
type PersistConfig struct {
	// Enabled controls whether committed state is snapshotted to disk.
	Enabled bool `yaml:"enabled"`
	// Path is the filesystem path for the SQLite snapshot database.
	Path string `yaml:"path"`
	// Interval is how often the background snapshot runs.
	Interval time.Duration `yaml:"interval"`
}

// LeaseConfig holds lease maintenance settings.
type LeaseConfig struct {
	// SweepInterval is how often expired leases are swept. Expiry is also
	// evaluated lazily on access, so the sweep only bounds how long an
	// expired lease lingers in memory.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config with defaults applied. If the primary path fails, it falls
// back to cobaltstore.example.yaml in the same or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "cobaltstore.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "cobaltstore.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Persist: PersistConfig{
			Enabled:  false,
			Path:     "./data/cobaltstore.db",
			Interval: 30 * time.Second,
		},
		Lease: LeaseConfig{
			SweepInterval: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 10000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Persist.Path == "" {
		cfg.Persist.Path = "./data/cobaltstore.db"
	}
	if cfg.Persist.Interval == 0 {
		cfg.Persist.Interval = 30 * time.Second
	}
	if cfg.Lease.SweepInterval == 0 {
		cfg.Lease.SweepInterval = 10 * time.Second
	}
}
