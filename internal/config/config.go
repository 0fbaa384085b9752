// Package config loads server configuration from the environment with an
// optional YAML file overlay.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the matchpoint server and watch client.
type Config struct {
	HTTPAddr string `env:"MATCHPOINT_HTTP_ADDR" yaml:"http_addr"`
	DBPath   string `env:"MATCHPOINT_DB" yaml:"db_path"`
	LogLevel string `env:"MATCHPOINT_LOG_LEVEL" yaml:"log_level"`

	// PhoneURL is the base URL the watch client connects to.
	PhoneURL string `env:"MATCHPOINT_PHONE_URL" yaml:"phone_url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8484",
		DBPath:   "matchpoint.db",
		LogLevel: "INFO",
		PhoneURL: "http://localhost:8484",
	}
}

// Load builds configuration in three layers: built-in defaults, then the
// YAML file at path (if non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Level parses the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
