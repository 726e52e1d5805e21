// Package config loads and validates the bot configuration from YAML and
// hot-reloads the reloadable subset (admin allowlist, log level) when the
// file changes on disk.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	DataDir   string          `yaml:"dataDir"`
	Admins    []int64         `yaml:"admins"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CacheConfig sizes the ephemeral token-lookup cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig enables trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		DataDir: "data",
		Cache: CacheConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 10 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads and validates a YAML configuration file, filling unset fields
// with defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: dataDir is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.SweepInterval < 0 {
		return fmt.Errorf("config: cache.sweepInterval must not be negative, got %s", c.Cache.SweepInterval)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// LogLevel returns the parsed slog level.
func (c Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// IsAdmin reports whether the user is in the admin allowlist.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
}
