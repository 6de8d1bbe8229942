// Package daemon manages the rewards daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // engine.timezone on hosts without zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/tutu-network/rewards/internal/domain"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all daemon configuration. Values come from DefaultConfig,
// then $REWARDS_HOME/config.toml, then REWARDS_* environment variables.
type Config struct {
	API       APIConfig       `toml:"api"`
	Storage   StorageConfig   `toml:"storage"`
	Engine    EngineConfig    `toml:"engine"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host" env:"REWARDS_API_HOST"`
	Port        int      `toml:"port" env:"REWARDS_API_PORT"`
	CORSOrigins []string `toml:"cors_origins" env:"REWARDS_CORS_ORIGINS"`
}

// StorageConfig selects and locates the progress store.
type StorageConfig struct {
	Driver      string `toml:"driver" env:"REWARDS_STORAGE_DRIVER"`
	Dir         string `toml:"dir" env:"REWARDS_STORAGE_DIR"`
	PostgresURL string `toml:"postgres_url" env:"REWARDS_POSTGRES_URL"`
}

// EngineConfig tunes the progression engine.
type EngineConfig struct {
	HabitPoints int64  `toml:"habit_points" env:"REWARDS_HABIT_POINTS"`
	Timezone    string `toml:"timezone" env:"REWARDS_TIMEZONE"`
	Catalog     string `toml:"catalog" env:"REWARDS_CATALOG"` // empty = embedded default
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus" env:"REWARDS_PROMETHEUS"`
	HealthInterval string `toml:"health_interval" env:"REWARDS_HEALTH_INTERVAL"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level" env:"REWARDS_LOG_LEVEL"`
	File  string `toml:"file" env:"REWARDS_LOG_FILE"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := rewardsHome()
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8420,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Dir:    homeDir,
		},
		Engine: EngineConfig{
			HabitPoints: 15,
			Timezone:    "UTC",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads config from $REWARDS_HOME/config.toml, falling back to
// defaults, and applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom reads config from path. A missing file is not an error.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("%w: parse config %s: %w", domain.ErrConfig, path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("%w: unknown config key %q in %s", domain.ErrConfig, undecoded[0].String(), path)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse env: %w", domain.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Dir == "" {
			return fmt.Errorf("%w: storage.dir is required for sqlite", domain.ErrConfig)
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("%w: storage.postgres_url is required for postgres", domain.ErrConfig)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", domain.ErrConfig, c.Storage.Driver)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port %d out of range", domain.ErrConfig, c.API.Port)
	}
	if c.Engine.HabitPoints <= 0 {
		return fmt.Errorf("%w: engine.habit_points must be positive", domain.ErrConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.HealthInterval(); err != nil {
		return err
	}
	return nil
}

// Location resolves engine.timezone. Empty means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Engine.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: engine.timezone: %w", domain.ErrConfig, err)
	}
	return loc, nil
}

// HealthInterval parses telemetry.health_interval. Empty means the
// checker's default.
func (c Config) HealthInterval() (time.Duration, error) {
	if c.Telemetry.HealthInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Telemetry.HealthInterval)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: telemetry.health_interval %q", domain.ErrConfig, c.Telemetry.HealthInterval)
	}
	return d, nil
}

// SaveConfig writes the config to $REWARDS_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath is the config file location.
func ConfigPath() string {
	return filepath.Join(rewardsHome(), "config.toml")
}

// rewardsHome returns the rewards data directory.
func rewardsHome() string {
	if dir := os.Getenv("REWARDS_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rewards")
}

// Home is exported for use by other packages.
func Home() string {
	return rewardsHome()
}
