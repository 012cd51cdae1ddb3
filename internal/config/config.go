// Package config loads gridsim settings from config.yaml, .env and
// GRIDSIM_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// GRIDSIM_API_ADMIN_KEY for api.admin_key.
const EnvPrefix = "GRIDSIM"

// Config is the main configuration struct combining all sub-configs.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Database   DatabaseConfig   `mapstructure:"database"`
	API        APIConfig        `mapstructure:"api"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	TickLog    TickLogConfig    `mapstructure:"ticklog"`
	Campaign   CampaignConfig   `mapstructure:"campaign"`
}

// SimulationConfig controls the engine loop and the world buffers.
type SimulationConfig struct {
	Interval        time.Duration `mapstructure:"interval" validate:"min=1ms"`
	Speed           float64       `mapstructure:"speed" validate:"gte=0"` // 0 starts paused
	HistoryLimit    int           `mapstructure:"history_limit" validate:"gte=0"`
	EventLimit      int           `mapstructure:"event_limit" validate:"gte=0"`
	SnapshotEvery   uint64        `mapstructure:"snapshot_every"`
	SnapshotLimit   int           `mapstructure:"snapshot_limit" validate:"gte=0"`
	CheckpointEvery uint64        `mapstructure:"checkpoint_every"`
	Scenario        string        `mapstructure:"scenario"` // Empty: built-in scenario
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port        int             `mapstructure:"port" validate:"min=1,max=65535"`
	AdminKey    string          `mapstructure:"admin_key"` // Empty disables admin endpoints
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
}

// RateLimitConfig is a token bucket per client.
type RateLimitConfig struct {
	Requests float64 `mapstructure:"requests" validate:"gt=0"` // Per second
	Burst    int     `mapstructure:"burst" validate:"min=1"`
}

// MetricsConfig holds Prometheus exposure settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required,startswith=/"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`

	// Log format: json, text
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// TickLogConfig enables the compressed per-tick archive.
type TickLogConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Dir           string `mapstructure:"dir" validate:"required_if=Enabled true"`
	SnapshotEvery uint64 `mapstructure:"snapshot_every"` // Graph snapshots; 0 disables
}

// CampaignConfig drives the noise-based threat campaign.
type CampaignConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Seed      int64   `mapstructure:"seed"`
	Threshold float64 `mapstructure:"threshold" validate:"gte=0,lte=1"`
	Frequency float64 `mapstructure:"frequency" validate:"gt=0"`
	Every     uint64  `mapstructure:"every"`
}

// LoadConfig loads configuration from multiple sources with priority:
// environment variables, then the config file, then defaults.
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/gridsim")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	SetDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Simulation: SimulationConfig{Speed: 1},
		Metrics:    MetricsConfig{Enabled: true},
	}
	SetDefaults(cfg)
	return cfg
}

// registerDefaults makes every key known to viper so that environment
// overrides reach Unmarshal even without a config file.
func registerDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("simulation.interval", d.Simulation.Interval)
	v.SetDefault("simulation.speed", d.Simulation.Speed)
	v.SetDefault("simulation.history_limit", d.Simulation.HistoryLimit)
	v.SetDefault("simulation.event_limit", d.Simulation.EventLimit)
	v.SetDefault("simulation.snapshot_every", d.Simulation.SnapshotEvery)
	v.SetDefault("simulation.snapshot_limit", d.Simulation.SnapshotLimit)
	v.SetDefault("simulation.checkpoint_every", d.Simulation.CheckpointEvery)
	v.SetDefault("simulation.scenario", d.Simulation.Scenario)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.admin_key", d.API.AdminKey)
	v.SetDefault("api.rate_limit.requests", d.API.RateLimit.Requests)
	v.SetDefault("api.rate_limit.burst", d.API.RateLimit.Burst)
	v.SetDefault("api.cors_origins", []string{})
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("ticklog.enabled", d.TickLog.Enabled)
	v.SetDefault("ticklog.dir", d.TickLog.Dir)
	v.SetDefault("ticklog.snapshot_every", d.TickLog.SnapshotEvery)
	v.SetDefault("campaign.enabled", d.Campaign.Enabled)
	v.SetDefault("campaign.seed", d.Campaign.Seed)
	v.SetDefault("campaign.threshold", d.Campaign.Threshold)
	v.SetDefault("campaign.frequency", d.Campaign.Frequency)
	v.SetDefault("campaign.every", d.Campaign.Every)
}
