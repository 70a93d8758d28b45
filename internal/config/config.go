// Package config loads the service configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streetcomplete/sc-statistics-service/internal/store"
)

// Config holds the full service configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	OSM        OSMConfig        `yaml:"osm" mapstructure:"osm"`
	Walker     WalkerConfig     `yaml:"walker" mapstructure:"walker"`
	Boundaries BoundariesConfig `yaml:"boundaries" mapstructure:"boundaries"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Purge      PurgeConfig      `yaml:"purge" mapstructure:"purge"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// OSMConfig configures the OSM API client.
type OSMConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	AuthToken      string  `yaml:"auth_token" mapstructure:"auth_token"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// WalkerConfig configures the history walker time budgets.
type WalkerConfig struct {
	MaxAnalyzeSecs int `yaml:"max_analyze_secs" mapstructure:"max_analyze_secs"`
	MinDelaySecs   int `yaml:"min_delay_secs" mapstructure:"min_delay_secs"`
	MaxSweepSecs   int `yaml:"max_sweep_secs" mapstructure:"max_sweep_secs"`
	SweepStaleSecs int `yaml:"sweep_stale_secs" mapstructure:"sweep_stale_secs"`
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
}

// BoundariesConfig configures the boundary polygon source.
type BoundariesConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	Format    string `yaml:"format" mapstructure:"format"`
	CodeField string `yaml:"code_field" mapstructure:"code_field"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// PurgeConfig configures the deleted-users purge.
type PurgeConfig struct {
	DeletedUsersURL string `yaml:"deleted_users_url" mapstructure:"deleted_users_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/sc-statistics-service")

	// Environment
	v.SetEnvPrefix("SC_STATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys configured via environment only still need a default
	// registered so AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 0)
	v.SetDefault("store.pool.min_conns", 0)
	v.SetDefault("osm.auth_token", "")
	v.SetDefault("purge.deleted_users_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("osm.base_url", "https://api.openstreetmap.org/api/0.6")
	v.SetDefault("osm.user_agent", "sc-statistics-service/1.0")
	v.SetDefault("osm.requests_per_sec", 5.0)
	v.SetDefault("osm.timeout_secs", 30)
	v.SetDefault("walker.max_analyze_secs", 3)
	v.SetDefault("walker.min_delay_secs", 30)
	v.SetDefault("walker.max_sweep_secs", 300)
	v.SetDefault("walker.sweep_stale_secs", 30)
	v.SetDefault("walker.concurrency", 4)
	v.SetDefault("boundaries.path", "boundaries.json")
	v.SetDefault("boundaries.format", "geojson")
	v.SetDefault("boundaries.code_field", "iso_code")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
