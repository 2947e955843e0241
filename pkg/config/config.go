// Package config loads daemon configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Football    FootballConfig    `mapstructure:"football"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// FootballConfig holds the match data source configuration. An empty token
// switches the daemon to the built-in sample data source.
type FootballConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Token        string        `mapstructure:"token"`
	Tier         string        `mapstructure:"tier"` // basic or enhanced
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Competition  string        `mapstructure:"competition"`
}

// StorageConfig holds saved-game persistence configuration.
type StorageConfig struct {
	Path      string `mapstructure:"path"`
	KeepSaves int    `mapstructure:"keep_saves"` // per session, enforced by nightly prune
}

// EntitlementConfig holds plan limit configuration.
type EntitlementConfig struct {
	Plan string `mapstructure:"plan"` // free or premium
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. The file is
// optional; defaults plus LAPPELEKEN_* variables are enough to run.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LAPPELEKEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("football.base_url", "https://api.football-data.org/v4")
	v.SetDefault("football.token", "")
	v.SetDefault("football.tier", "basic")
	v.SetDefault("football.poll_interval", "30s")
	v.SetDefault("football.competition", "")

	v.SetDefault("storage.path", "./data/saves.db")
	v.SetDefault("storage.keep_saves", 20)

	v.SetDefault("entitlement.plan", "free")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Football.Tier != "basic" && c.Football.Tier != "enhanced" {
		return fmt.Errorf("football.tier must be one of: basic, enhanced")
	}
	if c.Football.PollInterval < 5*time.Second {
		return fmt.Errorf("football.poll_interval must be at least 5 seconds")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.KeepSaves < 1 {
		return fmt.Errorf("storage.keep_saves must be at least 1")
	}

	if c.Entitlement.Plan != "free" && c.Entitlement.Plan != "premium" {
		return fmt.Errorf("entitlement.plan must be one of: free, premium")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
