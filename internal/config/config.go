// Package config loads the configuration of a device session run.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hanx-github/mobly"
)

// KindLogTail selects the logtail service
const KindLogTail = "logtail"

// Config holds the complete configuration of a session run.
type Config struct {
	Serial           string          `mapstructure:"serial"`
	LogPath          string          `mapstructure:"log_path"`
	ReportPath       string          `mapstructure:"report_path"`
	OperationTimeout time.Duration   `mapstructure:"operation_timeout"`
	LogLevel         string          `mapstructure:"log_level"`
	Services         []ServiceConfig `mapstructure:"services"`
}

// ServiceConfig describes one service to register with the session.
type ServiceConfig struct {
	Alias     string `mapstructure:"alias"`
	Kind      string `mapstructure:"kind"`
	SkipStart bool   `mapstructure:"skip_start"`
	Source    string `mapstructure:"source"`
	Dest      string `mapstructure:"dest"`
	FromStart bool   `mapstructure:"from_start"`
}

// Load reads configuration from a file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MOBLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("log_path", "logs")
	v.SetDefault("operation_timeout", "0s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ReportPath == "" {
		cfg.ReportPath = filepath.Join(cfg.LogPath, mobly.ReportFileName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for mistakes that would only surface
// once the session is running.
func (c *Config) Validate() error {
	if c.Serial == "" {
		return errors.New("config: serial is required")
	}

	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.Alias == "" {
			return fmt.Errorf("config: services[%d]: alias is required", i)
		}
		if seen[svc.Alias] {
			return fmt.Errorf("config: services[%d]: duplicate alias %q", i, svc.Alias)
		}
		seen[svc.Alias] = true

		switch svc.Kind {
		case KindLogTail:
			if svc.Source == "" {
				return fmt.Errorf("config: service %q: source is required", svc.Alias)
			}
		default:
			return fmt.Errorf("config: service %q: unknown kind %q", svc.Alias, svc.Kind)
		}
	}
	return nil
}
