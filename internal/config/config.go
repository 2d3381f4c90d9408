// Package config loads the daemon's TOML configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileConfig is the top-level TOML structure (scriptmgr.toml).
type FileConfig struct {
	Listen    string        `toml:"listen" mapstructure:"listen"`
	BasePath  string        `toml:"base_path" mapstructure:"base_path"`
	StorePath string        `toml:"store_path" mapstructure:"store_path"`
	AutoStart bool          `toml:"auto_start" mapstructure:"auto_start"`
	Log       LogConfig     `toml:"log" mapstructure:"log"`
	Monitor   MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	History   HistoryConfig `toml:"history" mapstructure:"history"`
	Metrics   MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MonitorConfig struct {
	Interval       time.Duration `toml:"interval" mapstructure:"interval"`
	RestartBackoff time.Duration `toml:"restart_backoff" mapstructure:"restart_backoff"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() FileConfig {
	return FileConfig{
		Listen:    ":8099",
		BasePath:  "/dawson",
		StorePath: "scripts.json",
		AutoStart: true,
		Log:       LogConfig{Level: "info"},
		Monitor: MonitorConfig{
			Interval:       5 * time.Second,
			RestartBackoff: 5 * time.Second,
		},
		History: HistoryConfig{Path: "scriptmgr_history.db"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path as TOML over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (FileConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c FileConfig) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}
	if c.Monitor.Interval < 0 {
		return fmt.Errorf("monitor.interval must not be negative")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path required when history is enabled")
	}
	return nil
}
