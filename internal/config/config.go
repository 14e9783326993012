// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Download DownloadConfig `mapstructure:"download"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RequestTimeoutSeconds bounds JSON API requests; streaming endpoints
	// are exempt because a full media download happens inline.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// FetchConfig governs the channel fetch orchestrator.
type FetchConfig struct {
	// EarlyStopThreshold is the accumulated-entry count at which a fetch
	// returns immediately without trying remaining strategies.
	EarlyStopThreshold int `mapstructure:"early_stop_threshold"`
}

// DownloadConfig governs download tasks and media placement.
type DownloadConfig struct {
	Dir            string `mapstructure:"dir"`
	QualityCeiling int    `mapstructure:"quality_ceiling"`
	MergeFormat    string `mapstructure:"merge_format"`
	// InstallYTDLP downloads the yt-dlp binary at startup when it is not
	// already on PATH.
	InstallYTDLP bool `mapstructure:"install_ytdlp"`
}

// DBConfig controls access to the Postgres record store. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN                 string `mapstructure:"dsn"`
	MaxConns            int32  `mapstructure:"max_conns"`
	MinConns            int32  `mapstructure:"min_conns"`
	ConnLifetimeMinutes int    `mapstructure:"conn_lifetime_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TUBESNATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("fetch.early_stop_threshold", 50)
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("download.quality_ceiling", 1080)
	v.SetDefault("download.merge_format", "mp4")
	v.SetDefault("download.install_ytdlp", false)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Fetch.EarlyStopThreshold <= 0 {
		return fmt.Errorf("fetch.early_stop_threshold must be > 0")
	}
	if strings.TrimSpace(c.Download.Dir) == "" {
		return fmt.Errorf("download.dir must be set")
	}
	if c.Download.QualityCeiling <= 0 {
		return fmt.Errorf("download.quality_ceiling must be > 0")
	}
	return nil
}

// RequestTimeout converts the configured request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ConnLifetime converts the configured pool lifetime into a duration.
func (c DBConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMinutes) * time.Minute
}
