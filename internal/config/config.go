// Package config loads responder settings from a config file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the responder.
type Config struct {
	// Postgres connection string for job states, info and logs
	DatabaseURL string `mapstructure:"database_url"`

	// Redis address of the message bus
	RedisAddr string `mapstructure:"redis_addr"`

	// Prefix for bus channel names
	RedisPrefix string `mapstructure:"redis_prefix"`

	// HTTP port for health, metrics and the ingest API
	HTTPPort int `mapstructure:"http_port"`

	// OTLP gRPC collector address; empty disables trace export
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Lines returned for a latest-log request
	LogPageSize int `mapstructure:"log_page_size"`

	// Per-job request rate limit
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// Optional JSON log file written next to stderr output
	LogFile string `mapstructure:"log_file"`
}

// env names that do not follow the upper-cased key convention
var envAliases = map[string]string{
	"http_port":     "PORT",
	"otel_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Load reads configuration from path (if non-empty) and the environment. The
// environment wins over the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "jobwatch")
	v.SetDefault("http_port", 6262)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("log_page_size", 1000)
	v.SetDefault("rate_limit", 20.0)
	v.SetDefault("rate_limit_burst", 40)
	v.SetDefault("log_file", "")
	v.SetDefault("database_url", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d (env: PORT)", c.HTTPPort)
	}
	if c.LogPageSize <= 0 {
		return errors.New("log_page_size must be positive (env: LOG_PAGE_SIZE)")
	}
	if c.RateLimit <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate_limit and rate_limit_burst must be positive (env: RATE_LIMIT, RATE_LIMIT_BURST)")
	}
	return nil
}
