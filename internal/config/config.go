package config

import (
	"time"

	"github.com/namelens/chatgate/internal/ailink"
)

// Config represents the complete application configuration.
// Precedence, lowest first: built-in defaults, config file, environment
// variables, runtime overrides (flags).
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	AILink  ailink.Config `mapstructure:"ailink"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxBodyBytes caps POST /v1/chat request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// AdminToken enables the gofulmen signal endpoint at /admin/signal.
	AdminToken string `mapstructure:"admin_token"`

	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig enables bearer JWT auth on the /v1 routes when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// File, when Path is set, receives request-path logs as rotated JSON.
	File LogFileConfig `mapstructure:"file"`
}

// LogFileConfig sizes the rotating log file.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus exporter started by serve.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the exporter's own listener; 0 picks a free port. The main
	// server proxies it at /metrics either way.
	Port int `mapstructure:"port"`
}

// HealthConfig toggles the /health probe routes.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
