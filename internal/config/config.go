package config

import "time"

// Config represents the complete application configuration. Values are
// layered by viper: defaults, then the config file, then environment
// variables, then flags.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Quota    QuotaConfig    `mapstructure:"quota" yaml:"quota"`
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`
	CORS     CORSConfig     `mapstructure:"cors" yaml:"cors"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Health   HealthConfig   `mapstructure:"health" yaml:"health"`
	Debug    DebugConfig    `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	PublicURL       string        `mapstructure:"public_url" yaml:"public_url,omitempty"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// QuotaConfig holds the provider credentials and their shared daily budget.
type QuotaConfig struct {
	// DailyLimit is the per-credential call budget per UTC day.
	// Non-positive values fall back to 900.
	DailyLimit int `mapstructure:"daily_limit" yaml:"daily_limit"`

	// Keys are credentials from the config file. Numbered environment
	// credentials are appended after them.
	Keys []string `mapstructure:"keys" yaml:"keys"`
}

// UpstreamConfig configures the weather provider client.
type UpstreamConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Units           string        `mapstructure:"units" yaml:"units"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ForecastEntries int           `mapstructure:"forecast_entries" yaml:"forecast_entries"`
}

// CORSConfig controls cross-origin access to the proxy routes.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated Prometheus exporter port. /metrics on the main
	// port proxies to it.
	Port int `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}
