package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hyperkishore/home-internet/config"
	"github.com/hyperkishore/home-internet/stats"
	"github.com/hyperkishore/home-internet/storage"
)

// ConfigSourceTracker records which keys were set by environment variables.
type ConfigSourceTracker struct {
	EnvKeys map[string]bool
}

func newConfigSourceTracker() *ConfigSourceTracker {
	return &ConfigSourceTracker{EnvKeys: make(map[string]bool)}
}

// Config represents the server configuration
type Config struct {
	Server    ServerConfig          `toml:"server"`
	Database  config.DatabaseConfig `toml:"database"`
	Logging   config.LoggingConfig  `toml:"logging"`
	Query     QueryConfig           `toml:"query"`
	Clients   ClientsConfig         `toml:"clients"`
	Telemetry TelemetryConfig       `toml:"telemetry"`
}

// ServerConfig holds HTTP listener and request-policy settings
type ServerConfig struct {
	HTTPPort               int    `toml:"http_port"`
	BindAddress            string `toml:"bind_address"` // 0.0.0.0 for all interfaces, 127.0.0.1 for localhost
	BehindProxy            bool   `toml:"behind_proxy"` // trust X-Forwarded-For for client IPs
	MaxBodyBytes           int64  `toml:"max_body_bytes"`
	RateLimitEnabled       bool   `toml:"rate_limit_enabled"`
	RateLimitRequests      int    `toml:"rate_limit_requests"`
	RateLimitWindowMinutes int    `toml:"rate_limit_window_minutes"`
	CORSAllowOrigin        string `toml:"cors_allow_origin"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// QueryConfig bounds listings and tunes the aggregate views
type QueryConfig struct {
	DefaultListLimit     int     `toml:"default_list_limit"`
	MaxListLimit         int     `toml:"max_list_limit"`
	DefaultDeviceLimit   int     `toml:"default_device_limit"`
	MaxDeviceLimit       int     `toml:"max_device_limit"`
	HourlyWindowHours    int     `toml:"hourly_window_hours"`
	ProblemJitterMs      float64 `toml:"problem_jitter_ms"`
	ProblemPacketLossPct float64 `toml:"problem_packet_loss_pct"`
	ProblemDeviceLimit   int     `toml:"problem_device_limit"`
	RecentTests          int     `toml:"recent_tests"`
}

// ClientsConfig holds the policy applied to reporting devices
type ClientsConfig struct {
	MinAppVersion string `toml:"min_app_version"` // empty disables the outdated-client flag
}

// TelemetryConfig configures OTLP metric export
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"` // empty disables export
	OTLPInsecure bool   `toml:"otlp_insecure"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:               3000,
			BindAddress:            "0.0.0.0",
			MaxBodyBytes:           1 << 20,
			RateLimitEnabled:       true,
			RateLimitRequests:      100,
			RateLimitWindowMinutes: 15,
			CORSAllowOrigin:        "*",
			ShutdownTimeoutSeconds: 10,
		},
		Database: config.DatabaseConfig{
			Driver:              "sqlite",
			Path:                "", // empty = platform default
			QueryTimeoutSeconds: 10,
		},
		Logging: config.LoggingConfig{
			Level: "info",
		},
		Query: QueryConfig{
			DefaultListLimit:     storage.DefaultListLimit,
			MaxListLimit:         storage.MaxListLimit,
			DefaultDeviceLimit:   storage.DefaultDeviceLimit,
			MaxDeviceLimit:       storage.MaxDeviceLimit,
			HourlyWindowHours:    24,
			ProblemJitterMs:      stats.DefaultProblemJitterMs,
			ProblemPacketLossPct: stats.DefaultProblemPacketLossPct,
			ProblemDeviceLimit:   stats.DefaultProblemDeviceLimit,
			RecentTests:          stats.DefaultRecentTests,
		},
	}
}

// LoadConfig loads configuration from a TOML file with environment variable overrides.
// A missing file is not an error; defaults apply.
func LoadConfig(configPath string) (*Config, *ConfigSourceTracker, error) {
	cfg := DefaultConfig()
	tracker := newConfigSourceTracker()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := config.LoadTOML(configPath, cfg); err != nil {
				return nil, nil, err
			}
		}
	}

	// SERVER_HTTP_PORT wins over the generic PORT
	for _, name := range []string{"PORT", "SERVER_HTTP_PORT"} {
		if val := os.Getenv(name); val != "" {
			var port int
			if _, err := fmt.Sscanf(val, "%d", &port); err == nil {
				cfg.Server.HTTPPort = port
				tracker.EnvKeys["server.http_port"] = true
			}
		}
	}
	if val := os.Getenv("BIND_ADDRESS"); val != "" {
		cfg.Server.BindAddress = val
		tracker.EnvKeys["server.bind_address"] = true
	}
	if val := os.Getenv("BEHIND_PROXY"); val != "" {
		cfg.Server.BehindProxy = val == "true" || val == "1"
		tracker.EnvKeys["server.behind_proxy"] = true
	}

	if val := os.Getenv("SERVER_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
		tracker.EnvKeys["logging.level"] = true
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
		tracker.EnvKeys["logging.level"] = true
	}

	if val := os.Getenv("MIN_APP_VERSION"); val != "" {
		cfg.Clients.MinAppVersion = val
		tracker.EnvKeys["clients.min_app_version"] = true
	}

	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
		tracker.EnvKeys["telemetry.otlp_endpoint"] = true
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); val != "" {
		cfg.Telemetry.OTLPInsecure = val == "true" || val == "1"
		tracker.EnvKeys["telemetry.otlp_insecure"] = true
	}

	for _, key := range config.ApplyDatabaseEnvOverrides(&cfg.Database, "SERVER") {
		tracker.EnvKeys[key] = true
	}

	return cfg, tracker, nil
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.HTTPPort)
}

// ListLimits converts the query section into store listing caps.
func (c *Config) ListLimits() storage.ListLimits {
	l := storage.DefaultListLimits()
	if c.Query.DefaultListLimit > 0 {
		l.DefaultList = c.Query.DefaultListLimit
	}
	if c.Query.MaxListLimit > 0 {
		l.MaxList = c.Query.MaxListLimit
	}
	if c.Query.DefaultDeviceLimit > 0 {
		l.DefaultDevice = c.Query.DefaultDeviceLimit
	}
	if c.Query.MaxDeviceLimit > 0 {
		l.MaxDevice = c.Query.MaxDeviceLimit
	}
	return l
}

// EngineOptions converts the query and clients sections into stats options.
func (c *Config) EngineOptions() stats.Options {
	return stats.Options{
		HourlyWindow:         time.Duration(c.Query.HourlyWindowHours) * time.Hour,
		ProblemJitterMs:      c.Query.ProblemJitterMs,
		ProblemPacketLossPct: c.Query.ProblemPacketLossPct,
		ProblemDeviceLimit:   c.Query.ProblemDeviceLimit,
		RecentTests:          c.Query.RecentTests,
		MinAppVersion:        c.Clients.MinAppVersion,
	}
}

// RateLimitWindow is the period over which RateLimitRequests are allowed.
func (c *Config) RateLimitWindow() time.Duration {
	if c.Server.RateLimitWindowMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Server.RateLimitWindowMinutes) * time.Minute
}

// WriteDefaultConfig writes a default configuration file
func WriteDefaultConfig(configPath string) error {
	return config.WriteDefaultTOML(configPath, DefaultConfig())
}
