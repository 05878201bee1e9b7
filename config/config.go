// Package config provides shared configuration utilities for the speed monitor server
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// AppDirName is the directory name used under system and user config roots.
const AppDirName = "speedmonitor"

// FindConfigFile searches for a config file in multiple platform-appropriate locations.
// Returns the path and data if found, or an error if not found in any location.
func FindConfigFile(filename string) (string, []byte, error) {
	for _, path := range GetConfigSearchPaths(filename) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// GetConfigSearchPaths returns an ordered list of paths to search for config files
func GetConfigSearchPaths(filename string) []string {
	var searchPaths []string

	// 1. System directory (highest priority for services)
	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), "SpeedMonitor", filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", "SpeedMonitor", filename))
	default:
		searchPaths = append(searchPaths, filepath.Join("/etc", AppDirName, filename))
	}

	// 2. User config directory
	if dir, err := os.UserConfigDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(dir, AppDirName, filename))
	}

	// 3. Executable directory
	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	// 4. Current working directory (lowest priority)
	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// GetDataDirectory returns the directory for the default database file.
// Service installs use a system-wide location; interactive runs use the user's data dir.
func GetDataDirectory(isService bool) (string, error) {
	var dataDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), "SpeedMonitor")
		default:
			dataDir = filepath.Join("/var/lib", AppDirName)
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", "SpeedMonitor")
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", "SpeedMonitor")
		default:
			dataDir = filepath.Join(homeDir, ".local", "share", AppDirName)
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

// WriteDefaultTOML writes cfg as TOML to configPath. It refuses to overwrite an existing file.
func WriteDefaultTOML(configPath string, cfg interface{}) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(configPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("config file %s already exists", configPath)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadTOML loads a TOML configuration file into the provided structure
func LoadTOML(configPath string, cfg interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Driver              string `toml:"driver"` // sqlite (default) or postgres
	Path                string `toml:"path"`   // SQLite file path
	DSN                 string `toml:"dsn"`    // full connection string, wins over the fields below
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	User                string `toml:"user"`
	Password            string `toml:"password"`
	Name                string `toml:"name"`
	SSLMode             string `toml:"sslmode"`
	MaxOpenConns        int    `toml:"max_open_conns"`
	MaxIdleConns        int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSecs int    `toml:"conn_max_lifetime_secs"`
	BusyTimeoutMillis   int    `toml:"busy_timeout_ms"`
	QueryTimeoutSeconds int    `toml:"query_timeout_seconds"`
}

// EffectiveDriver normalizes the configured driver name.
func (c *DatabaseConfig) EffectiveDriver() string {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "sqlite", "sqlite3", "modernc":
		return "sqlite"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return strings.ToLower(strings.TrimSpace(c.Driver))
	}
}

// BuildDSN returns the connection string for the configured driver.
// For SQLite this is the file path; for PostgreSQL an explicit DSN wins,
// otherwise a postgres:// URL is assembled from the individual fields.
func (c *DatabaseConfig) BuildDSN() string {
	switch c.EffectiveDriver() {
	case "sqlite":
		if c.DSN != "" {
			return c.DSN
		}
		return c.Path
	case "postgres":
		if c.DSN != "" {
			return c.DSN
		}
		if c.Host == "" || c.Name == "" {
			return ""
		}
		port := c.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
			Path:   "/" + c.Name,
		}
		if c.User != "" {
			if c.Password != "" {
				u.User = url.UserPassword(c.User, c.Password)
			} else {
				u.User = url.User(c.User)
			}
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u.RawQuery = "sslmode=" + url.QueryEscape(sslMode)
		return u.String()
	default:
		return c.DSN
	}
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// ApplyDatabaseEnvOverrides applies DB_* environment variables, preferring
// "<prefix>_DB_*" when a prefix is given. It returns the config keys that were set.
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig, prefix string) []string {
	var keys []string
	lookup := func(name string) string {
		if prefix != "" {
			if val := os.Getenv(prefix + "_" + name); val != "" {
				return val
			}
		}
		return os.Getenv(name)
	}

	if val := lookup("DB_DRIVER"); val != "" {
		cfg.Driver = val
		keys = append(keys, "database.driver")
	}
	if val := lookup("DB_PATH"); val != "" {
		cfg.Path = val
		keys = append(keys, "database.path")
	}
	if val := lookup("DB_DSN"); val != "" {
		cfg.DSN = val
		keys = append(keys, "database.dsn")
	}
	return keys
}
