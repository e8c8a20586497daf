package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drallgood/bookrequest/internal/database"
)

const (
	// DefaultSearchLimit is the number of distinct lookup results collected per backend
	DefaultSearchLimit = 20
	// MinSearchLimit is the floor applied to any configured search limit
	MinSearchLimit = 20
	// DefaultBackendTimeout bounds every single remote call
	DefaultBackendTimeout = 15 * time.Second
	// DefaultDefaultsTTL is how long resolved root folder / quality profile defaults are reused
	DefaultDefaultsTTL = 10 * time.Minute
)

// Settings store strategies
const (
	StoreFile     = "file"
	StoreDatabase = "database"
)

// Config holds the process configuration. Per-backend instance settings are not part
// of it; they come from the settings store.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Auth struct {
		Token         string `yaml:"token"`
		AllowedOrigin string `yaml:"allowed_origin"`
	} `yaml:"auth"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Search struct {
		Limit                 int  `yaml:"limit"`
		IncludeCatalogMatches bool `yaml:"include_catalog_matches"`
	} `yaml:"search"`

	Request struct {
		DefaultsResolution bool `yaml:"defaults_resolution"`
	} `yaml:"request"`

	Backend struct {
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
		DefaultsTTL       time.Duration `yaml:"defaults_ttl"`
	} `yaml:"backend"`

	Settings struct {
		Store string `yaml:"store"`
		File  string `yaml:"file"`
	} `yaml:"settings"`

	Database database.DatabaseConfig `yaml:"database"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// DefaultConfig returns a configuration populated with defaults only
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Search.Limit = DefaultSearchLimit
	cfg.Search.IncludeCatalogMatches = true
	cfg.Request.DefaultsResolution = true
	cfg.Backend.Timeout = DefaultBackendTimeout
	cfg.Backend.RequestsPerSecond = 10
	cfg.Backend.Burst = 5
	cfg.Backend.DefaultsTTL = DefaultDefaultsTTL
	cfg.Settings.Store = StoreFile
	cfg.Settings.File = "./data/settings.yaml"
	cfg.Database = *database.DefaultDatabaseConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

// Load loads configuration from defaults, then the YAML file (if any), then
// environment variables. Later sources win.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		path, err := filepath.Abs(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// a missing file is fine, env and defaults still apply
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	switch c.Settings.Store {
	case StoreFile:
		if c.Settings.File == "" {
			return &ConfigError{Field: "settings.file", Msg: "is required for the file settings store"}
		}
	case StoreDatabase:
		if err := c.Database.Validate(); err != nil {
			return &ConfigError{Field: "database", Msg: err.Error()}
		}
	default:
		return &ConfigError{Field: "settings.store", Msg: fmt.Sprintf("unknown store %q", c.Settings.Store)}
	}
	if c.Backend.Timeout <= 0 {
		return &ConfigError{Field: "backend.timeout", Msg: "must be positive"}
	}
	return nil
}

// SearchLimit returns the configured lookup limit with the minimum floor applied
func (c *Config) SearchLimit() int {
	if c.Search.Limit < MinSearchLimit {
		return MinSearchLimit
	}
	return c.Search.Limit
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

// loadFromEnv overrides cfg with any environment variables that are set
func loadFromEnv(cfg *Config) {
	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Port = port
	}
	if timeout := getDurationFromEnv("SHUTDOWN_TIMEOUT", 0); timeout > 0 {
		cfg.Server.ShutdownTimeout = timeout
	}
	if token := getEnv("AUTH_TOKEN", ""); token != "" {
		cfg.Auth.Token = token
	}
	if origin := getEnv("CORS_ALLOWED_ORIGIN", ""); origin != "" {
		cfg.Auth.AllowedOrigin = origin
	}
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Logging.Level = level
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Logging.Format = format
	}
	if limit := getIntFromEnv("SEARCH_LIMIT", 0); limit > 0 {
		cfg.Search.Limit = limit
	}
	cfg.Search.IncludeCatalogMatches = getBoolFromEnv("SEARCH_INCLUDE_CATALOG_MATCHES", cfg.Search.IncludeCatalogMatches)
	cfg.Request.DefaultsResolution = getBoolFromEnv("DEFAULTS_RESOLUTION", cfg.Request.DefaultsResolution)
	if timeout := getDurationFromEnv("BACKEND_TIMEOUT", 0); timeout > 0 {
		cfg.Backend.Timeout = timeout
	}
	if rps := getFloat64FromEnv("BACKEND_REQUESTS_PER_SECOND", 0); rps > 0 {
		cfg.Backend.RequestsPerSecond = rps
	}
	if burst := getIntFromEnv("BACKEND_BURST", 0); burst > 0 {
		cfg.Backend.Burst = burst
	}
	if store := getEnv("SETTINGS_STORE", ""); store != "" {
		cfg.Settings.Store = strings.ToLower(store)
	}
	if file := getEnv("SETTINGS_FILE", ""); file != "" {
		cfg.Settings.File = file
	}
	cfg.Metrics.Enabled = getBoolFromEnv("METRICS_ENABLED", cfg.Metrics.Enabled)

	database.ApplyEnv(&cfg.Database)
}

// Helper functions for environment variable parsing
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getBoolFromEnv(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getIntFromEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		i, err := strconv.Atoi(value)
		if err != nil {
			return fallback
		}
		return i
	}
	return fallback
}

func getDurationFromEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

func getFloat64FromEnv(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fallback
		}
		return f
	}
	return fallback
}
