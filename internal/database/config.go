package database

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DatabaseType represents the supported database types
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
	DatabaseTypeMySQL      DatabaseType = "mysql"
	DatabaseTypeMariaDB    DatabaseType = "mariadb"
)

// DatabaseConfig holds the configuration for the settings database
type DatabaseConfig struct {
	Type     DatabaseType `json:"type" yaml:"type"`
	Host     string       `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int          `json:"port,omitempty" yaml:"port,omitempty"`
	Database string       `json:"database,omitempty" yaml:"database,omitempty"`
	Username string       `json:"username,omitempty" yaml:"username,omitempty"`
	Password string       `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode  string       `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
	Path     string       `json:"path,omitempty" yaml:"path,omitempty"` // For SQLite

	MaxOpenConns    int `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime int `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"` // in minutes
}

// DefaultDatabaseConfig returns a SQLite configuration under the data directory
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:            DatabaseTypeSQLite,
		Path:            GetDefaultDatabasePath(),
		SSLMode:         "prefer",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 60,
	}
}

// GetDefaultDatabasePath returns DATA_DIR/bookrequest.db, with DATA_DIR defaulting to ./data
func GetDefaultDatabasePath() string {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	return strings.TrimRight(dataDir, "/") + "/bookrequest.db"
}

// ParseDatabaseType maps user input to a DatabaseType
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "":
		return DatabaseTypeSQLite, nil
	case "postgresql", "postgres":
		return DatabaseTypePostgreSQL, nil
	case "mysql":
		return DatabaseTypeMySQL, nil
	case "mariadb":
		return DatabaseTypeMariaDB, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// ApplyEnv overrides config with DATABASE_* environment variables
func ApplyEnv(config *DatabaseConfig) {
	if dbType := os.Getenv("DATABASE_TYPE"); dbType != "" {
		if t, err := ParseDatabaseType(dbType); err == nil {
			config.Type = t
		}
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		config.Path = v
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		config.Host = v
	}
	if v := os.Getenv("DATABASE_NAME"); v != "" {
		config.Database = v
	}
	if v := os.Getenv("DATABASE_USER"); v != "" {
		config.Username = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		config.Password = v
	}
	if v := os.Getenv("DATABASE_SSL_MODE"); v != "" {
		config.SSLMode = v
	}
	if v, err := strconv.Atoi(os.Getenv("DATABASE_PORT")); err == nil && v > 0 {
		config.Port = v
	}

	if config.Port == 0 {
		switch config.Type {
		case DatabaseTypePostgreSQL:
			config.Port = 5432
		case DatabaseTypeMySQL, DatabaseTypeMariaDB:
			config.Port = 3306
		}
	}
}

// Validate checks if the database configuration is valid
func (c *DatabaseConfig) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.Path == "" {
			return fmt.Errorf("SQLite database path is required")
		}
	case DatabaseTypePostgreSQL, DatabaseTypeMySQL, DatabaseTypeMariaDB:
		if c.Host == "" {
			return fmt.Errorf("database host is required for %s", c.Type)
		}
		if c.Database == "" {
			return fmt.Errorf("database name is required for %s", c.Type)
		}
		if c.Port <= 0 {
			return fmt.Errorf("valid database port is required for %s", c.Type)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// GetDSN returns the data source name for the database connection
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case DatabaseTypeSQLite:
		return c.Path
	case DatabaseTypePostgreSQL:
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
			c.Host, c.Port, c.Database, c.SSLMode)
		if c.Username != "" {
			dsn += fmt.Sprintf(" user=%s", c.Username)
		}
		if c.Password != "" {
			dsn += fmt.Sprintf(" password=%s", c.Password)
		}
		return dsn
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database)
	default:
		return ""
	}
}
