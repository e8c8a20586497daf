package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseDriver knows how to open one kind of database
type DatabaseDriver interface {
	GetDialector(config *DatabaseConfig) gorm.Dialector
	PrepareDatabase(config *DatabaseConfig) error
	ConfigurePool(db *gorm.DB, config *DatabaseConfig) error
}

// SQLiteDriver implements DatabaseDriver for SQLite
type SQLiteDriver struct{}

func (d *SQLiteDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return sqlite.Open(config.Path)
}

func (d *SQLiteDriver) PrepareDatabase(config *DatabaseConfig) error {
	if config.Path == ":memory:" || config.Path == "file::memory:?cache=shared" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

func (d *SQLiteDriver) ConfigurePool(db *gorm.DB, _ *DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite only supports one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}

// PostgreSQLDriver implements DatabaseDriver for PostgreSQL
type PostgreSQLDriver struct{}

func (d *PostgreSQLDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return postgres.Open(config.GetDSN())
}

func (d *PostgreSQLDriver) PrepareDatabase(*DatabaseConfig) error { return nil }

func (d *PostgreSQLDriver) ConfigurePool(db *gorm.DB, config *DatabaseConfig) error {
	return configureNetworkPool(db, config)
}

// MySQLDriver implements DatabaseDriver for MySQL/MariaDB
type MySQLDriver struct{}

func (d *MySQLDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return mysql.Open(config.GetDSN())
}

func (d *MySQLDriver) PrepareDatabase(*DatabaseConfig) error { return nil }

func (d *MySQLDriver) ConfigurePool(db *gorm.DB, config *DatabaseConfig) error {
	return configureNetworkPool(db, config)
}

func configureNetworkPool(db *gorm.DB, config *DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Minute)
	return nil
}

// GetDatabaseDriver returns the appropriate driver for the given database type
func GetDatabaseDriver(dbType DatabaseType) (DatabaseDriver, error) {
	switch dbType {
	case DatabaseTypeSQLite:
		return &SQLiteDriver{}, nil
	case DatabaseTypePostgreSQL:
		return &PostgreSQLDriver{}, nil
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return &MySQLDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// open connects with the driver for config.Type; GORM's own logging is silenced
func open(config *DatabaseConfig) (*gorm.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	driver, err := GetDatabaseDriver(config.Type)
	if err != nil {
		return nil, err
	}
	if err := driver.PrepareDatabase(config); err != nil {
		return nil, err
	}
	db, err := gorm.Open(driver.GetDialector(config), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", config.Type, err)
	}
	if err := driver.ConfigurePool(db, config); err != nil {
		return nil, err
	}
	return db, nil
}
