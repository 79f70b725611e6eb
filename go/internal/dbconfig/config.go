package dbconfig

import (
	"fmt"
	"os"
	"strconv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Default returns the local sqlite setup.
func Default() Config {
	return Config{
		Driver:   DriverSQLite,
		Path:     "beatmeat.db",
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "beatmeat",
		SSLMode:  "disable",
	}
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Default().WithEnv()
}

// WithEnv overrides any field that has a DB_* environment variable set.
func (c Config) WithEnv() Config {
	c.Driver = getEnv("DB_DRIVER", c.Driver)
	c.Path = getEnv("DB_PATH", c.Path)
	c.Host = getEnv("DB_HOST", c.Host)
	if port, err := strconv.Atoi(getEnv("DB_PORT", "")); err == nil {
		c.Port = port
	}
	c.User = getEnv("DB_USER", c.User)
	c.Password = getEnv("DB_PASSWORD", c.Password)
	c.Database = getEnv("DB_NAME", c.Database)
	c.SSLMode = getEnv("DB_SSLMODE", c.SSLMode)
	return c
}

// DSN returns the Postgres connection URL or the sqlite file path.
func (c Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Validate rejects unknown drivers and missing targets.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("sqlite driver requires a path")
		}
	case DriverPostgres:
		if c.Host == "" || c.Database == "" {
			return fmt.Errorf("postgres driver requires host and database name")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
