package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/beatmeat/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration for the game server.
type Config struct {
	Port              string          `yaml:"port"`
	LogLevel          string          `yaml:"log_level"`
	LogFormat         string          `yaml:"log_format"`
	BroadcastInterval time.Duration   `yaml:"broadcast_interval"`
	NATSURL           string          `yaml:"nats_url"`
	AllowedOrigins    []string        `yaml:"allowed_origins"`
	Database          dbconfig.Config `yaml:"database"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:              "8000",
		LogLevel:          "info",
		LogFormat:         "console",
		BroadcastInterval: time.Second,
		AllowedOrigins:    []string{"*"},
		Database:          dbconfig.Default(),
	}
}

// Load reads .env, then the yaml file at CONFIG_PATH (default config.yaml),
// then applies environment overrides. A missing yaml file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := Default()
	path := getEnv("CONFIG_PATH", "config.yaml")
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("port", cfg.Port).
		Str("db_driver", cfg.Database.Driver).
		Str("log_level", cfg.LogLevel).
		Dur("broadcast_interval", cfg.BroadcastInterval).
		Bool("nats_enabled", cfg.NATSURL != "").
		Msg("configuration loaded")

	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	if v := os.Getenv("BROADCAST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.BroadcastInterval = d
		} else if ms, err := strconv.Atoi(v); err == nil {
			c.BroadcastInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	c.Database = c.Database.WithEnv()
}

// Validate checks the values the server cannot run without.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("broadcast interval must be positive, got %s", c.BroadcastInterval)
	}
	return c.Database.Validate()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
