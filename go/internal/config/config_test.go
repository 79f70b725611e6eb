package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/beatmeat/go/internal/dbconfig"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("port = %q, want 8000", cfg.Port)
	}
	if cfg.BroadcastInterval != time.Second {
		t.Errorf("broadcast interval = %s, want 1s", cfg.BroadcastInterval)
	}
	if cfg.Database.Driver != dbconfig.DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`port: "9100"
broadcast_interval: 250ms
allowed_origins:
  - https://example.com
database:
  driver: postgres
  host: db
  port: 5432
  name: clicks
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "9200")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9200" {
		t.Errorf("env should win over file, port = %q", cfg.Port)
	}
	if cfg.BroadcastInterval != 250*time.Millisecond {
		t.Errorf("broadcast interval = %s, want 250ms", cfg.BroadcastInterval)
	}
	if cfg.Database.Driver != dbconfig.DriverPostgres || cfg.Database.Database != "clicks" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.test" {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("BROADCAST_INTERVAL", "-5s")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for negative interval")
	}
}
