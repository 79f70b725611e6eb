package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/mcdev12/beatmeat/go/internal/dbconfig"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var embedMigrations embed.FS

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
)

// goose keeps its dialect and filesystem in package globals
var gooseMu sync.Mutex

var sqlitePragmas = []struct {
	name  string
	value string
}{
	{"busy_timeout", "5000"},
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"temp_store", "MEMORY"},
}

// Open connects to the configured database, tunes the pool, and applies
// migrations so the schema exists before the first query.
func Open(ctx context.Context, cfg dbconfig.Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().Str("driver", cfg.Driver).Msg("connecting to database")

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case dbconfig.DriverSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(cfg.Path))
		if err == nil {
			// sqlite allows one writer; a single connection turns lock
			// contention into pool waits instead of SQLITE_BUSY errors
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		}
	default:
		db, err = sql.Open("postgres", cfg.DSN())
		if err == nil {
			db.SetMaxOpenConns(maxOpenConns)
			db.SetMaxIdleConns(maxIdleConns)
			db.SetConnMaxLifetime(connMaxLifetime)
			db.SetConnMaxIdleTime(connMaxIdleTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db, cfg.Driver); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", cfg.Driver).Msg("database connection established")
	return db, nil
}

// Migrate creates the schema if it is missing. It is safe to call repeatedly.
func Migrate(db *sql.DB, driver string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, dir := "postgres", "migrations/postgres"
	if driver == dbconfig.DriverSQLite {
		dialect, dir = "sqlite3", "migrations/sqlite"
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	log.Debug().Str("dialect", dialect).Msg("migrations completed")
	return nil
}

func sqliteDSN(path string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+url.QueryEscape(fmt.Sprintf("%s(%s)", p.name, p.value)))
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}
