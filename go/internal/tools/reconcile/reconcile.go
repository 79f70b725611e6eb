package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/beatmeat/go/internal/dbconfig"
	"github.com/mcdev12/beatmeat/go/internal/logger"
)

// reconcile repairs a postgres store offline: it folds duplicate names into
// their most recently seen identity and resets the global counter to the sum
// of user counts.
func main() {
	_ = godotenv.Load()
	logger.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg := dbconfig.NewConfigFromEnv()
	if cfg.Driver != dbconfig.DriverPostgres {
		log.Fatal().Str("driver", cfg.Driver).Msg("reconcile only runs against postgres (set DB_DRIVER=postgres)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer pool.Close()

	names, err := duplicateNames(ctx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list duplicate names")
	}

	var merged, errs int
	for _, name := range names {
		removed, err := mergeName(ctx, pool, name)
		if err != nil {
			log.Error().Err(err).Str("name", name).Msg("failed to consolidate name")
			errs++
			continue
		}
		merged += int(removed)
	}

	total, err := resetGlobalCounter(ctx, pool, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to reset global counter")
	}

	log.Info().
		Int("names", len(names)).
		Int("rows_merged", merged).
		Int("errors", errs).
		Int64("global_clicks", total).
		Msg("reconcile complete")

	if errs > 0 {
		os.Exit(1)
	}
}

func duplicateNames(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM users GROUP BY name HAVING COUNT(*) > 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type userRow struct {
	ID          string
	TotalClicks int64
	CreatedAt   int64
}

// fold picks the first row, already ordered most recently seen first, and
// returns it with the summed clicks and the earliest creation time.
func fold(users []userRow) (userRow, int64, int64) {
	survivor := users[0]
	total, createdAt := int64(0), survivor.CreatedAt
	for _, u := range users {
		total += u.TotalClicks
		createdAt = min(createdAt, u.CreatedAt)
	}
	return survivor, total, createdAt
}

// mergeName locks every row for name, keeps the most recently seen one with
// the summed clicks and the earliest creation time, and deletes the rest.
func mergeName(ctx context.Context, pool *pgxpool.Pool, name string) (int64, error) {
	var removed int64
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
            SELECT id, total_clicks, created_at
            FROM users
            WHERE name = $1
            ORDER BY last_seen_at DESC, id DESC
            FOR UPDATE
        `, name)
		if err != nil {
			return err
		}
		users, err := pgx.CollectRows(rows, pgx.RowToStructByPos[userRow])
		if err != nil {
			return err
		}
		if len(users) < 2 {
			return nil
		}

		survivor, total, createdAt := fold(users)

		if _, err := tx.Exec(ctx,
			`UPDATE users SET total_clicks = $1, created_at = $2 WHERE id = $3`,
			total, createdAt, survivor.ID,
		); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE name = $1 AND id <> $2`, name, survivor.ID)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()

		log.Info().
			Str("name", name).
			Str("survivor", survivor.ID).
			Int64("clicks", total).
			Int64("removed", removed).
			Msg("consolidated name")
		return nil
	})
	return removed, err
}

func resetGlobalCounter(ctx context.Context, pool *pgxpool.Pool, now time.Time) (int64, error) {
	var total int64
	err := pool.QueryRow(ctx, `
        UPDATE global_stats
        SET total_clicks = (SELECT CAST(COALESCE(SUM(total_clicks), 0) AS BIGINT) FROM users),
            last_updated_at = $1
        WHERE id = 1
        RETURNING total_clicks
    `, now.UnixMilli()).Scan(&total)
	return total, err
}
