package db

import (
	"context"
	"database/sql"
)

// upsertUser adds MergedClicks to the identity's own count when it keeps its
// name. An identity changing name starts from MergedClicks alone.
const upsertUser = `
INSERT INTO users (id, name, total_clicks, last_seen_at, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    total_clicks = CASE
        WHEN users.name = excluded.name THEN users.total_clicks + excluded.total_clicks
        ELSE excluded.total_clicks
    END,
    last_seen_at = excluded.last_seen_at,
    created_at = CASE
        WHEN users.name = excluded.name AND users.created_at < excluded.created_at THEN users.created_at
        ELSE excluded.created_at
    END
RETURNING id, name, total_clicks, last_seen_at, created_at
`

type UpsertUserParams struct {
	ID           string
	Name         string
	MergedClicks int64
	LastSeenAt   int64
	CreatedAt    int64
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, upsertUser,
		arg.ID,
		arg.Name,
		arg.MergedClicks,
		arg.LastSeenAt,
		arg.CreatedAt,
	)
	var i User
	err := row.Scan(&i.ID, &i.Name, &i.TotalClicks, &i.LastSeenAt, &i.CreatedAt)
	return i, err
}

const getUser = `
SELECT id, name, total_clicks, last_seen_at, created_at FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i User
	err := row.Scan(&i.ID, &i.Name, &i.TotalClicks, &i.LastSeenAt, &i.CreatedAt)
	return i, err
}

// deleteUsersByNameExcept hands back what it removed so callers can fold the
// removed counts into the kept row without a separate read.
const deleteUsersByNameExcept = `
DELETE FROM users WHERE name = $1 AND id <> $2
RETURNING total_clicks, created_at
`

func (q *Queries) DeleteUsersByNameExcept(ctx context.Context, name, keepID string) (RemovedTotals, error) {
	var out RemovedTotals
	rows, err := q.db.QueryContext(ctx, deleteUsersByNameExcept, name, keepID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var clicks, createdAt int64
		if err := rows.Scan(&clicks, &createdAt); err != nil {
			return out, err
		}
		out.Rows++
		out.TotalClicks += clicks
		if !out.FirstCreatedAt.Valid || createdAt < out.FirstCreatedAt.Int64 {
			out.FirstCreatedAt = sql.NullInt64{Int64: createdAt, Valid: true}
		}
	}
	if err := rows.Close(); err != nil {
		return out, err
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	return out, nil
}

const incrementUserClicks = `
UPDATE users
SET total_clicks = total_clicks + 1, last_seen_at = $1
WHERE id = $2
RETURNING total_clicks
`

func (q *Queries) IncrementUserClicks(ctx context.Context, id string, seenAt int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, incrementUserClicks, seenAt, id)
	var total int64
	err := row.Scan(&total)
	return total, err
}

const countActiveUsersSince = `
SELECT COUNT(DISTINCT name) FROM users WHERE last_seen_at > $1
`

func (q *Queries) CountActiveUsersSince(ctx context.Context, since int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countActiveUsersSince, since)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const selectLeaderboard = `
SELECT name, CAST(SUM(total_clicks) AS BIGINT) AS clicks, MAX(last_seen_at) AS last_seen_at
FROM users
WHERE total_clicks > 0
GROUP BY name
ORDER BY clicks DESC, MIN(created_at) ASC, name ASC
LIMIT $1
`

func (q *Queries) SelectLeaderboard(ctx context.Context, limit int32) ([]LeaderboardRow, error) {
	rows, err := q.db.QueryContext(ctx, selectLeaderboard, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LeaderboardRow
	for rows.Next() {
		var i LeaderboardRow
		if err := rows.Scan(&i.Name, &i.TotalClicks, &i.LastSeenAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const selectRank = `
SELECT row_rank FROM (
    SELECT name,
           ROW_NUMBER() OVER (ORDER BY SUM(total_clicks) DESC, MIN(created_at) ASC, name ASC) AS row_rank
    FROM users
    WHERE total_clicks > 0
    GROUP BY name
) ranked
WHERE name = $1
`

func (q *Queries) SelectRank(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRowContext(ctx, selectRank, name)
	var rank int64
	err := row.Scan(&rank)
	return rank, err
}

const selectOnlinePlayers = `
SELECT name, CAST(SUM(total_clicks) AS BIGINT) AS clicks
FROM users
WHERE last_seen_at > $1
GROUP BY name
ORDER BY clicks DESC, name ASC
`

func (q *Queries) SelectOnlinePlayers(ctx context.Context, since int64) ([]OnlinePlayerRow, error) {
	rows, err := q.db.QueryContext(ctx, selectOnlinePlayers, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OnlinePlayerRow
	for rows.Next() {
		var i OnlinePlayerRow
		if err := rows.Scan(&i.Name, &i.TotalClicks); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listDuplicateNames = `
SELECT name FROM users GROUP BY name HAVING COUNT(*) > 1 ORDER BY name
`

func (q *Queries) ListDuplicateNames(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listDuplicateNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listUsersByName = `
SELECT id, name, total_clicks, last_seen_at, created_at
FROM users
WHERE name = $1
ORDER BY last_seen_at DESC, id DESC
`

func (q *Queries) ListUsersByName(ctx context.Context, name string) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsersByName, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(&i.ID, &i.Name, &i.TotalClicks, &i.LastSeenAt, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const addUserClicks = `
UPDATE users
SET total_clicks = total_clicks + $1,
    created_at = CASE WHEN created_at > $2 THEN $2 ELSE created_at END
WHERE id = $3 AND name = $4
`

// AddUserClicks adds delta to the row for id and pulls its creation time back
// to createdAt if that is earlier. It only touches the row while it still
// carries name.
func (q *Queries) AddUserClicks(ctx context.Context, arg AddUserClicksParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, addUserClicks, arg.Delta, arg.CreatedAt, arg.ID, arg.Name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markUserOffline = `
UPDATE users SET last_seen_at = $1 WHERE id = $2
`

func (q *Queries) MarkUserOffline(ctx context.Context, id string, lastSeenAt int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markUserOffline, lastSeenAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
