package db

import "context"

const incrementGlobalCounter = `
UPDATE global_stats
SET total_clicks = total_clicks + 1, last_updated_at = $1
WHERE id = 1
`

func (q *Queries) IncrementGlobalCounter(ctx context.Context, updatedAt int64) error {
	_, err := q.db.ExecContext(ctx, incrementGlobalCounter, updatedAt)
	return err
}

const selectGlobalCounter = `
SELECT total_clicks FROM global_stats WHERE id = 1
`

func (q *Queries) SelectGlobalCounter(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, selectGlobalCounter)
	var total int64
	err := row.Scan(&total)
	return total, err
}
