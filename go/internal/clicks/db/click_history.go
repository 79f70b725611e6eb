package db

import "context"

const appendClickEvent = `
INSERT INTO click_history (user_id, clicked_at) VALUES ($1, $2)
`

func (q *Queries) AppendClickEvent(ctx context.Context, userID string, clickedAt int64) error {
	_, err := q.db.ExecContext(ctx, appendClickEvent, userID, clickedAt)
	return err
}

const countClickEventsSince = `
SELECT COUNT(*) FROM click_history WHERE user_id = $1 AND clicked_at > $2
`

func (q *Queries) CountClickEventsSince(ctx context.Context, userID string, since int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countClickEventsSince, userID, since)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteClickEventsBefore = `
DELETE FROM click_history WHERE clicked_at < $1
`

func (q *Queries) DeleteClickEventsBefore(ctx context.Context, before int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteClickEventsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
