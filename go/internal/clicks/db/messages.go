package db

import "context"

const insertChatMessage = `
INSERT INTO messages (user_id, username, message, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, username, message, created_at
`

type InsertChatMessageParams struct {
	UserID    string
	Username  string
	Message   string
	CreatedAt int64
}

func (q *Queries) InsertChatMessage(ctx context.Context, arg InsertChatMessageParams) (Message, error) {
	row := q.db.QueryRowContext(ctx, insertChatMessage,
		arg.UserID,
		arg.Username,
		arg.Message,
		arg.CreatedAt,
	)
	var i Message
	err := row.Scan(&i.ID, &i.UserID, &i.Username, &i.Message, &i.CreatedAt)
	return i, err
}

const selectRecentMessages = `
SELECT id, user_id, username, message, created_at
FROM messages
WHERE created_at > $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`

// SelectRecentMessages returns newest first.
func (q *Queries) SelectRecentMessages(ctx context.Context, since int64, limit int32) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, selectRecentMessages, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Message
	for rows.Next() {
		var i Message
		if err := rows.Scan(&i.ID, &i.UserID, &i.Username, &i.Message, &i.CreatedAt); err != nil {
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
