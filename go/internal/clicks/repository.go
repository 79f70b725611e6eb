package clicks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/beatmeat/go/internal/clicks/db"
	"github.com/mcdev12/beatmeat/go/internal/models"
	"github.com/mcdev12/beatmeat/go/internal/sqlutil"
)

// Repository implements the click store on top of the query layer
type Repository struct {
	db      *sql.DB
	queries *db.Queries
}

// NewRepository creates a new clicks repository
func NewRepository(queries *db.Queries, database *sql.DB) *Repository {
	return &Repository{
		db:      database,
		queries: queries,
	}
}

// ClickWrite is the outcome of one recorded click
type ClickWrite struct {
	TotalClicks  int64
	RecentClicks int64
}

// UpsertUser registers the identity under name. The identity takes over the
// clicks of every other row carrying that name and those rows are removed,
// so one row remains for the name. Counts move as deltas: a click committed
// to any of these rows while the transaction runs is never overwritten.
func (r *Repository) UpsertUser(ctx context.Context, id, name string, now time.Time) (*models.User, error) {
	var user db.User
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		removed, err := q.DeleteUsersByNameExcept(ctx, name, id)
		if err != nil {
			return fmt.Errorf("failed to remove duplicate users: %w", err)
		}

		createdAt := now.UnixMilli()
		if removed.FirstCreatedAt.Valid && removed.FirstCreatedAt.Int64 < createdAt {
			createdAt = removed.FirstCreatedAt.Int64
		}

		user, err = q.UpsertUser(ctx, db.UpsertUserParams{
			ID:           id,
			Name:         name,
			MergedClicks: removed.TotalClicks,
			LastSeenAt:   now.UnixMilli(),
			CreatedAt:    createdAt,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return dbUserToModel(user), nil
}

// GetUser retrieves a user by identity
func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := r.queries.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return dbUserToModel(user), nil
}

// RecordClick increments the user and global counters, appends a click event
// and counts the identity's events after since, all in one transaction.
func (r *Repository) RecordClick(ctx context.Context, id string, now, since time.Time) (*ClickWrite, error) {
	var out ClickWrite
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		total, err := q.IncrementUserClicks(ctx, id, now.UnixMilli())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to increment user clicks: %w", err)
		}

		if err := q.AppendClickEvent(ctx, id, now.UnixMilli()); err != nil {
			return fmt.Errorf("failed to append click event: %w", err)
		}

		if err := q.IncrementGlobalCounter(ctx, now.UnixMilli()); err != nil {
			return fmt.Errorf("failed to increment global counter: %w", err)
		}

		recent, err := q.CountClickEventsSince(ctx, id, since.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to count recent clicks: %w", err)
		}

		out = ClickWrite{TotalClicks: total, RecentClicks: recent}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CountClickEventsSince counts an identity's click events after since
func (r *Repository) CountClickEventsSince(ctx context.Context, id string, since time.Time) (int64, error) {
	count, err := r.queries.CountClickEventsSince(ctx, id, since.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to count click events: %w", err)
	}
	return count, nil
}

// GlobalClicks reads the singleton global counter
func (r *Repository) GlobalClicks(ctx context.Context) (int64, error) {
	total, err := r.queries.SelectGlobalCounter(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read global counter: %w", err)
	}
	return total, nil
}

// CountActiveUsersSince counts distinct names seen after since
func (r *Repository) CountActiveUsersSince(ctx context.Context, since time.Time) (int64, error) {
	count, err := r.queries.CountActiveUsersSince(ctx, since.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}

// Leaderboard returns names ordered by summed clicks, descending
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]db.LeaderboardRow, error) {
	rows, err := r.queries.SelectLeaderboard(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to select leaderboard: %w", err)
	}
	return rows, nil
}

// Rank returns the 1-indexed leaderboard position of name, or 0 when unranked
func (r *Repository) Rank(ctx context.Context, name string) (int, error) {
	rank, err := r.queries.SelectRank(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to select rank: %w", err)
	}
	return int(rank), nil
}

// OnlinePlayers lists names seen after since with their summed clicks
func (r *Repository) OnlinePlayers(ctx context.Context, since time.Time) ([]models.OnlinePlayer, error) {
	rows, err := r.queries.SelectOnlinePlayers(ctx, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to select online players: %w", err)
	}

	players := make([]models.OnlinePlayer, 0, len(rows))
	for _, row := range rows {
		players = append(players, models.OnlinePlayer{Name: row.Name, Clicks: row.TotalClicks})
	}
	return players, nil
}

// DeleteClickEventsBefore prunes click events older than before
func (r *Repository) DeleteClickEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.queries.DeleteClickEventsBefore(ctx, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete click events: %w", err)
	}
	return n, nil
}

// DuplicateNames lists names that currently have more than one user row
func (r *Repository) DuplicateNames(ctx context.Context) ([]string, error) {
	names, err := r.queries.ListDuplicateNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate names: %w", err)
	}
	return names, nil
}

// MergeUsersByName folds every row for name into the most recently seen
// identity. Returns the number of rows removed.
func (r *Repository) MergeUsersByName(ctx context.Context, name string) (int64, error) {
	var removed int64
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		users, err := q.ListUsersByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to list users for name: %w", err)
		}
		if len(users) < 2 {
			return nil
		}

		removed, err = foldName(ctx, q, name, users[0])
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// foldName deletes every other row for name and adds their clicks to
// survivor, taking the earliest creation time. Only the delete's own result
// feeds the update, so clicks landing after survivor was read are kept.
func foldName(ctx context.Context, q *db.Queries, name string, survivor db.User) (int64, error) {
	totals, err := q.DeleteUsersByNameExcept(ctx, name, survivor.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate users: %w", err)
	}
	if totals.Rows == 0 {
		return 0, nil
	}

	createdAt := survivor.CreatedAt
	if totals.FirstCreatedAt.Valid && totals.FirstCreatedAt.Int64 < createdAt {
		createdAt = totals.FirstCreatedAt.Int64
	}

	n, err := q.AddUserClicks(ctx, db.AddUserClicksParams{
		Delta:     totals.TotalClicks,
		CreatedAt: createdAt,
		ID:        survivor.ID,
		Name:      name,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update consolidated user: %w", err)
	}
	if n == 0 {
		// the survivor left the name mid-merge; the next prune retries
		return 0, fmt.Errorf("%w: survivor %s no longer carries %q", ErrMergeConflict, survivor.ID, name)
	}
	return totals.Rows, nil
}

// MarkOffline backdates an identity's last-seen time
func (r *Repository) MarkOffline(ctx context.Context, id string, lastSeen time.Time) error {
	if _, err := r.queries.MarkUserOffline(ctx, id, lastSeen.UnixMilli()); err != nil {
		return fmt.Errorf("failed to mark user offline: %w", err)
	}
	return nil
}

// InsertChatMessage persists a chat message
func (r *Repository) InsertChatMessage(ctx context.Context, id, username, text string, at time.Time) (*models.ChatMessage, error) {
	msg, err := r.queries.InsertChatMessage(ctx, db.InsertChatMessageParams{
		UserID:    id,
		Username:  username,
		Message:   text,
		CreatedAt: at.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}
	m := dbMessageToModel(msg)
	return &m, nil
}

// RecentMessages returns up to limit messages created after since, oldest first
func (r *Repository) RecentMessages(ctx context.Context, since time.Time, limit int) ([]models.ChatMessage, error) {
	rows, err := r.queries.SelectRecentMessages(ctx, since.UnixMilli(), int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to select recent messages: %w", err)
	}

	messages := make([]models.ChatMessage, len(rows))
	for i, row := range rows {
		messages[len(rows)-1-i] = dbMessageToModel(row)
	}
	return messages, nil
}

func dbUserToModel(u db.User) *models.User {
	return &models.User{
		ID:          u.ID,
		Name:        u.Name,
		TotalClicks: u.TotalClicks,
		LastSeenAt:  time.UnixMilli(u.LastSeenAt).UTC(),
		CreatedAt:   time.UnixMilli(u.CreatedAt).UTC(),
	}
}

func dbMessageToModel(m db.Message) models.ChatMessage {
	return models.ChatMessage{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Message:   m.Message,
		CreatedAt: time.UnixMilli(m.CreatedAt).UTC(),
	}
}
