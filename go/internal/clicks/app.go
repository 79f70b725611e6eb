package clicks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/beatmeat/go/internal/clicks/db"
	"github.com/mcdev12/beatmeat/go/internal/models"
)

// ClickRepository defines what the app layer needs from the repository
type ClickRepository interface {
	UpsertUser(ctx context.Context, id, name string, now time.Time) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	RecordClick(ctx context.Context, id string, now, since time.Time) (*ClickWrite, error)
	GlobalClicks(ctx context.Context) (int64, error)
	CountActiveUsersSince(ctx context.Context, since time.Time) (int64, error)
	Leaderboard(ctx context.Context, limit int) ([]db.LeaderboardRow, error)
	Rank(ctx context.Context, name string) (int, error)
	OnlinePlayers(ctx context.Context, since time.Time) ([]models.OnlinePlayer, error)
	DeleteClickEventsBefore(ctx context.Context, before time.Time) (int64, error)
	DuplicateNames(ctx context.Context) ([]string, error)
	MergeUsersByName(ctx context.Context, name string) (int64, error)
	MarkOffline(ctx context.Context, id string, lastSeen time.Time) error
	InsertChatMessage(ctx context.Context, id, username, text string, at time.Time) (*models.ChatMessage, error)
	RecentMessages(ctx context.Context, since time.Time, limit int) ([]models.ChatMessage, error)
}

// App is the aggregation engine: clicks, consolidation, leaderboard,
// online status and burst detection over the click store.
type App struct {
	repo  ClickRepository
	clock clockwork.Clock
	names *keyedMutex
}

// NewApp creates a new clicks App
func NewApp(repo ClickRepository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:  repo,
		clock: clock,
		names: newKeyedMutex(),
	}
}

// RegisterOrRefresh upserts the identity under name. If name already belongs
// to other identities their clicks move to this identity and their rows are
// removed. Calls for the same name are serialized.
func (a *App) RegisterOrRefresh(ctx context.Context, identity, name string) (*models.UserSnapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	unlock := a.names.Lock(name)
	defer unlock()

	user, err := a.repo.UpsertUser(ctx, identity, name, a.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	log.Debug().
		Str("identity", identity).
		Str("name", name).
		Int64("clicks", user.TotalClicks).
		Msg("user registered")

	return &models.UserSnapshot{
		ID:     user.ID,
		Name:   user.Name,
		Clicks: user.TotalClicks,
	}, nil
}

// RecordClick counts one click for identity and reports whether its recent
// rate crossed the burst threshold.
func (a *App) RecordClick(ctx context.Context, identity string) (*models.ClickResult, error) {
	now := a.clock.Now()
	write, err := a.repo.RecordClick(ctx, identity, now, now.Add(-BurstWindow))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	return &models.ClickResult{
		PersonalClicks: write.TotalClicks,
		RecentClicks:   write.RecentClicks,
		ShouldSmoke:    write.RecentClicks >= BurstThreshold,
	}, nil
}

// GlobalSnapshot returns the global counter and the number of names seen
// inside the online window.
func (a *App) GlobalSnapshot(ctx context.Context) (*models.GlobalSnapshot, error) {
	total, err := a.repo.GlobalClicks(ctx)
	if err != nil {
		return nil, err
	}
	online, err := a.repo.CountActiveUsersSince(ctx, a.clock.Now().Add(-OnlineWindow))
	if err != nil {
		return nil, err
	}
	return &models.GlobalSnapshot{GlobalClicks: total, OnlineUserCount: online}, nil
}

// Leaderboard returns up to limit names ordered by clicks. A non-positive
// limit falls back to DefaultLeaderboard.
func (a *App) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboard
	}

	rows, err := a.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	onlineSince := a.clock.Now().Add(-OnlineWindow).UnixMilli()
	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.LeaderboardEntry{
			Name:     row.Name,
			Clicks:   row.TotalClicks,
			IsOnline: row.LastSeenAt > onlineSince,
		})
	}
	return entries, nil
}

// Rank returns the 1-indexed leaderboard position of name, 0 when unranked
func (a *App) Rank(ctx context.Context, name string) (int, error) {
	return a.repo.Rank(ctx, strings.TrimSpace(name))
}

// Stats gathers the global snapshot and the leaderboard concurrently
func (a *App) Stats(ctx context.Context, limit int) (*models.StatsSnapshot, error) {
	var (
		global *models.GlobalSnapshot
		board  []models.LeaderboardEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		global, err = a.GlobalSnapshot(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		board, err = a.Leaderboard(gctx, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	return &models.StatsSnapshot{GlobalSnapshot: *global, Leaderboard: board}, nil
}

// OnlinePlayers lists the names seen inside the online window
func (a *App) OnlinePlayers(ctx context.Context) ([]models.OnlinePlayer, error) {
	return a.repo.OnlinePlayers(ctx, a.clock.Now().Add(-OnlineWindow))
}

// GetUser returns the stored row for identity
func (a *App) GetUser(ctx context.Context, identity string) (*models.User, error) {
	return a.repo.GetUser(ctx, identity)
}

// PruneStaleData drops expired click events and consolidates names that
// ended up with more than one row.
func (a *App) PruneStaleData(ctx context.Context) (*PruneResult, error) {
	deleted, err := a.repo.DeleteClickEventsBefore(ctx, a.clock.Now().Add(-ClickRetention))
	if err != nil {
		return nil, err
	}
	result := &PruneResult{ClickEventsDeleted: deleted}

	names, err := a.repo.DuplicateNames(ctx)
	if err != nil {
		return result, err
	}

	for _, name := range names {
		merged, err := a.mergeName(ctx, name)
		if err != nil {
			return result, err
		}
		result.NamesConsolidated++
		result.RowsMerged += merged
	}

	if result.ClickEventsDeleted > 0 || result.NamesConsolidated > 0 {
		log.Debug().
			Int64("click_events_deleted", result.ClickEventsDeleted).
			Int("names_consolidated", result.NamesConsolidated).
			Int64("rows_merged", result.RowsMerged).
			Msg("pruned stale data")
	}
	return result, nil
}

func (a *App) mergeName(ctx context.Context, name string) (int64, error) {
	unlock := a.names.Lock(name)
	defer unlock()

	merged, err := a.repo.MergeUsersByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to consolidate %q: %w", name, err)
	}
	return merged, nil
}

// MarkOffline moves identity's last-seen time outside the online window
func (a *App) MarkOffline(ctx context.Context, identity string) error {
	return a.repo.MarkOffline(ctx, identity, a.clock.Now().Add(-OfflineBackdate))
}

// PostChatMessage trims and truncates text, then stores it under the
// sender's current name.
func (a *App) PostChatMessage(ctx context.Context, identity, username, text string) (*models.ChatMessage, error) {
	text = truncateRunes(strings.TrimSpace(text), ChatMaxLength)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	msg, err := a.repo.InsertChatMessage(ctx, identity, username, text, a.clock.Now())
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentMessages returns the chat messages inside the retention window,
// oldest first.
func (a *App) RecentMessages(ctx context.Context) ([]models.ChatMessage, error) {
	return a.repo.RecentMessages(ctx, a.clock.Now().Add(-ChatRetention), RecentMessageLimit)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
