package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/beatmeat/go/internal/clicks"
	"github.com/mcdev12/beatmeat/go/internal/events"
	"github.com/mcdev12/beatmeat/go/internal/models"
)

// StatsSource is what the scheduler needs from the aggregation engine
type StatsSource interface {
	Stats(ctx context.Context, limit int) (*models.StatsSnapshot, error)
	PruneStaleData(ctx context.Context) (*clicks.PruneResult, error)
}

// Scheduler broadcasts stats to every session on a fixed cadence and prunes
// stale data after each tick. Ticks and triggered broadcasts all run on the
// Run goroutine, so they never overlap.
type Scheduler struct {
	source    StatsSource
	registry  *SessionRegistry
	publisher events.Publisher
	clock     clockwork.Clock
	interval  time.Duration

	wakeCh chan struct{}
}

// NewScheduler creates a scheduler. A nil publisher disables event
// publishing.
func NewScheduler(source StatsSource, registry *SessionRegistry, publisher events.Publisher, clock clockwork.Clock, interval time.Duration) *Scheduler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		source:    source,
		registry:  registry,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		wakeCh:    make(chan struct{}, 1),
	}
}

// Trigger requests an out-of-band broadcast. Requests made while one is
// already pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("broadcast scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast scheduler stopped")
			return
		case <-ticker.Chan():
			s.RunOnce(ctx)
		case <-s.wakeCh:
			if err := s.Broadcast(ctx); err != nil {
				log.Error().Err(err).Msg("triggered broadcast failed")
			}
		}
	}
}

// RunOnce performs one tick: broadcast, then prune. Errors are logged and
// never stop the scheduler.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if err := s.Broadcast(ctx); err != nil {
		log.Error().Err(err).Msg("stats broadcast failed")
	}

	if _, err := s.source.PruneStaleData(ctx); err != nil {
		log.Error().Err(err).Msg("prune stale data failed")
	}
}

// Broadcast sends one stats_update to every registered session. With no
// sessions it does nothing.
func (s *Scheduler) Broadcast(ctx context.Context) error {
	sessions := s.registry.Snapshot()
	if len(sessions) == 0 {
		return nil
	}

	stats, err := s.source.Stats(ctx, clicks.DefaultLeaderboard)
	if err != nil {
		return err
	}

	msg := NewStatsUpdate(stats, len(sessions))
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stats update: %w", err)
	}

	delivered, failed := s.registry.Deliver(sessions, payload)
	if failed > 0 {
		log.Debug().
			Int("delivered", delivered).
			Int("failed", failed).
			Msg("stats broadcast completed with failures")
	}

	ev := events.NewEvent(events.EventTypeStatsUpdated, "", msg, s.clock.Now())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("failed to publish stats event")
	}
	return nil
}
