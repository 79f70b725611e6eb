package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/beatmeat/go/internal/clicks"
	"github.com/mcdev12/beatmeat/go/internal/events"
)

// Service is the real-time gateway: session registry, broadcast scheduler,
// WebSocket handler and read endpoints.
type Service struct {
	registry     *SessionRegistry
	scheduler    *Scheduler
	wsHandler    *ConnectionHandler
	stateHandler *StateHandler
	events       *events.AsyncPublisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig  ConnectionConfig
	BroadcastInterval time.Duration
	EventQueueSize    int
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		BroadcastInterval: time.Second,
		EventQueueSize:    events.DefaultQueueSize,
	}
}

// NewService creates a new gateway service over the aggregation engine.
// Events are queued in front of publisher so a slow bus never holds up a
// broadcast or a client message. The caller keeps ownership of publisher.
func NewService(config Config, app *clicks.App, publisher events.Publisher, pinger Pinger, clock clockwork.Clock) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	queued := events.NewAsyncPublisher(publisher, config.EventQueueSize)

	registry := NewSessionRegistry()
	scheduler := NewScheduler(app, registry, queued, clock, config.BroadcastInterval)

	return &Service{
		registry:     registry,
		scheduler:    scheduler,
		wsHandler:    NewConnectionHandler(ctx, app, registry, scheduler, queued, clock, config.ConnectionConfig),
		stateHandler: NewStateHandler(app, registry, pinger),
		events:       queued,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the broadcast scheduler
func (s *Service) Start() {
	log.Info().Msg("starting gateway service")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scheduler.Run(s.ctx)
	}()
}

// Stop halts the scheduler and closes every live session
func (s *Service) Stop(ctx context.Context) error {
	s.cancel()
	s.registry.CloseAll()
	defer s.events.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("gateway service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry exposes the session registry
func (s *Service) Registry() *SessionRegistry {
	return s.registry
}

// Scheduler exposes the broadcast scheduler
func (s *Service) Scheduler() *Scheduler {
	return s.scheduler
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.wsHandler.HandleConnection)
	mux.HandleFunc("GET /ws/{id}", s.wsHandler.HandleConnection)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}
