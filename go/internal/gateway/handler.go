package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/beatmeat/go/internal/clicks"
	"github.com/mcdev12/beatmeat/go/internal/events"
	"github.com/mcdev12/beatmeat/go/internal/models"
)

// Engine is what a connection needs from the aggregation engine
type Engine interface {
	RegisterOrRefresh(ctx context.Context, identity, name string) (*models.UserSnapshot, error)
	RecordClick(ctx context.Context, identity string) (*models.ClickResult, error)
	Stats(ctx context.Context, limit int) (*models.StatsSnapshot, error)
	Rank(ctx context.Context, name string) (int, error)
	PostChatMessage(ctx context.Context, identity, username, text string) (*models.ChatMessage, error)
	RecentMessages(ctx context.Context) ([]models.ChatMessage, error)
	MarkOffline(ctx context.Context, identity string) error
}

// Trigger requests an out-of-band stats broadcast
type Trigger interface {
	Trigger()
}

type sessionState int

const (
	stateAwaitingJoin sessionState = iota
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingJoin:
		return "AWAITING_JOIN"
	case stateActive:
		return "ACTIVE"
	default:
		return "CLOSED"
	}
}

const cleanupTimeout = 5 * time.Second

// ConnectionHandler upgrades requests and runs one control loop per
// connection.
type ConnectionHandler struct {
	engine    Engine
	registry  *SessionRegistry
	trigger   Trigger
	publisher events.Publisher
	clock     clockwork.Clock
	config    ConnectionConfig
	upgrader  websocket.Upgrader
	baseCtx   context.Context
}

// NewConnectionHandler creates a new connection handler. Operations run
// under baseCtx, not the request context.
func NewConnectionHandler(baseCtx context.Context, engine Engine, registry *SessionRegistry, trigger Trigger, publisher events.Publisher, clock clockwork.Clock, config ConnectionConfig) *ConnectionHandler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionHandler{
		engine:    engine,
		registry:  registry,
		trigger:   trigger,
		publisher: publisher,
		clock:     clock,
		config:    config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		baseCtx: baseCtx,
	}
}

// HandleConnection upgrades /ws/{id}. Without an id segment the client gets
// a generated identity.
func (h *ConnectionHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(r.PathValue("id"))
	if identity == "" {
		generated, err := gonanoid.New()
		if err != nil {
			http.Error(w, "failed to allocate identity", http.StatusInternalServerError)
			return
		}
		identity = generated
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		log.Warn().Err(err).Str("identity", identity).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := newConnection(ws, identity, h.config)
	go conn.writePump()

	log.Info().
		Str("connection_id", conn.ID()).
		Str("identity", identity).
		Msg("WebSocket connection established")

	h.serve(conn)
}

// clientSession is the per-connection state machine
type clientSession struct {
	h      *ConnectionHandler
	conn   *Connection
	state  sessionState
	name   string
	abrupt bool

	registered bool
}

func (h *ConnectionHandler) serve(conn *Connection) {
	s := &clientSession{h: h, conn: conn, state: stateAwaitingJoin}
	defer s.close()
	defer func() {
		if p := recover(); p != nil {
			s.abrupt = true
			log.Error().
				Interface("panic", p).
				Str("connection_id", conn.ID()).
				Str("identity", conn.Identity()).
				Msg("connection handler panicked")
		}
	}()

	conn.prepareRead()
	for {
		data, err := conn.readMessage()
		if err != nil {
			s.readFailed(err)
			return
		}

		if err := s.handle(data); err != nil {
			if errors.Is(err, ErrProtocolViolation) {
				log.Warn().
					Err(err).
					Str("connection_id", conn.ID()).
					Str("identity", conn.Identity()).
					Str("state", s.state.String()).
					Msg("closing connection")
				s.sendError(err.Error())
				return
			}
			s.abrupt = true
			log.Error().
				Err(err).
				Str("connection_id", conn.ID()).
				Str("identity", conn.Identity()).
				Msg("connection processing failed")
			return
		}
	}
}

func (s *clientSession) readFailed(err error) {
	select {
	case <-s.conn.Done():
		if werr := s.conn.WriteErr(); werr != nil {
			s.abrupt = true
			log.Debug().
				Err(werr).
				Str("connection_id", s.conn.ID()).
				Str("identity", s.conn.Identity()).
				Msg("connection write failed")
		}
		return
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Debug().
			Str("connection_id", s.conn.ID()).
			Str("identity", s.conn.Identity()).
			Msg("client closed connection")
		return
	}

	s.abrupt = true
	log.Debug().
		Err(err).
		Str("connection_id", s.conn.ID()).
		Str("identity", s.conn.Identity()).
		Msg("connection read failed")
}

func (s *clientSession) handle(data []byte) error {
	msg, err := ParseInbound(data)
	if err != nil {
		return err
	}

	switch s.state {
	case stateAwaitingJoin:
		if msg.Type != MessageTypeJoin {
			return fmt.Errorf("%w: expected join, got %q", ErrProtocolViolation, msg.Type)
		}
		return s.join(msg.Name)

	case stateActive:
		switch msg.Type {
		case MessageTypeJoin:
			return s.join(msg.Name)
		case MessageTypeClick:
			return s.click()
		case MessageTypeChat:
			return s.chat(msg.Message)
		}
	}

	return fmt.Errorf("%w: %q in state %s", ErrProtocolViolation, msg.Type, s.state)
}

func (s *clientSession) join(name string) error {
	ctx := s.h.baseCtx
	identity := s.conn.Identity()

	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: join requires a name", ErrProtocolViolation)
	}

	user, err := s.h.engine.RegisterOrRefresh(ctx, identity, name)
	if err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}
	s.name = user.Name

	prev := s.h.registry.Put(s.conn)
	s.registered = true
	if prev != nil && prev.ID() != s.conn.ID() {
		log.Info().
			Str("identity", identity).
			Str("replaced_connection_id", prev.ID()).
			Msg("identity rejoined on a new connection")
	}

	initial, err := s.initialStats(ctx, user)
	if err != nil {
		return err
	}
	if err := s.sendJSON(initial); err != nil {
		return err
	}

	s.state = stateActive
	s.h.trigger.Trigger()

	ev := events.NewEvent(events.EventTypeUserJoined, identity, user, s.h.clock.Now())
	if err := s.h.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("failed to publish join event")
	}

	log.Info().
		Str("connection_id", s.conn.ID()).
		Str("identity", identity).
		Str("name", user.Name).
		Int64("clicks", user.Clicks).
		Msg("user joined")
	return nil
}

func (s *clientSession) initialStats(ctx context.Context, user *models.UserSnapshot) (*InitialStatsMessage, error) {
	stats, err := s.h.engine.Stats(ctx, clicks.DefaultLeaderboard)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial stats: %w", err)
	}
	rank, err := s.h.engine.Rank(ctx, user.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load rank: %w", err)
	}
	messages, err := s.h.engine.RecentMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return &InitialStatsMessage{
		Type:           MessageTypeInitialStats,
		UserID:         user.ID,
		Name:           user.Name,
		PersonalClicks: user.Clicks,
		GlobalClicks:   stats.GlobalClicks,
		ConnectedUsers: s.h.registry.Count(),
		OnlineUsers:    stats.OnlineUserCount,
		Rank:           rank,
		Leaderboard:    nonNilLeaderboard(stats.Leaderboard),
		Messages:       nonNilMessages(messages),
	}, nil
}

// click replies to the sender only. A failed increment is reported to the
// client as an error and never as a click response.
func (s *clientSession) click() error {
	result, err := s.h.engine.RecordClick(s.h.baseCtx, s.conn.Identity())
	if err != nil {
		log.Error().
			Err(err).
			Str("identity", s.conn.Identity()).
			Msg("failed to record click")
		return s.sendError("click was not recorded")
	}

	return s.sendJSON(ClickResponseMessage{
		Type:           MessageTypeClickResponse,
		PersonalClicks: result.PersonalClicks,
		ShouldSmoke:    result.ShouldSmoke,
		RecentClicks:   result.RecentClicks,
	})
}

func (s *clientSession) chat(text string) error {
	ctx := s.h.baseCtx
	identity := s.conn.Identity()

	msg, err := s.h.engine.PostChatMessage(ctx, identity, s.name, text)
	if err != nil {
		if errors.Is(err, clicks.ErrEmptyMessage) {
			return nil
		}
		log.Error().Err(err).Str("identity", identity).Msg("failed to store chat message")
		return s.sendError("chat message was not stored")
	}

	recent, err := s.h.engine.RecentMessages(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load recent messages")
		return nil
	}

	payload, err := json.Marshal(ChatUpdateMessage{Type: MessageTypeChatUpdate, Messages: nonNilMessages(recent)})
	if err != nil {
		return fmt.Errorf("marshal chat update: %w", err)
	}
	s.h.registry.Broadcast(payload)

	ev := events.NewEvent(events.EventTypeChatMessage, identity, msg, msg.CreatedAt)
	if err := s.h.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("failed to publish chat event")
	}
	return nil
}

func (s *clientSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.conn.Send(payload)
}

func (s *clientSession) sendError(text string) error {
	return s.sendJSON(ErrorMessage{Type: MessageTypeError, Error: text})
}

// close runs on every exit path of serve
func (s *clientSession) close() {
	s.state = stateClosed

	if s.registered {
		removed := s.h.registry.RemoveSession(s.conn)
		if removed {
			s.h.trigger.Trigger()
		}

		// a replaced connection leaves presence to its successor
		if removed && s.abrupt {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(s.h.baseCtx), cleanupTimeout)
			if err := s.h.engine.MarkOffline(ctx, s.conn.Identity()); err != nil {
				log.Warn().Err(err).Str("identity", s.conn.Identity()).Msg("failed to mark user offline")
			}
			cancel()
		}
	}

	s.conn.Close()

	log.Info().
		Str("connection_id", s.conn.ID()).
		Str("identity", s.conn.Identity()).
		Bool("abrupt", s.abrupt).
		Msg("WebSocket connection closed")
}
