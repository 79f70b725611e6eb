package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeStatsUpdated = "stats_updated"
	EventTypeChatMessage  = "chat_message"
	EventTypeUserJoined   = "user_joined"
)

// Event is a game event fanned out beyond this process
type Event struct {
	ID        uuid.UUID
	Type      string
	Identity  string // empty for process-wide events
	Payload   any
	CreatedAt time.Time
}

// NewEvent stamps a fresh event id
func NewEvent(eventType, identity string, payload any, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Identity:  identity,
		Payload:   payload,
		CreatedAt: at,
	}
}

// Envelope is the JSON body written to the bus
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Identity  string          `json:"identity,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode renders the event as an Envelope
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Envelope{
		EventID:   e.ID.String(),
		EventType: e.Type,
		Identity:  e.Identity,
		Timestamp: e.CreatedAt.UTC(),
		Payload:   payload,
	})
}

// Publisher sends events to the bus. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no bus is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                        { return nil }
