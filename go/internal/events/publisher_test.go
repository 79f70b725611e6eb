package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func TestEventEncode(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	ev := NewEvent(EventTypeUserJoined, "id-1", map[string]any{"name": "bob", "clicks": 5}, at)

	data, err := ev.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	if env.EventID != ev.ID.String() {
		t.Errorf("event id = %s, want %s", env.EventID, ev.ID)
	}
	if env.EventType != EventTypeUserJoined || env.Identity != "id-1" {
		t.Errorf("envelope = %+v", env)
	}
	if !env.Timestamp.Equal(at) || env.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v, want %v in UTC", env.Timestamp, at)
	}

	var payload struct {
		Name   string `json:"name"`
		Clicks int    `json:"clicks"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload.Name != "bob" || payload.Clicks != 5 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEncodeRejectsUnmarshalablePayload(t *testing.T) {
	ev := NewEvent(EventTypeChatMessage, "", func() {}, time.Now())
	if _, err := ev.Encode(); err == nil {
		t.Fatal("expected marshal error for func payload")
	}
}

func TestHeadersAndSubject(t *testing.T) {
	ev := NewEvent(EventTypeStatsUpdated, "", nil, time.Now())
	h := headersFor(ev)
	if h.Get("Event-Type") != EventTypeStatsUpdated || h.Get("Event-ID") != ev.ID.String() {
		t.Errorf("headers = %v", h)
	}
	if h.Get("Identity") != "" {
		t.Errorf("process-wide event should carry no identity header")
	}

	if got := subjectFor("beatmeat.events", EventTypeStatsUpdated); got != "beatmeat.events.stats_updated" {
		t.Errorf("subject = %s", got)
	}
}

func TestStreamConfigCoversPrefix(t *testing.T) {
	p := &JetStreamPublisher{config: DefaultJetStreamConfig()}
	sc := p.streamConfig()
	if len(sc.Subjects) != 1 || sc.Subjects[0] != "beatmeat.events.>" {
		t.Errorf("subjects = %v", sc.Subjects)
	}
	if !isStreamConfigEqual(sc, sc) {
		t.Error("config should equal itself")
	}
	other := sc
	other.MaxAge = time.Hour
	if isStreamConfigEqual(sc, other) {
		t.Error("differing max age should not compare equal")
	}
	if sc.Retention != jetstream.LimitsPolicy {
		t.Errorf("retention = %v", sc.Retention)
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), NewEvent(EventTypeChatMessage, "x", nil, time.Now())); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}
