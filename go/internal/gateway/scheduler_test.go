package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/beatmeat/go/internal/clicks"
	"github.com/mcdev12/beatmeat/go/internal/events"
	"github.com/mcdev12/beatmeat/go/internal/models"
)

type fakeStats struct {
	mu       sync.Mutex
	stats    *models.StatsSnapshot
	statsErr error
	calls    []string
}

func (f *fakeStats) Stats(ctx context.Context, limit int) (*models.StatsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stats")
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeStats) PruneStaleData(ctx context.Context) (*clicks.PruneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "prune")
	return &clicks.PruneResult{}, nil
}

func (f *fakeStats) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func sampleStats() *models.StatsSnapshot {
	return &models.StatsSnapshot{
		GlobalSnapshot: models.GlobalSnapshot{GlobalClicks: 42, OnlineUserCount: 3},
		Leaderboard: []models.LeaderboardEntry{
			{Name: "alice", Clicks: 30, IsOnline: true},
			{Name: "bob", Clicks: 12},
		},
	}
}

func TestRunOnceWithNoSessions(t *testing.T) {
	source := &fakeStats{stats: sampleStats()}
	pub := &recordingPublisher{}
	s := NewScheduler(source, NewSessionRegistry(), pub, clockwork.NewFakeClock(), time.Second)

	s.RunOnce(context.Background())

	calls := source.callLog()
	if len(calls) != 1 || calls[0] != "prune" {
		t.Errorf("calls = %v, want only prune", calls)
	}
	if pub.count() != 0 {
		t.Errorf("published %d events with no sessions", pub.count())
	}
}

func TestRunOnceBroadcastsThenPrunes(t *testing.T) {
	source := &fakeStats{stats: sampleStats()}
	registry := NewSessionRegistry()
	good := newFakeSession("c1", "alice")
	bad := newFakeSession("c2", "bob")
	bad.sendErr = ErrSendBufferFull
	registry.Put(good)
	registry.Put(bad)
	pub := &recordingPublisher{}

	s := NewScheduler(source, registry, pub, clockwork.NewFakeClock(), time.Second)
	s.RunOnce(context.Background())

	calls := source.callLog()
	if len(calls) != 2 || calls[0] != "stats" || calls[1] != "prune" {
		t.Fatalf("calls = %v, want stats then prune", calls)
	}

	msgs := good.messages()
	if len(msgs) != 1 {
		t.Fatalf("healthy session got %d messages, want 1", len(msgs))
	}
	var update StatsUpdateMessage
	if err := json.Unmarshal(msgs[0], &update); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if update.Type != MessageTypeStatsUpdate || update.GlobalClicks != 42 || update.ConnectedUsers != 2 {
		t.Errorf("update = %+v", update)
	}
	if update.OnlineUsers != 3 || len(update.Leaderboard) != 2 || update.Leaderboard[0].Name != "alice" {
		t.Errorf("update = %+v", update)
	}

	if _, ok := registry.Get("bob"); ok {
		t.Error("failing session should be removed after the tick")
	}
	if pub.count() != 1 {
		t.Errorf("published %d events, want 1", pub.count())
	}

	s.RunOnce(context.Background())
	msgs = good.messages()
	if err := json.Unmarshal(msgs[len(msgs)-1], &update); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if update.ConnectedUsers != 1 {
		t.Errorf("next tick connected_users = %d, want 1", update.ConnectedUsers)
	}
}

func TestRunOnceSurvivesStatsFailure(t *testing.T) {
	source := &fakeStats{statsErr: errors.New("db down")}
	registry := NewSessionRegistry()
	sess := newFakeSession("c1", "alice")
	registry.Put(sess)

	s := NewScheduler(source, registry, nil, clockwork.NewFakeClock(), time.Second)
	s.RunOnce(context.Background())

	calls := source.callLog()
	if len(calls) != 2 || calls[1] != "prune" {
		t.Errorf("prune should still run after a failed broadcast, calls = %v", calls)
	}
	if len(sess.messages()) != 0 {
		t.Error("nothing should be delivered when stats fail")
	}
	if registry.Count() != 1 {
		t.Error("a store failure must not drop sessions")
	}
}

func TestRunTicksAndTriggers(t *testing.T) {
	source := &fakeStats{stats: sampleStats()}
	registry := NewSessionRegistry()
	sess := newFakeSession("c1", "alice")
	registry.Put(sess)
	clock := clockwork.NewFakeClock()

	s := NewScheduler(source, registry, nil, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("scheduler never started its ticker: %v", err)
	}

	s.Trigger()
	waitFor(t, func() bool { return len(sess.messages()) == 1 })

	clock.Advance(time.Second)
	waitFor(t, func() bool {
		calls := source.callLog()
		return len(calls) >= 3 && calls[len(calls)-1] == "prune"
	})
	if len(sess.messages()) != 2 {
		t.Errorf("messages = %d, want 2", len(sess.messages()))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestTriggerCoalesces(t *testing.T) {
	s := NewScheduler(&fakeStats{}, NewSessionRegistry(), nil, clockwork.NewFakeClock(), time.Second)
	for i := 0; i < 5; i++ {
		s.Trigger()
	}
	if len(s.wakeCh) != 1 {
		t.Errorf("pending triggers = %d, want 1", len(s.wakeCh))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// stallingPublisher blocks every publish until released or cancelled
type stallingPublisher struct {
	release chan struct{}
	entered chan events.Event
}

func newStallingPublisher() *stallingPublisher {
	return &stallingPublisher{
		release: make(chan struct{}),
		entered: make(chan events.Event, 8),
	}
}

func (p *stallingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.entered <- ev
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *stallingPublisher) Close() error { return nil }

func TestRunOnceDoesNotWaitOnStalledPublisher(t *testing.T) {
	source := &fakeStats{stats: sampleStats()}
	registry := NewSessionRegistry()
	sess := newFakeSession("c1", "alice")
	registry.Put(sess)

	stalled := newStallingPublisher()
	queued := events.NewAsyncPublisher(stalled, 4)
	defer queued.Stop()
	defer close(stalled.release)

	s := NewScheduler(source, registry, queued, clockwork.NewFakeClock(), time.Second)

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("tick blocked on the event publisher")
	}

	calls := source.callLog()
	if len(calls) != 2 || calls[0] != "stats" || calls[1] != "prune" {
		t.Errorf("calls = %v, want stats then prune", calls)
	}
	if len(sess.messages()) != 1 {
		t.Errorf("session got %d messages, want 1", len(sess.messages()))
	}

	select {
	case ev := <-stalled.entered:
		if ev.Type != events.EventTypeStatsUpdated {
			t.Errorf("event type = %q, want %q", ev.Type, events.EventTypeStatsUpdated)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stats event never reached the publisher")
	}
}
