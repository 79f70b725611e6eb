package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/beatmeat/go/internal/models"
)

func getJSON(t *testing.T, g *testGateway, path string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(g.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", path, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}

func TestStateEndpoints(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	conn := g.dial(t, "id-1")
	join(t, conn, "alice")
	if _, err := g.app.RegisterOrRefresh(ctx, "id-2", "bob"); err != nil {
		t.Fatalf("RegisterOrRefresh() error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.app.RecordClick(ctx, "id-2"); err != nil {
			t.Fatalf("RecordClick() error: %v", err)
		}
	}
	if _, err := g.app.RecordClick(ctx, "id-1"); err != nil {
		t.Fatalf("RecordClick() error: %v", err)
	}

	var stats map[string]json.RawMessage
	getJSON(t, g, "/stats", http.StatusOK, &stats)
	for _, key := range []string{"global_clicks", "connected_users", "online_users", "leaderboard"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("/stats missing %s", key)
		}
	}
	if _, ok := stats["type"]; ok {
		t.Error("/stats should not carry a message type")
	}
	var global int64
	_ = json.Unmarshal(stats["global_clicks"], &global)
	if global != 4 {
		t.Errorf("global_clicks = %d, want 4", global)
	}
	var connected int
	_ = json.Unmarshal(stats["connected_users"], &connected)
	if connected != 1 {
		t.Errorf("connected_users = %d, want 1", connected)
	}

	var rank RankResponse
	getJSON(t, g, "/players/bob/rank", http.StatusOK, &rank)
	if rank.Rank != 1 {
		t.Errorf("bob rank = %d, want 1", rank.Rank)
	}
	getJSON(t, g, "/players/nobody/rank", http.StatusOK, &rank)
	if rank.Rank != 0 {
		t.Errorf("unknown rank = %d, want 0", rank.Rank)
	}

	var players []models.OnlinePlayer
	getJSON(t, g, "/players/online", http.StatusOK, &players)
	if len(players) != 2 || players[0].Name != "bob" {
		t.Errorf("online players = %+v", players)
	}

	var user models.UserSnapshot
	getJSON(t, g, "/users/id-2", http.StatusOK, &user)
	if user.Name != "bob" || user.Clicks != 3 {
		t.Errorf("user = %+v", user)
	}
	getJSON(t, g, "/users/missing", http.StatusNotFound, nil)

	var messages []models.ChatMessage
	getJSON(t, g, "/messages", http.StatusOK, &messages)
	if messages == nil || len(messages) != 0 {
		t.Errorf("messages = %+v, want empty array", messages)
	}

	var health map[string]string
	getJSON(t, g, "/health", http.StatusOK, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
	getJSON(t, g, "/", http.StatusOK, nil)
	getJSON(t, g, "/nope", http.StatusNotFound, nil)
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("down") }

func TestHealthReportsStoreFailure(t *testing.T) {
	h := NewStateHandler(nil, NewSessionRegistry(), failingPinger{})
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
