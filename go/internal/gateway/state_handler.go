package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/beatmeat/go/internal/clicks"
	"github.com/mcdev12/beatmeat/go/internal/models"
)

// StateProvider is the read side of the aggregation engine
type StateProvider interface {
	Stats(ctx context.Context, limit int) (*models.StatsSnapshot, error)
	OnlinePlayers(ctx context.Context) ([]models.OnlinePlayer, error)
	Rank(ctx context.Context, name string) (int, error)
	RecentMessages(ctx context.Context) ([]models.ChatMessage, error)
	GetUser(ctx context.Context, identity string) (*models.User, error)
}

// Pinger reports store health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RankResponse is the body of GET /players/{name}/rank
type RankResponse struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

// StateHandler serves point-in-time reads over HTTP. None of its handlers
// have side effects.
type StateHandler struct {
	stateProvider StateProvider
	registry      *SessionRegistry
	pinger        Pinger
}

// NewStateHandler creates a new state handler. pinger may be nil.
func NewStateHandler(provider StateProvider, registry *SessionRegistry, pinger Pinger) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
		registry:      registry,
		pinger:        pinger,
	}
}

// HandleGetStats handles GET /stats
func (h *StateHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stateProvider.Stats(r.Context(), clicks.DefaultLeaderboard)
	if err != nil {
		log.Error().Err(err).Msg("failed to get stats")
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}

	resp := NewStatsUpdate(stats, h.registry.Count())
	resp.Type = ""
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetOnlinePlayers handles GET /players/online
func (h *StateHandler) HandleGetOnlinePlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.stateProvider.OnlinePlayers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get online players")
		http.Error(w, "Failed to get online players", http.StatusInternalServerError)
		return
	}
	if players == nil {
		players = []models.OnlinePlayer{}
	}
	writeJSON(w, http.StatusOK, players)
}

// HandleGetRank handles GET /players/{name}/rank
func (h *StateHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		http.Error(w, "Player name is required", http.StatusBadRequest)
		return
	}

	rank, err := h.stateProvider.Rank(r.Context(), name)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("failed to get rank")
		http.Error(w, "Failed to get rank", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RankResponse{Name: name, Rank: rank})
}

// HandleGetMessages handles GET /messages
func (h *StateHandler) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.stateProvider.RecentMessages(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get messages")
		http.Error(w, "Failed to get messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNilMessages(messages))
}

// HandleGetUser handles GET /users/{id}
func (h *StateHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, err := h.stateProvider.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, clicks.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("identity", id).Msg("failed to get user")
		http.Error(w, "Failed to get user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.UserSnapshot{ID: user.ID, Name: user.Name, Clicks: user.TotalClicks})
}

// HandleHealth handles GET /health
func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.PingContext(r.Context()); err != nil {
			log.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRoot handles GET /
func (h *StateHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "beatmeat",
		"sessions": h.registry.Count(),
	})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.HandleRoot)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /stats", h.HandleGetStats)
	mux.HandleFunc("GET /players/online", h.HandleGetOnlinePlayers)
	mux.HandleFunc("GET /players/{name}/rank", h.HandleGetRank)
	mux.HandleFunc("GET /messages", h.HandleGetMessages)
	mux.HandleFunc("GET /users/{id}", h.HandleGetUser)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
