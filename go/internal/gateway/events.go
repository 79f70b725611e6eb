package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/beatmeat/go/internal/models"
)

// MessageType is the "type" field of every wire message
type MessageType string

const (
	// inbound
	MessageTypeJoin  MessageType = "join"
	MessageTypeClick MessageType = "click"
	MessageTypeChat  MessageType = "chat"

	// outbound
	MessageTypeInitialStats  MessageType = "initial_stats"
	MessageTypeClickResponse MessageType = "click_response"
	MessageTypeStatsUpdate   MessageType = "stats_update"
	MessageTypeChatUpdate    MessageType = "chat_update"
	MessageTypeError         MessageType = "error"
)

// InboundMessage is any message a client may send
type InboundMessage struct {
	Type    MessageType `json:"type"`
	Name    string      `json:"name,omitempty"`
	Message string      `json:"message,omitempty"`
}

type InitialStatsMessage struct {
	Type           MessageType               `json:"type"`
	UserID         string                    `json:"user_id"`
	Name           string                    `json:"name"`
	PersonalClicks int64                     `json:"personal_clicks"`
	GlobalClicks   int64                     `json:"global_clicks"`
	ConnectedUsers int                       `json:"connected_users"`
	OnlineUsers    int64                     `json:"online_users"`
	Rank           int                       `json:"rank"`
	Leaderboard    []models.LeaderboardEntry `json:"leaderboard"`
	Messages       []models.ChatMessage      `json:"messages"`
}

type ClickResponseMessage struct {
	Type           MessageType `json:"type"`
	PersonalClicks int64       `json:"personal_clicks"`
	ShouldSmoke    bool        `json:"should_smoke"`
	RecentClicks   int64       `json:"recent_clicks"`
}

// StatsUpdateMessage is the periodic broadcast payload. It doubles as the
// body of GET /stats.
type StatsUpdateMessage struct {
	Type           MessageType               `json:"type,omitempty"`
	GlobalClicks   int64                     `json:"global_clicks"`
	ConnectedUsers int                       `json:"connected_users"`
	OnlineUsers    int64                     `json:"online_users"`
	Leaderboard    []models.LeaderboardEntry `json:"leaderboard"`
}

type ChatUpdateMessage struct {
	Type     MessageType          `json:"type"`
	Messages []models.ChatMessage `json:"messages"`
}

type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

// ParseInbound decodes a client message. Malformed JSON and unknown types
// are protocol violations.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed message: %v", ErrProtocolViolation, err)
	}

	switch msg.Type {
	case MessageTypeJoin, MessageTypeClick, MessageTypeChat:
		return &msg, nil
	case "":
		return nil, fmt.Errorf("%w: missing message type", ErrProtocolViolation)
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrProtocolViolation, msg.Type)
	}
}

// NewStatsUpdate builds the broadcast payload from a stats snapshot
func NewStatsUpdate(stats *models.StatsSnapshot, connected int) StatsUpdateMessage {
	return StatsUpdateMessage{
		Type:           MessageTypeStatsUpdate,
		GlobalClicks:   stats.GlobalClicks,
		ConnectedUsers: connected,
		OnlineUsers:    stats.OnlineUserCount,
		Leaderboard:    nonNilLeaderboard(stats.Leaderboard),
	}
}

func nonNilLeaderboard(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	if entries == nil {
		return []models.LeaderboardEntry{}
	}
	return entries
}

func nonNilMessages(messages []models.ChatMessage) []models.ChatMessage {
	if messages == nil {
		return []models.ChatMessage{}
	}
	return messages
}
