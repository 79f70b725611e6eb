package models

import (
	"time"
)

// User is the authoritative row for a player identity
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TotalClicks int64     `json:"clicks"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserSnapshot is what a join hands back to the connection
type UserSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Clicks int64  `json:"clicks"`
}

// OnlinePlayer is a display name active inside the online window
type OnlinePlayer struct {
	Name   string `json:"name"`
	Clicks int64  `json:"clicks"`
}
