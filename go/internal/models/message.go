package models

import "time"

// ChatMessage is a persisted chat line with the sender's name at send time
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
