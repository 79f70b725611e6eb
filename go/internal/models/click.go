package models

import "time"

// ClickEvent is a single recorded click, kept only for burst detection
type ClickEvent struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	ClickedAt time.Time `json:"clicked_at"`
}

// ClickResult is returned to the clicking user only
type ClickResult struct {
	PersonalClicks int64 `json:"personal_clicks"`
	RecentClicks   int64 `json:"recent_clicks"`
	ShouldSmoke    bool  `json:"should_smoke"`
}
