package models

// LeaderboardEntry is one row of the name-aggregated leaderboard
type LeaderboardEntry struct {
	Name     string `json:"name"`
	Clicks   int64  `json:"clicks"`
	IsOnline bool   `json:"is_online"`
}

// GlobalSnapshot holds the store-side global aggregates
type GlobalSnapshot struct {
	GlobalClicks    int64 `json:"global_clicks"`
	OnlineUserCount int64 `json:"online_users"`
}

// StatsSnapshot combines the global aggregates with the leaderboard
type StatsSnapshot struct {
	GlobalSnapshot
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}
