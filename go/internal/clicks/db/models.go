package db

import "database/sql"

type User struct {
	ID          string
	Name        string
	TotalClicks int64
	LastSeenAt  int64
	CreatedAt   int64
}

// RemovedTotals summarizes the rows a delete removed
type RemovedTotals struct {
	Rows           int64
	TotalClicks    int64
	FirstCreatedAt sql.NullInt64
}

type AddUserClicksParams struct {
	Delta     int64
	CreatedAt int64
	ID        string
	Name      string
}

type LeaderboardRow struct {
	Name        string
	TotalClicks int64
	LastSeenAt  int64
}

type OnlinePlayerRow struct {
	Name        string
	TotalClicks int64
}

type Message struct {
	ID        int64
	UserID    string
	Username  string
	Message   string
	CreatedAt int64
}
