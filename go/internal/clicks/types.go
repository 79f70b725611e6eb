package clicks

import "time"

const (
	// BurstWindow is the trailing window used for burst detection
	BurstWindow = 5 * time.Second
	// BurstThreshold is the recent click count that triggers the burst effect
	BurstThreshold = 10
	// ClickRetention is how long click events are kept
	ClickRetention = 5 * time.Minute
	// OnlineWindow classifies a name as online when any of its identities was
	// seen inside it
	OnlineWindow = 2 * time.Minute
	// OfflineBackdate is how far markOffline moves last_seen_at into the past
	OfflineBackdate = 10 * time.Minute

	ChatRetention      = time.Hour
	ChatMaxLength      = 500
	DefaultLeaderboard = 10
	RecentMessageLimit = 50
)

// PruneResult reports what a prune pass removed
type PruneResult struct {
	ClickEventsDeleted int64 `json:"click_events_deleted"`
	NamesConsolidated  int   `json:"names_consolidated"`
	RowsMerged         int64 `json:"rows_merged"`
}
