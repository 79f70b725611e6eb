package main

import "testing"

func TestFold(t *testing.T) {
	tests := []struct {
		name          string
		users         []userRow
		wantID        string
		wantTotal     int64
		wantCreatedAt int64
	}{
		{
			name:          "single row is its own survivor",
			users:         []userRow{{ID: "a", TotalClicks: 3, CreatedAt: 100}},
			wantID:        "a",
			wantTotal:     3,
			wantCreatedAt: 100,
		},
		{
			name: "first row survives with summed clicks",
			users: []userRow{
				{ID: "recent", TotalClicks: 6, CreatedAt: 500},
				{ID: "older", TotalClicks: 4, CreatedAt: 200},
				{ID: "oldest", TotalClicks: 0, CreatedAt: 900},
			},
			wantID:        "recent",
			wantTotal:     10,
			wantCreatedAt: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			survivor, total, createdAt := fold(tt.users)
			if survivor.ID != tt.wantID {
				t.Errorf("survivor = %q, want %q", survivor.ID, tt.wantID)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if createdAt != tt.wantCreatedAt {
				t.Errorf("createdAt = %d, want %d", createdAt, tt.wantCreatedAt)
			}
		})
	}
}
