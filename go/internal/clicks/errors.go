package clicks

import "errors"

var (
	// ErrUserNotFound is returned when an identity has no user row, e.g. a
	// click arriving before a join.
	ErrUserNotFound = errors.New("user not found")
	ErrEmptyName    = errors.New("display name is required")
	ErrEmptyMessage = errors.New("chat message is empty")

	ErrMergeConflict = errors.New("name changed during consolidation")
)
