package feed

import "errors"

var (
	// ErrLockTimeout is returned when the feed lock could not be acquired.
	ErrLockTimeout = errors.New("feed lock not acquired")
	// ErrEmptyPath is returned when no feed path is configured.
	ErrEmptyPath = errors.New("feed path is empty")
)
