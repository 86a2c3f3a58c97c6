package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrBackpressure is returned by Submit when the queue refused a batch.
	ErrBackpressure = errors.New("backpressure")
	// ErrNoFeed is returned by Publish when no feed path is configured.
	ErrNoFeed = errors.New("no feed configured")
	// ErrRotateWithoutJournal is returned by Rotate when the history is
	// persisted only as a feed.
	ErrRotateWithoutJournal = errors.New("rotate requires a journal when a feed is configured")
)
