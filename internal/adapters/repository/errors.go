package repository

import "errors"

// Sentinel kinds for history store errors.
var (
	ErrUnknownSeries = errors.New("unknown series")
	ErrInvalidRecord = errors.New("invalid record")
)
