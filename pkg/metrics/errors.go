package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrUnknownVerdict = errors.New("unknown verdict kind")
)
