package publisher

import "errors"

// Sentinel kinds for snapshot errors.
var (
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	ErrStoreNotEmpty   = errors.New("snapshot must be loaded into an empty store")
)
