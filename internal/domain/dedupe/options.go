package dedupe

type options struct {
	maxSize int
}

// Option applies a configuration option to NewInMemoryDeduper.
type Option func(*options)

// WithMaxSize sets the maximum number of ids to keep in memory.
// If maxSize > 0: bounded mode, least recently recorded ids are evicted.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		o.maxSize = maxSize
	}
}
