package repository

import "time"

// Option applies a configuration option to the HistoryStore.
type Option func(*HistoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *HistoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithClock overrides the clock used for records that arrive without an
// ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(s *HistoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
