package service

import (
	"time"

	"github.com/okian/benchtrack/internal/config"
	"github.com/okian/benchtrack/internal/domain/alert"
	"github.com/okian/benchtrack/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending batches.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the batch id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBaselineWindow sets how many preceding records form the baseline.
func WithBaselineWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithRegressionThreshold sets the slowdown factor that counts as a regression.
func WithRegressionThreshold(f float64) Option {
	return func(s *Service) {
		if f > 1 {
			s.threshold = f
		}
	}
}

// WithRepoURL sets the repository URL written into published feeds.
func WithRepoURL(url string) Option {
	return func(s *Service) { s.repoURL = url }
}

// WithJournalPath enables the durable journal at path.
func WithJournalPath(path string) Option {
	return func(s *Service) { s.journalPath = path }
}

// WithFeed enables publishing the snapshot to path. format is "js" for the
// dashboard data.js wrapper or "json" for the bare document.
func WithFeed(path, format string) Option {
	return func(s *Service) {
		s.feedPath = path
		if format != "" {
			s.feedFormat = format
		}
	}
}

// WithPublishInterval sets how often a changed history is published.
func WithPublishInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishInterval = d
		}
	}
}

// WithAlertLogSize sets how many regressions are kept for GET /alerts.
func WithAlertLogSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.alertLogSize = n
		}
	}
}

// WithAlertSink adds a sink that receives every regression.
func WithAlertSink(sink alert.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.extraSinks = append(s.extraSinks, sink)
		}
	}
}

// WithVerdictCacheSize sets the number of cached verdicts.
func WithVerdictCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.verdictCacheSize = n
		}
	}
}

// WithMaxHistoryLimit caps how many records History returns.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithClock overrides the time source used for observation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// ConfigOptions translates a loaded configuration into service options.
func ConfigOptions(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithBaselineWindow(cfg.BaselineWindow),
		WithRegressionThreshold(cfg.RegressionThreshold),
		WithRepoURL(cfg.RepoURL),
		WithJournalPath(cfg.JournalPath),
		WithFeed(cfg.FeedPath, cfg.FeedFormat),
		WithPublishInterval(time.Duration(cfg.PublishIntervalMS) * time.Millisecond),
		WithAlertLogSize(cfg.AlertLogSize),
		WithVerdictCacheSize(cfg.VerdictCacheSize),
		WithMaxHistoryLimit(cfg.MaxHistoryLimit),
	}
}
