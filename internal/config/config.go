// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RepoURL is the repository the benchmark feed describes.
	RepoURL string `koanf:"repo_url"`

	// BaselineWindow is how many records precede the newest in the baseline.
	BaselineWindow int `koanf:"baseline_window"`

	// RegressionThreshold is the slowdown factor that flags a regression.
	RegressionThreshold float64 `koanf:"regression_threshold"`

	// JournalPath is the sqlite journal file. Empty keeps history in memory only.
	JournalPath string `koanf:"journal_path"`

	// FeedPath is where the snapshot feed is written. Empty disables publishing.
	FeedPath string `koanf:"feed_path"`

	// FeedFormat is "js" (window.BENCHMARK_DATA = ...) or "json".
	FeedFormat string `koanf:"feed_format"`

	// PublishIntervalMS is how often the feed is republished.
	PublishIntervalMS int `koanf:"publish_interval_ms"`

	// QueueSize bounds the in-memory ingestion queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the number of remembered batch ids.
	DedupeSize int `koanf:"dedupe_size"`

	// AlertLogSize caps the in-memory regression alert log.
	AlertLogSize int `koanf:"alert_log_size"`

	// VerdictCacheSize caps the recent verdict cache.
	VerdictCacheSize int `koanf:"verdict_cache_size"`

	// MaxHistoryLimit caps GET /api/v1/history?limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		RepoURL:             "",
		BaselineWindow:      5,
		RegressionThreshold: 1.5,
		JournalPath:         "benchtrack.db",
		FeedPath:            "data.js",
		FeedFormat:          "js",
		PublishIntervalMS:   1000,
		QueueSize:           1024,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          10_000,
		AlertLogSize:        256,
		VerdictCacheSize:    1024,
		MaxHistoryLimit:     1000,
	}
}
