package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "BENCHTRACK_"
	envFileVar = "BENCHTRACK_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BENCHTRACK_CONFIG is set
//  3. env (prefix BENCHTRACK_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BENCHTRACK_QUEUE_SIZE -> queue_size; underscores stay to match koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.BaselineWindow < 1:
		return fmt.Errorf("%w: baseline_window must be positive, got %d", ErrInvalidConfig, c.BaselineWindow)
	case c.RegressionThreshold <= 1:
		return fmt.Errorf("%w: regression_threshold must be greater than 1, got %g", ErrInvalidConfig, c.RegressionThreshold)
	case c.FeedFormat != "js" && c.FeedFormat != "json":
		return fmt.Errorf("%w: feed_format must be js or json, got %q", ErrInvalidConfig, c.FeedFormat)
	case c.PublishIntervalMS <= 0:
		return fmt.Errorf("%w: publish_interval_ms must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0, c.WorkerCount <= 0:
		return fmt.Errorf("%w: queue_size and worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0, c.AlertLogSize <= 0, c.VerdictCacheSize <= 0:
		return fmt.Errorf("%w: cache sizes must be positive", ErrInvalidConfig)
	case c.MaxHistoryLimit <= 0:
		return fmt.Errorf("%w: max_history_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
