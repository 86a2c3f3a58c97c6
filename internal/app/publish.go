package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/benchtrack/pkg/logger"
)

// Feed formats.
const (
	FormatJS   = "js"
	FormatJSON = "json"
)

// Publish writes the current snapshot to the feed file. It reports whether the
// file changed.
func (s *Service) Publish(ctx context.Context) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if s.feed == nil {
		return false, ErrNoFeed
	}

	// Cleared before the view is taken so appends racing the write are
	// picked up by the next publish.
	s.dirty.Store(false)
	view := s.store.View(ctx)
	var (
		data []byte
		err  error
	)
	if s.feedFormat == FormatJSON {
		data, err = s.publisher.Emit(view)
	} else {
		data, err = s.publisher.EmitJS(view)
	}
	if err != nil {
		s.dirty.Store(true)
		return false, fmt.Errorf("publish: %w", err)
	}

	changed, err := s.feed.Write(ctx, data)
	if err != nil {
		s.dirty.Store(true)
		return false, fmt.Errorf("publish %s: %w", s.feed.Path(), err)
	}
	if changed {
		s.logger.Debug(ctx, "snapshot published",
			logger.String("path", s.feed.Path()),
			logger.Int("records", view.Len()),
		)
	}
	return changed, nil
}

// publishLoop republishes the feed whenever the history changed since the
// last tick.
func (s *Service) publishLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.dirty.Load() {
				continue
			}
			if _, err := s.Publish(ctx); err != nil {
				s.logger.Warn(ctx, "snapshot publish failed", logger.Error(err))
			}
		}
	}
}
