package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/okian/benchtrack/internal/adapters/feed"
	"github.com/okian/benchtrack/internal/adapters/journal"
	"github.com/okian/benchtrack/internal/adapters/publisher"
	"github.com/okian/benchtrack/pkg/logger"
)

// restore fills the empty store. Any failure aborts Start; the caller
// discards the half-built store.
func (s *Service) restore(ctx context.Context) error {
	if s.journal != nil {
		empty, err := s.journal.Empty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return s.replayJournal(ctx)
		}
	}

	doc, err := s.readFeed(ctx)
	if err != nil || doc == nil {
		return err
	}
	if s.journal == nil {
		if err := publisher.Load(ctx, s.store, doc); err != nil {
			return fmt.Errorf("load feed %s: %w", s.feedPath, err)
		}
		s.logger.Info(ctx, "history loaded from feed", logger.Int("records", s.store.Count(ctx)))
		return nil
	}
	return s.importFeed(ctx, doc)
}

func (s *Service) readFeed(ctx context.Context) (*publisher.Document, error) {
	if s.feedPath == "" {
		return nil, nil
	}
	data, err := feed.Read(ctx, s.feedPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", s.feedPath, err)
	}
	doc, err := publisher.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode feed %s: %w", s.feedPath, err)
	}
	return doc, nil
}

// replayJournal rebuilds the store from the journal. Archived records only
// register their commit so they keep deduplicating.
func (s *Service) replayJournal(ctx context.Context) error {
	var archived int
	n, err := s.journal.Replay(ctx, func(e journal.Entry) error {
		if e.Archived {
			archived++
			s.store.MarkSeen(ctx, e.Record.Key(), e.Record.CommitID())
			return nil
		}
		if _, err := s.store.Append(ctx, e.Record); err != nil {
			return fmt.Errorf("%w: %w", journal.ErrCorruptJournal, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay journal %s: %w", s.journal.Path(), err)
	}
	wm, err := s.journal.Watermark(ctx)
	if err != nil {
		return err
	}
	s.store.Advance(ctx, wm)
	s.logger.Info(ctx, "history replayed from journal",
		logger.Int("entries", n),
		logger.Int("archived", archived),
	)
	return nil
}

// importFeed seeds an empty journal from a feed file in one transaction.
func (s *Service) importFeed(ctx context.Context, doc *publisher.Document) error {
	records, err := publisher.Records(doc)
	if err != nil {
		return fmt.Errorf("import feed %s: %w", s.feedPath, err)
	}
	if _, err := s.journal.Append(ctx, records...); err != nil {
		return fmt.Errorf("import feed %s: %w", s.feedPath, err)
	}
	for _, r := range records {
		if _, err := s.store.Append(ctx, r); err != nil {
			return fmt.Errorf("import feed %s: %w", s.feedPath, err)
		}
	}
	if doc.LastUpdate > 0 {
		lu := time.UnixMilli(doc.LastUpdate)
		if err := s.journal.Advance(ctx, lu); err != nil {
			return err
		}
		s.store.Advance(ctx, lu)
	}
	s.logger.Info(ctx, "journal seeded from feed", logger.Int("records", len(records)))
	return nil
}
