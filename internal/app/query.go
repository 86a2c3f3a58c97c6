package service

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/types"
)

// History returns the newest limit records of a series, oldest first. limit
// is capped by the configured maximum; non-positive means the maximum.
func (s *Service) History(ctx context.Context, suite, name string, limit int) ([]types.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.maxHistoryLimit {
		limit = s.maxHistoryLimit
	}
	records, err := s.store.Tail(ctx, suite, name, limit)
	if err != nil {
		return nil, err
	}
	return types.FromRecords(records), nil
}

// Evaluate returns the verdict for the newest record of a series.
func (s *Service) Evaluate(ctx context.Context, suite, name string) (types.Verdict, error) {
	if err := s.ready(); err != nil {
		return types.Verdict{}, err
	}
	key := model.SeriesKey{Suite: suite, Name: name}
	tail, err := s.store.Tail(ctx, suite, name, 1)
	if err != nil {
		return types.Verdict{}, err
	}
	if len(tail) == 0 {
		return types.FromVerdict(key, s.detector.Evaluate(nil)), nil
	}
	v, err := s.verdictFor(ctx, tail[0], false)
	if err != nil {
		return types.Verdict{}, err
	}
	return types.FromVerdict(key, v), nil
}

// EvaluateAll evaluates every registered series in registration order.
func (s *Service) EvaluateAll(ctx context.Context) ([]types.Verdict, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	keys := s.store.Series(ctx)
	out := make([]types.Verdict, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount)
	for i, key := range keys {
		g.Go(func() error {
			v, err := s.Evaluate(gctx, key.Suite, key.Name)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", key, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Backtest replays regression detection over every record of a series.
func (s *Service) Backtest(ctx context.Context, suite, name string) ([]types.Verdict, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	seq, err := s.store.History(ctx, suite, name)
	if err != nil {
		return nil, err
	}
	key := model.SeriesKey{Suite: suite, Name: name}
	verdicts := s.detector.Backtest(slices.Collect(seq))
	out := make([]types.Verdict, len(verdicts))
	for i, v := range verdicts {
		out[i] = types.FromVerdict(key, v)
	}
	return out, nil
}

// Series lists registered series with their retained record counts.
func (s *Service) Series(ctx context.Context) ([]types.Series, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	view := s.store.View(ctx)
	out := make([]types.Series, len(view.Series))
	for i, sv := range view.Series {
		out[i] = types.Series{Suite: sv.Key.Suite, Name: sv.Key.Name, Records: len(sv.Records)}
	}
	return out, nil
}

// Emit returns the current snapshot as a JSON document.
func (s *Service) Emit(ctx context.Context) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.publisher.Emit(s.store.View(ctx))
}

// EmitJS returns the current snapshot in the dashboard data.js form.
func (s *Service) EmitJS(ctx context.Context) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.publisher.EmitJS(s.store.View(ctx))
}

// Alerts returns up to n recent regressions, newest first.
func (s *Service) Alerts(_ context.Context, n int) ([]types.Alert, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	recent := s.alerts.Recent(n)
	out := make([]types.Alert, len(recent))
	for i, r := range recent {
		out[i] = types.Alert{
			Suite:          r.Series.Suite,
			Name:           r.Series.Name,
			CommitID:       r.CommitID,
			Value:          r.Value,
			Unit:           r.Unit,
			BaselineMedian: r.BaselineMedian,
			Factor:         r.Factor,
			Threshold:      r.Threshold,
			DetectedAt:     r.DetectedAt.UTC(),
		}
	}
	return out, nil
}

// Rotate archives the whole history and returns the archived snapshot.
// Series stay registered and archived commits keep deduplicating. A feed
// cannot carry empty series or retired commits, so a service publishing a
// feed needs a journal to rotate.
func (s *Service) Rotate(ctx context.Context) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.journal == nil && s.feed != nil {
		return nil, ErrRotateWithoutJournal
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if s.journal != nil {
		if _, err := s.journal.Archive(ctx); err != nil {
			return nil, fmt.Errorf("rotate: %w", err)
		}
	}
	archived := s.store.Rotate(ctx)
	s.verdicts.Purge()
	s.dirty.Store(true)
	return s.publisher.Emit(archived)
}

// Compact shrinks the journal by retiring archived records. It returns the
// number of records retired.
func (s *Service) Compact(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if s.journal == nil {
		return 0, nil
	}
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	return s.journal.Compact(ctx)
}
