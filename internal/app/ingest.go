package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/benchtrack/internal/adapters/repository"
	"github.com/okian/benchtrack/internal/domain/alert"
	"github.com/okian/benchtrack/internal/domain/dedupe"
	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
	"github.com/okian/benchtrack/internal/domain/types"
	"github.com/okian/benchtrack/pkg/logger"
	"github.com/okian/benchtrack/pkg/metrics"
)

// IngestRequest is one CI run's benchmark output.
type IngestRequest = types.IngestRequest

// prepare parses a request into a batch. Malformed measurements are reported
// and left out of the batch.
func (s *Service) prepare(req IngestRequest) (types.IngestReport, model.Batch) {
	observed := req.ObservedAt
	if observed.IsZero() {
		observed = s.now()
	}
	// The feed stores milliseconds; finer precision would not survive a reload.
	observed = observed.Truncate(time.Millisecond)
	parsed := parser.ParseBatch(parser.Batch{
		Suite:      req.Suite,
		Tool:       req.Tool,
		Commit:     req.Commit,
		ObservedAt: observed,
		Benches:    req.Benches,
	})
	for _, rej := range parsed.Rejected {
		metrics.RecordRecordRejected(rej.Field)
	}

	batch := model.Batch{
		ID:          dedupe.BatchID(req.Suite, req.Tool, req.Commit, req.Benches),
		Suite:       req.Suite,
		Records:     parsed.Accepted,
		SubmittedAt: observed,
	}
	report := types.IngestReport{
		BatchID:  batch.ID,
		Accepted: len(parsed.Accepted),
		Rejected: types.FromRejections(parsed.Rejected),
	}
	return report, batch
}

// Ingest applies a CI run synchronously and evaluates every record it added.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (types.IngestReport, error) {
	if err := s.ready(); err != nil {
		return types.IngestReport{}, err
	}
	report, batch := s.prepare(req)
	report.Status = types.StatusApplied
	if len(batch.Records) == 0 {
		return report, nil
	}

	inserted, err := s.Apply(ctx, batch)
	if err != nil {
		return report, err
	}
	report.Inserted = len(inserted)
	report.Duplicates = report.Accepted - report.Inserted

	for _, rec := range inserted {
		v, err := s.verdictFor(ctx, rec, true)
		if err != nil {
			return report, err
		}
		report.Verdicts = append(report.Verdicts, types.FromVerdict(rec.Key(), v))
	}
	return report, nil
}

// Submit parses a CI run and queues it for the workers. A batch id already
// seen is acknowledged as a duplicate without queueing.
func (s *Service) Submit(ctx context.Context, req IngestRequest) (types.IngestReport, error) {
	if err := s.ready(); err != nil {
		return types.IngestReport{}, err
	}
	report, batch := s.prepare(req)
	if len(batch.Records) == 0 {
		report.Status = types.StatusApplied
		return report, nil
	}

	if s.deduper.SeenAndRecord(ctx, batch.ID) {
		metrics.RecordBatchDuplicate()
		s.logger.Debug(ctx, "duplicate batch detected, skipping", logger.String("batchID", batch.ID))
		report.Status = types.StatusDuplicate
		report.Duplicates = report.Accepted
		return report, nil
	}
	if err := s.queue.Enqueue(ctx, batch); err != nil {
		// Forget the id so the client can retry.
		s.deduper.Unrecord(ctx, batch.ID)
		return report, fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	report.Status = types.StatusQueued
	return report, nil
}

// Apply journals a batch and appends it to the history. It returns the
// records that were new, with their store sequence numbers, and caches their
// verdicts. Apply implements worker.Applier.
func (s *Service) Apply(ctx context.Context, b model.Batch) (inserted []model.BenchmarkRecord, err error) {
	defer func() {
		if err != nil && s.deduper != nil && b.ID != "" {
			s.deduper.Unrecord(ctx, b.ID)
		}
	}()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.journal != nil {
		if _, err := s.journal.Append(ctx, b.Records...); err != nil {
			return nil, fmt.Errorf("journal batch %s: %w", b.ID, err)
		}
	}
	// Once journaled, the batch must reach the store even if the caller
	// has gone away; otherwise it stays invisible until the next replay.
	ctx = context.WithoutCancel(ctx)
	for _, r := range b.Records {
		res, err := s.store.Append(ctx, r)
		if err != nil {
			return inserted, fmt.Errorf("append %s: %w", r.Key(), err)
		}
		if res != repository.Inserted {
			continue
		}
		// Appends are serialized here, so the tail ends at r.
		tail, err := s.store.Tail(ctx, r.Suite, r.Name, s.detector.Window()+1)
		if err != nil {
			return inserted, err
		}
		newest := tail[len(tail)-1]
		s.cacheVerdict(verdictKey{series: r.Key(), seq: newest.Seq}, s.detector.Evaluate(tail))
		inserted = append(inserted, newest)
	}
	metrics.RecordBatchIngested()
	if len(inserted) > 0 {
		s.dirty.Store(true)
	}
	return inserted, nil
}

// EvaluateRecord raises the verdict of a freshly appended record. Each record
// is counted and alerted at most once. It implements worker.Evaluator.
func (s *Service) EvaluateRecord(ctx context.Context, rec model.BenchmarkRecord) error {
	_, err := s.verdictFor(ctx, rec, true)
	return err
}

type cachedVerdict struct {
	verdict  detector.Verdict
	notified bool
}

func (s *Service) cacheVerdict(k verdictKey, v detector.Verdict) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	if _, ok := s.verdicts.Peek(k); !ok {
		s.verdicts.Add(k, cachedVerdict{verdict: v})
	}
}

// verdictFor returns the verdict of rec as of its append. With notify set the
// first call counts the verdict and sends regressions to the sinks.
func (s *Service) verdictFor(ctx context.Context, rec model.BenchmarkRecord, notify bool) (detector.Verdict, error) {
	k := verdictKey{series: rec.Key(), seq: rec.Seq}

	s.evalMu.Lock()
	c, ok := s.verdicts.Get(k)
	s.evalMu.Unlock()
	if !ok {
		prefix, err := s.prefix(ctx, rec)
		if err != nil {
			return detector.Verdict{}, err
		}
		c = cachedVerdict{verdict: s.detector.Evaluate(prefix)}
	}

	s.evalMu.Lock()
	if cur, ok := s.verdicts.Peek(k); ok {
		c.notified = cur.notified
	}
	fresh := notify && !c.notified
	if fresh {
		c.notified = true
	}
	s.verdicts.Add(k, c)
	s.evalMu.Unlock()

	if fresh {
		if err := metrics.RecordVerdict(c.verdict.Kind.String()); err != nil {
			s.logger.Warn(ctx, "verdict metric", logger.Error(err))
		}
		if c.verdict.Kind == detector.Regressed {
			s.raise(ctx, rec.Key(), c.verdict)
		}
	}
	return c.verdict, nil
}

// prefix returns the window+1 records of rec's series ending at rec.
func (s *Service) prefix(ctx context.Context, rec model.BenchmarkRecord) ([]model.BenchmarkRecord, error) {
	seq, err := s.store.History(ctx, rec.Suite, rec.Name)
	if err != nil {
		return nil, err
	}
	size := s.detector.Window() + 1
	var out []model.BenchmarkRecord
	for r := range seq {
		if r.Seq > rec.Seq {
			break
		}
		out = append(out, r)
		if len(out) > size {
			out = out[1:]
		}
	}
	return out, nil
}

func (s *Service) raise(ctx context.Context, key model.SeriesKey, v detector.Verdict) {
	metrics.UpdateLastRegressionFactor(v.Factor)
	r := alert.Regression{
		Series:         key,
		CommitID:       v.Newest.CommitID(),
		Value:          v.Newest.Value,
		Unit:           v.Newest.Unit,
		BaselineMedian: v.BaselineMedian,
		Factor:         v.Factor,
		Threshold:      v.Threshold,
		DetectedAt:     s.now(),
	}
	if err := s.sink.Notify(ctx, r); err != nil {
		metrics.RecordErrorByComponent("alert", "notify")
		s.logger.Error(ctx, "alert delivery failed",
			logger.String("series", key.String()),
			logger.Error(err),
		)
	}
}
