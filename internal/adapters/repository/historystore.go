package repository

import (
	"context"
	"fmt"
	"iter"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/pkg/metrics"
)

// In-memory Store implementation.
//
// Each series is appended under its own mutex and publishes its records as an
// immutable prefix through an atomic pointer, so readers never lock. The
// store-wide RWMutex is held shared by appends and exclusively by View and
// Rotate, which makes views consistent across series.

const noWatermark = math.MinInt64

type series struct {
	key model.SeriesKey

	mu      sync.Mutex
	all     []model.BenchmarkRecord // writer-owned backing slice
	commits map[string]struct{}     // survives rotation

	published atomic.Pointer[[]model.BenchmarkRecord]
}

func newSeries(key model.SeriesKey) *series {
	s := &series{key: key, commits: make(map[string]struct{})}
	empty := []model.BenchmarkRecord{}
	s.published.Store(&empty)
	return s
}

// snapshot returns the records visible right now. Elements are never
// rewritten, so the slice is safe to read without locks.
func (s *series) snapshot() []model.BenchmarkRecord {
	return *s.published.Load()
}

func (s *series) publish() {
	n := len(s.all)
	visible := s.all[:n:n]
	s.published.Store(&visible)
}

// HistoryStore is an in-memory, append-only benchmark ledger.
type HistoryStore struct {
	mu     sync.RWMutex
	byKey  map[model.SeriesKey]*series
	order  []*series
	seq    atomic.Uint64
	mark   atomic.Int64 // unix nanos of max ObservedAt
	count  atomic.Int64
	now    func() time.Time
	closed atomic.Bool

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
}

// NewHistoryStore constructs an empty store and starts its metrics updater.
// Call Close to stop it.
func NewHistoryStore(ctx context.Context, opts ...Option) *HistoryStore {
	s := &HistoryStore{
		byKey:                 make(map[model.SeriesKey]*series),
		now:                   time.Now,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	s.mark.Store(noWatermark)

	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Close stops background goroutines. It is safe to call more than once.
func (s *HistoryStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func validate(rec model.BenchmarkRecord) error {
	switch {
	case rec.Suite == "" || rec.Name == "":
		return fmt.Errorf("%w: suite and name are required", ErrInvalidRecord)
	case rec.Commit == nil || rec.Commit.ID == "":
		return fmt.Errorf("%w: %s: missing commit id", ErrInvalidRecord, rec.Key())
	case math.IsNaN(rec.Value) || math.IsInf(rec.Value, 0):
		return fmt.Errorf("%w: %s: value is not finite", ErrInvalidRecord, rec.Key())
	}
	return nil
}

// Append implements Store.Append.
func (s *HistoryStore) Append(ctx context.Context, rec model.BenchmarkRecord) (AppendResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validate(rec); err != nil {
		metrics.RecordErrorByComponent("repository", "invalid_record")
		return 0, err
	}
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = s.now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ser := s.lookupOrRegister(rec.Key())

	ser.mu.Lock()
	if _, dup := ser.commits[rec.Commit.ID]; dup {
		ser.mu.Unlock()
		metrics.RecordRecordDuplicate()
		return Duplicate, nil
	}
	rec.Seq = s.seq.Add(1)
	ser.commits[rec.Commit.ID] = struct{}{}
	ser.all = append(ser.all, rec)
	ser.publish()
	ser.mu.Unlock()

	s.count.Add(1)
	s.raise(rec.ObservedAt)
	metrics.RecordRecordIngested()
	return Inserted, nil
}

// MarkSeen implements Store.MarkSeen.
func (s *HistoryStore) MarkSeen(_ context.Context, key model.SeriesKey, commitID string) {
	if key.Suite == "" || key.Name == "" || commitID == "" {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser := s.lookupOrRegister(key)
	ser.mu.Lock()
	ser.commits[commitID] = struct{}{}
	ser.mu.Unlock()
}

// lookupOrRegister must be called with s.mu held for reading. Registration
// briefly upgrades to the write lock, so it re-checks after reacquiring.
func (s *HistoryStore) lookupOrRegister(key model.SeriesKey) *series {
	if ser, ok := s.byKey[key]; ok {
		return ser
	}
	s.mu.RUnlock()
	s.mu.Lock()
	ser, ok := s.byKey[key]
	if !ok {
		ser = newSeries(key)
		s.byKey[key] = ser
		s.order = append(s.order, ser)
	}
	s.mu.Unlock()
	s.mu.RLock()
	return ser
}

// raise moves the watermark forward with a CAS loop; it never moves back.
func (s *HistoryStore) raise(t time.Time) {
	n := t.UnixNano()
	for {
		cur := s.mark.Load()
		if n <= cur || s.mark.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Advance implements Store.Advance.
func (s *HistoryStore) Advance(_ context.Context, t time.Time) {
	if !t.IsZero() {
		s.raise(t)
	}
}

// LastUpdate implements Store.LastUpdate. It is the zero time for an empty store.
func (s *HistoryStore) LastUpdate(_ context.Context) time.Time {
	n := s.mark.Load()
	if n == noWatermark {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *HistoryStore) get(key model.SeriesKey) (*series, error) {
	s.mu.RLock()
	ser, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		metrics.RecordErrorByComponent("repository", "unknown_series")
		return nil, fmt.Errorf("%w: %s", ErrUnknownSeries, key)
	}
	return ser, nil
}

// History implements Store.History. The sequence is bound to the records
// visible at call time; later appends never show up in it.
func (s *HistoryStore) History(_ context.Context, suite, name string) (iter.Seq[model.BenchmarkRecord], error) {
	start := time.Now()
	defer func() {
		metrics.RecordQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ser, err := s.get(model.SeriesKey{Suite: suite, Name: name})
	if err != nil {
		return nil, err
	}
	records := ser.snapshot()
	return func(yield func(model.BenchmarkRecord) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	}, nil
}

// Tail implements Store.Tail.
func (s *HistoryStore) Tail(_ context.Context, suite, name string, n int) ([]model.BenchmarkRecord, error) {
	ser, err := s.get(model.SeriesKey{Suite: suite, Name: name})
	if err != nil {
		return nil, err
	}
	records := ser.snapshot()
	if n > 0 && n < len(records) {
		records = records[len(records)-n:]
	}
	return slices.Clone(records), nil
}

// Series implements Store.Series.
func (s *HistoryStore) Series(_ context.Context) []model.SeriesKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]model.SeriesKey, len(s.order))
	for i, ser := range s.order {
		keys[i] = ser.key
	}
	return keys
}

// View implements Store.View.
func (s *HistoryStore) View(ctx context.Context) *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(ctx)
}

func (s *HistoryStore) viewLocked(ctx context.Context) *View {
	v := &View{
		LastUpdate: s.LastUpdate(ctx),
		Series:     make([]SeriesView, len(s.order)),
	}
	for i, ser := range s.order {
		v.Series[i] = SeriesView{Key: ser.key, Records: ser.snapshot()}
	}
	return v
}

// Rotate implements Store.Rotate.
func (s *HistoryStore) Rotate(ctx context.Context) *View {
	s.mu.Lock()
	defer s.mu.Unlock()

	archived := s.viewLocked(ctx)
	for _, ser := range s.order {
		ser.mu.Lock()
		ser.all = nil
		ser.publish()
		ser.mu.Unlock()
	}
	s.count.Store(0)
	metrics.RecordRotation()
	return archived
}

// Count implements Store.Count.
func (s *HistoryStore) Count(_ context.Context) int {
	return int(s.count.Load())
}

// startMetricsUpdater starts a background goroutine that refreshes store gauges.
func (s *HistoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics(ctx)
			}
		}
	}()
}

func (s *HistoryStore) updateMetrics(ctx context.Context) {
	s.mu.RLock()
	seriesCount := len(s.order)
	s.mu.RUnlock()

	metrics.UpdateSeriesTotal(seriesCount)
	metrics.UpdateRecordsTotal(s.Count(ctx))
	if lu := s.LastUpdate(ctx); !lu.IsZero() {
		metrics.UpdateWatermark(lu.UnixMilli())
	}
}
