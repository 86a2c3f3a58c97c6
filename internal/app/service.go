// Package service wires the benchmark history components together and
// implements the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/okian/benchtrack/internal/adapters/feed"
	"github.com/okian/benchtrack/internal/adapters/journal"
	"github.com/okian/benchtrack/internal/adapters/mq/queue"
	"github.com/okian/benchtrack/internal/adapters/mq/worker"
	"github.com/okian/benchtrack/internal/adapters/publisher"
	"github.com/okian/benchtrack/internal/adapters/repository"
	"github.com/okian/benchtrack/internal/domain/alert"
	"github.com/okian/benchtrack/internal/domain/dedupe"
	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/pkg/logger"
	"github.com/okian/benchtrack/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// verdictKey identifies an evaluation: a series as of its newest record.
type verdictKey struct {
	series model.SeriesKey
	seq    uint64
}

// Service implements the benchmark history use cases.
type Service struct {
	mu sync.Mutex // serializes Start and Stop

	// Core components
	store     repository.Store
	journal   *journal.Journal
	feed      *feed.Writer
	publisher *publisher.Publisher
	detector  *detector.Detector
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	alerts    *alert.Log
	sink      alert.Sink
	verdicts  *lru.Cache[verdictKey, cachedVerdict]

	// applyMu orders journal writes and store appends identically.
	applyMu sync.Mutex
	evalMu  sync.Mutex

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	window           int
	threshold        float64
	repoURL          string
	journalPath      string
	feedPath         string
	feedFormat       string
	publishInterval  time.Duration
	alertLogSize     int
	verdictCacheSize int
	maxHistoryLimit  int
	extraSinks       []alert.Sink
	now              func() time.Time

	// State
	started atomic.Bool
	dirty   atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        1024,
		dedupeSize:       10_000,
		window:           5,
		threshold:        1.5,
		feedFormat:       "js",
		publishInterval:  time.Second,
		alertLogSize:     256,
		verdictCacheSize: 1024,
		maxHistoryLimit:  1000,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores the history and starts the ingestion pipeline. The history
// comes from the journal when one is configured; an empty journal is seeded
// from an existing feed file. Without a journal the feed file alone is loaded.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting benchmark history service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		if err != nil {
			cancel()
			s.closeStorage()
		}
	}()

	s.detector = detector.New(detector.WithWindow(s.window), detector.WithThreshold(s.threshold))
	s.publisher = publisher.New(publisher.WithRepoURL(s.repoURL))
	s.store = repository.NewHistoryStore(runCtx, repository.WithClock(s.now))
	s.alerts = alert.NewLog(s.alertLogSize)
	s.sink = append(alert.Fanout{s.alerts, alert.NewLogSink(s.logger.Named("alert"))}, s.extraSinks...)
	s.verdicts, err = lru.New[verdictKey, cachedVerdict](s.verdictCacheSize)
	if err != nil {
		return fmt.Errorf("verdict cache: %w", err)
	}

	if s.feedPath != "" {
		s.feed, err = feed.NewWriter(s.feedPath, feed.WithLogger(s.logger.Named("feed")))
		if err != nil {
			return err
		}
	}
	if s.journalPath != "" {
		s.journal, err = journal.Open(s.journalPath, journal.WithLogger(s.logger.Named("journal")))
		if err != nil {
			return err
		}
	}
	if err := s.restore(ctx); err != nil {
		return err
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, s, worker.WithPoolLogger(s.logger.Named("worker")))
	s.pool.Start(runCtx)

	g, gctx := errgroup.WithContext(runCtx)
	if s.feed != nil {
		g.Go(func() error { return s.publishLoop(gctx) })
	}
	s.group, s.cancel = g, cancel

	s.started.Store(true)
	s.logger.Info(ctx, "benchmark history service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("series", len(s.store.Series(ctx))),
		logger.Int("records", s.store.Count(ctx)),
		logger.String("journal", s.journalPath),
		logger.String("feed", s.feedPath),
	)
	return nil
}

// Stop drains the queue, publishes pending changes and closes storage.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping benchmark history service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()
	if err := s.group.Wait(); err != nil {
		s.logger.Warn(ctx, "background task failed", logger.Error(err))
	}
	if s.feed != nil && s.dirty.Load() {
		if _, err := s.Publish(ctx); err != nil {
			s.logger.Error(ctx, "final publish failed", logger.Error(err))
		}
	}

	s.started.Store(false)
	s.closeStorage()
	s.logger.Info(ctx, "benchmark history service stopped")
}

func (s *Service) closeStorage() {
	if c, ok := s.store.(io.Closer); ok {
		_ = c.Close()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn(context.Background(), "journal close failed", logger.Error(err))
		}
		s.journal = nil
	}
}

func (s *Service) ready() error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started.Load(),
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"window":      s.window,
		"threshold":   s.threshold,
	}

	if s.started.Load() {
		queueLen := s.queue.Len(ctx)
		series := len(s.store.Series(ctx))
		records := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["series"] = series
		stats["records"] = records
		stats["batchesProcessed"] = s.pool.Processed()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["alertsTotal"] = s.alerts.Total()
		if lu := s.store.LastUpdate(ctx); !lu.IsZero() {
			stats["lastUpdate"] = lu.UnixMilli()
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateSeriesTotal(series)
		metrics.UpdateRecordsTotal(records)
	}
	return stats
}
