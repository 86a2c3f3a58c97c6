// Package alert delivers regression events to interested parties.
package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/pkg/logger"
)

const defaultLogSize = 256

// Regression describes a newest record that exceeded its baseline.
type Regression struct {
	Series         model.SeriesKey
	CommitID       string
	Value          float64
	Unit           string
	BaselineMedian float64
	Factor         float64
	Threshold      float64
	DetectedAt     time.Time
}

// Sink receives regressions. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, r Regression) error
}

// Log keeps the most recent regressions in memory.
type Log struct {
	mu    sync.Mutex
	buf   []Regression
	next  int
	full  bool
	total int64
}

// NewLog returns a Log holding at most size regressions.
func NewLog(size int) *Log {
	if size <= 0 {
		size = defaultLogSize
	}
	return &Log{buf: make([]Regression, size)}
}

// Notify implements Sink.
func (l *Log) Notify(_ context.Context, r Regression) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = r
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.total++
	return nil
}

// Recent returns up to n regressions, newest first. n <= 0 returns all kept.
func (l *Log) Recent(n int) []Regression {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.next
	if l.full {
		kept = len(l.buf)
	}
	if n <= 0 || n > kept {
		n = kept
	}
	out := make([]Regression, n)
	for i := range n {
		idx := (l.next - 1 - i + len(l.buf)) % len(l.buf)
		out[i] = l.buf[idx]
	}
	return out
}

// Total returns how many regressions were ever recorded.
func (l *Log) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// LogSink writes regressions to a logger.
type LogSink struct {
	log logger.Logger
}

// NewLogSink returns a Sink that logs every regression at warn level.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Nop()
	}
	return &LogSink{log: l}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, r Regression) error {
	s.log.Warn(ctx, "performance regression",
		logger.String("series", r.Series.String()),
		logger.String("commit", r.CommitID),
		logger.Float64("value", r.Value),
		logger.String("unit", r.Unit),
		logger.Float64("baselineMedian", r.BaselineMedian),
		logger.Float64("factor", r.Factor),
		logger.Float64("threshold", r.Threshold),
	)
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

// Notify implements Sink.
func (f Fanout) Notify(ctx context.Context, r Regression) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
