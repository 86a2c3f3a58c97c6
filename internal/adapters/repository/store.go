// Package repository holds the append-only benchmark history store.
package repository

import (
	"context"
	"iter"
	"time"

	"github.com/okian/benchtrack/internal/domain/model"
)

// AppendResult reports what Append did with a record.
type AppendResult int

const (
	// Inserted means the record was appended to its history.
	Inserted AppendResult = iota + 1
	// Duplicate means the series already holds a record for the commit.
	Duplicate
)

func (r AppendResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// SeriesView is an immutable capture of one series.
type SeriesView struct {
	Key     model.SeriesKey
	Records []model.BenchmarkRecord // append order; must not be modified
}

// View is a consistent read-only capture of the whole store.
type View struct {
	LastUpdate time.Time
	Series     []SeriesView // registration order
}

// Len returns the number of records in the view.
func (v *View) Len() int {
	n := 0
	for _, s := range v.Series {
		n += len(s.Records)
	}
	return n
}

// Store is the per-repository benchmark ledger.
type Store interface {
	// Append inserts a record unless its series already holds the commit.
	Append(ctx context.Context, rec model.BenchmarkRecord) (AppendResult, error)

	// History returns a restartable sequence over the records of a series as
	// of the call. ErrUnknownSeries when the series was never ingested.
	History(ctx context.Context, suite, name string) (iter.Seq[model.BenchmarkRecord], error)

	// Tail copies the newest n records of a series (all when n <= 0).
	Tail(ctx context.Context, suite, name string, n int) ([]model.BenchmarkRecord, error)

	// Series lists registered series in registration order.
	Series(ctx context.Context) []model.SeriesKey

	// LastUpdate is the max ObservedAt seen by the store.
	LastUpdate(ctx context.Context) time.Time

	// MarkSeen registers a commit for a series without retaining a record, so
	// archived history keeps deduplicating after a restart.
	MarkSeen(ctx context.Context, key model.SeriesKey, commitID string)

	// Advance raises the watermark without appending, e.g. when a feed
	// written later than its newest run is loaded.
	Advance(ctx context.Context, t time.Time)

	// View captures the whole store consistently.
	View(ctx context.Context) *View

	// Rotate archives the current records and clears them. Series and the
	// commit index are kept.
	Rotate(ctx context.Context) *View

	// Count returns the number of retained records.
	Count(ctx context.Context) int
}
