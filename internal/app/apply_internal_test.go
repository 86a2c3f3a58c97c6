package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/benchtrack/internal/adapters/repository"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
)

// cancellingStore cancels the caller's context as the first record reaches
// the store, after the journal has already committed the batch.
type cancellingStore struct {
	repository.Store
	cancel context.CancelFunc
}

func (c cancellingStore) Append(ctx context.Context, rec model.BenchmarkRecord) (repository.AppendResult, error) {
	c.cancel()
	return c.Store.Append(ctx, rec)
}

func (c cancellingStore) Close() error {
	if cl, ok := c.Store.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func applyBatch(t *testing.T) model.Batch {
	commit := &model.CommitRef{
		ID:        "f0e1d2c3b4a5968778695a4b3c2d1e0f12345678",
		Message:   "tune",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	rec, err := parser.Parse("Go Benchmark", "go", commit, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC),
		model.RawMeasurement{Name: "BenchmarkFib20", Value: 48_768_515, Unit: "ns/op"})
	if err != nil {
		t.Fatal(err)
	}
	return model.Batch{ID: "batch-1", Suite: rec.Suite, Records: []model.BenchmarkRecord{rec}}
}

func TestApply_CancelAfterJournal(t *testing.T) {
	Convey("Given a journaled service", t, func() {
		s := New(WithJournalPath(filepath.Join(t.TempDir(), "history.db")))
		So(s.Start(context.Background()), ShouldBeNil)
		defer s.Stop()
		b := applyBatch(t)

		Convey("When the caller cancels once the journal has committed", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s.store = cancellingStore{Store: s.store, cancel: cancel}

			inserted, err := s.Apply(ctx, b)

			Convey("Then the batch still reaches the store", func() {
				So(err, ShouldBeNil)
				So(inserted, ShouldHaveLength, 1)
				history, err := s.History(context.Background(), "Go Benchmark", "BenchmarkFib20", 0)
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, 1)
			})
		})

		Convey("When the context is cancelled before the journal", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := s.Apply(ctx, b)

			Convey("Then nothing is journaled or stored", func() {
				So(err, ShouldEqual, context.Canceled)
				_, err := s.History(context.Background(), "Go Benchmark", "BenchmarkFib20", 0)
				So(err, ShouldNotBeNil)
				empty, err := s.journal.Empty(context.Background())
				So(err, ShouldBeNil)
				So(empty, ShouldBeTrue)
			})
		})
	})
}
