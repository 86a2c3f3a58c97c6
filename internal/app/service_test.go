package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/benchtrack/internal/adapters/repository"
	service "github.com/okian/benchtrack/internal/app"
	"github.com/okian/benchtrack/internal/config"
	"github.com/okian/benchtrack/internal/domain/alert"
	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/types"
	"github.com/okian/benchtrack/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

const (
	suite = "Go Benchmark"
	bench = "BenchmarkFib20"
)

// baseline mirrors a quiet week of CI runs followed by a bad one.
var timings = []float64{48_768_515, 50_120_000, 52_000_000, 55_310_000, 57_500_000}

type captureSink struct {
	mu   sync.Mutex
	seen []alert.Regression
}

func (c *captureSink) Notify(_ context.Context, r alert.Regression) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, r)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func commit(i int) *model.CommitRef {
	return &model.CommitRef{
		ID:        fmt.Sprintf("%040x", i+1),
		Message:   fmt.Sprintf("change %d", i),
		Timestamp: time.Date(2024, 3, 1, 12, i, 0, 0, time.FixedZone("", -4*3600)),
		Author:    model.Person{Name: "Dev", Email: "dev@example.com", Username: "dev"},
		URL:       fmt.Sprintf("https://github.com/example/repo/commit/%040x", i+1),
	}
}

func request(i int, value float64) service.IngestRequest {
	return service.IngestRequest{
		Suite:  suite,
		Tool:   "go",
		Commit: commit(i),
		Benches: []model.RawMeasurement{{
			Name:  bench,
			Value: value,
			Unit:  "ns/op",
			Extra: "iterations: 24\nallocs: 0 allocs/op",
		}},
		ObservedAt: time.Date(2024, 3, 1, 13, i, 0, 0, time.UTC),
	}
}

func started(opts ...service.Option) (*service.Service, context.Context) {
	svc := service.New(append([]service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(16),
	}, opts...)...)
	ctx := context.Background()
	So(svc.Start(ctx), ShouldBeNil)
	return svc, ctx
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["window"], ShouldEqual, 5)
			So(stats["threshold"], ShouldEqual, 1.5)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithBaselineWindow(3),
			service.WithRegressionThreshold(2),
		)

		Convey("Then the options should be applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
			So(stats["window"], ShouldEqual, 3)
			So(stats["threshold"], ShouldEqual, 2.0)
		})
	})

	Convey("Given out of range options", t, func() {
		svc := service.New(service.WithBaselineWindow(0), service.WithRegressionThreshold(0.5))

		Convey("Then the defaults should be kept", func() {
			stats := svc.GetStats()
			So(stats["window"], ShouldEqual, 5)
			So(stats["threshold"], ShouldEqual, 1.5)
		})
	})
}

func TestConfigOptions(t *testing.T) {
	Convey("Given a loaded configuration", t, func() {
		dir := t.TempDir()
		cfg := config.New()
		cfg.WorkerCount = 3
		cfg.QueueSize = 32
		cfg.BaselineWindow = 4
		cfg.RegressionThreshold = 1.25
		cfg.JournalPath = dir + "/history.db"
		cfg.FeedPath = dir + "/data.json"
		cfg.FeedFormat = service.FormatJSON

		Convey("Then the service takes its settings from it", func() {
			svc := service.New(service.ConfigOptions(cfg)...)
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["queueSize"], ShouldEqual, 32)
			So(stats["window"], ShouldEqual, 4)
			So(stats["threshold"], ShouldEqual, 1.25)

			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			_, err := svc.Ingest(ctx, request(0, timings[0]))
			So(err, ShouldBeNil)
			changed, err := svc.Publish(ctx)
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("Operations before Start should fail", func() {
			_, err := svc.Ingest(context.Background(), request(0, 1))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.History(context.Background(), suite, bench, 10)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When starting and stopping the service", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.Start(context.Background()), ShouldBeNil)

			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
			svc.Stop()
		})
	})
}

func TestService_Ingest(t *testing.T) {
	Convey("Given a started service with an alert sink", t, func() {
		sink := &captureSink{}
		svc, ctx := started(service.WithAlertSink(sink))
		defer svc.Stop()

		Convey("When a stable baseline is ingested", func() {
			for i, v := range timings {
				report, err := svc.Ingest(ctx, request(i, v))
				So(err, ShouldBeNil)
				So(report.Status, ShouldEqual, types.StatusApplied)
				So(report.Inserted, ShouldEqual, 1)
				So(report.Verdicts, ShouldHaveLength, 1)
				So(report.Verdicts[0].Kind, ShouldEqual, detector.InsufficientData)
			}

			Convey("Then a record within the threshold is Ok", func() {
				report, err := svc.Ingest(ctx, request(5, 60_000_000))
				So(err, ShouldBeNil)
				So(report.Verdicts[0].Kind, ShouldEqual, detector.Ok)
				So(report.Verdicts[0].BaselineMedian, ShouldEqual, 52_000_000)
				So(sink.count(), ShouldEqual, 0)
			})

			Convey("Then a slow record is flagged and alerted once", func() {
				report, err := svc.Ingest(ctx, request(5, 90_000_000))
				So(err, ShouldBeNil)
				v := report.Verdicts[0]
				So(v.Kind, ShouldEqual, detector.Regressed)
				So(v.Factor, ShouldAlmostEqual, 90.0/52.0, 1e-9)
				So(v.Newest, ShouldNotBeNil)
				So(v.Newest.CommitID, ShouldEqual, commit(5).ID)
				So(sink.count(), ShouldEqual, 1)

				again, err := svc.Evaluate(ctx, suite, bench)
				So(err, ShouldBeNil)
				So(again.Kind, ShouldEqual, detector.Regressed)
				So(sink.count(), ShouldEqual, 1)

				alerts, err := svc.Alerts(ctx, 10)
				So(err, ShouldBeNil)
				So(alerts, ShouldHaveLength, 1)
				So(alerts[0].Name, ShouldEqual, bench)
				So(alerts[0].CommitID, ShouldEqual, commit(5).ID)
			})

			Convey("Then re-ingesting a commit reports a duplicate", func() {
				report, err := svc.Ingest(ctx, request(2, 1))
				So(err, ShouldBeNil)
				So(report.Accepted, ShouldEqual, 1)
				So(report.Inserted, ShouldEqual, 0)
				So(report.Duplicates, ShouldEqual, 1)
				So(report.Verdicts, ShouldBeEmpty)

				history, err := svc.History(ctx, suite, bench, 0)
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, len(timings))
				So(history[2].Value, ShouldEqual, timings[2])
			})
		})

		Convey("When a batch holds malformed measurements", func() {
			req := request(0, 10)
			req.Benches = append(req.Benches,
				model.RawMeasurement{Name: "", Value: 1, Unit: "ns/op"},
				model.RawMeasurement{Name: "BenchmarkNoUnit", Value: 2},
			)
			report, err := svc.Ingest(ctx, req)

			Convey("Then the good ones are kept and the rest reported", func() {
				So(err, ShouldBeNil)
				So(report.Accepted, ShouldEqual, 1)
				So(report.Rejected, ShouldHaveLength, 2)
				So(report.Rejected[0].Field, ShouldEqual, "name")
				So(report.Rejected[1].Field, ShouldEqual, "unit")
				So(report.Rejected[1].Name, ShouldEqual, "BenchmarkNoUnit")
			})
		})
	})
}

func TestService_Queries(t *testing.T) {
	Convey("Given a service holding one series", t, func() {
		svc, ctx := started()
		defer svc.Stop()
		for i, v := range append(timings, 90_000_000) {
			_, err := svc.Ingest(ctx, request(i, v))
			So(err, ShouldBeNil)
		}

		Convey("History returns the newest records oldest first", func() {
			history, err := svc.History(ctx, suite, bench, 2)
			So(err, ShouldBeNil)
			So(history, ShouldHaveLength, 2)
			So(history[0].Value, ShouldEqual, timings[4])
			So(history[1].Value, ShouldEqual, 90_000_000)
			So(history[1].SampleCount, ShouldEqual, 24)
			So(history[1].ObservedAt.Location(), ShouldEqual, time.UTC)
		})

		Convey("Unknown series are reported", func() {
			_, err := svc.History(ctx, suite, "BenchmarkMissing", 10)
			So(errors.Is(err, repository.ErrUnknownSeries), ShouldBeTrue)
			_, err = svc.Evaluate(ctx, suite, "BenchmarkMissing")
			So(errors.Is(err, repository.ErrUnknownSeries), ShouldBeTrue)
		})

		Convey("Backtest yields one verdict per record", func() {
			verdicts, err := svc.Backtest(ctx, suite, bench)
			So(err, ShouldBeNil)
			So(verdicts, ShouldHaveLength, len(timings)+1)
			for _, v := range verdicts[:len(timings)] {
				So(v.Kind, ShouldEqual, detector.InsufficientData)
			}
			So(verdicts[len(timings)].Kind, ShouldEqual, detector.Regressed)
		})

		Convey("EvaluateAll covers every series", func() {
			req := request(0, 1_000)
			req.Benches[0].Name = "BenchmarkSmall"
			_, err := svc.Ingest(ctx, req)
			So(err, ShouldBeNil)

			verdicts, err := svc.EvaluateAll(ctx)
			So(err, ShouldBeNil)
			So(verdicts, ShouldHaveLength, 2)
			So(verdicts[0].Name, ShouldEqual, bench)
			So(verdicts[0].Kind, ShouldEqual, detector.Regressed)
			So(verdicts[1].Name, ShouldEqual, "BenchmarkSmall")
			So(verdicts[1].Kind, ShouldEqual, detector.InsufficientData)

			series, err := svc.Series(ctx)
			So(err, ShouldBeNil)
			So(series, ShouldResemble, []types.Series{
				{Suite: suite, Name: bench, Records: len(timings) + 1},
				{Suite: suite, Name: "BenchmarkSmall", Records: 1},
			})
		})

		Convey("Emit produces the dashboard document", func() {
			js, err := svc.EmitJS(ctx)
			So(err, ShouldBeNil)
			So(string(js), ShouldStartWith, "window.BENCHMARK_DATA = ")

			doc, err := svc.Emit(ctx)
			So(err, ShouldBeNil)
			So(string(doc), ShouldContainSubstring, `"Go Benchmark"`)
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, ctx := started()
		defer svc.Stop()

		Convey("When a batch is submitted", func() {
			report, err := svc.Submit(ctx, request(0, 100))
			So(err, ShouldBeNil)
			So(report.Status, ShouldEqual, types.StatusQueued)
			So(report.BatchID, ShouldNotBeEmpty)

			Convey("Then the workers apply it", func() {
				So(eventually(func() bool {
					h, err := svc.History(ctx, suite, bench, 0)
					return err == nil && len(h) == 1
				}), ShouldBeTrue)
			})

			Convey("Then resubmitting it is a duplicate", func() {
				again, err := svc.Submit(ctx, request(0, 100))
				So(err, ShouldBeNil)
				So(again.Status, ShouldEqual, types.StatusDuplicate)
				So(again.BatchID, ShouldEqual, report.BatchID)
				So(again.Duplicates, ShouldEqual, 1)
			})
		})

		Convey("When a batch has nothing valid", func() {
			req := request(0, 100)
			req.Commit = nil
			report, err := svc.Submit(ctx, req)

			Convey("Then nothing is queued", func() {
				So(err, ShouldBeNil)
				So(report.Status, ShouldEqual, types.StatusApplied)
				So(report.Accepted, ShouldEqual, 0)
				So(report.Rejected, ShouldHaveLength, 1)
				So(report.Rejected[0].Field, ShouldEqual, "commit")
			})
		})
	})
}

func TestService_Rotate(t *testing.T) {
	Convey("Given a service with history", t, func() {
		svc, ctx := started()
		defer svc.Stop()
		for i, v := range timings {
			_, err := svc.Ingest(ctx, request(i, v))
			So(err, ShouldBeNil)
		}

		Convey("When the history is rotated", func() {
			archived, err := svc.Rotate(ctx)
			So(err, ShouldBeNil)
			So(string(archived), ShouldContainSubstring, commit(4).ID)

			Convey("Then series stay registered but empty", func() {
				history, err := svc.History(ctx, suite, bench, 0)
				So(err, ShouldBeNil)
				So(history, ShouldBeEmpty)
				So(svc.GetStats()["records"], ShouldEqual, 0)
			})

			Convey("Then archived commits still deduplicate", func() {
				report, err := svc.Ingest(ctx, request(1, 1))
				So(err, ShouldBeNil)
				So(report.Duplicates, ShouldEqual, 1)

				report, err = svc.Ingest(ctx, request(9, 1))
				So(err, ShouldBeNil)
				So(report.Inserted, ShouldEqual, 1)
				So(report.Verdicts[0].Kind, ShouldEqual, detector.InsufficientData)
			})
		})
	})
}

func TestService_PublishWithoutFeed(t *testing.T) {
	Convey("Given a service without a feed", t, func() {
		svc, ctx := started()
		defer svc.Stop()

		Convey("Publish should fail", func() {
			_, err := svc.Publish(ctx)
			So(errors.Is(err, service.ErrNoFeed), ShouldBeTrue)
		})

		Convey("Compact is a no-op without a journal", func() {
			n, err := svc.Compact(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestService_ObservedAtPrecision(t *testing.T) {
	Convey("Given a clock with sub-millisecond precision", t, func() {
		now := time.Date(2024, 3, 1, 13, 0, 0, 123_456_789, time.UTC)
		svc, ctx := started(service.WithClock(func() time.Time { return now }))
		defer svc.Stop()

		Convey("When a run is ingested without an observation time", func() {
			req := request(0, timings[0])
			req.ObservedAt = time.Time{}
			_, err := svc.Ingest(ctx, req)
			So(err, ShouldBeNil)

			Convey("Then the stored time is cut to what the feed can carry", func() {
				history, err := svc.History(ctx, suite, bench, 0)
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, 1)
				So(history[0].ObservedAt.Equal(now.Truncate(time.Millisecond)), ShouldBeTrue)
				So(history[0].ObservedAt.UnixMilli(), ShouldEqual, now.UnixMilli())
			})
		})

		Convey("When a run carries nanoseconds of its own", func() {
			req := request(1, timings[1])
			req.ObservedAt = time.Date(2024, 3, 1, 14, 0, 0, 999_999_999, time.UTC)
			_, err := svc.Ingest(ctx, req)
			So(err, ShouldBeNil)

			Convey("Then they are dropped as well", func() {
				history, err := svc.History(ctx, suite, bench, 0)
				So(err, ShouldBeNil)
				So(history[0].ObservedAt.Nanosecond(), ShouldEqual, 999_000_000)
			})
		})
	})
}
