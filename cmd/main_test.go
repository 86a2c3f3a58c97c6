package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/benchtrack/internal/app"
	"github.com/okian/benchtrack/internal/config"
	"github.com/okian/benchtrack/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given benchtrack environment variables", t, func() {
		t.Setenv("BENCHTRACK_ADDR", ":8080")
		t.Setenv("BENCHTRACK_QUEUE_SIZE", "1000")
		t.Setenv("BENCHTRACK_WORKER_COUNT", "4")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)

			svc := service.New(service.ConfigOptions(cfg)...)
			convey.So(svc, convey.ShouldNotBeNil)
		})

		convey.Convey("When the address is empty", func() {
			t.Setenv("BENCHTRACK_ADDR", "")

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a started service behind the mux", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(1), service.WithQueueSize(4))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(newMux(ctx, svc, 10))
		defer srv.Close()

		get := func(path string) *http.Response {
			resp, err := http.Get(srv.URL + path)
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			return resp
		}

		convey.Convey("Then the API routes answer", func() {
			convey.So(get("/healthz").StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/stats").StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api/v1/series").StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/data.js").StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then the documentation is served", func() {
			convey.So(get("/api-docs").StatusCode, convey.ShouldEqual, http.StatusOK)
			resp := get("/openapi.yaml")
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then an over-limit alerts query is refused", func() {
			convey.So(get("/api/v1/alerts?limit=11").StatusCode, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a config on a free port", t, func() {
		dir := t.TempDir()
		t.Setenv("BENCHTRACK_ADDR", "127.0.0.1:0")
		t.Setenv("BENCHTRACK_JOURNAL_PATH", dir+"/history.db")
		t.Setenv("BENCHTRACK_FEED_PATH", dir+"/data.js")

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				convey.So(run(ctx), convey.ShouldBeNil)
				_, err := os.Stat(dir + "/history.db")
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the config is invalid", func() {
			t.Setenv("BENCHTRACK_FEED_FORMAT", "xml")

			convey.Convey("Then run reports it", func() {
				err := run(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(strings.Contains(err.Error(), "config"), convey.ShouldBeTrue)
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		svc := service.New()

		convey.Convey("Then they stop with their context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then single updates do not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}
