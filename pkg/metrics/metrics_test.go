package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the benchtrack namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "benchtrack")
				So(manager.subsystem, ShouldEqual, "history")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("ci"),
				WithSubsystem("perf"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"repo": "gahm"}),
				WithPrometheusRegistry(registry),
			)
			manager.recordsIngested.Inc()

			Convey("Then collectors should carry the custom name and labels", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, mf := range families {
					if mf.GetName() != "ci_perf_records_ingested_total" {
						continue
					}
					found = true
					So(mf.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "repo")
					So(mf.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "gahm")
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "benchtrack")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestRecordVerdict(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording a regression verdict", func() {
			before := testutil.ToFloat64(globalManager.regressions)
			err := RecordVerdict(VerdictRegressed)

			Convey("Then the regression counter should increase", func() {
				So(err, ShouldBeNil)
				So(testutil.ToFloat64(globalManager.regressions), ShouldEqual, before+1)
			})
		})

		Convey("When recording an ok verdict", func() {
			before := testutil.ToFloat64(globalManager.verdicts.WithLabelValues(VerdictOk))
			err := RecordVerdict(VerdictOk)

			Convey("Then only the verdict counter should increase", func() {
				So(err, ShouldBeNil)
				So(testutil.ToFloat64(globalManager.verdicts.WithLabelValues(VerdictOk)), ShouldEqual, before+1)
			})
		})

		Convey("When recording an unknown verdict", func() {
			err := RecordVerdict("flaky")

			Convey("Then it should fail with ErrUnknownVerdict", func() {
				So(errors.Is(err, ErrUnknownVerdict), ShouldBeTrue)
			})
		})
	})
}

func TestRecorders(t *testing.T) {
	Convey("Given the global recorder functions", t, func() {
		Convey("When ingestion counters are recorded", func() {
			ingested := testutil.ToFloat64(globalManager.recordsIngested)
			duplicate := testutil.ToFloat64(globalManager.recordsDuplicate)
			rejected := testutil.ToFloat64(globalManager.recordsRejected.WithLabelValues("missing_name"))

			RecordRecordIngested()
			RecordRecordDuplicate()
			RecordRecordRejected("missing_name")

			Convey("Then each counter should move by one", func() {
				So(testutil.ToFloat64(globalManager.recordsIngested), ShouldEqual, ingested+1)
				So(testutil.ToFloat64(globalManager.recordsDuplicate), ShouldEqual, duplicate+1)
				So(testutil.ToFloat64(globalManager.recordsRejected.WithLabelValues("missing_name")), ShouldEqual, rejected+1)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateSeriesTotal(4)
			UpdateRecordsTotal(17)
			UpdateWatermark(1695778087899)
			UpdateQueueSize(3)
			UpdateSnapshotBytes(2048)

			Convey("Then they should hold the latest value", func() {
				So(testutil.ToFloat64(globalManager.seriesTotal), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.recordsTotal), ShouldEqual, 17)
				So(testutil.ToFloat64(globalManager.watermark), ShouldEqual, 1695778087899)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.snapshotBytes), ShouldEqual, 2048)
			})
		})

		Convey("When histograms and vectors are observed", func() {
			So(func() {
				RecordAppendLatency(0.4)
				RecordQueryLatency(1.2)
				RecordSnapshotPublishDuration(3)
				RecordJournalWriteLatency(0.8)
				RecordHTTPRequest("/api/v1/ingest", "POST", "200")
				RecordHTTPRequestDuration("/api/v1/ingest", "POST", "200", 2.5)
				RecordErrorByComponent("store", "duplicate")
				RecordErrorLatency("store", "duplicate", 0.1)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		registry := GetRegistry()

		Convey("Then it should gather benchtrack metrics", func() {
			RecordRecordIngested()
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
