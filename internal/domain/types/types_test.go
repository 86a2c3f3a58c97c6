package types_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
	types "github.com/okian/benchtrack/internal/domain/types"
)

func TestFromRecord(t *testing.T) {
	Convey("Given a stored record", t, func() {
		rec := model.BenchmarkRecord{
			Seq:         7,
			Suite:       "GAHM Benchmark",
			Tool:        "googlecpp",
			Name:        "BM_Vortex",
			Commit:      &model.CommitRef{ID: "1148493", URL: "https://github.com/adcirc/gahm/commit/1148493"},
			ObservedAt:  time.Date(2023, 9, 27, 1, 28, 7, 0, time.FixedZone("", -4*3600)),
			Value:       48803051.307693034,
			Unit:        "ns/iter",
			SampleCount: 13,
			Aux:         []model.AuxMetric{{Key: "cpu", Value: 48768515.384615384, Unit: "ns", Numeric: true, Text: "48768515.384615384 ns", HasValue: true}},
		}

		Convey("When converting it", func() {
			out := types.FromRecord(rec)

			Convey("Then every field is carried over", func() {
				So(out.Seq, ShouldEqual, 7)
				So(out.CommitID, ShouldEqual, "1148493")
				So(out.CommitURL, ShouldEqual, "https://github.com/adcirc/gahm/commit/1148493")
				So(out.Value, ShouldEqual, 48803051.307693034)
				So(out.SampleCount, ShouldEqual, 13)
				So(out.Extra, ShouldEqual, "iterations: 13\ncpu: 48768515.384615384 ns")
			})

			Convey("Then the observation time is reported in UTC", func() {
				So(out.ObservedAt.Location(), ShouldEqual, time.UTC)
				So(out.ObservedAt.Equal(rec.ObservedAt), ShouldBeTrue)
			})
		})

		Convey("When the record has no commit", func() {
			rec.Commit = nil
			out := types.FromRecord(rec)

			Convey("Then the commit fields are empty", func() {
				So(out.CommitID, ShouldBeEmpty)
				So(out.CommitURL, ShouldBeEmpty)
			})
		})
	})
}

func TestFromVerdict(t *testing.T) {
	Convey("Given a regressed verdict", t, func() {
		newest := model.BenchmarkRecord{Suite: "s", Name: "n", Commit: &model.CommitRef{ID: "c"}, Value: 90, Unit: "ns"}
		v := detector.Verdict{Kind: detector.Regressed, Factor: 1.84, Newest: &newest, BaselineMedian: 48.8, Window: 5, Threshold: 1.5}

		Convey("When converting and encoding it", func() {
			out := types.FromVerdict(model.SeriesKey{Suite: "s", Name: "n"}, v)
			data, err := json.Marshal(out)

			Convey("Then the kind is encoded by name", func() {
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"kind":"regressed"`)
				So(out.Newest, ShouldNotBeNil)
				So(out.Newest.CommitID, ShouldEqual, "c")
			})
		})

		Convey("When the verdict has no newest record", func() {
			out := types.FromVerdict(model.SeriesKey{Suite: "s", Name: "n"}, detector.Verdict{})

			Convey("Then Newest is omitted", func() {
				So(out.Newest, ShouldBeNil)
				So(out.Kind, ShouldEqual, detector.InsufficientData)
			})
		})
	})
}

func TestFromRejections(t *testing.T) {
	Convey("Given parser rejections", t, func() {
		Convey("When there are none", func() {
			So(types.FromRejections(nil), ShouldBeNil)
		})

		Convey("When one is present", func() {
			out := types.FromRejections([]parser.Rejection{{Index: 2, Name: "BM_X", Field: "unit", Err: errors.New("unit: empty")}})

			Convey("Then the reason is the error text", func() {
				So(out, ShouldHaveLength, 1)
				So(out[0].Index, ShouldEqual, 2)
				So(out[0].Field, ShouldEqual, "unit")
				So(out[0].Reason, ShouldEqual, "unit: empty")
			})
		})
	})
}
