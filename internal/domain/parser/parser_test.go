package parser_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
	. "github.com/smartystreets/goconvey/convey"
)

const vortexExtra = "iterations: 13\ncpu: 48768515.384615384 ns\nthreads: 1"

func vortexCommit() *model.CommitRef {
	return &model.CommitRef{
		ID:        "0c4d1c7b5d2f86cb1d6b7c5e8b2f3b3a34a7a6e1",
		Message:   "Update vortex solver",
		Timestamp: time.Date(2023, 9, 26, 21, 16, 4, 0, time.FixedZone("", -4*3600)),
	}
}

func TestParse(t *testing.T) {
	Convey("Given a google benchmark measurement", t, func() {
		commit := vortexCommit()
		observed := time.UnixMilli(1695778087055)
		raw := model.RawMeasurement{
			Name:  "BM_Vortex",
			Value: 48803051.307693034,
			Unit:  "ns/iter",
			Extra: vortexExtra,
		}

		Convey("When parsing it", func() {
			rec, err := parser.Parse("GAHM Benchmark", "googlecpp", commit, observed, raw)

			Convey("Then the record should carry every field", func() {
				So(err, ShouldBeNil)
				So(rec.Suite, ShouldEqual, "GAHM Benchmark")
				So(rec.Tool, ShouldEqual, "googlecpp")
				So(rec.Name, ShouldEqual, "BM_Vortex")
				So(rec.Value, ShouldEqual, 48803051.307693034)
				So(rec.Unit, ShouldEqual, "ns/iter")
				So(rec.ObservedAt, ShouldEqual, observed)
			})

			Convey("Then the commit should be shared by reference", func() {
				So(rec.Commit, ShouldPointTo, commit)
			})

			Convey("Then iterations should become the sample count", func() {
				So(rec.SampleCount, ShouldEqual, 13)
			})

			Convey("Then the other lines should be typed aux metrics", func() {
				So(len(rec.Aux), ShouldEqual, 3)
				So(rec.Aux[1].Key, ShouldEqual, "cpu")
				v, unit, ok := rec.Aux[1].Number()
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 48768515.384615384)
				So(unit, ShouldEqual, "ns")
			})

			Convey("Then formatting should reproduce the extra text", func() {
				So(parser.FormatExtra(rec), ShouldEqual, vortexExtra)
			})
		})

		Convey("When the extra text has unknown keys and bare lines", func() {
			raw.Extra = "warmup run\ncompiler: gcc 13.2\n\nthreads: 4"
			rec, err := parser.Parse("GAHM Benchmark", "googlecpp", commit, observed, raw)

			Convey("Then nothing should fail and the text should round trip", func() {
				So(err, ShouldBeNil)
				So(rec.SampleCount, ShouldEqual, 0)
				So(rec.Aux[0].HasValue, ShouldBeFalse)
				So(rec.Aux[0].Key, ShouldEqual, "warmup run")
				So(parser.FormatExtra(rec), ShouldEqual, raw.Extra)
			})
		})

		Convey("When iterations is not the first line", func() {
			raw.Extra = "cpu: 12 ns\niterations: 40"
			rec, err := parser.Parse("GAHM Benchmark", "googlecpp", commit, observed, raw)

			Convey("Then its position should be kept", func() {
				So(err, ShouldBeNil)
				So(rec.SampleCount, ShouldEqual, 40)
				So(parser.FormatExtra(rec), ShouldEqual, raw.Extra)
			})
		})

		Convey("When there is no extra text", func() {
			raw.Extra = ""
			rec, err := parser.Parse("GAHM Benchmark", "googlecpp", commit, observed, raw)

			Convey("Then aux should be empty", func() {
				So(err, ShouldBeNil)
				So(rec.Aux, ShouldBeEmpty)
				So(parser.FormatExtra(rec), ShouldEqual, "")
			})
		})
	})
}

func TestParseMalformed(t *testing.T) {
	Convey("Given malformed measurements", t, func() {
		commit := vortexCommit()
		now := time.Now()

		cases := []struct {
			desc  string
			raw   model.RawMeasurement
			field string
		}{
			{"an empty name", model.RawMeasurement{Value: 1, Unit: "ns/iter"}, "name"},
			{"a NaN value", model.RawMeasurement{Name: "BM_A", Value: math.NaN(), Unit: "ns/iter"}, "value"},
			{"an infinite value", model.RawMeasurement{Name: "BM_A", Value: math.Inf(1), Unit: "ns/iter"}, "value"},
			{"an empty unit", model.RawMeasurement{Name: "BM_A", Value: 1}, "unit"},
		}

		for _, tc := range cases {
			Convey("When parsing "+tc.desc, func() {
				_, err := parser.Parse("GAHM Benchmark", "googlecpp", commit, now, tc.raw)

				Convey("Then it should fail with ErrMalformedRecord naming the field", func() {
					So(errors.Is(err, parser.ErrMalformedRecord), ShouldBeTrue)
					var fe *parser.FieldError
					So(errors.As(err, &fe), ShouldBeTrue)
					So(fe.Field, ShouldEqual, tc.field)
				})
			})
		}

		Convey("When the commit is missing", func() {
			_, err := parser.Parse("GAHM Benchmark", "googlecpp", nil, now, model.RawMeasurement{Name: "BM_A", Value: 1, Unit: "ns"})

			Convey("Then it should be malformed", func() {
				So(errors.Is(err, parser.ErrMalformedRecord), ShouldBeTrue)
			})
		})
	})
}

func TestParseBatch(t *testing.T) {
	Convey("Given a CI run with one bad measurement", t, func() {
		batch := parser.Batch{
			Suite:      "GAHM Benchmark",
			Tool:       "googlecpp",
			Commit:     vortexCommit(),
			ObservedAt: time.UnixMilli(1695778087055),
			Benches: []model.RawMeasurement{
				{Name: "BM_Vortex", Value: 48803051.3, Unit: "ns/iter"},
				{Name: "BM_Broken", Value: math.NaN(), Unit: "ns/iter"},
				{Name: "BM_Holland", Value: 1200.5, Unit: "ns/iter"},
			},
		}

		Convey("When parsing the batch", func() {
			report := parser.ParseBatch(batch)

			Convey("Then good records should be accepted in order", func() {
				So(len(report.Accepted), ShouldEqual, 2)
				So(report.Accepted[0].Name, ShouldEqual, "BM_Vortex")
				So(report.Accepted[1].Name, ShouldEqual, "BM_Holland")
				So(report.Accepted[0].Commit, ShouldPointTo, report.Accepted[1].Commit)
			})

			Convey("Then the bad one should be reported", func() {
				So(len(report.Rejected), ShouldEqual, 1)
				So(report.Rejected[0].Index, ShouldEqual, 1)
				So(report.Rejected[0].Name, ShouldEqual, "BM_Broken")
				So(report.Rejected[0].Field, ShouldEqual, "value")
			})
		})
	})
}

func TestFormatExtraSampleCountOnly(t *testing.T) {
	Convey("Given a record built without extra text", t, func() {
		rec := model.BenchmarkRecord{
			SampleCount: 7,
			Aux:         []model.AuxMetric{{Key: "threads", Value: 2, Numeric: true, Text: "2", HasValue: true}},
		}

		Convey("Then iterations should be rendered first", func() {
			So(parser.FormatExtra(rec), ShouldEqual, "iterations: 7\nthreads: 2")
		})
	})
}

func TestParseExtra_Typed(t *testing.T) {
	Convey("Given extra text mixing numeric and text lines", t, func() {
		aux := parser.ParseExtra("iterations: 13\ncpu: 48768515.384615384 ns\ncompiler: gcc 13.2\nload: NaN\nwarmup run")

		Convey("Then numbers and units are parsed once into the metric", func() {
			So(aux, ShouldHaveLength, 5)
			So(aux[0].Numeric, ShouldBeTrue)
			So(aux[0].Value, ShouldEqual, 13)
			So(aux[1].Numeric, ShouldBeTrue)
			So(aux[1].Value, ShouldEqual, 48768515.384615384)
			So(aux[1].Unit, ShouldEqual, "ns")
		})

		Convey("Then text values keep only their text", func() {
			So(aux[2].Numeric, ShouldBeFalse)
			So(aux[2].Text, ShouldEqual, "gcc 13.2")
			So(aux[3].Numeric, ShouldBeFalse)
			So(aux[3].Text, ShouldEqual, "NaN")
			So(aux[4].HasValue, ShouldBeFalse)
			So(aux[4].Numeric, ShouldBeFalse)
		})
	})

	Convey("Given a fractional or unit-bearing iterations line", t, func() {
		Convey("Then no sample count is derived", func() {
			commit := &model.CommitRef{ID: "abc"}
			for _, extra := range []string{"iterations: 2.5", "iterations: 4 runs", "iterations: -3"} {
				rec, err := parser.Parse("S", "go", commit, time.Time{}, model.RawMeasurement{Name: "X", Value: 1, Unit: "ns/op", Extra: extra})
				So(err, ShouldBeNil)
				So(rec.SampleCount, ShouldEqual, 0)
			}
		})
	})
}
