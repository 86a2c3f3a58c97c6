package alert_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/benchtrack/internal/domain/alert"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/pkg/logger"
)

func regression(commit string) alert.Regression {
	return alert.Regression{
		Series:   model.SeriesKey{Suite: "GAHM Benchmark", Name: "BM_Vortex"},
		CommitID: commit,
		Value:    90e6,
		Factor:   1.84,
	}
}

type failingSink struct{ err error }

func (f failingSink) Notify(context.Context, alert.Regression) error { return f.err }

func TestLog(t *testing.T) {
	Convey("Given a log of size 3", t, func() {
		ctx := context.Background()
		l := alert.NewLog(3)

		Convey("When it is empty", func() {
			So(l.Recent(0), ShouldBeEmpty)
			So(l.Total(), ShouldEqual, 0)
		})

		Convey("When two regressions arrive", func() {
			So(l.Notify(ctx, regression("c1")), ShouldBeNil)
			So(l.Notify(ctx, regression("c2")), ShouldBeNil)

			Convey("Then Recent lists them newest first", func() {
				got := l.Recent(0)
				So(got, ShouldHaveLength, 2)
				So(got[0].CommitID, ShouldEqual, "c2")
				So(got[1].CommitID, ShouldEqual, "c1")
			})

			Convey("Then Recent honours the limit", func() {
				got := l.Recent(1)
				So(got, ShouldHaveLength, 1)
				So(got[0].CommitID, ShouldEqual, "c2")
			})
		})

		Convey("When more regressions arrive than fit", func() {
			for i := range 5 {
				So(l.Notify(ctx, regression(fmt.Sprintf("c%d", i))), ShouldBeNil)
			}

			Convey("Then only the newest are kept", func() {
				got := l.Recent(10)
				So(got, ShouldHaveLength, 3)
				So(got[0].CommitID, ShouldEqual, "c4")
				So(got[2].CommitID, ShouldEqual, "c2")
				So(l.Total(), ShouldEqual, 5)
			})
		})
	})

	Convey("Given a non-positive size", t, func() {
		l := alert.NewLog(0)
		So(l.Notify(context.Background(), regression("c1")), ShouldBeNil)
		So(l.Recent(0), ShouldHaveLength, 1)
	})
}

func TestFanout(t *testing.T) {
	Convey("Given a fanout with a log, a log sink and a failing sink", t, func() {
		ctx := context.Background()
		l := alert.NewLog(4)
		boom := errors.New("webhook down")
		f := alert.Fanout{l, alert.NewLogSink(logger.Nop()), failingSink{err: boom}, alert.NewLogSink(nil)}

		Convey("When notified", func() {
			err := f.Notify(ctx, regression("c1"))

			Convey("Then every sink is reached and errors are joined", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(l.Recent(0), ShouldHaveLength, 1)
			})
		})
	})
}
