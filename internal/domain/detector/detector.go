// Package detector flags performance regressions by comparing the newest
// record of a series against a rolling baseline of the records before it.
package detector

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/benchtrack/internal/domain/model"
)

const (
	defaultWindow    = 5
	defaultThreshold = 1.5
)

// Kind classifies a verdict.
type Kind int

const (
	InsufficientData Kind = iota
	Ok
	Regressed
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Regressed:
		return "regressed"
	default:
		return "insufficient_data"
	}
}

// MarshalText renders the kind as its lowercase name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses a name written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*k = Ok
	case "regressed":
		*k = Regressed
	case "insufficient_data":
		*k = InsufficientData
	default:
		return fmt.Errorf("unknown verdict kind %q", text)
	}
	return nil
}

// Verdict is the outcome of evaluating the newest record of a history.
type Verdict struct {
	Kind   Kind
	Factor float64 // newest / baseline median; 0 when undefined

	Newest         *model.BenchmarkRecord
	BaselineMedian float64
	Window         int
	Threshold      float64

	// Diagnostics only. They never influence Kind.
	BaselineMean   float64
	BaselineStdDev float64
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithWindow sets how many preceding records form the baseline.
func WithWindow(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.window = n
		}
	}
}

// WithThreshold sets the slowdown factor above which a record regresses.
func WithThreshold(f float64) Option {
	return func(d *Detector) {
		if f > 1 {
			d.threshold = f
		}
	}
}

// Detector evaluates histories. It holds configuration only and is safe for
// concurrent use.
type Detector struct {
	window    int
	threshold float64
}

// New creates a Detector with a 5 record window and a 1.5x threshold unless
// overridden.
func New(opts ...Option) *Detector {
	d := &Detector{window: defaultWindow, threshold: defaultThreshold}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Window returns the configured baseline size.
func (d *Detector) Window() int { return d.window }

// Threshold returns the configured regression factor.
func (d *Detector) Threshold() float64 { return d.threshold }

// Evaluate judges the last record of history against the window records
// immediately before it. Histories shorter than window+1 yield InsufficientData.
// Only slowdowns are flagged; improvements are always Ok.
func (d *Detector) Evaluate(history []model.BenchmarkRecord) Verdict {
	v := Verdict{Kind: InsufficientData, Window: d.window, Threshold: d.threshold}
	if len(history) == 0 {
		return v
	}
	newest := history[len(history)-1]
	v.Newest = &newest
	if len(history) < d.window+1 {
		return v
	}

	baseline := make([]float64, d.window)
	for i, r := range history[len(history)-1-d.window : len(history)-1] {
		baseline[i] = r.Value
	}
	if len(baseline) > 1 {
		v.BaselineMean, v.BaselineStdDev = stat.MeanStdDev(baseline, nil)
	} else {
		v.BaselineMean = stat.Mean(baseline, nil)
	}
	v.BaselineMedian = median(baseline)

	if v.BaselineMedian != 0 {
		v.Factor = newest.Value / v.BaselineMedian
	}
	if newest.Value > v.BaselineMedian*d.threshold {
		v.Kind = Regressed
	} else {
		v.Kind = Ok
	}
	return v
}

// Backtest replays Evaluate over every prefix of history, oldest first.
func (d *Detector) Backtest(history []model.BenchmarkRecord) []Verdict {
	out := make([]Verdict, len(history))
	for i := range history {
		out[i] = d.Evaluate(history[:i+1])
	}
	return out
}

// median sorts xs in place and returns its middle value, averaging the two
// middle values for even lengths.
func median(xs []float64) float64 {
	slices.Sort(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
