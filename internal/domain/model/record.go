// Package model contains domain models passed between layers.
package model

import "time"

// Person identifies a commit author or committer.
type Person struct {
	Email    string
	Name     string
	Username string
}

// CommitRef describes the commit a benchmark run measured. Records of one
// CI run share a single *CommitRef.
type CommitRef struct {
	ID        string    // content hash, unique per series
	Message   string    // commit message
	Timestamp time.Time // keeps the original offset; use Timestamp.UTC() for the instant
	Author    Person
	Committer Person
	Distinct  bool
	TreeID    string
	URL       string
}

// RawMeasurement is one benchmark result as produced by a harness.
type RawMeasurement struct {
	Name  string
	Value float64
	Unit  string
	Extra string // newline separated "key: value [unit]" lines
}

// AuxMetric is one auxiliary line of a measurement's extra text. Numeric
// lines ("cpu: 48768515.384615384 ns") carry Value and Unit; Text keeps the
// value as written for display.
type AuxMetric struct {
	Key     string
	Value   float64
	Unit    string
	Numeric bool
	Text    string // value text after the colon, verbatim minus surrounding blanks
	// HasValue is false for lines without a colon; such lines keep the whole
	// line in Key.
	HasValue bool
}

// Number returns the parsed value and unit; ok is false for text lines.
func (a AuxMetric) Number() (value float64, unit string, ok bool) {
	return a.Value, a.Unit, a.Numeric
}

// BenchmarkRecord is one named measurement of one commit.
type BenchmarkRecord struct {
	Suite       string
	Tool        string
	Name        string
	Commit      *CommitRef
	ObservedAt  time.Time
	Value       float64
	Unit        string
	SampleCount int
	Aux         []AuxMetric
	Seq         uint64 // assigned by the store on insert
}

// Key returns the series the record belongs to.
func (r BenchmarkRecord) Key() SeriesKey {
	return SeriesKey{Suite: r.Suite, Name: r.Name}
}

// CommitID returns the commit id or "" when the record has no commit.
func (r BenchmarkRecord) CommitID() string {
	if r.Commit == nil {
		return ""
	}
	return r.Commit.ID
}

// SeriesKey identifies one (suite, benchmark) time series.
type SeriesKey struct {
	Suite string
	Name  string
}

func (k SeriesKey) String() string {
	return k.Suite + "/" + k.Name
}
