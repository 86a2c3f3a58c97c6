// Package types contains the read shapes returned by the service to its
// transports (HTTP API and CLI).
package types

import (
	"time"

	"github.com/okian/benchtrack/internal/domain/detector"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
)

// Record is one stored measurement.
type Record struct {
	Seq         uint64    `json:"seq"`
	Suite       string    `json:"suite"`
	Name        string    `json:"name"`
	Tool        string    `json:"tool"`
	CommitID    string    `json:"commit_id"`
	CommitURL   string    `json:"commit_url,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	SampleCount int       `json:"sample_count,omitempty"`
	Extra       string    `json:"extra,omitempty"`
}

// FromRecord converts a stored record.
func FromRecord(r model.BenchmarkRecord) Record {
	out := Record{
		Seq:         r.Seq,
		Suite:       r.Suite,
		Name:        r.Name,
		Tool:        r.Tool,
		CommitID:    r.CommitID(),
		ObservedAt:  r.ObservedAt.UTC(),
		Value:       r.Value,
		Unit:        r.Unit,
		SampleCount: r.SampleCount,
		Extra:       parser.FormatExtra(r),
	}
	if r.Commit != nil {
		out.CommitURL = r.Commit.URL
	}
	return out
}

// FromRecords converts a slice of stored records.
func FromRecords(rs []model.BenchmarkRecord) []Record {
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = FromRecord(r)
	}
	return out
}

// Verdict is the regression status of a series.
type Verdict struct {
	Suite          string        `json:"suite"`
	Name           string        `json:"name"`
	Kind           detector.Kind `json:"kind"`
	Factor         float64       `json:"factor"`
	Newest         *Record       `json:"newest,omitempty"`
	BaselineMedian float64       `json:"baseline_median"`
	BaselineMean   float64       `json:"baseline_mean"`
	BaselineStdDev float64       `json:"baseline_stddev"`
	Window         int           `json:"window"`
	Threshold      float64       `json:"threshold"`
}

// FromVerdict converts a detector verdict for the given series.
func FromVerdict(key model.SeriesKey, v detector.Verdict) Verdict {
	out := Verdict{
		Suite:          key.Suite,
		Name:           key.Name,
		Kind:           v.Kind,
		Factor:         v.Factor,
		BaselineMedian: v.BaselineMedian,
		BaselineMean:   v.BaselineMean,
		BaselineStdDev: v.BaselineStdDev,
		Window:         v.Window,
		Threshold:      v.Threshold,
	}
	if v.Newest != nil {
		r := FromRecord(*v.Newest)
		out.Newest = &r
	}
	return out
}

// Series summarizes one registered series.
type Series struct {
	Suite   string `json:"suite"`
	Name    string `json:"name"`
	Records int    `json:"records"`
}

// Rejection reports one measurement dropped from an ingestion batch.
type Rejection struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// FromRejections converts parser rejections.
func FromRejections(rs []parser.Rejection) []Rejection {
	if len(rs) == 0 {
		return nil
	}
	out := make([]Rejection, len(rs))
	for i, r := range rs {
		out[i] = Rejection{Index: r.Index, Name: r.Name, Field: r.Field, Reason: r.Err.Error()}
	}
	return out
}

// IngestRequest is one CI run's benchmark output.
type IngestRequest struct {
	Suite      string
	Tool       string
	Commit     *model.CommitRef
	Benches    []model.RawMeasurement
	ObservedAt time.Time // defaults to now
}

// IngestReport is the outcome of one ingestion request.
type IngestReport struct {
	BatchID    string      `json:"batch_id"`
	Status     string      `json:"status"` // applied, queued or duplicate
	Accepted   int         `json:"accepted"`
	Inserted   int         `json:"inserted"`
	Duplicates int         `json:"duplicates"`
	Rejected   []Rejection `json:"rejected,omitempty"`
	Verdicts   []Verdict   `json:"verdicts,omitempty"`
}

// Ingest report statuses.
const (
	StatusApplied   = "applied"
	StatusQueued    = "queued"
	StatusDuplicate = "duplicate"
)

// Alert is a regression raised for a series.
type Alert struct {
	Suite          string    `json:"suite"`
	Name           string    `json:"name"`
	CommitID       string    `json:"commit_id"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit"`
	BaselineMedian float64   `json:"baseline_median"`
	Factor         float64   `json:"factor"`
	Threshold      float64   `json:"threshold"`
	DetectedAt     time.Time `json:"detected_at"`
}
