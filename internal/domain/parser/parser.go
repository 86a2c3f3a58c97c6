// Package parser turns raw harness output into canonical benchmark records.
package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okian/benchtrack/internal/domain/model"
)

const iterationsKey = "iterations"

// Parse validates one raw measurement and builds its record. The commit is
// shared by reference with every other record of the same run.
func Parse(suite, tool string, commit *model.CommitRef, observedAt time.Time, raw model.RawMeasurement) (model.BenchmarkRecord, error) {
	switch {
	case raw.Name == "":
		return model.BenchmarkRecord{}, malformed("name", "empty")
	case math.IsNaN(raw.Value) || math.IsInf(raw.Value, 0):
		return model.BenchmarkRecord{}, malformed("value", "not finite")
	case raw.Unit == "":
		return model.BenchmarkRecord{}, malformed("unit", "empty")
	case suite == "":
		return model.BenchmarkRecord{}, malformed("suite", "empty")
	case commit == nil || commit.ID == "":
		return model.BenchmarkRecord{}, malformed("commit", "missing id")
	}

	aux := ParseExtra(raw.Extra)
	return model.BenchmarkRecord{
		Suite:       suite,
		Tool:        tool,
		Name:        raw.Name,
		Commit:      commit,
		ObservedAt:  observedAt,
		Value:       raw.Value,
		Unit:        raw.Unit,
		SampleCount: sampleCount(aux),
		Aux:         aux,
	}, nil
}

// ParseExtra splits extra text into auxiliary metrics, one per line.
// Unknown keys are kept; lines without a colon become name-only entries.
func ParseExtra(extra string) []model.AuxMetric {
	if extra == "" {
		return nil
	}
	lines := strings.Split(extra, "\n")
	aux := make([]model.AuxMetric, 0, len(lines))
	for _, line := range lines {
		key, text, ok := strings.Cut(line, ":")
		if !ok {
			aux = append(aux, model.AuxMetric{Key: line})
			continue
		}
		aux = append(aux, auxMetric(strings.TrimSpace(key), strings.TrimSpace(text)))
	}
	return aux
}

// auxMetric types a "key: value [unit]" line. A leading token that is not a
// finite number leaves the line as text.
func auxMetric(key, text string) model.AuxMetric {
	a := model.AuxMetric{Key: key, Text: text, HasValue: true}
	num, unit, _ := strings.Cut(text, " ")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return a
	}
	a.Value, a.Unit, a.Numeric = v, strings.TrimSpace(unit), true
	return a
}

func sampleCount(aux []model.AuxMetric) int {
	for _, a := range aux {
		if !a.HasValue || a.Key != iterationsKey {
			continue
		}
		n := int(a.Value)
		if a.Numeric && a.Unit == "" && float64(n) == a.Value && n > 0 {
			return n
		}
		return 0
	}
	return 0
}

// FormatExtra rebuilds the display text of a record's auxiliary metrics.
// A sample count without a matching aux line is rendered first.
func FormatExtra(r model.BenchmarkRecord) string {
	var b strings.Builder
	if r.SampleCount > 0 && !hasIterations(r.Aux) {
		b.WriteString(iterationsKey)
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(r.SampleCount))
		if len(r.Aux) > 0 {
			b.WriteByte('\n')
		}
	}
	for i, a := range r.Aux {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(a.Key)
		if a.HasValue {
			b.WriteString(": ")
			b.WriteString(a.Text)
		}
	}
	return b.String()
}

func hasIterations(aux []model.AuxMetric) bool {
	for _, a := range aux {
		if a.HasValue && a.Key == iterationsKey {
			return true
		}
	}
	return false
}

// Batch is the output of one CI run for one suite.
type Batch struct {
	Suite      string
	Tool       string
	Commit     *model.CommitRef
	ObservedAt time.Time
	Benches    []model.RawMeasurement
}

// Rejection describes one measurement dropped from a batch.
type Rejection struct {
	Index int
	Name  string
	Field string
	Err   error
}

// BatchReport lists what a batch produced.
type BatchReport struct {
	Accepted []model.BenchmarkRecord
	Rejected []Rejection
}

// ParseBatch parses every measurement of a run. Malformed measurements are
// reported individually and never abort the batch.
func ParseBatch(b Batch) BatchReport {
	report := BatchReport{Accepted: make([]model.BenchmarkRecord, 0, len(b.Benches))}
	for i, raw := range b.Benches {
		rec, err := Parse(b.Suite, b.Tool, b.Commit, b.ObservedAt, raw)
		if err != nil {
			rej := Rejection{Index: i, Name: raw.Name, Err: err}
			var fe *FieldError
			if errors.As(err, &fe) {
				rej.Field = fe.Field
			}
			report.Rejected = append(report.Rejected, rej)
			continue
		}
		report.Accepted = append(report.Accepted, rec)
	}
	return report
}
