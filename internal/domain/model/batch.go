package model

import "time"

// Batch is a parsed CI run waiting to be applied to the history.
type Batch struct {
	ID          string // deterministic id of the upload, see dedupe.BatchID
	Suite       string
	Records     []BenchmarkRecord
	SubmittedAt time.Time
}

// Keys returns the distinct series touched by the batch in record order.
func (b Batch) Keys() []SeriesKey {
	seen := make(map[SeriesKey]struct{}, len(b.Records))
	keys := make([]SeriesKey, 0, len(b.Records))
	for _, r := range b.Records {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
