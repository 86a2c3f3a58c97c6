package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/okian/benchtrack/internal/adapters/repository"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
	"github.com/okian/benchtrack/internal/domain/types"
)

// Records converts a document into store records in feed order. Records of
// one run share a commit. Any malformed run fails the whole conversion.
func Records(doc *Document) ([]model.BenchmarkRecord, error) {
	var out []model.BenchmarkRecord
	for _, suite := range doc.Entries {
		if suite.Name == "" {
			return nil, fmt.Errorf("%w: suite without a name", ErrCorruptSnapshot)
		}
		for i, entry := range suite.Entries {
			commit, err := commitFromWire(entry.Commit)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %w", ErrCorruptSnapshot, suite.Name, i, err)
			}
			batch := parser.ParseBatch(parser.Batch{
				Suite:      suite.Name,
				Tool:       entry.Tool,
				Commit:     commit,
				ObservedAt: time.UnixMilli(entry.Date),
				Benches:    benchesToRaw(entry.Benches),
			})
			if len(batch.Rejected) > 0 {
				rej := batch.Rejected[0]
				return nil, fmt.Errorf("%w: %s[%d] bench %d: %w", ErrCorruptSnapshot, suite.Name, i, rej.Index, rej.Err)
			}
			out = append(out, batch.Accepted...)
		}
	}
	return out, nil
}

// Run is one CI upload as posted by a benchmark action: a feed entry tagged
// with the suite it belongs to.
type Run struct {
	Suite string `json:"suite"`
	Entry
}

// Request converts the run into an ingestion request. A zero date leaves the
// observation time to the service.
func (r Run) Request() (types.IngestRequest, error) {
	commit, err := commitFromWire(r.Commit)
	if err != nil {
		return types.IngestRequest{}, err
	}
	req := types.IngestRequest{
		Suite:   r.Suite,
		Tool:    r.Tool,
		Commit:  commit,
		Benches: benchesToRaw(r.Benches),
	}
	if r.Date > 0 {
		req.ObservedAt = time.UnixMilli(r.Date)
	}
	return req, nil
}

func commitFromWire(c Commit) (*model.CommitRef, error) {
	if c.ID == "" {
		return nil, errors.New("commit without id")
	}
	ref := &model.CommitRef{
		ID:        c.ID,
		Message:   c.Message,
		Author:    model.Person(c.Author),
		Committer: model.Person(c.Committer),
		Distinct:  c.Distinct,
		TreeID:    c.TreeID,
		URL:       c.URL,
	}
	if c.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, c.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("commit %s: timestamp: %w", c.ID, err)
		}
		ref.Timestamp = ts
	}
	return ref, nil
}

func benchesToRaw(benches []Bench) []model.RawMeasurement {
	raw := make([]model.RawMeasurement, len(benches))
	for i, b := range benches {
		raw[i] = model.RawMeasurement{Name: b.Name, Value: b.Value, Unit: b.Unit, Extra: b.Extra}
	}
	return raw
}

// Load replays a document into an empty store. The whole document is
// validated before the first append. On error the store must be discarded.
func Load(ctx context.Context, store repository.Store, doc *Document) error {
	if store.Count(ctx) != 0 || len(store.Series(ctx)) != 0 {
		return ErrStoreNotEmpty
	}
	records, err := Records(doc)
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := store.Append(ctx, r); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
	}
	if doc.LastUpdate > 0 {
		store.Advance(ctx, time.UnixMilli(doc.LastUpdate))
	}
	return nil
}

// LoadInto builds a fresh store from the document and returns it only when
// the load succeeded. A failed store is closed if it supports it.
func LoadInto(ctx context.Context, doc *Document, newStore func() repository.Store) (repository.Store, error) {
	store := newStore()
	if err := Load(ctx, store, doc); err != nil {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return store, nil
}
