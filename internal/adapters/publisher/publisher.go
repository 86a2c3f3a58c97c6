// Package publisher serializes store state into the github-action-benchmark
// data.js feed and rebuilds stores from such feeds.
package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/okian/benchtrack/internal/adapters/repository"
	"github.com/okian/benchtrack/internal/domain/model"
	"github.com/okian/benchtrack/internal/domain/parser"
)

// JSPrefix turns the JSON document into a script the dashboard can include.
const JSPrefix = "window.BENCHMARK_DATA = "

// Option applies a configuration option to the Publisher.
type Option func(*Publisher)

// WithRepoURL sets the repoUrl written into emitted documents.
func WithRepoURL(url string) Option {
	return func(p *Publisher) {
		p.repoURL = url
	}
}

// Publisher renders views deterministically. It has no side effects.
type Publisher struct {
	repoURL string
}

// New creates a Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RepoURL returns the configured repository URL.
func (p *Publisher) RepoURL() string { return p.repoURL }

// Document builds the feed for a view. Suites follow series registration
// order. Runs are consecutive records of one commit, date and tool in append
// order; benches keep insertion order.
func (p *Publisher) Document(view *repository.View) *Document {
	doc := &Document{RepoURL: p.repoURL, Entries: Suites{}}
	if !view.LastUpdate.IsZero() {
		doc.LastUpdate = view.LastUpdate.UnixMilli()
	}

	suiteIdx := make(map[string]int)
	var perSuite [][]model.BenchmarkRecord
	for _, sv := range view.Series {
		i, ok := suiteIdx[sv.Key.Suite]
		if !ok {
			i = len(perSuite)
			suiteIdx[sv.Key.Suite] = i
			perSuite = append(perSuite, nil)
			doc.Entries = append(doc.Entries, Suite{Name: sv.Key.Suite})
		}
		perSuite[i] = append(perSuite[i], sv.Records...)
	}

	for i, records := range perSuite {
		slices.SortFunc(records, func(a, b model.BenchmarkRecord) int {
			switch {
			case a.Seq < b.Seq:
				return -1
			case a.Seq > b.Seq:
				return 1
			}
			return 0
		})
		doc.Entries[i].Entries = groupByCommit(records)
	}
	return doc
}

// groupByCommit folds consecutive records of one commit, date and tool into a
// single run. A commit that shows up again later starts a new run, so loading
// the document back appends every series in its original order.
func groupByCommit(records []model.BenchmarkRecord) []Entry {
	entries := []Entry{}
	for _, r := range records {
		date := r.ObservedAt.UnixMilli()
		last := len(entries) - 1
		if last < 0 || entries[last].Commit.ID != r.CommitID() ||
			entries[last].Date != date || entries[last].Tool != r.Tool {
			entries = append(entries, Entry{
				Commit: commitToWire(r.Commit),
				Date:   date,
				Tool:   r.Tool,
			})
			last++
		}
		entries[last].Benches = append(entries[last].Benches, Bench{
			Name:  r.Name,
			Value: r.Value,
			Unit:  r.Unit,
			Extra: parser.FormatExtra(r),
		})
	}
	return entries
}

func commitToWire(c *model.CommitRef) Commit {
	if c == nil {
		return Commit{}
	}
	out := Commit{
		Author:    Person(c.Author),
		Committer: Person(c.Committer),
		Distinct:  c.Distinct,
		ID:        c.ID,
		Message:   c.Message,
		TreeID:    c.TreeID,
		URL:       c.URL,
	}
	if !c.Timestamp.IsZero() {
		out.Timestamp = c.Timestamp.Format(time.RFC3339Nano)
	}
	return out
}

// Emit renders the view as two-space indented JSON without HTML escaping
// and without a trailing newline.
func (p *Publisher) Emit(view *repository.View) ([]byte, error) {
	return Marshal(p.Document(view))
}

// EmitJS renders the view in the data.js form.
func (p *Publisher) EmitJS(view *repository.View) ([]byte, error) {
	body, err := p.Emit(view)
	if err != nil {
		return nil, err
	}
	return append([]byte(JSPrefix), body...), nil
}

// Marshal encodes a document in the canonical feed layout.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a feed in either the JSON or the data.js form.
func Decode(data []byte) (*Document, error) {
	body := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if rest, ok := bytes.CutPrefix(body, []byte("window.BENCHMARK_DATA")); ok {
		rest = bytes.TrimSpace(rest)
		rest, ok = bytes.CutPrefix(rest, []byte("="))
		if !ok {
			return nil, fmt.Errorf("%w: missing assignment", ErrCorruptSnapshot)
		}
		body = bytes.TrimSpace(bytes.TrimSuffix(bytes.TrimSpace(rest), []byte(";")))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorruptSnapshot)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return &doc, nil
}
