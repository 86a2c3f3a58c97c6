// Package dedupe short-circuits retried ingestion batches.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 10_000

// Deduper records seen batch ids so a retried CI upload is acknowledged
// without touching the queue. The history store stays the source of truth
// for idempotence; this is a fast path only.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets an id so the batch can be retried, e.g. after the
	// queue refused it.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// NewInMemoryDeduper creates a deduper. Bounded mode (the default) evicts the
// least recently recorded id; WithMaxSize(0) keeps every id.
func NewInMemoryDeduper(opts ...Option) Deduper {
	cfg := options{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSize <= 0 {
		return &unboundedDeduper{seen: make(map[string]struct{})}
	}
	cache, err := lru.New[string, struct{}](cfg.maxSize)
	if err != nil {
		// only fails for non-positive sizes, handled above
		panic(err)
	}
	return &boundedDeduper{seen: cache}
}

type boundedDeduper struct {
	seen *lru.Cache[string, struct{}]
}

func (d *boundedDeduper) SeenAndRecord(_ context.Context, id string) bool {
	seen, _ := d.seen.ContainsOrAdd(id, struct{}{})
	return seen
}

func (d *boundedDeduper) Unrecord(_ context.Context, id string) {
	d.seen.Remove(id)
}

func (d *boundedDeduper) Size() int64 {
	return int64(d.seen.Len())
}

type unboundedDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (d *unboundedDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	return false
}

func (d *unboundedDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
}

func (d *unboundedDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
