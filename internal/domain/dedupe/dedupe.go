// Package dedupe tracks recently seen change ids so at-least-once delivery
// from the change feed does not double count events.
package dedupe

import (
	"context"
	"sync"
)

// DefaultMaxSize is the seen-set capacity used when no option overrides it.
const DefaultMaxSize = 100

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID so a later delivery is processed again. Used when
	// an event was recorded but could not be applied.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps ids in insertion order. When the set grows past
// maxSize the oldest half is dropped in one sweep, so the structure is lossy
// and only meant to absorb bursty redelivery.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.maxSize+1)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)

	if d.maxSize > 0 && len(d.order) > d.maxSize {
		d.evictOldestHalf()
	}
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; !ok {
		return
	}
	delete(d.seen, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// evictOldestHalf must be called with d.mu held.
func (d *inMemoryDeduper) evictOldestHalf() {
	cut := len(d.order) / 2
	for _, id := range d.order[:cut] {
		delete(d.seen, id)
	}
	rest := make([]string, len(d.order)-cut, d.maxSize+1)
	copy(rest, d.order[cut:])
	d.order = rest
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.order))
}
