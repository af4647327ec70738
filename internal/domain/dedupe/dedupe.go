// Package dedupe tracks kill ids already taken into a computation.
package dedupe

import (
	"sync"
	"sync/atomic"
)

// Deduper records seen kill ids.
type Deduper interface {
	// SeenAndRecord reports whether id was seen before and records it if not.
	SeenAndRecord(id int64) bool

	// Unrecord forgets id so a later SeenAndRecord accepts it again.
	Unrecord(id int64)

	Size() int64
}

// inMemoryDeduper keeps ids in a map. When bounded, the oldest recorded id is
// evicted first; ring holds ids in recording order.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[int64]struct{}
	ring    []int64
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a deduper. It is unbounded unless WithMaxSize
// is given a positive size.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[int64]struct{})
	if d.maxSize > 0 {
		d.ring = make([]int64, 0, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 {
		if len(d.ring) < d.maxSize {
			d.ring = append(d.ring, id)
		} else {
			d.evict(d.ring[d.next])
			d.ring[d.next] = id
			d.next = (d.next + 1) % d.maxSize
		}
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

// evict drops id from the map. The ring slot is reused by the caller.
// Must be called with d.mu held.
func (d *inMemoryDeduper) evict(id int64) {
	if _, ok := d.seen[id]; ok {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// Unrecord leaves the ring slot in place; evicting a forgotten id is a no-op.
func (d *inMemoryDeduper) Unrecord(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evict(id)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
