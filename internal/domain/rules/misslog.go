package rules

import (
	"sync"
)

// Miss is a lookup that found no weight.
type Miss struct {
	Category Category
	TypeID   int64
}

// MissLog records misses awaiting write-back. It is bounded: when full,
// the oldest pending miss is evicted. Misses that were already written back
// are not recorded again.
type MissLog struct {
	mu       sync.Mutex
	pending  map[Miss]struct{}
	order    []Miss
	reported map[Miss]struct{}
	maxSize  int // 0 or negative = unbounded
}

// MissLogOption configures a MissLog.
type MissLogOption func(*MissLog)

// WithMaxPending caps the number of pending misses.
func WithMaxPending(n int) MissLogOption {
	return func(l *MissLog) {
		l.maxSize = n
	}
}

// NewMissLog creates an empty miss log.
func NewMissLog(opts ...MissLogOption) *MissLog {
	l := &MissLog{
		pending:  make(map[Miss]struct{}),
		reported: make(map[Miss]struct{}),
		maxSize:  10000,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record adds m unless it is already pending or reported.
// Returns true if m was newly recorded.
func (l *MissLog) Record(m Miss) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[m]; ok {
		return false
	}
	if _, ok := l.reported[m]; ok {
		return false
	}
	if l.maxSize > 0 && len(l.order) >= l.maxSize {
		l.evictOldest()
	}
	l.pending[m] = struct{}{}
	l.order = append(l.order, m)
	return true
}

// evictOldest drops the first pending miss. Must be called with l.mu held.
func (l *MissLog) evictOldest() {
	if len(l.order) == 0 {
		return
	}
	delete(l.pending, l.order[0])
	l.order = l.order[1:]
}

// Drain returns pending misses in the order they were recorded and clears them.
func (l *MissLog) Drain() []Miss {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.order
	l.order = nil
	l.pending = make(map[Miss]struct{})
	return out
}

// MarkReported stops ms from being recorded again.
func (l *MissLog) MarkReported(ms []Miss) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range ms {
		l.reported[m] = struct{}{}
	}
}

// Size returns the number of pending misses.
func (l *MissLog) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
