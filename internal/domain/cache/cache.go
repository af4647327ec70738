// Package cache memoises scored killmails by (kill id, perspective).
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/okian/killpoints/internal/domain/model"
	"github.com/okian/killpoints/pkg/metrics"
)

const defaultSize = 200_000

// Key identifies one scored view of a kill. Perspective 0 means none.
type Key struct {
	KillID      int64
	Perspective int64
}

// ScoreCache stores scored events. Values are never replaced once stored.
type ScoreCache interface {
	Get(key Key) (model.ScoredEvent, bool)
	Put(key Key, value model.ScoredEvent)
	Len() int
}

// LRU is a bounded ScoreCache with optional expiry.
type LRU struct {
	name  string
	size  int
	ttl   time.Duration
	inner *expirable.LRU[Key, model.ScoredEvent]
}

// Option configures an LRU.
type Option func(*LRU)

// WithSize caps the number of entries. 0 means unbounded.
func WithSize(n int) Option {
	return func(c *LRU) {
		if n >= 0 {
			c.size = n
		}
	}
}

// WithTTL expires entries after d. 0 keeps them until evicted.
func WithTTL(d time.Duration) Option {
	return func(c *LRU) {
		if d >= 0 {
			c.ttl = d
		}
	}
}

// WithName labels the cache in metrics.
func WithName(name string) Option {
	return func(c *LRU) {
		if name != "" {
			c.name = name
		}
	}
}

// New creates an LRU score cache.
func New(opts ...Option) *LRU {
	c := &LRU{
		name: "score",
		size: defaultSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.inner = expirable.NewLRU[Key, model.ScoredEvent](c.size, nil, c.ttl)
	return c
}

// Get returns the cached event for key.
func (c *LRU) Get(key Key) (model.ScoredEvent, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		metrics.RecordCacheHit(c.name)
	} else {
		metrics.RecordCacheMiss(c.name)
	}
	return v, ok
}

// Put stores value unless key is already present. Concurrent fills of the
// same key may both compute; the first stored value wins.
func (c *LRU) Put(key Key, value model.ScoredEvent) {
	if c.inner.Contains(key) {
		return
	}
	c.inner.Add(key, value)
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	return c.inner.Len()
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.inner.Purge()
}
