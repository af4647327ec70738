// Package repository holds the in-memory leaderboard of tracked entities.
package repository

import (
	"context"
	"time"

	"github.com/okian/killpoints/internal/domain/types"
)

// Record is the stored state of one tracked entity.
type Record struct {
	EntityID  int64
	Points    float64
	UpdatedAt time.Time // zero until the first computation
}

// Store provides read/write access to the leaderboard.
type Store interface {
	// Track adds an entity with zero points. Returns false if it was already tracked.
	Track(ctx context.Context, entityID int64) bool
	// Upsert sets the points of an entity, tracking it if needed.
	Upsert(ctx context.Context, entityID int64, points float64, at time.Time) error
	// Remove stops tracking an entity. Returns false if it was not tracked.
	Remove(ctx context.Context, entityID int64) bool

	// Get returns the stored record of an entity or ErrNotFound.
	Get(ctx context.Context, entityID int64) (Record, error)
	// Rank returns the 1-based position of an entity or ErrNotFound.
	Rank(ctx context.Context, entityID int64) (types.Entry, error)
	// TopN returns the top-N entries ordered by points desc, entity id asc.
	TopN(ctx context.Context, n int) ([]types.Entry, error)
	// Stale lists entities last computed before cutoff, oldest first.
	Stale(ctx context.Context, cutoff time.Time) []int64

	// Count returns the number of tracked entities.
	Count(ctx context.Context) int
}
