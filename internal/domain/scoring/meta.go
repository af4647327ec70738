package scoring

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/killpoints/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// NeutralMetaLevel is the level that leaves a score unchanged.
const NeutralMetaLevel = 5.0

const (
	firstFittedFlag = 11
	lastFittedFlag  = 34

	defaultMetaConcurrency = 8
)

// Dogma resolves static item metadata. Implementations memoise; the data never changes.
type Dogma interface {
	// MetaLevel returns the meta level of an item type. known is false when
	// the type has no meta level attribute.
	MetaLevel(ctx context.Context, typeID int64) (level float64, known bool, err error)
	// Slots returns the number of low, mid and high slots of a ship type, 0 if unknown.
	Slots(ctx context.Context, shipTypeID int64) (int, error)
}

// fitted reports whether an item occupies a fitting slot as a single module.
// Charges share slot flags with modules but come in stacks.
func fitted(item model.Item) bool {
	return item.Flag >= firstFittedFlag && item.Flag <= lastFittedFlag && item.Quantity() == 1
}

// AverageMetaLevel averages the best meta level per fitted slot over the ship's slot count.
// Empty slots and items without a meta level attribute count as level 0.
// When the slot count is unknown the average runs over the
// counted slots only, and with nothing counted it is NeutralMetaLevel.
// All lookups finish before averaging; the first lookup error is returned.
func AverageMetaLevel(ctx context.Context, dogma Dogma, shipTypeID int64, items []model.Item, concurrency int) (float64, error) {
	if dogma == nil {
		return NeutralMetaLevel, nil
	}
	if concurrency <= 0 {
		concurrency = defaultMetaConcurrency
	}

	types := make(map[int64]struct{})
	for _, it := range items {
		if fitted(it) {
			types[it.TypeID] = struct{}{}
		}
	}

	levels := make(map[int64]float64, len(types))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for typeID := range types {
		g.Go(func() error {
			level, known, err := dogma.MetaLevel(gctx, typeID)
			if err != nil {
				return fmt.Errorf("%w: type %d: %w", ErrMetadata, typeID, err)
			}
			if !known {
				level = 0
			}
			mu.Lock()
			levels[typeID] = level
			mu.Unlock()
			return nil
		})
	}
	var slots int
	g.Go(func() error {
		n, err := dogma.Slots(gctx, shipTypeID)
		if err != nil {
			return fmt.Errorf("%w: slots of %d: %w", ErrMetadata, shipTypeID, err)
		}
		slots = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	perSlot := make(map[int]float64)
	for _, it := range items {
		if !fitted(it) {
			continue
		}
		level := levels[it.TypeID]
		if cur, ok := perSlot[it.Flag]; !ok || level > cur {
			perSlot[it.Flag] = level
		}
	}

	var sum float64
	for _, level := range perSlot {
		sum += level
	}
	switch {
	case slots > 0:
		return sum / float64(slots), nil
	case len(perSlot) > 0:
		return sum / float64(len(perSlot)), nil
	default:
		return NeutralMetaLevel, nil
	}
}
