package repository

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/okian/killpoints/internal/domain/types"
	"github.com/okian/killpoints/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: points DESC, then entityID ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the leaderboard
// from best to worst. Subtree sizes give O(log n) rank queries.

// pointsScale keeps two decimals exact; totals are rounded to cents upstream.
const pointsScale = 10_000

type pointsFP int64

func toFixedPoint(x float64) pointsFP {
	return pointsFP(math.Round(x * pointsScale))
}

func toFloat(x pointsFP) float64 {
	return float64(x) / pointsScale
}

// treap node
type node struct {
	id     int64
	points pointsFP
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aPoints, aID) should appear before (bPoints, bID).
func less(aPoints pointsFP, aID int64, bPoints pointsFP, bID int64) bool {
	if aPoints != bPoints {
		return aPoints > bPoints
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, nn *node) *node {
	if n == nil {
		return nn
	}
	if less(nn.points, nn.id, n.points, n.id) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id int64, points pointsFP) *node {
	if n == nil {
		return nil
	}
	if points == n.points && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, points)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, points)
		}
	} else if less(points, id, n.points, n.id) {
		n.left = deleteNode(n.left, id, points)
	} else {
		n.right = deleteNode(n.right, id, points)
	}
	fix(n)
	return n
}

// position returns how many nodes rank strictly before (points, id).
func position(n *node, id int64, points pointsFP) int {
	before := 0
	for n != nil {
		switch {
		case n.id == id && n.points == points:
			return before + nsize(n.left)
		case less(points, id, n.points, n.id):
			n = n.left
		default:
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return before
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.Entry{
			Rank:     len(*out) + 1,
			EntityID: n.id,
			Points:   toFloat(n.points),
		})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[int64]*Record
	rng  *rand.Rand
	seed uint64

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTreapStore constructs a treap store and starts its metrics updater.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[int64]*Record),
		metricsUpdateInterval: 5 * time.Second,
		seed:                  uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background goroutines.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Track implements Store.Track.
func (s *TreapStore) Track(ctx context.Context, entityID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[entityID]; ok {
		return false
	}
	s.byID[entityID] = &Record{EntityID: entityID}
	s.root = insert(s.root, &node{id: entityID, prio: s.rng.Uint64(), size: 1})
	return true
}

// Upsert implements Store.Upsert with O(log n) expected time.
func (s *TreapStore) Upsert(ctx context.Context, entityID int64, points float64, at time.Time) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if math.IsNaN(points) || math.IsInf(points, 0) || points < 0 {
		metrics.RecordErrorByComponent("repository", "invalid_points")
		return ErrInvalidScore
	}
	np := toFixedPoint(points)

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byID[entityID]; ok {
		old := toFixedPoint(rec.Points)
		rec.Points, rec.UpdatedAt = toFloat(np), at
		if old == np {
			return nil
		}
		s.root = deleteNode(s.root, entityID, old)
	} else {
		s.byID[entityID] = &Record{EntityID: entityID, Points: toFloat(np), UpdatedAt: at}
	}
	s.root = insert(s.root, &node{id: entityID, points: np, prio: s.rng.Uint64(), size: 1})
	metrics.RecordLeaderboardUpdate()
	return nil
}

// Remove implements Store.Remove.
func (s *TreapStore) Remove(ctx context.Context, entityID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[entityID]
	if !ok {
		return false
	}
	s.root = deleteNode(s.root, entityID, toFixedPoint(rec.Points))
	delete(s.byID, entityID)
	return true
}

// Get implements Store.Get.
func (s *TreapStore) Get(ctx context.Context, entityID int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[entityID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// Rank returns the current position and points of an entity in O(log n).
func (s *TreapStore) Rank(ctx context.Context, entityID int64) (types.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[entityID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, ErrNotFound
	}
	p := toFixedPoint(rec.Points)
	return types.Entry{
		Rank:     position(s.root, entityID, p) + 1,
		EntityID: entityID,
		Points:   toFloat(p),
	}, nil
}

// TopN returns the top N entries ordered by points desc.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, &out)
	return out, nil
}

// Stale implements Store.Stale.
func (s *TreapStore) Stale(ctx context.Context, cutoff time.Time) []int64 {
	s.mu.RLock()
	recs := make([]Record, 0)
	for _, rec := range s.byID {
		if rec.UpdatedAt.Before(cutoff) {
			recs = append(recs, *rec)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b Record) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.EntityID
	}
	return out
}

// Count returns the number of tracked entities.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// startMetricsUpdater periodically publishes the tracked entity count.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateTrackedEntities(s.Count(ctx))
			}
		}
	}()
}
