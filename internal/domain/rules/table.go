package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/killpoints/pkg/logger"
	"github.com/okian/killpoints/pkg/metrics"
)

const defaultMinRefreshInterval = 5 * time.Minute

// MissingRow is a type id without a weight, written back to the source for backfill.
type MissingRow struct {
	TypeID int64
	Name   string
}

// Source supplies weights for one season and accepts missing rows.
type Source interface {
	Fetch(ctx context.Context, season int, category Category) (map[int64]float64, error)
	WriteBack(ctx context.Context, season int, category Category, rows []MissingRow) error
}

// Namer resolves a type id to a display name for write-back rows.
type Namer interface {
	TypeName(ctx context.Context, typeID int64) (string, error)
}

type weights map[Category]map[int64]float64

// Table is the live rule table. Lookups are lock free; Refresh swaps the
// whole table at once so readers never see a half-loaded category.
type Table struct {
	season      int
	source      Source
	namer       Namer
	minInterval time.Duration
	now         func() time.Time
	logger      logger.Logger
	misses      *MissLog

	current atomic.Pointer[weights]

	mu          sync.Mutex // serialises Refresh
	lastRefresh time.Time
}

// Option configures a Table.
type Option func(*Table)

// WithSource sets where Refresh pulls weights from.
func WithSource(src Source) Option {
	return func(t *Table) { t.source = src }
}

// WithNamer sets the resolver used to name missing rows.
func WithNamer(n Namer) Option {
	return func(t *Table) { t.namer = n }
}

// WithSeason sets the season the source is read for.
func WithSeason(season int) Option {
	return func(t *Table) { t.season = season }
}

// WithMinRefreshInterval throttles Refresh.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(t *Table) {
		if d >= 0 {
			t.minInterval = d
		}
	}
}

// WithWeights seeds the table.
func WithWeights(seed map[Category]map[int64]float64) Option {
	return func(t *Table) {
		w := make(weights, len(seed))
		for c, m := range seed {
			w[c] = copyWeights(m)
		}
		t.current.Store(&w)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		if now != nil {
			t.now = now
		}
	}
}

// WithMissLog replaces the default miss log.
func WithMissLog(l *MissLog) Option {
	return func(t *Table) {
		if l != nil {
			t.misses = l
		}
	}
}

// New creates a rule table. Without WithWeights it starts empty and every
// lookup misses until the first Refresh.
func New(opts ...Option) *Table {
	t := &Table{
		minInterval: defaultMinRefreshInterval,
		now:         time.Now,
		logger:      logger.Nop(),
		misses:      NewMissLog(),
	}
	empty := weights{}
	t.current.Store(&empty)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lookup returns the weight of typeID in category. A miss is recorded for
// write-back and reported as ok=false.
func (t *Table) Lookup(category Category, typeID int64) (float64, bool) {
	w := *t.current.Load()
	if v, ok := w[category][typeID]; ok {
		return v, true
	}
	metrics.RecordRuleMiss(category.String())
	t.misses.Record(Miss{Category: category, TypeID: typeID})
	return 0, false
}

// Len returns the number of weights in category.
func (t *Table) Len(category Category) int {
	return len((*t.current.Load())[category])
}

// PendingMisses returns the number of misses awaiting write-back.
func (t *Table) PendingMisses() int {
	return t.misses.Size()
}

// LastRefresh returns when the table last pulled from its source.
func (t *Table) LastRefresh() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRefresh
}

// Refresh pulls every category from the source and writes back pending misses.
// Calls within the minimum interval of the previous refresh are no-ops.
// A category that fails to load keeps its previous weights.
func (t *Table) Refresh(ctx context.Context) error {
	if t.source == nil {
		return ErrNoSource
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.lastRefresh.IsZero() && now.Sub(t.lastRefresh) < t.minInterval {
		metrics.RecordRuleRefresh("skipped")
		return nil
	}
	t.lastRefresh = now

	old := *t.current.Load()
	next := make(weights, len(old))
	var errs []error
	for _, c := range Categories() {
		fetched, err := t.source.Fetch(ctx, t.season, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s: %w", c, err))
			next[c] = old[c]
			continue
		}
		next[c] = fetched
		metrics.UpdateRuleEntries(c.String(), len(fetched))
	}
	t.current.Store(&next)

	if err := t.writeBack(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		metrics.RecordRuleRefresh("partial")
		t.logger.Warn(ctx, "rule refresh incomplete", logger.Error(errors.Join(errs...)))
		return fmt.Errorf("%w: %w", ErrPartialRefresh, errors.Join(errs...))
	}
	metrics.RecordRuleRefresh("ok")
	t.logger.Info(ctx, "rules refreshed",
		logger.Int("season", t.season),
		logger.Int("base", len(next[Base])),
		logger.Int("rarity_adjusted", len(next[RarityAdjusted])),
		logger.Int("risk_adjusted", len(next[RiskAdjusted])),
		logger.Int("time_adjusted", len(next[TimeAdjusted])))
	return nil
}

// writeBack sends drained misses to the source, one call per category.
// Misses that fail to write are recorded again for the next refresh.
func (t *Table) writeBack(ctx context.Context) error {
	drained := t.misses.Drain()
	if len(drained) == 0 {
		return nil
	}

	byCategory := make(map[Category][]Miss)
	for _, m := range drained {
		byCategory[m.Category] = append(byCategory[m.Category], m)
	}

	var errs []error
	for _, c := range Categories() {
		ms := byCategory[c]
		if len(ms) == 0 {
			continue
		}
		rows := make([]MissingRow, 0, len(ms))
		for _, m := range ms {
			rows = append(rows, MissingRow{TypeID: m.TypeID, Name: t.name(ctx, m.TypeID)})
		}
		if err := t.source.WriteBack(ctx, t.season, c, rows); err != nil {
			errs = append(errs, fmt.Errorf("write back %s: %w", c, err))
			for _, m := range ms {
				t.misses.Record(m)
			}
			continue
		}
		t.misses.MarkReported(ms)
		t.logger.Info(ctx, "wrote back missing rule rows",
			logger.String("category", c.String()),
			logger.Int("rows", len(rows)))
	}
	return errors.Join(errs...)
}

func (t *Table) name(ctx context.Context, typeID int64) string {
	if t.namer == nil {
		return ""
	}
	name, err := t.namer.TypeName(ctx, typeID)
	if err != nil || name == "" {
		t.logger.Debug(ctx, "type name unavailable", logger.Int64("type_id", typeID), logger.Error(err))
		return fmt.Sprintf("Type ID: %d", typeID)
	}
	return name
}

func copyWeights(m map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
