// Package grouping folds scored kills into kill chains and reduces chains to totals.
package grouping

import (
	"math"
	"slices"
	"time"

	"github.com/okian/killpoints/internal/domain/model"
)

// DefaultMultiplier is the chain multiplier base M.
const DefaultMultiplier = 2.0

// Member is one kill in a chain.
type Member struct {
	KillID int64   `json:"kill_id"`
	Score  float64 `json:"score"`
}

// Chain is a run of kills close enough in time to count together.
// The representative is the first kill of the chain.
type Chain struct {
	RepresentativeID int64    `json:"representative_id"`
	Members          []Member `json:"members"`
	Score            float64  `json:"score"`
}

type options struct {
	multiplier float64
}

// Option configures Collate.
type Option func(*options)

// WithMultiplier sets the chain multiplier base. Values <= 1 are ignored.
func WithMultiplier(m float64) Option {
	return func(o *options) {
		if m > 1 {
			o.multiplier = m
		}
	}
}

// Multiplier is the weight of the i-th member (zero based): M - M^-i.
// With M=2 the sequence is 1, 1.5, 1.75, ...
func Multiplier(m float64, i int) float64 {
	return m - math.Pow(m, -float64(i))
}

// Collate groups events into chains in one pass over the time-sorted events.
// Events with a non-positive score are dropped. An event joins the open chain
// when its time minus its own window is before the latest time in the chain.
// Chains come back in creation order.
func Collate(events []model.ScoredEvent, opts ...Option) []Chain {
	o := options{multiplier: DefaultMultiplier}
	for _, opt := range opts {
		opt(&o)
	}

	sorted := make([]model.ScoredEvent, 0, len(events))
	for _, e := range events {
		if e.Score > 0 {
			sorted = append(sorted, e)
		}
	}
	slices.SortStableFunc(sorted, func(a, b model.ScoredEvent) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}
		switch {
		case a.KillID < b.KillID:
			return -1
		case a.KillID > b.KillID:
			return 1
		}
		return 0
	})

	var chains []Chain
	var reach time.Time // max timestamp of the open chain
	for _, e := range sorted {
		if len(chains) > 0 && e.Time.Add(-e.Window).Before(reach) {
			cur := &chains[len(chains)-1]
			cur.Score += e.Score * Multiplier(o.multiplier, len(cur.Members))
			cur.Members = append(cur.Members, Member{KillID: e.KillID, Score: e.Score})
			if e.Time.After(reach) {
				reach = e.Time
			}
			continue
		}
		chains = append(chains, Chain{
			RepresentativeID: e.KillID,
			Members:          []Member{{KillID: e.KillID, Score: e.Score}},
			Score:            e.Score * Multiplier(o.multiplier, 0),
		})
		reach = e.Time
	}
	return chains
}
