// Package scoring computes the points of a single killmail.
package scoring

import (
	"context"
	"math"
	"time"

	"github.com/okian/killpoints/internal/domain/model"
	"github.com/okian/killpoints/internal/domain/rules"
	"github.com/okian/killpoints/pkg/logger"
	"github.com/okian/killpoints/pkg/metrics"
)

// DefaultExcludedSystems are the trade hub systems where kills never score.
var DefaultExcludedSystems = []int64{30000142, 30002187, 30002510, 30002053, 30002659}

// Weights is the read side of the rule table.
type Weights interface {
	Lookup(category rules.Category, typeID int64) (float64, bool)
}

// Scorer turns a killmail into a ScoredEvent.
type Scorer struct {
	weights         Weights
	dogma           Dogma
	metaCurve       MetaCurve
	window          WindowStrategy
	excludedSystems map[int64]struct{}
	excludedShips   map[int64]struct{}
	metaConcurrency int
	logger          logger.Logger
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithDogma sets the equipment metadata source. Without one every kill is
// treated as neutrally fitted.
func WithDogma(d Dogma) Option {
	return func(s *Scorer) { s.dogma = d }
}

// WithMetaCurve selects the equipment adjustment curve.
func WithMetaCurve(c MetaCurve) Option {
	return func(s *Scorer) { s.metaCurve = c }
}

// WithWindowStrategy selects how grouping windows are derived.
func WithWindowStrategy(w WindowStrategy) Option {
	return func(s *Scorer) { s.window = w }
}

// WithExcludedSystems replaces the excluded solar systems.
func WithExcludedSystems(ids []int64) Option {
	return func(s *Scorer) { s.excludedSystems = toSet(ids) }
}

// WithExcludedShipTypes sets attacker ship types that void a kill.
func WithExcludedShipTypes(ids []int64) Option {
	return func(s *Scorer) { s.excludedShips = toSet(ids) }
}

// WithMetaConcurrency caps parallel meta level lookups per kill.
func WithMetaConcurrency(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.metaConcurrency = n
		}
	}
}

// WithLogger sets the logger used for degenerate scores.
func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scorer over the given weights.
func New(weights Weights, opts ...Option) *Scorer {
	s := &Scorer{
		weights:         weights,
		metaCurve:       ExponentialCurve,
		window:          DynamicWindow,
		excludedSystems: toSet(DefaultExcludedSystems),
		excludedShips:   map[int64]struct{}{},
		metaConcurrency: defaultMetaConcurrency,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the score and grouping window of km. perspective is the
// character whose points are being computed, 0 for none.
// Degenerate inputs score 0; only metadata failures are returned as errors.
func (s *Scorer) Score(ctx context.Context, km model.Killmail, perspective int64) (model.ScoredEvent, error) {
	start := time.Now()
	ev := model.ScoredEvent{
		KillID: km.ID,
		Hash:   km.Hash,
		Time:   km.Time,
		Window: s.Window(km),
	}

	score, reason := s.raw(km, perspective)
	if reason != "" {
		metrics.RecordDegenerateScore(reason)
		s.logger.Debug(ctx, "degenerate score",
			logger.Int64("kill_id", km.ID),
			logger.Int64("perspective", perspective),
			logger.String("reason", reason))
	}

	if why := s.exclusion(km); why != "" {
		metrics.RecordEventExcluded(why)
		score = 0
	}

	if score > 0 {
		level, err := AverageMetaLevel(ctx, s.dogma, km.Victim.ShipTypeID, km.Victim.Items, s.metaConcurrency)
		if err != nil {
			return model.ScoredEvent{}, err
		}
		score *= s.metaCurve.Factor(level)
	}

	if math.IsNaN(score) || score < 0 {
		score = 0
	}
	ev.Score = score

	metrics.RecordEventScored()
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	return ev, nil
}

// raw applies 10 * victim / (pilot + others). A non-empty reason means the
// result collapsed to 0.
func (s *Scorer) raw(km model.Killmail, perspective int64) (float64, string) {
	victim, ok := s.weights.Lookup(rules.RarityAdjusted, km.Victim.ShipTypeID)
	if !ok {
		return 0, "victim_miss"
	}

	var pilot, others float64
	if perspective != 0 {
		present := false
		for _, a := range km.Attackers {
			if !a.IsPlayer() {
				continue
			}
			if a.Is(perspective) {
				present = true
				if a.ShipTypeID == nil {
					return 0, "pilot_miss"
				}
				w, ok := s.weights.Lookup(rules.RiskAdjusted, *a.ShipTypeID)
				if !ok {
					return 0, "pilot_miss"
				}
				pilot = w
				continue
			}
			w, ok := s.weights.Lookup(rules.Base, shipType(a))
			if !ok {
				return 0, "participant_miss"
			}
			others += w
		}
		if !present {
			return 0, "perspective_absent"
		}
	} else {
		for _, a := range km.Attackers {
			if !a.IsPlayer() {
				continue
			}
			ship := shipType(a)
			base, ok := s.weights.Lookup(rules.Base, ship)
			if !ok {
				return 0, "participant_miss"
			}
			others += base
			if risk, ok := s.weights.Lookup(rules.RiskAdjusted, ship); ok {
				pilot = math.Min(pilot, risk-base)
			}
		}
	}

	denominator := pilot + others
	if denominator == 0 {
		return 0, "zero_denominator"
	}
	score := 10 * victim / denominator
	switch {
	case math.IsNaN(score) || math.IsInf(score, 0):
		return 0, "non_finite"
	case score < 0:
		return 0, "negative"
	}
	return score, ""
}

// Window returns the grouping window of km. It only uses unadjusted weights,
// so it is the same from every perspective.
func (s *Scorer) Window(km model.Killmail) time.Duration {
	victimCategory := rules.TimeAdjusted
	if s.window == LinearWindow {
		victimCategory = rules.Base
	}
	victim, ok := s.weights.Lookup(victimCategory, km.Victim.ShipTypeID)
	if !ok {
		return s.window.Fallback()
	}

	var attackers []float64
	for _, a := range km.Attackers {
		if !a.IsPlayer() {
			continue
		}
		w, ok := s.weights.Lookup(rules.Base, shipType(a))
		if !ok {
			return s.window.Fallback()
		}
		attackers = append(attackers, w)
	}

	d, _ := s.window.compute(victim, attackers)
	return d
}

// exclusion returns why km is void, or "".
func (s *Scorer) exclusion(km model.Killmail) string {
	if _, ok := s.excludedSystems[km.SolarSystemID]; ok {
		return "system"
	}
	for _, a := range km.Attackers {
		if a.ShipTypeID == nil {
			continue
		}
		if _, ok := s.excludedShips[*a.ShipTypeID]; ok {
			return "attacker_type"
		}
	}
	return ""
}

// shipType is the attacker's ship, or 0 when unknown.
func shipType(a model.Attacker) int64 {
	if a.ShipTypeID == nil {
		return 0
	}
	return *a.ShipTypeID
}

func toSet(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
