package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MetaCurve maps an average meta level to a score multiplier.
type MetaCurve int

const (
	// ExponentialCurve is the smooth curve bounded to about [0.5, 1.5] on [0, 10].
	ExponentialCurve MetaCurve = iota
	// LinearCurve is the legacy 0.5 + 0.1*level multiplier.
	LinearCurve
)

// ParseMetaCurve accepts "exponential" or "linear".
func ParseMetaCurve(s string) (MetaCurve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exponential":
		return ExponentialCurve, nil
	case "linear":
		return LinearCurve, nil
	}
	return 0, fmt.Errorf("%w: meta curve %q", ErrUnknownStrategy, s)
}

func (c MetaCurve) String() string {
	if c == LinearCurve {
		return "linear"
	}
	return "exponential"
}

// Factor returns the multiplier for an average meta level.
func (c MetaCurve) Factor(level float64) float64 {
	if c == LinearCurve {
		return 0.5 + 0.1*level
	}
	linear := (level - NeutralMetaLevel) / NeutralMetaLevel
	exponential := linear * math.Exp(math.Abs(linear)*0.8) * (0.5 / math.Exp(0.8))
	return exponential + 1
}

// WindowStrategy selects how the grouping window of a kill is derived.
type WindowStrategy int

const (
	// DynamicWindow scales with the victim's time weight against the attackers' combined weight.
	DynamicWindow WindowStrategy = iota
	// LinearWindow is the legacy 180s * victim / attackers rule.
	LinearWindow
)

const (
	windowBase        = 60 * time.Second
	windowScaling     = 60 * time.Second
	attackerScaling   = 1.6
	linearWindowScale = 180 * time.Second
)

// ParseWindowStrategy accepts "dynamic" or "linear".
func ParseWindowStrategy(s string) (WindowStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dynamic":
		return DynamicWindow, nil
	case "linear":
		return LinearWindow, nil
	}
	return 0, fmt.Errorf("%w: window strategy %q", ErrUnknownStrategy, s)
}

func (w WindowStrategy) String() string {
	if w == LinearWindow {
		return "linear"
	}
	return "dynamic"
}

// Fallback is the window used when the weights do not allow a computation.
func (w WindowStrategy) Fallback() time.Duration {
	if w == LinearWindow {
		return linearWindowScale
	}
	return windowBase + windowScaling
}

// compute derives the window from the victim weight and the attackers' base weights.
// victim is the time_adjusted weight for DynamicWindow and the base weight for LinearWindow.
func (w WindowStrategy) compute(victim float64, attackers []float64) (time.Duration, bool) {
	if len(attackers) == 0 {
		return w.Fallback(), false
	}
	var ratio float64
	if w == LinearWindow {
		var sum float64
		for _, a := range attackers {
			sum += a
		}
		ratio = victim / sum
		d, ok := scaleDuration(linearWindowScale, ratio)
		if !ok {
			return w.Fallback(), false
		}
		return d, true
	}

	var sum float64
	for _, a := range attackers {
		sum += math.Pow(a, attackerScaling)
	}
	ratio = victim / math.Pow(sum, 1/attackerScaling)
	d, ok := scaleDuration(windowScaling, ratio)
	if !ok {
		return w.Fallback(), false
	}
	return windowBase + d, true
}

func scaleDuration(d time.Duration, ratio float64) (time.Duration, bool) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 0 {
		return 0, false
	}
	scaled := float64(d) * ratio
	if scaled > math.MaxInt64 {
		return 0, false
	}
	return time.Duration(math.Round(scaled)), true
}
