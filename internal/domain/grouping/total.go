package grouping

import (
	"cmp"
	"math"
	"slices"
)

// DefaultTopN is how many chains count towards a total.
const DefaultTopN = 30

// Total sums the best topN chain scores, rounded to 2 decimals.
// topN <= 0 uses DefaultTopN.
func Total(chains []Chain, topN int) float64 {
	if topN <= 0 {
		topN = DefaultTopN
	}
	scores := make([]float64, len(chains))
	for i, c := range chains {
		scores[i] = c.Score
	}
	slices.SortFunc(scores, func(a, b float64) int { return cmp.Compare(b, a) })
	if len(scores) > topN {
		scores = scores[:topN]
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return Round2(sum)
}

// Best returns chains ordered by score, highest first, capped at topN.
func Best(chains []Chain, topN int) []Chain {
	if topN <= 0 {
		topN = DefaultTopN
	}
	out := slices.Clone(chains)
	slices.SortStableFunc(out, func(a, b Chain) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Standing is one entity's total.
type Standing struct {
	EntityID int64
	Points   float64
}

// Rank orders standings by points, highest first; ties go to the lower entity id.
func Rank(standings []Standing) []Standing {
	out := slices.Clone(standings)
	slices.SortFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	return out
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
