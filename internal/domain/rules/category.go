// Package rules holds the per-ship-type weight tables used for scoring.
package rules

import (
	"fmt"
	"strings"
)

// Category selects one of the weight columns of the rule sheet.
type Category int

const (
	// Base is the standard weight of a ship type.
	Base Category = iota
	// RarityAdjusted weights a ship type as a victim.
	RarityAdjusted
	// RiskAdjusted weights the ship flown by the scoring pilot.
	RiskAdjusted
	// TimeAdjusted drives the grouping window.
	TimeAdjusted
)

var categoryNames = [...]string{
	Base:           "base",
	RarityAdjusted: "rarity_adjusted",
	RiskAdjusted:   "risk_adjusted",
	TimeAdjusted:   "time_adjusted",
}

// Categories lists every category in sheet order.
func Categories() []Category {
	return []Category{Base, RarityAdjusted, RiskAdjusted, TimeAdjusted}
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory accepts the snake case name of a category.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
