package service

import (
	"fmt"
	"strings"
)

// Perspective decides whether the scored entity's own ship takes part in the
// score formula when totals are computed.
type Perspective int

const (
	// PerspectiveAbsent scores every kill as if the entity was just another attacker.
	PerspectiveAbsent Perspective = iota
	// PerspectivePresent weights the entity's own ship separately.
	PerspectivePresent
)

// ParsePerspective accepts "absent" or "present".
func ParsePerspective(s string) (Perspective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "absent":
		return PerspectiveAbsent, nil
	case "present":
		return PerspectivePresent, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPerspective, s)
}

func (p Perspective) String() string {
	if p == PerspectivePresent {
		return "present"
	}
	return "absent"
}

// of returns the perspective id passed to the scorer for entityID.
func (p Perspective) of(entityID int64) int64 {
	if p == PerspectivePresent {
		return entityID
	}
	return 0
}
