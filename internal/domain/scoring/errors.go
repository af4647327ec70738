package scoring

import "errors"

var (
	// ErrUnknownStrategy is returned when a strategy name is not recognised.
	ErrUnknownStrategy = errors.New("unknown scoring strategy")
	// ErrMetadata wraps failures of the equipment metadata source.
	ErrMetadata = errors.New("equipment metadata unavailable")
)
