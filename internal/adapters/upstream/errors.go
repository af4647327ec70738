package upstream

import "errors"

var (
	// ErrDataUnavailable is terminal: the record could not be fetched within the retry budget.
	ErrDataUnavailable = errors.New("upstream data unavailable")
	// ErrRateLimited is a 429 answer. It is retried and escalates to ErrDataUnavailable.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrMalformedRecord is a body that does not decode. It is retried and escalates to ErrDataUnavailable.
	ErrMalformedRecord = errors.New("malformed upstream record")
	// ErrNotFound is a definitive 4xx answer and is never retried.
	ErrNotFound = errors.New("upstream record not found")
	// ErrUnknownCharacter is returned when a name does not resolve to a character.
	ErrUnknownCharacter = errors.New("unknown character")

	errServer = errors.New("upstream server error")
)
