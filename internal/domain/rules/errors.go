package rules

import "errors"

var (
	// ErrUnknownCategory is returned for a category name that does not exist.
	ErrUnknownCategory = errors.New("unknown rule category")
	// ErrNoSource is returned by Refresh when the table has no source.
	ErrNoSource = errors.New("rule table has no source")
	// ErrPartialRefresh means at least one category kept its previous weights.
	ErrPartialRefresh = errors.New("rule refresh incomplete")
)
