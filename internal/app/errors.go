package service

import "errors"

var (
	// ErrNotStarted is returned by operations that need the leaderboard before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrUnknownPerspective is returned for a perspective name that does not exist.
	ErrUnknownPerspective = errors.New("unknown perspective")
)
