package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrBadID      = errors.New("invalid id")
	ErrBadLimit   = errors.New("invalid limit")
)

// opError tags err with the handler operation that produced it.
func opError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
