package rulesource

import "errors"

// ErrSheetUnavailable is returned when the season sheet cannot be read or written.
var ErrSheetUnavailable = errors.New("rule sheet unavailable")
