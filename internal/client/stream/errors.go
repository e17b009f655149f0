package stream

import "errors"

// Sentinel kinds for client errors.
var (
	ErrClosed     = errors.New("stream client closed")
	ErrMissingURL = errors.New("stream url required")
)
