package sink

import "errors"

// Sentinel kinds for sink errors.
var (
	ErrUnknownDriver = errors.New("unknown sink driver")
	ErrConnect       = errors.New("sink connect failed")
	ErrClosed        = errors.New("sink closed")
	ErrMissingPath   = errors.New("sink path required")
	ErrMissingURL    = errors.New("sink url required")
)
