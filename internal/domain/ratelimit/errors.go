package ratelimit

import "errors"

// Sentinel kinds for limiter configuration errors.
var (
	ErrInvalidLimit  = errors.New("limit must be at least 1")
	ErrInvalidWindow = errors.New("window must be positive")
)
