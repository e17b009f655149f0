package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrNotHijackable = errors.New("response writer does not support hijacking")
)
