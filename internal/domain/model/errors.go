package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrUnknownCategory   = errors.New("unknown category")
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
