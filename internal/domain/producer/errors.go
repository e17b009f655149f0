package producer

import "errors"

// Sentinel kinds for producer configuration errors.
var (
	ErrInvalidRate      = errors.New("invalid rate")
	ErrInvalidBatchSize = errors.New("invalid batch size")
)
