package watch

import "errors"

// Sentinel kinds for watch errors.
var (
	ErrGaveUp      = errors.New("stream client gave up reconnecting")
	ErrRateLimited = errors.New("rate limited by server")
	ErrControl     = errors.New("control request failed")
)
