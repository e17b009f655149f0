package broadcast

import "errors"

// Sentinel kinds for hub errors.
var (
	ErrHubClosed      = errors.New("hub closed")
	ErrSnapshotFailed = errors.New("stats snapshot not delivered")
)
