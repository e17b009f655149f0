// Package types contains read-side shapes shared by the server and the
// subscriber.
package types

// StreamStats is the snapshot carried by "stats" envelopes and served on
// the stats endpoints.
type StreamStats struct {
	Running        bool  `json:"isRunning"`
	Rate           int   `json:"rate"`
	BatchSize      int   `json:"batchSize"`
	TotalGenerated int64 `json:"totalGenerated"`
	Pending        int   `json:"pending"`
	BatchesFlushed int64 `json:"batchesFlushed"`
	Subscribers    int   `json:"subscribers"`
}

// LimiterStats describes the admission limiter. It has no side effects to
// compute.
type LimiterStats struct {
	ActiveBuckets int   `json:"activeBuckets"`
	Limit         int   `json:"limit"`
	WindowMs      int64 `json:"windowMs"`
}
