package broadcast

import "github.com/okian/pulse/pkg/logger"

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithStats sets the snapshot source for stats messages.
func WithStats(fn StatsFunc) Option {
	return func(h *Hub) { h.stats = fn }
}

// WithFanout bounds how many subscribers Close shuts down concurrently.
func WithFanout(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.fanout = n
		}
	}
}

// WithQueueSize sets how many payloads a subscriber may fall behind by
// before it is pruned.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(h *Hub) {
		if lg != nil {
			h.logger = lg
		}
	}
}
