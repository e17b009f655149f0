package buffer

import (
	"time"

	"github.com/okian/pulse/pkg/task"
)

// Option applies a configuration option to the Buffer.
type Option func(*Buffer)

// WithCapacity caps the number of stored records.
func WithCapacity(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithCommitDelay sets the coalescing window between ingest and commit.
func WithCommitDelay(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.commitDelay = d
		}
	}
}

// WithThroughputInterval sets the sampling cadence.
func WithThroughputInterval(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.throughputInterval = d
		}
	}
}

// WithScheduler sets the clock driving commits and sampling.
func WithScheduler(s task.Scheduler) Option {
	return func(b *Buffer) {
		if s != nil {
			b.sched = s
		}
	}
}
