package ratelimit

import (
	"time"

	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/task"
)

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithScheduler sets the clock and timer source.
func WithScheduler(s task.Scheduler) Option {
	return func(l *Limiter) {
		if s != nil {
			l.sched = s
		}
	}
}

// WithSweepInterval sets how often idle buckets are swept. Defaults to the window.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Limiter) {
		if lg != nil {
			l.logger = lg
		}
	}
}
