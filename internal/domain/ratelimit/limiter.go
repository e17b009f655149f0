// Package ratelimit implements per-key token bucket admission control with
// lazy refill and a background sweep of idle buckets.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/task"
)

// idleFactor is how many windows a bucket may sit without a refill before
// the sweep removes it.
const idleFactor = 2

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is set only on denial: the end of the current window.
	ResetAt time.Time
}

// RetryAfter returns how long a denied caller should wait, rounded up to
// whole seconds with a floor of one second. It is zero when allowed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// Bucket is a read-only view of one key's state.
type Bucket struct {
	Tokens     int
	LastRefill time.Time
	FirstSeen  time.Time
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	firstSeen  time.Time
	// removed is set by the sweep; holders of a stale pointer retry.
	removed bool
}

// Limiter owns a set of token buckets keyed by caller identity.
type Limiter struct {
	limit         int
	window        time.Duration
	sweepInterval time.Duration
	sched         task.Scheduler
	logger        logger.Logger

	buckets sync.Map // string -> *bucket
	active  atomic.Int64

	mu      sync.Mutex
	sweeper task.Task
}

// New creates a limiter admitting limit calls per window for each key.
func New(limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit %d", ErrInvalidLimit, limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window %s", ErrInvalidWindow, window)
	}

	l := &Limiter{
		limit:         limit,
		window:        window,
		sweepInterval: window,
		sched:         task.System(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("ratelimit")
	}
	return l, nil
}

// Consume checks and, when allowed, takes one token for key.
func (l *Limiter) Consume(ctx context.Context, key string) Decision {
	for {
		v, ok := l.buckets.Load(key)
		if !ok {
			now := l.sched.Now()
			fresh := &bucket{tokens: l.limit - 1, lastRefill: now, firstSeen: now}
			actual, loaded := l.buckets.LoadOrStore(key, fresh)
			if !loaded {
				metrics.UpdateLimiterActiveBuckets(int(l.active.Add(1)))
				metrics.RecordAdmission(true)
				return Decision{Allowed: true, Limit: l.limit, Remaining: fresh.tokens}
			}
			v = actual
		}

		b := v.(*bucket)
		b.mu.Lock()
		if b.removed {
			b.mu.Unlock()
			continue
		}
		d := l.take(b, l.sched.Now())
		b.mu.Unlock()

		metrics.RecordAdmission(d.Allowed)
		if !d.Allowed {
			l.logger.Debug(ctx, "admission denied",
				logger.String("key", key),
				logger.String("reset", d.ResetAt.Format(time.RFC3339)),
			)
		}
		return d
	}
}

// take refills b lazily and spends one token. Callers hold b.mu.
func (l *Limiter) take(b *bucket, now time.Time) Decision {
	l.refill(b, now)
	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true, Limit: l.limit, Remaining: b.tokens}
	}
	return Decision{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: b.lastRefill.Add(l.window)}
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	add := l.refillAmount(b, now)
	if add <= 0 {
		return
	}
	b.tokens = min(b.tokens+add, l.limit)
	b.lastRefill = now
}

func (l *Limiter) refillAmount(b *bucket, now time.Time) int {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Floor(float64(elapsed) / float64(l.window) * float64(l.limit)))
}

// Peek reports the state key would have if it were refilled now, without
// consuming or mutating anything.
func (l *Limiter) Peek(key string) (Bucket, bool) {
	v, ok := l.buckets.Load(key)
	if !ok {
		return Bucket{}, false
	}
	b := v.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removed {
		return Bucket{}, false
	}
	tokens := b.tokens
	if add := l.refillAmount(b, l.sched.Now()); add > 0 {
		tokens = min(tokens+add, l.limit)
	}
	return Bucket{Tokens: tokens, LastRefill: b.lastRefill, FirstSeen: b.firstSeen}, true
}

// Sweep removes buckets whose last refill is older than two windows and
// returns how many were removed. Only the bucket being inspected is locked.
func (l *Limiter) Sweep() int {
	cutoff := l.sched.Now().Add(-idleFactor * l.window)
	removed := 0

	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		if !b.removed && b.lastRefill.Before(cutoff) {
			b.removed = true
			l.buckets.CompareAndDelete(k, b)
			removed++
		}
		b.mu.Unlock()
		return true
	})

	if removed > 0 {
		metrics.UpdateLimiterActiveBuckets(int(l.active.Add(-int64(removed))))
		metrics.RecordLimiterSwept(removed)
	}
	return removed
}

// Start begins the periodic sweep. It is a no-op if already started.
func (l *Limiter) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sweeper != nil {
		return
	}
	l.sweeper = l.sched.Every(l.sweepInterval, func() {
		if n := l.Sweep(); n > 0 {
			l.logger.Debug(ctx, "swept idle buckets", logger.Int("removed", n))
		}
	})
}

// Stop cancels the periodic sweep.
func (l *Limiter) Stop() {
	l.mu.Lock()
	sweeper := l.sweeper
	l.sweeper = nil
	l.mu.Unlock()
	if sweeper != nil {
		sweeper.Stop()
	}
}

// Stats returns the active bucket count and configuration.
func (l *Limiter) Stats() types.LimiterStats {
	return types.LimiterStats{
		ActiveBuckets: int(l.active.Load()),
		Limit:         l.limit,
		WindowMs:      l.window.Milliseconds(),
	}
}

// Limit returns the per-window quota.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the refill window.
func (l *Limiter) Window() time.Duration { return l.window }

// Now returns the limiter's clock reading.
func (l *Limiter) Now() time.Time { return l.sched.Now() }
