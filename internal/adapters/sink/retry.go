package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/okian/pulse/pkg/logger"
)

// connect calls dial until it succeeds, backing off exponentially between
// attempts.
func connect(ctx context.Context, lg logger.Logger, driver string, attempts int, dial func(context.Context) error) error {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = dial(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		wait := b.Duration()
		lg.Warn(ctx, "sink connect failed, retrying",
			logger.String("driver", driver),
			logger.Int("attempt", i+1),
			logger.Duration("wait", wait),
			logger.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrConnect, driver, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrConnect, driver, attempts, lastErr)
}
