// Package watch runs a stream subscriber session for the pulse-watch CLI:
// a reconnecting client feeding a local buffer, reported periodically.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pulse/internal/client/buffer"
	"github.com/okian/pulse/internal/client/stream"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

const defaultReportInterval = 2 * time.Second

// Summary describes a finished session.
type Summary struct {
	Final      buffer.Snapshot
	Matching   int
	Reconnects int
	FinalState stream.State
	Duration   time.Duration
}

// syncWriter serializes writes from the client goroutine and the reporter.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Run subscribes to cfg.URL until ctx is canceled, cfg.Duration elapses or
// the client gives up, printing a report every cfg.ReportInterval.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	out = &syncWriter{w: out}
	interval := cfg.ReportInterval
	if interval <= 0 {
		interval = defaultReportInterval
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}
	lg := logger.Get().Named("watch")
	start := time.Now()

	buf := buffer.New(
		buffer.WithCapacity(cfg.BufferCapacity),
		buffer.WithCommitDelay(cfg.CommitDelay),
		buffer.WithThroughputInterval(cfg.ThroughputInterval),
	)
	buf.Start()
	defer buf.Stop()

	failed := make(chan struct{})
	var failOnce sync.Once
	var reconnects atomic.Int64
	client, err := stream.New(cfg.URL,
		stream.WithHeartbeatInterval(cfg.HeartbeatInterval),
		stream.WithReconnectDelay(cfg.ReconnectDelay),
		stream.WithMaxAttempts(cfg.MaxAttempts),
		stream.WithOutboundLimit(cfg.OutboundLimit),
		stream.WithOnMessage(func(env model.Envelope) {
			if err := buf.HandleEnvelope(env); err != nil {
				lg.Warn(ctx, "dropping unreadable message", logger.String("type", string(env.Type)), logger.Error(err))
			}
		}),
		stream.WithOnStateChange(func(from, to stream.State) {
			switch to {
			case stream.StateReconnecting:
				reconnects.Add(1)
			case stream.StateFailed:
				failOnce.Do(func() { close(failed) })
			}
			fmt.Fprintf(out, "state %s -> %s\n", from, to)
		}),
	)
	if err != nil {
		return Summary{}, err
	}

	runCtx, stopClient := context.WithCancel(ctx)
	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		_ = client.Run(runCtx)
	}()
	defer func() {
		stopClient()
		<-clientDone
	}()

	lg.Info(ctx, "watching event stream",
		logger.String("url", cfg.URL),
		logger.String("category", categoryLabel(cfg.Category)),
	)
	if err := client.Connect(ctx); err != nil {
		return Summary{}, fmt.Errorf("connect: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-failed:
			runErr = fmt.Errorf("%w after %d attempts", ErrGaveUp, client.Status().Attempts)
			break loop
		case <-ticker.C:
			WriteReport(out, buf, cfg.Category, cfg.Tail, client.Status())
		}
	}

	buf.Commit()
	status := client.Status()
	_ = client.Disconnect(context.WithoutCancel(ctx))
	WriteReport(out, buf, cfg.Category, cfg.Tail, status)

	summary := Summary{
		Final:      buf.Snapshot(),
		Matching:   len(buf.Records(cfg.Category)),
		Reconnects: int(reconnects.Load()),
		FinalState: status.State,
		Duration:   time.Since(start),
	}
	displayFinalStats(ctx, lg, summary)
	return summary, runErr
}

// displayFinalStats logs the session totals.
func displayFinalStats(ctx context.Context, lg logger.Logger, s Summary) {
	var eventsPerSecond float64
	if s.Duration > 0 {
		eventsPerSecond = float64(s.Final.TotalSeen) / s.Duration.Seconds()
	}
	lg.Info(ctx, "final statistics",
		logger.Int64("totalSeen", s.Final.TotalSeen),
		logger.Int("stored", s.Final.Stored),
		logger.Int("matching", s.Matching),
		logger.Int("reconnects", s.Reconnects),
		logger.String("state", string(s.FinalState)),
		logger.Duration("duration", s.Duration),
		logger.Float64("eventsPerSecond", eventsPerSecond),
	)
}

func categoryLabel(c model.Category) string {
	if c == "" {
		return "all"
	}
	return string(c)
}
