// Package service assembles the event stream server: producer, admission
// limiter, broadcast hub and the persistence pipeline behind them.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/okian/pulse/internal/adapters/broadcast"
	"github.com/okian/pulse/internal/adapters/http/ws"
	eventqueue "github.com/okian/pulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/pulse/internal/adapters/mq/worker"
	"github.com/okian/pulse/internal/adapters/sink"
	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/internal/domain/generator"
	"github.com/okian/pulse/internal/domain/producer"
	"github.com/okian/pulse/internal/domain/ratelimit"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/task"
)

// Service implements the API dependencies for the event stream.
type Service struct {
	mu sync.RWMutex

	cfg   *config.Config
	sched task.Scheduler

	// Core components
	sink     sink.Sink
	limiter  *ratelimit.Limiter
	hub      *broadcast.Hub
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	producer *producer.Producer

	// State
	started bool
	// stopped is set by Stop. The sink and hub are closed for good.
	stopped bool
	runCtx  context.Context
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   config.New(context.Background()),
		sched: task.System(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the sink and starts every component. The producer starts
// only when autostart is configured. Start on a started service is a no-op
// and Start after Stop returns ErrStopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	s.logger.Info(ctx, "starting event stream service...")

	// Ticks and the persistence drain outlive a canceled caller context;
	// Stop ends them explicitly.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if s.sink == nil {
		snk, err := sink.New(ctx, sink.Config{
			Driver:       s.cfg.SinkDriver,
			Path:         s.cfg.SinkPath,
			URL:          s.cfg.SinkURL,
			Database:     s.cfg.SinkDatabase,
			Collection:   s.cfg.SinkCollection,
			StreamMaxLen: s.cfg.SinkStreamMaxLen,
		})
		if err != nil {
			cancel()
			return fmt.Errorf("%w: open %s sink: %w", ErrStart, s.cfg.SinkDriver, err)
		}
		s.sink = snk
	}

	limiter, err := ratelimit.New(s.cfg.MaxRequests, s.cfg.Window(),
		ratelimit.WithScheduler(s.sched),
		ratelimit.WithSweepInterval(s.cfg.SweepInterval()),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.PersistQueueSize))
	s.pool = workerpool.NewPool(s.cfg.PersistWorkers, s.queue, s.sink,
		workerpool.WithTimeout(s.cfg.PersistTimeout()),
	)
	s.hub = broadcast.New(
		broadcast.WithFanout(s.cfg.HubFanout),
		broadcast.WithQueueSize(s.cfg.HubQueueSize),
		broadcast.WithStats(s.producerStats),
	)

	hub := s.hub
	prod, err := producer.New(generator.New(),
		producer.WithRate(s.cfg.Rate),
		producer.WithBatchSize(s.cfg.BatchSize),
		producer.WithScheduler(s.sched),
		producer.WithPersister(workerpool.NewPersister(s.queue)),
		producer.WithPublisher(hub),
		producer.WithStateListener(func(ctx context.Context, _ types.StreamStats) {
			if err := hub.PublishStats(ctx); err != nil {
				s.logger.Warn(ctx, "stats broadcast failed", logger.Error(err))
			}
		}),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	s.producer = prod
	s.limiter = limiter

	s.pool.Start(runCtx)
	s.limiter.Start(runCtx)
	s.runCtx, s.cancel = runCtx, cancel
	s.started = true

	if s.cfg.Autostart {
		if err := s.producer.Start(runCtx); err != nil {
			s.logger.Error(ctx, "autostart failed", logger.Error(err))
		}
	}

	s.logger.Info(ctx, "event stream service started",
		logger.String("sink", s.sink.Name()),
		logger.Int("workers", s.cfg.PersistWorkers),
		logger.Int("queueSize", s.cfg.PersistQueueSize),
		logger.Bool("autostart", s.cfg.Autostart),
	)
	return nil
}

// Stop flushes the producer, drains the persistence queue and closes the
// sink and every subscriber, in that order. A stopped service cannot be
// started again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping event stream service...")

	var errs []error
	if err := s.producer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop producer: %w", err))
	}
	s.limiter.Stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.sink.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close %s sink: %w", s.sink.Name(), err))
	}
	if err := s.hub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close hub: %w", err))
	}
	s.cancel()

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "event stream service stopped",
		logger.Int64("persisted", s.pool.Processed()),
	)
	return errors.Join(errs...)
}

func (s *Service) producerStats() types.StreamStats {
	return s.producer.Stats()
}

// StartProducer starts generation. Ticks run under the service's lifetime,
// not the caller's request.
func (s *Service) StartProducer(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return s.producer.Start(s.runCtx)
}

// StopProducer stops generation and flushes the pending remainder.
func (s *Service) StopProducer(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return s.producer.Stop(ctx)
}

// SetRate changes the generation rate.
func (s *Service) SetRate(ctx context.Context, rate int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return s.producer.SetRate(ctx, rate)
}

// StreamStats returns producer state with the live subscriber count.
func (s *Service) StreamStats() types.StreamStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.producer == nil {
		return types.StreamStats{}
	}
	st := s.producer.Stats()
	st.Subscribers = s.hub.Count()
	return st
}

// Limiter returns the admission limiter. It is nil before Start.
func (s *Service) Limiter() *ratelimit.Limiter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limiter
}

// StreamHandler returns the websocket endpoint bound to the hub. It is nil
// before Start.
func (s *Service) StreamHandler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hub == nil {
		return nil
	}
	prod := s.producer
	return ws.NewHandler(s.hub,
		func() int64 { return prod.Stats().TotalGenerated },
		ws.WithWriteTimeout(s.cfg.HubWriteTimeout()),
	)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
		"workers": s.cfg.PersistWorkers,
		"sink":    s.cfg.SinkDriver,
	}
	if !s.started {
		return stats
	}

	stream := s.producer.Stats()
	stream.Subscribers = s.hub.Count()
	queueLen := s.queue.Len()

	stats["sink"] = s.sink.Name()
	stats["stream"] = stream
	stats["limiter"] = s.limiter.Stats()
	stats["queueLength"] = queueLen
	stats["persisted"] = s.pool.Processed()

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateSubscribers(stream.Subscribers)
	return stats
}
