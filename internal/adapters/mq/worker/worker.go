// Package worker persists queued batches to a sink off the producer's path.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

const (
	defaultWriteTimeout   = 5 * time.Second
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Writer stores a batch of events.
type Writer interface {
	WriteBatch(ctx context.Context, events []model.Event) error
}

// Queue defines how workers receive batches.
type Queue interface {
	Dequeue() <-chan model.Batch
}

// Enqueuer is the producer-facing side of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, b model.Batch) bool
}

// InMemoryWorker drains batches from a queue into a Writer.
type InMemoryWorker struct {
	queue   Queue
	writer  Writer
	name    string
	timeout time.Duration

	processed *atomic.Int64
	done      chan struct{}
	logger    logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, writer Writer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		writer:    writer,
		name:      "worker",
		timeout:   defaultWriteTimeout,
		processed: new(atomic.Int64),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run consumes batches until the queue is closed and drained, or ctx is
// canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-batches:
			if !ok {
				return
			}
			if err := w.process(ctx, b); err != nil {
				w.logger.Warn(ctx, "batch not persisted",
					logger.Int64("seq", b.Seq),
					logger.Int("events", len(b.Events)),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, b model.Batch) error {
	start := time.Now()
	writeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	err := w.writer.WriteBatch(writeCtx, b.Events)
	metrics.RecordPersistLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordPersistResult(err == nil)
	w.processed.Add(1)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "write_failed")
		return fmt.Errorf("write batch %d: %w", b.Seq, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}
	stopped  atomic.Bool

	processed         atomic.Int64
	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates workerCount workers. Options are applied to every worker.
func NewPool(workerCount int, queue Queue, writer Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             queue,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(queue, writer, workerOpts...)
		w.processed = &pool.processed
		pool.workers[i] = w
	}
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	total := p.processed.Load()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerBatchesPerSecond(float64(total-p.lastProcessed) / elapsed)
	}
	p.lastProcessed = total
	p.lastProcessedTime = now
}

// Processed returns the number of batches handled, successfully or not.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("drain persistence queue: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}

// Persister hands flushed batches to the queue without blocking. A full
// queue drops the batch for persistence only.
type Persister struct {
	queue  Enqueuer
	logger logger.Logger
}

// NewPersister wraps q.
func NewPersister(q Enqueuer) *Persister {
	return &Persister{queue: q, logger: logger.Get().Named("persister")}
}

// Persist enqueues b and reports whether it was accepted.
func (p *Persister) Persist(ctx context.Context, b model.Batch) bool {
	if p.queue.Enqueue(ctx, b) {
		return true
	}
	metrics.RecordPersistDropped()
	p.logger.Warn(ctx, "persistence queue full, batch dropped",
		logger.Int64("seq", b.Seq),
		logger.Int("events", len(b.Events)),
	)
	return false
}
