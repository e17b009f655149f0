// Package producer generates events on a fixed tick and commits them in
// batches to persistence and then to subscribers.
//
// A batch is flushed exactly when the pending run reaches the batch size,
// and once more on Stop for any non-empty remainder. There is no
// wall-clock flush: at low rates a trailing partial batch waits for the
// next tick that fills it, or for Stop.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/task"
)

// Rate bounds in events per second.
const (
	MinRate = 1
	MaxRate = 1000

	defaultRate      = 10
	defaultBatchSize = 10
)

// Generator synthesizes the event numbered seq.
type Generator interface {
	Next(seq int64) model.Event
}

// Persister accepts a batch for durable storage without blocking on the
// write. It reports false when the batch could not be handed off.
type Persister interface {
	Persist(ctx context.Context, batch model.Batch) bool
}

// Publisher distributes a flushed batch to live subscribers.
type Publisher interface {
	PublishBatch(ctx context.Context, batch model.Batch) error
}

// StateListener is called after Start, Stop and SetRate change the
// producer's state.
type StateListener func(ctx context.Context, stats types.StreamStats)

// Producer is the periodic generator and batcher.
type Producer struct {
	gen       Generator
	persister Persister
	publisher Publisher
	listener  StateListener
	sched     task.Scheduler
	logger    logger.Logger

	// ctlMu serializes Start, Stop and SetRate.
	ctlMu sync.Mutex
	// flushMu keeps flushes in generation order.
	flushMu sync.Mutex

	mu        sync.Mutex
	running   bool
	rate      int
	batchSize int
	pending   []model.Event
	total     int64
	flushed   int64
	ticker    task.Task
	runCtx    context.Context
}

// New creates a stopped Producer.
func New(gen Generator, opts ...Option) (*Producer, error) {
	p := &Producer{
		gen:       gen,
		sched:     task.System(),
		rate:      defaultRate,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := validateRate(p.rate); err != nil {
		return nil, err
	}
	if p.batchSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, p.batchSize)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("producer")
	}
	p.pending = make([]model.Event, 0, p.batchSize)
	metrics.UpdateProducerRate(p.rate)
	metrics.UpdateProducerRunning(false)
	return p, nil
}

func validateRate(rate int) error {
	if rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidRate, rate, MinRate, MaxRate)
	}
	return nil
}

// Interval returns the tick period for rate events per second.
func Interval(rate int) time.Duration {
	return time.Second / time.Duration(rate)
}

// Start begins ticking. ctx scopes the persistence and broadcast calls made
// by ticks until Stop. Start on a running producer is a no-op.
func (p *Producer) Start(ctx context.Context) error {
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.runCtx = ctx
	p.schedule()
	stats := p.statsLocked()
	p.mu.Unlock()

	metrics.UpdateProducerRunning(true)
	p.logger.Info(ctx, "producer started",
		logger.Int("rate", stats.Rate),
		logger.Int("batchSize", stats.BatchSize),
	)
	p.notify(ctx, stats)
	return nil
}

// schedule starts the ticker. Callers hold p.mu.
func (p *Producer) schedule() {
	ctx := p.runCtx
	p.running = true
	p.ticker = p.sched.Every(Interval(p.rate), func() { p.tick(ctx) })
}

// halt cancels the ticker and waits for an in-flight tick.
func (p *Producer) halt() {
	p.mu.Lock()
	t := p.ticker
	p.ticker = nil
	p.running = false
	p.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}

// Stop halts ticking and flushes any pending remainder. Stop on a stopped
// producer is a no-op.
func (p *Producer) Stop(ctx context.Context) error {
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()

	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return nil
	}

	p.halt()

	p.mu.Lock()
	var batch model.Batch
	remainder := len(p.pending) > 0
	if remainder {
		batch = p.cutLocked()
	}
	runCtx := p.runCtx
	p.runCtx = nil
	p.mu.Unlock()

	if remainder {
		p.flush(runCtx, batch)
	}

	p.mu.Lock()
	stats := p.statsLocked()
	p.mu.Unlock()

	metrics.UpdateProducerRunning(false)
	p.logger.Info(ctx, "producer stopped",
		logger.Int64("totalGenerated", stats.TotalGenerated),
		logger.Bool("flushedRemainder", remainder),
	)
	p.notify(ctx, stats)
	return nil
}

// SetRate changes the generation rate. A running producer is stopped and
// restarted on the new interval with its pending events and total intact.
func (p *Producer) SetRate(ctx context.Context, rate int) error {
	if err := validateRate(rate); err != nil {
		return err
	}

	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()

	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	if running {
		p.halt()
	}

	p.mu.Lock()
	p.rate = rate
	if running {
		p.schedule()
	}
	stats := p.statsLocked()
	p.mu.Unlock()

	metrics.UpdateProducerRate(rate)
	p.logger.Info(ctx, "producer rate changed", logger.Int("rate", rate), logger.Bool("running", running))
	p.notify(ctx, stats)
	return nil
}

func (p *Producer) tick(ctx context.Context) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.total++
	p.pending = append(p.pending, p.gen.Next(p.total))

	var batch model.Batch
	full := len(p.pending) >= p.batchSize
	if full {
		batch = p.cutLocked()
	}
	pending := len(p.pending)
	p.mu.Unlock()

	metrics.RecordEventGenerated()
	metrics.UpdateProducerPending(pending)

	if full {
		p.flush(ctx, batch)
	}
}

// cutLocked detaches the pending run as a batch. Callers hold p.mu.
func (p *Producer) cutLocked() model.Batch {
	p.flushed++
	b := model.Batch{
		Seq:       p.flushed,
		Total:     p.total,
		Events:    p.pending,
		FlushedAt: p.sched.Now(),
	}
	p.pending = make([]model.Event, 0, p.batchSize)
	return b
}

// flush hands the batch to persistence, then to subscribers. Neither
// failure stops generation.
func (p *Producer) flush(ctx context.Context, b model.Batch) {
	if ctx == nil {
		ctx = context.Background()
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	if p.persister != nil && !p.persister.Persist(ctx, b) {
		p.logger.Warn(ctx, "batch not handed to persistence",
			logger.Int64("seq", b.Seq),
			logger.Int("size", len(b.Events)),
		)
	}
	if p.publisher != nil {
		if err := p.publisher.PublishBatch(ctx, b); err != nil {
			metrics.RecordErrorByComponent("producer", "publish_failed")
			p.logger.Error(ctx, "batch broadcast failed", logger.Int64("seq", b.Seq), logger.Error(err))
		}
	}

	metrics.RecordBatchFlushed(len(b.Events))
	metrics.UpdateProducerPending(0)
}

func (p *Producer) notify(ctx context.Context, stats types.StreamStats) {
	if p.listener != nil {
		p.listener(ctx, stats)
	}
}

// Stats returns the producer's current counters.
func (p *Producer) Stats() types.StreamStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Producer) statsLocked() types.StreamStats {
	return types.StreamStats{
		Running:        p.running,
		Rate:           p.rate,
		BatchSize:      p.batchSize,
		TotalGenerated: p.total,
		Pending:        len(p.pending),
		BatchesFlushed: p.flushed,
	}
}

// Running reports whether the producer is ticking.
func (p *Producer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
