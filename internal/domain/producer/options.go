package producer

import (
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/task"
)

// Option applies a configuration option to the Producer.
type Option func(*Producer)

// WithRate sets events per second. New rejects values outside MinRate..MaxRate.
func WithRate(rate int) Option {
	return func(p *Producer) { p.rate = rate }
}

// WithBatchSize sets the number of events per flush.
func WithBatchSize(size int) Option {
	return func(p *Producer) { p.batchSize = size }
}

// WithPersister sets where flushed batches are handed for storage.
func WithPersister(persister Persister) Option {
	return func(p *Producer) { p.persister = persister }
}

// WithPublisher sets where flushed batches are broadcast.
func WithPublisher(publisher Publisher) Option {
	return func(p *Producer) { p.publisher = publisher }
}

// WithStateListener registers a callback for lifecycle changes.
func WithStateListener(fn StateListener) Option {
	return func(p *Producer) { p.listener = fn }
}

// WithScheduler sets the tick source.
func WithScheduler(s task.Scheduler) Option {
	return func(p *Producer) {
		if s != nil {
			p.sched = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(p *Producer) {
		if lg != nil {
			p.logger = lg
		}
	}
}
