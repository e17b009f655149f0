package service

import (
	"github.com/okian/pulse/internal/adapters/sink"
	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/task"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the service configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithSink uses snk instead of opening the configured driver.
func WithSink(snk sink.Sink) Option {
	return func(s *Service) { s.sink = snk }
}

// WithScheduler sets the clock driving the producer and limiter.
func WithScheduler(sched task.Scheduler) Option {
	return func(s *Service) {
		if sched != nil {
			s.sched = sched
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}
