// Package task provides cancellable periodic and deferred tasks behind a
// Scheduler, so timer-driven components can be driven by a manual clock in
// tests.
package task

import (
	"sync"
	"time"
)

// Task is a scheduled unit of work.
type Task interface {
	// Stop cancels the task and reports whether it was still scheduled.
	// For periodic tasks Stop waits for an in-flight run to return, so it
	// must not be called from inside the task's own callback.
	Stop() bool
}

// Scheduler creates tasks and supplies the current time.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Task
	After(delay time.Duration, fn func()) Task
}

// System returns a Scheduler backed by the runtime timers.
func System() Scheduler { return systemScheduler{} }

type systemScheduler struct{}

func (systemScheduler) Now() time.Time { return time.Now() }

func (systemScheduler) After(delay time.Duration, fn func()) Task {
	return &deferred{timer: time.AfterFunc(delay, fn)}
}

func (systemScheduler) Every(interval time.Duration, fn func()) Task {
	p := &periodic{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.run(interval, fn)
	return p
}

type deferred struct {
	timer *time.Timer
}

func (d *deferred) Stop() bool { return d.timer.Stop() }

type periodic struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (p *periodic) run(interval time.Duration, fn func()) {
	defer close(p.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			// stop wins over a tick that became ready at the same time
			select {
			case <-p.stop:
				return
			default:
			}
			fn()
		}
	}
}

func (p *periodic) Stop() bool {
	stopped := false
	p.once.Do(func() {
		close(p.stop)
		stopped = true
	})
	<-p.done
	return stopped
}
