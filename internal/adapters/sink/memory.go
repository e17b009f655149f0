package sink

import (
	"context"
	"sync"

	"github.com/okian/pulse/internal/domain/model"
)

// Nop discards every batch.
type Nop struct{}

func (Nop) WriteBatch(context.Context, []model.Event) error { return nil }
func (Nop) Close(context.Context) error                     { return nil }
func (Nop) Name() string                                    { return DriverNone }

// Memory keeps every written event in process.
type Memory struct {
	mu      sync.Mutex
	events  []model.Event
	batches int
	failErr error
	closed  bool
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// FailWith makes subsequent writes return err. A nil err clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *Memory) WriteBatch(_ context.Context, events []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.failErr != nil {
		return m.failErr
	}
	m.events = append(m.events, events...)
	m.batches++
	return nil
}

// Events returns a copy of everything written so far.
func (m *Memory) Events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.events...)
}

// Batches returns the number of successful writes.
func (m *Memory) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Name() string { return DriverMemory }
