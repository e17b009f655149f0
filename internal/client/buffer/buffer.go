// Package buffer holds the subscriber's view of the stream: a capped,
// ordered store fed in coalesced commits, plus a throughput gauge.
package buffer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/task"
)

const (
	defaultCapacity           = 5000
	defaultCommitDelay        = 100 * time.Millisecond
	defaultThroughputInterval = time.Second
)

// ServerStatus is the last connected or stats message seen.
type ServerStatus struct {
	Message   string             `json:"message,omitempty"`
	Total     int64              `json:"total"`
	Stats     *types.StreamStats `json:"stats,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Snapshot is a point-in-time view of a Buffer.
type Snapshot struct {
	Stored     int                    `json:"stored"`
	Pending    int                    `json:"pending"`
	TotalSeen  int64                  `json:"totalSeen"`
	Throughput float64                `json:"throughput"`
	ByCategory map[model.Category]int `json:"byCategory"`
	Server     *ServerStatus          `json:"server,omitempty"`
}

// Buffer is the client-side store.
type Buffer struct {
	sched              task.Scheduler
	capacity           int
	commitDelay        time.Duration
	throughputInterval time.Duration

	mu        sync.Mutex
	records   []model.Event
	pending   []model.Event
	totalSeen int64
	commit    task.Task
	commitGen uint64

	sampler    task.Task
	throughput float64
	lastSeen   int64
	lastSample time.Time

	server *ServerStatus
}

// New creates an empty Buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		sched:              task.System(),
		capacity:           defaultCapacity,
		commitDelay:        defaultCommitDelay,
		throughputInterval: defaultThroughputInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start begins sampling throughput.
func (b *Buffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sampler != nil {
		return
	}
	b.lastSeen = b.totalSeen
	b.lastSample = b.sched.Now()
	b.sampler = b.sched.Every(b.throughputInterval, b.sample)
}

// Stop ends sampling and cancels any scheduled commit. Pending records
// are kept.
func (b *Buffer) Stop() {
	b.mu.Lock()
	sampler := b.sampler
	b.sampler = nil
	b.cancelCommitLocked()
	b.mu.Unlock()

	if sampler != nil {
		sampler.Stop()
	}
}

// Ingest queues records for the next commit, scheduling one if none is
// pending.
func (b *Buffer) Ingest(records []model.Event) {
	if len(records) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, records...)
	b.totalSeen += int64(len(records))
	if b.commit == nil {
		gen := b.commitGen
		b.commit = b.sched.After(b.commitDelay, func() { b.commitDue(gen) })
	}
}

func (b *Buffer) commitDue(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.commitGen || b.commit == nil {
		return
	}
	b.commit = nil
	b.commitGen++
	b.commitLocked()
}

// Commit moves pending records into the store now.
func (b *Buffer) Commit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCommitLocked()
	b.commitLocked()
}

func (b *Buffer) commitLocked() {
	if len(b.pending) == 0 {
		return
	}
	b.records = append(b.records, b.pending...)
	b.pending = nil
	if over := len(b.records) - b.capacity; over > 0 {
		b.records = append([]model.Event(nil), b.records[over:]...)
	}
	metrics.UpdateClientStored(len(b.records))
}

func (b *Buffer) cancelCommitLocked() {
	if b.commit != nil {
		b.commit.Stop()
		b.commit = nil
	}
	b.commitGen++
}

// Clear drops pending and stored records and cancels the scheduled
// commit. TotalSeen is unaffected.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCommitLocked()
	b.pending = nil
	b.records = nil
	metrics.UpdateClientStored(0)
}

// Records returns a copy of the store restricted to category. An empty
// category returns everything.
func (b *Buffer) Records(category model.Category) []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.Event, 0, len(b.records))
	for _, e := range b.records {
		if category == "" || e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// TotalSeen returns the number of records ever ingested.
func (b *Buffer) TotalSeen() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSeen
}

func (b *Buffer) sample() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.sched.Now()
	if elapsed := now.Sub(b.lastSample).Seconds(); elapsed > 0 {
		b.throughput = float64(b.totalSeen-b.lastSeen) / elapsed
	}
	b.lastSeen = b.totalSeen
	b.lastSample = now
	metrics.UpdateClientThroughput(b.throughput)
}

// Snapshot returns the current counters.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	by := make(map[model.Category]int)
	for _, e := range b.records {
		by[e.Category]++
	}
	s := Snapshot{
		Stored:     len(b.records),
		Pending:    len(b.pending),
		TotalSeen:  b.totalSeen,
		Throughput: b.throughput,
		ByCategory: by,
	}
	if b.server != nil {
		server := *b.server
		s.Server = &server
	}
	return s
}

// HandleEnvelope feeds a stream message into the buffer. Batches are
// ingested, connected and stats messages update the server status, and
// anything else is ignored.
func (b *Buffer) HandleEnvelope(env model.Envelope) error {
	switch env.Type {
	case model.TypeBatch:
		events, err := env.Events()
		if err != nil {
			return err
		}
		b.Ingest(events)
	case model.TypeConnected:
		b.setServer(ServerStatus{Message: env.Message, Total: env.Total})
	case model.TypeStats:
		var stats types.StreamStats
		if err := json.Unmarshal(env.Data, &stats); err != nil {
			return fmt.Errorf("%w: stats: %w", model.ErrMalformedEnvelope, err)
		}
		b.setServer(ServerStatus{Total: env.Total, Stats: &stats})
	}
	return nil
}

func (b *Buffer) setServer(s ServerStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.UpdatedAt = b.sched.Now()
	if s.Message == "" && b.server != nil {
		s.Message = b.server.Message
	}
	b.server = &s
}
