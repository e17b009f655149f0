// Package broadcast maintains the live subscriber set and fans committed
// batches out to it.
//
// Each subscriber owns a bounded outbox drained by its own goroutine, so a
// broadcast only enqueues and never waits on a subscriber's write. A
// subscriber whose outbox is full is pruned.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

const (
	defaultFanout    = 32
	defaultQueueSize = 256
)

// Subscriber is one live connection.
type Subscriber interface {
	ID() string
	// Open reports whether the underlying connection can still be written.
	Open() bool
	Send(ctx context.Context, payload []byte) error
}

// StatsFunc supplies the snapshot sent to new subscribers.
type StatsFunc func() types.StreamStats

// Hub owns a subscriber set.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*outbox
	closed bool
	pumps  sync.WaitGroup

	stats     StatsFunc
	fanout    int
	queueSize int
	logger    logger.Logger
}

// outbox queues payloads for one subscriber.
type outbox struct {
	sub   Subscriber
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (o *outbox) stop() { o.once.Do(func() { close(o.done) }) }

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:      make(map[string]*outbox),
		fanout:    defaultFanout,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("hub")
	}
	return h
}

// Register adds sub and sends it, and only it, a stats snapshot. A
// subscriber that cannot take the snapshot is removed again. Broadcasts
// that race the snapshot are queued behind it.
func (h *Hub) Register(ctx context.Context, sub Subscriber) error {
	ob := &outbox{
		sub:   sub,
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if prev, ok := h.subs[sub.ID()]; ok {
		prev.stop()
	}
	h.subs[sub.ID()] = ob
	n := len(h.subs)
	h.mu.Unlock()

	metrics.UpdateSubscribers(n)
	h.logger.Debug(ctx, "subscriber registered", logger.String("id", sub.ID()), logger.Int("subscribers", n))

	payload, err := h.statsPayload()
	if err != nil {
		h.remove(ob)
		return err
	}
	if err := sub.Send(ctx, payload); err != nil {
		h.remove(ob)
		return fmt.Errorf("%w: %w", ErrSnapshotFailed, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.pumps.Add(1)
	go h.pump(context.WithoutCancel(ctx), ob)
	return nil
}

// pump writes queued payloads in order until the outbox is stopped or a
// write fails.
func (h *Hub) pump(ctx context.Context, ob *outbox) {
	defer h.pumps.Done()
	for {
		select {
		case <-ob.done:
			return
		case payload := <-ob.queue:
			if err := ob.sub.Send(ctx, payload); err != nil {
				h.logger.Debug(ctx, "subscriber send failed", logger.String("id", ob.sub.ID()), logger.Error(err))
				h.prune(ob)
				return
			}
		}
	}
}

// Unregister removes sub. It reports whether sub was present.
func (h *Hub) Unregister(sub Subscriber) bool {
	h.mu.RLock()
	ob, ok := h.subs[sub.ID()]
	h.mu.RUnlock()
	if !ok || ob.sub != sub {
		return false
	}
	return h.remove(ob)
}

// remove drops ob from the set and stops its pump.
func (h *Hub) remove(ob *outbox) bool {
	h.mu.Lock()
	current, ok := h.subs[ob.sub.ID()]
	ok = ok && current == ob
	if ok {
		delete(h.subs, ob.sub.ID())
	}
	n := len(h.subs)
	h.mu.Unlock()

	ob.stop()
	if ok {
		metrics.UpdateSubscribers(n)
	}
	return ok
}

// prune removes a subscriber that can no longer keep up and closes it.
func (h *Hub) prune(ob *outbox) {
	if h.remove(ob) {
		metrics.RecordSubscriberPruned()
	}
	if c, ok := ob.sub.(io.Closer); ok {
		_ = c.Close()
	}
}

// Broadcast serializes env once and queues it for every subscriber. It
// returns the number of subscribers it was queued for. Subscribers that
// are closed or whose outbox is full are removed in the same pass. The
// only error is a serialization failure.
func (h *Hub) Broadcast(ctx context.Context, env model.Envelope) (int, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	start := time.Now()
	delivered := h.fanOut(ctx, payload)
	metrics.RecordBroadcast(string(env.Type), delivered, float64(time.Since(start).Milliseconds()))
	return delivered, nil
}

func (h *Hub) fanOut(ctx context.Context, payload []byte) int {
	h.mu.RLock()
	snapshot := make([]*outbox, 0, len(h.subs))
	for _, ob := range h.subs {
		snapshot = append(snapshot, ob)
	}
	h.mu.RUnlock()

	delivered := 0
	var failed []*outbox
	for _, ob := range snapshot {
		if !ob.sub.Open() {
			failed = append(failed, ob)
			continue
		}
		select {
		case ob.queue <- payload:
			delivered++
		default:
			h.logger.Debug(ctx, "subscriber outbox full", logger.String("id", ob.sub.ID()))
			failed = append(failed, ob)
		}
	}

	for _, ob := range failed {
		h.prune(ob)
	}
	return delivered
}

// PublishBatch broadcasts a flushed batch.
func (h *Hub) PublishBatch(ctx context.Context, batch model.Batch) error {
	env, err := model.BatchEnvelope(batch)
	if err != nil {
		return err
	}
	_, err = h.Broadcast(ctx, env)
	return err
}

// PublishStats broadcasts the current stats snapshot.
func (h *Hub) PublishStats(ctx context.Context) error {
	payload, err := h.statsPayload()
	if err != nil {
		return err
	}
	start := time.Now()
	delivered := h.fanOut(ctx, payload)
	metrics.RecordBroadcast(string(model.TypeStats), delivered, float64(time.Since(start).Milliseconds()))
	return nil
}

func (h *Hub) statsPayload() ([]byte, error) {
	var snapshot types.StreamStats
	if h.stats != nil {
		snapshot = h.stats()
	}
	snapshot.Subscribers = h.Count()

	env, err := model.NewEnvelope(model.TypeStats, snapshot)
	if err != nil {
		return nil, err
	}
	env.Total = snapshot.TotalGenerated
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal stats envelope: %w", err)
	}
	return payload, nil
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes every subscriber, closing those that implement io.Closer
// at most fanout at a time, waits for their pumps and rejects further
// registrations. Payloads still queued are dropped.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*outbox)
	h.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(h.fanout)
	for _, ob := range subs {
		ob.stop()
		if c, ok := ob.sub.(io.Closer); ok {
			g.Go(c.Close)
		}
	}
	_ = g.Wait()
	h.pumps.Wait()
	metrics.UpdateSubscribers(0)
	return nil
}
