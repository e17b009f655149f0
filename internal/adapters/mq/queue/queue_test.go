package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/okian/pulse/internal/domain/model"
)

func batch(seq int64) model.Batch {
	return model.Batch{Seq: seq, Total: seq, Events: []model.Event{{Value: float64(seq), Category: model.CategorySensor}}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, batch(1)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	b := <-q.Dequeue()
	if b.Seq != 1 {
		t.Errorf("expected batch 1, got %d", b.Seq)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, batch(1)) || !q.Enqueue(ctx, batch(2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, batch(3)) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if !q.Enqueue(context.Background(), batch(1)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, batch(2)) {
		t.Error("expected enqueue to fail on a full queue with a cancelled context")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const producers, perProducer = 10, 50
	q := NewInMemoryQueue(WithCapacity(producers * perProducer))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if !q.Enqueue(ctx, batch(int64(id*perProducer+j))) {
					t.Error("unexpected enqueue failure")
				}
			}
		}(i)
	}
	wg.Wait()
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	seen := make(map[int64]bool)
	for b := range q.Dequeue() {
		seen[b.Seq] = true
	}
	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct batches, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, batch(1)) || !q.Enqueue(ctx, batch(2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, batch(3)) {
		t.Error("expected enqueue to fail after closing")
	}

	var drained []int64
	for b := range q.Dequeue() {
		drained = append(drained, b.Seq)
	}
	if len(drained) != 2 || drained[0] != 1 || drained[1] != 2 {
		t.Errorf("expected queued batches to drain in order, got %v", drained)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
