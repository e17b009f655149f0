package producer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/pulse/internal/adapters/broadcast"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/producer"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/task"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type seqGenerator struct{}

func (seqGenerator) Next(seq int64) model.Event {
	return model.Event{Value: float64(seq), Category: model.CategoryMetric}
}

// recorder captures persistence and broadcast calls in order.
type recorder struct {
	mu         sync.Mutex
	calls      []string
	persisted  []model.Batch
	published  []model.Batch
	persistOK  bool
	publishErr error
}

func newRecorder() *recorder { return &recorder{persistOK: true} }

func (r *recorder) Persist(_ context.Context, b model.Batch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("persist:%d", b.Seq))
	r.persisted = append(r.persisted, b)
	return r.persistOK
}

func (r *recorder) PublishBatch(_ context.Context, b model.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("publish:%d", b.Seq))
	r.published = append(r.published, b)
	return r.publishErr
}

// stuckSub takes the registration snapshot and then blocks every write
// until released.
type stuckSub struct {
	release chan struct{}
	sends   atomic.Int64
}

func (s *stuckSub) ID() string { return "stuck" }
func (s *stuckSub) Open() bool { return true }

func (s *stuckSub) Send(context.Context, []byte) error {
	if s.sends.Add(1) > 1 {
		<-s.release
	}
	return nil
}

func values(b model.Batch) []float64 {
	out := make([]float64, len(b.Events))
	for i, e := range b.Events {
		out[i] = e.Value
	}
	return out
}

func newProducer(rate, batchSize int, rec *recorder, opts ...producer.Option) (*producer.Producer, *task.Manual) {
	clock := task.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	base := []producer.Option{
		producer.WithRate(rate),
		producer.WithBatchSize(batchSize),
		producer.WithScheduler(clock),
		producer.WithPersister(rec),
		producer.WithPublisher(rec),
	}
	p, err := producer.New(seqGenerator{}, append(base, opts...)...)
	So(err, ShouldBeNil)
	return p, clock
}

func TestProducer_Batching(t *testing.T) {
	Convey("Given a producer at 10 events per second with batches of 3", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		p, clock := newProducer(10, 3, rec)
		So(p.Start(ctx), ShouldBeNil)

		Convey("When three ticks elapse", func() {
			clock.Advance(300 * time.Millisecond)

			Convey("Then exactly one batch of three is flushed", func() {
				So(rec.published, ShouldHaveLength, 1)
				So(values(rec.published[0]), ShouldResemble, []float64{1, 2, 3})
				So(rec.published[0].Total, ShouldEqual, 3)
				So(p.Stats().Pending, ShouldEqual, 0)
			})

			Convey("Then persistence is handed the batch before it is broadcast", func() {
				So(rec.calls, ShouldResemble, []string{"persist:1", "publish:1"})
			})
		})

		Convey("When fewer ticks than a batch elapse", func() {
			clock.Advance(200 * time.Millisecond)

			Convey("Then nothing is flushed while running", func() {
				So(rec.published, ShouldBeEmpty)
				So(p.Stats().Pending, ShouldEqual, 2)
			})

			Convey("And Stop flushes the remainder exactly once", func() {
				So(p.Stop(ctx), ShouldBeNil)
				So(p.Stop(ctx), ShouldBeNil)
				So(rec.published, ShouldHaveLength, 1)
				So(values(rec.published[0]), ShouldResemble, []float64{1, 2})
				So(p.Stats().Running, ShouldBeFalse)
				So(clock.Pending(), ShouldEqual, 0)
			})
		})

		Convey("When stopped with nothing pending", func() {
			clock.Advance(300 * time.Millisecond)
			So(p.Stop(ctx), ShouldBeNil)

			Convey("Then no empty batch is flushed", func() {
				So(rec.published, ShouldHaveLength, 1)
			})
		})

		Convey("When started a second time", func() {
			So(p.Start(ctx), ShouldBeNil)

			Convey("Then only one ticker exists", func() {
				So(clock.Pending(), ShouldEqual, 1)
				clock.Advance(300 * time.Millisecond)
				So(p.Stats().TotalGenerated, ShouldEqual, 3)
			})
		})
	})
}

func TestProducer_BestEffortDelivery(t *testing.T) {
	Convey("Given a producer whose persistence rejects batches", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		rec.persistOK = false
		p, clock := newProducer(10, 2, rec)
		So(p.Start(ctx), ShouldBeNil)

		Convey("When batches fill", func() {
			clock.Advance(600 * time.Millisecond)

			Convey("Then every batch is still broadcast and generation continues", func() {
				So(rec.published, ShouldHaveLength, 3)
				So(p.Stats().TotalGenerated, ShouldEqual, 6)
			})
		})
	})

	Convey("Given a producer whose broadcast fails", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		rec.publishErr = errors.New("hub closed")
		p, clock := newProducer(10, 2, rec)
		So(p.Start(ctx), ShouldBeNil)

		Convey("When batches fill", func() {
			clock.Advance(400 * time.Millisecond)

			Convey("Then the producer keeps running", func() {
				So(rec.persisted, ShouldHaveLength, 2)
				So(p.Running(), ShouldBeTrue)
			})
		})
	})
}

func TestProducer_SlowSubscriber(t *testing.T) {
	Convey("Given a producer at 100 events per second publishing each event to a stuck subscriber", t, func() {
		ctx := context.Background()
		hub := broadcast.New()
		sub := &stuckSub{release: make(chan struct{})}
		So(hub.Register(ctx, sub), ShouldBeNil)
		release := sync.OnceFunc(func() { close(sub.release) })
		Reset(func() {
			release()
			_ = hub.Close()
		})

		rec := newRecorder()
		p, clock := newProducer(100, 1, rec, producer.WithPublisher(hub))
		So(p.Start(ctx), ShouldBeNil)

		Convey("When a second of ticks elapses", func() {
			advanced := make(chan struct{})
			go func() {
				defer close(advanced)
				clock.Advance(time.Second)
			}()
			finished := false
			select {
			case <-advanced:
				finished = true
			case <-time.After(2 * time.Second):
			}

			Convey("Then generation and control do not wait for the subscriber", func() {
				So(finished, ShouldBeTrue)
				stats := p.Stats()
				So(stats.TotalGenerated, ShouldEqual, 100)
				So(stats.BatchesFlushed, ShouldEqual, 100)
				So(rec.persisted, ShouldHaveLength, 100)
				So(p.SetRate(ctx, 50), ShouldBeNil)
				So(p.Stop(ctx), ShouldBeNil)
				So(hub.Count(), ShouldEqual, 1)
			})
		})
	})
}

func TestProducer_SetRate(t *testing.T) {
	Convey("Given a running producer with two pending events", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		p, clock := newProducer(10, 5, rec)
		So(p.Start(ctx), ShouldBeNil)
		clock.Advance(200 * time.Millisecond)

		Convey("When the rate is raised", func() {
			So(p.SetRate(ctx, 100), ShouldBeNil)

			Convey("Then pending events and the total survive the restart", func() {
				s := p.Stats()
				So(s.Pending, ShouldEqual, 2)
				So(s.TotalGenerated, ShouldEqual, 2)
				So(s.Rate, ShouldEqual, 100)
				So(s.Running, ShouldBeTrue)
				So(rec.published, ShouldBeEmpty)
			})

			Convey("Then ticks follow the new interval", func() {
				clock.Advance(30 * time.Millisecond)
				So(rec.published, ShouldHaveLength, 1)
				So(values(rec.published[0]), ShouldResemble, []float64{1, 2, 3, 4, 5})
			})
		})

		Convey("When the rate is out of range", func() {
			err := p.SetRate(ctx, 1001)

			Convey("Then it is rejected before touching running state", func() {
				So(errors.Is(err, producer.ErrInvalidRate), ShouldBeTrue)
				So(p.Stats().Rate, ShouldEqual, 10)
				So(p.Running(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a stopped producer", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		p, clock := newProducer(10, 5, rec)

		Convey("When the rate is changed", func() {
			So(p.SetRate(ctx, 50), ShouldBeNil)

			Convey("Then it records the rate without starting", func() {
				So(p.Stats().Rate, ShouldEqual, 50)
				So(p.Running(), ShouldBeFalse)
				So(clock.Pending(), ShouldEqual, 0)
			})
		})
	})
}

func TestProducer_Lifecycle(t *testing.T) {
	Convey("Given a producer with a state listener", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		var seen []types.StreamStats
		p, _ := newProducer(10, 5, rec, producer.WithStateListener(func(_ context.Context, s types.StreamStats) {
			seen = append(seen, s)
		}))

		Convey("When it is started, retuned and stopped", func() {
			So(p.Start(ctx), ShouldBeNil)
			So(p.SetRate(ctx, 20), ShouldBeNil)
			So(p.Stop(ctx), ShouldBeNil)

			Convey("Then the listener observes each change", func() {
				So(seen, ShouldHaveLength, 3)
				So(seen[0].Running, ShouldBeTrue)
				So(seen[1].Rate, ShouldEqual, 20)
				So(seen[2].Running, ShouldBeFalse)
			})
		})
	})

	Convey("Given invalid construction parameters", t, func() {
		_, errRate := producer.New(seqGenerator{}, producer.WithRate(0))
		_, errBatch := producer.New(seqGenerator{}, producer.WithBatchSize(0))

		Convey("Then New rejects them", func() {
			So(errors.Is(errRate, producer.ErrInvalidRate), ShouldBeTrue)
			So(errors.Is(errBatch, producer.ErrInvalidBatchSize), ShouldBeTrue)
		})
	})

	Convey("Given the rate bounds", t, func() {
		Convey("Then the tick interval is one second divided by the rate", func() {
			So(producer.Interval(1), ShouldEqual, time.Second)
			So(producer.Interval(1000), ShouldEqual, time.Millisecond)
		})
	})
}
