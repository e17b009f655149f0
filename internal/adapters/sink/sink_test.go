package sink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/okian/pulse/internal/adapters/sink"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func events(n int) []model.Event {
	out := make([]model.Event, n)
	for i := range out {
		out[i] = model.Event{
			GeneratedAt: epoch.Add(time.Duration(i) * time.Second),
			Value:       float64(i),
			Category:    model.CategorySensor,
			Metadata:    map[string]any{"id": string(rune('a' + i))},
		}
	}
	return out
}

func TestNew(t *testing.T) {
	Convey("Given sink configurations", t, func() {
		ctx := context.Background()

		Convey("When the driver is unknown", func() {
			_, err := sink.New(ctx, sink.Config{Driver: "cassandra"})

			Convey("Then New fails with ErrUnknownDriver", func() {
				So(errors.Is(err, sink.ErrUnknownDriver), ShouldBeTrue)
			})
		})

		Convey("When no driver is set", func() {
			s, err := sink.New(ctx, sink.Config{})

			Convey("Then writes are discarded", func() {
				So(err, ShouldBeNil)
				So(s.Name(), ShouldEqual, sink.DriverNone)
				So(s.WriteBatch(ctx, events(3)), ShouldBeNil)
			})
		})

		Convey("When a networked driver has no URL", func() {
			_, err := sink.New(ctx, sink.Config{Driver: sink.DriverRedis})

			Convey("Then it fails before dialing", func() {
				So(errors.Is(err, sink.ErrMissingURL), ShouldBeTrue)
			})
		})

		Convey("When pebble has no path", func() {
			_, err := sink.New(ctx, sink.Config{Driver: sink.DriverPebble})

			Convey("Then it fails", func() {
				So(errors.Is(err, sink.ErrMissingPath), ShouldBeTrue)
			})
		})
	})
}

func TestMemory(t *testing.T) {
	Convey("Given a memory sink", t, func() {
		ctx := context.Background()
		m := sink.NewMemory()

		Convey("When two batches are written", func() {
			So(m.WriteBatch(ctx, events(2)), ShouldBeNil)
			So(m.WriteBatch(ctx, events(3)), ShouldBeNil)

			Convey("Then all events are retained in order", func() {
				So(m.Events(), ShouldHaveLength, 5)
				So(m.Batches(), ShouldEqual, 2)
			})
		})

		Convey("When writes are set to fail", func() {
			boom := errors.New("disk full")
			m.FailWith(boom)

			Convey("Then WriteBatch returns the injected error", func() {
				So(m.WriteBatch(ctx, events(1)), ShouldEqual, boom)
				So(m.Events(), ShouldBeEmpty)
			})
		})

		Convey("When closed", func() {
			So(m.Close(ctx), ShouldBeNil)

			Convey("Then writes are refused", func() {
				So(errors.Is(m.WriteBatch(ctx, events(1)), sink.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestPebble(t *testing.T) {
	Convey("Given an in-memory pebble sink", t, func() {
		ctx := context.Background()
		p, err := sink.OpenPebble("events", sink.WithFS(vfs.NewMem()))
		So(err, ShouldBeNil)
		Reset(func() { _ = p.Close(ctx) })

		Convey("When a batch is written out of time order", func() {
			evs := events(4)
			evs[0], evs[3] = evs[3], evs[0]
			So(p.WriteBatch(ctx, evs), ShouldBeNil)

			Convey("Then a range scan returns them in generation order", func() {
				got, err := p.Scan(epoch, epoch.Add(time.Hour))
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 4)
				for i, e := range got {
					So(e.Value, ShouldEqual, float64(i))
					So(e.Category, ShouldEqual, model.CategorySensor)
				}
			})

			Convey("Then the scan bounds are honored", func() {
				got, err := p.Scan(epoch.Add(time.Second), epoch.Add(3*time.Second))
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].Value, ShouldEqual, float64(1))
			})
		})

		Convey("When the sink is closed", func() {
			So(p.Close(ctx), ShouldBeNil)

			Convey("Then writes are refused and a second close is harmless", func() {
				So(errors.Is(p.WriteBatch(ctx, events(1)), sink.ErrClosed), ShouldBeTrue)
				So(p.Close(ctx), ShouldBeNil)
			})
		})
	})
}
