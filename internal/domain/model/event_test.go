package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	model "github.com/okian/pulse/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestCategory(t *testing.T) {
	convey.Convey("Given the category set", t, func() {
		convey.Convey("Then it has exactly five valid members", func() {
			cats := model.Categories()
			convey.So(cats, convey.ShouldHaveLength, 5)
			for _, c := range cats {
				convey.So(c.Valid(), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When parsing an unknown category", func() {
			_, err := model.ParseCategory("weather")

			convey.Convey("Then it returns ErrUnknownCategory", func() {
				convey.So(errors.Is(err, model.ErrUnknownCategory), convey.ShouldBeTrue)
			})
		})
	})
}

func TestRoundValue(t *testing.T) {
	convey.Convey("Given raw generated values", t, func() {
		convey.Convey("Then values are rounded to two decimals", func() {
			convey.So(model.RoundValue(12.3456), convey.ShouldEqual, 12.35)
		})

		convey.Convey("Then values are clamped to the allowed range", func() {
			convey.So(model.RoundValue(-4), convey.ShouldEqual, 0)
			convey.So(model.RoundValue(10000.7), convey.ShouldEqual, 10000)
		})
	})
}

func TestEnvelope(t *testing.T) {
	convey.Convey("Given a flushed batch", t, func() {
		ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		batch := model.Batch{
			Seq:   1,
			Total: 42,
			Events: []model.Event{
				{GeneratedAt: ts, Value: 10.5, Category: model.CategoryAlert, Metadata: map[string]any{"seq": 41}},
				{GeneratedAt: ts, Value: 99.99, Category: model.CategoryLog},
			},
		}

		convey.Convey("When wrapped in a batch envelope", func() {
			env, err := model.BatchEnvelope(batch)
			convey.So(err, convey.ShouldBeNil)
			raw, err := json.Marshal(env)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the wire shape carries type, data and total", func() {
				var wire map[string]any
				convey.So(json.Unmarshal(raw, &wire), convey.ShouldBeNil)
				convey.So(wire["type"], convey.ShouldEqual, "batch")
				convey.So(wire["total"], convey.ShouldEqual, float64(42))
				data := wire["data"].([]any)
				first := data[0].(map[string]any)
				convey.So(first["generatedAt"], convey.ShouldEqual, "2024-05-01T12:00:00Z")
				convey.So(first["category"], convey.ShouldEqual, "alert")
			})

			convey.Convey("Then decoding returns the events in order", func() {
				decoded, err := model.DecodeEnvelope(raw)
				convey.So(err, convey.ShouldBeNil)
				events, err := decoded.Events()
				convey.So(err, convey.ShouldBeNil)
				convey.So(events, convey.ShouldHaveLength, 2)
				convey.So(events[1].Value, convey.ShouldEqual, 99.99)
			})
		})

		convey.Convey("When a heartbeat is marshalled", func() {
			raw, _ := json.Marshal(model.Ping())

			convey.Convey("Then optional fields are omitted", func() {
				convey.So(string(raw), convey.ShouldEqual, `{"type":"ping"}`)
			})
		})
	})

	convey.Convey("Given malformed input", t, func() {
		convey.Convey("When it is not JSON", func() {
			_, err := model.DecodeEnvelope([]byte("{not json"))
			convey.So(errors.Is(err, model.ErrMalformedEnvelope), convey.ShouldBeTrue)
		})

		convey.Convey("When the type is missing", func() {
			_, err := model.DecodeEnvelope([]byte(`{"message":"hi"}`))
			convey.So(errors.Is(err, model.ErrMalformedEnvelope), convey.ShouldBeTrue)
		})

		convey.Convey("When events are requested from a stats envelope", func() {
			_, err := model.Envelope{Type: model.TypeStats}.Events()
			convey.So(errors.Is(err, model.ErrMalformedEnvelope), convey.ShouldBeTrue)
		})
	})
}
