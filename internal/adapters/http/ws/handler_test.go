package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/pulse/internal/adapters/broadcast"
	"github.com/okian/pulse/internal/adapters/http/ws"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/internal/domain/types"
	"github.com/okian/pulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func readEnvelope(c *websocket.Conn) model.Envelope {
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	So(err, ShouldBeNil)
	env, err := model.DecodeEnvelope(data)
	So(err, ShouldBeNil)
	return env
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestHandler(t *testing.T) {
	Convey("Given a stream endpoint backed by a hub", t, func() {
		hub := broadcast.New(broadcast.WithStats(func() types.StreamStats {
			return types.StreamStats{Running: true, Rate: 10, TotalGenerated: 7}
		}))
		srv := httptest.NewServer(ws.NewHandler(hub, func() int64 { return 7 }))
		Reset(srv.Close)

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		client, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		Reset(func() { _ = client.Close() })

		Convey("When the subscriber connects", func() {
			hello := readEnvelope(client)
			stats := readEnvelope(client)

			Convey("Then it is greeted and sent a stats snapshot", func() {
				So(hello.Type, ShouldEqual, model.TypeConnected)
				So(hello.Total, ShouldEqual, 7)
				So(hello.Message, ShouldNotBeEmpty)
				So(stats.Type, ShouldEqual, model.TypeStats)
				var s types.StreamStats
				So(json.Unmarshal(stats.Data, &s), ShouldBeNil)
				So(s.Subscribers, ShouldEqual, 1)
			})

			Convey("Then a ping is answered with a pong, even after garbage", func() {
				So(client.WriteMessage(websocket.TextMessage, []byte("{not json")), ShouldBeNil)
				So(client.WriteJSON(model.Ping()), ShouldBeNil)
				So(readEnvelope(client).Type, ShouldEqual, model.TypePong)
			})

			Convey("Then broadcasts reach it", func() {
				So(hub.PublishBatch(context.Background(), model.Batch{
					Seq: 1, Total: 8, Events: []model.Event{{Value: 3, Category: model.CategoryMetric}},
				}), ShouldBeNil)
				env := readEnvelope(client)
				So(env.Type, ShouldEqual, model.TypeBatch)
				So(env.Total, ShouldEqual, 8)
			})

			Convey("Then closing the socket unregisters it", func() {
				So(client.Close(), ShouldBeNil)
				So(waitFor(func() bool { return hub.Count() == 0 }), ShouldBeTrue)
			})
		})
	})
}
