package stream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/pulse/internal/client/stream"
	. "github.com/smartystreets/goconvey/convey"
)

// wsServer runs fn on every accepted websocket.
func wsServer(fn func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(ws)
	}))
}

func TestWebsocketDialer(t *testing.T) {
	Convey("Given a server that reports how each session ended", t, func() {
		ended := make(chan error, 1)
		srv := wsServer(func(ws *websocket.Conn) {
			defer ws.Close()
			_, _, err := ws.ReadMessage()
			ended <- err
		})
		Reset(srv.Close)

		conn, err := stream.WebsocketDialer{}.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
		So(err, ShouldBeNil)

		Convey("When a healthy connection is closed", func() {
			So(conn.Close(), ShouldBeNil)

			Convey("Then the server sees a normal close", func() {
				var got error
				select {
				case got = <-ended:
				case <-time.After(2 * time.Second):
				}
				So(websocket.IsCloseError(got, websocket.CloseNormalClosure), ShouldBeTrue)
			})
		})
	})

	Convey("Given a server that drops the socket without a handshake", t, func() {
		srv := wsServer(func(ws *websocket.Conn) {
			_ = ws.NetConn().Close()
		})
		Reset(srv.Close)

		conn, err := stream.WebsocketDialer{}.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
		So(err, ShouldBeNil)

		Convey("When the read fails and the client closes", func() {
			_, readErr := conn.Read()
			start := time.Now()
			_ = conn.Close()
			took := time.Since(start)

			Convey("Then close returns without waiting on a handshake", func() {
				So(readErr, ShouldNotBeNil)
				So(took, ShouldBeLessThan, 50*time.Millisecond)
			})
		})
	})
}
