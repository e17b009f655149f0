package stream

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// closeGrace bounds the close handshake on a healthy transport.
const closeGrace = 100 * time.Millisecond

// Conn is one open transport. Read is called from a single reader
// goroutine and Write from the client loop, never concurrently with each
// other's kind. Read returns io.EOF when the peer closed cleanly.
type Conn interface {
	Read() ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	timeout := d.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &wsConn{ws: ws, writeTimeout: timeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	// broken is set once a read or write has failed.
	broken atomic.Bool
}

func (c *wsConn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.broken.Store(true)
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
	}
	return data, err
}

func (c *wsConn) Write(ctx context.Context, payload []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		c.broken.Store(true)
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.broken.Store(true)
		return err
	}
	return nil
}

// Close sends a close frame unless the transport has already failed, then
// closes the socket.
func (c *wsConn) Close() error {
	if !c.broken.Load() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
	}
	return c.ws.Close()
}
