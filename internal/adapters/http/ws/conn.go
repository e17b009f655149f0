package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is a hub subscriber backed by a websocket connection. Writes are
// serialized; reads belong to the handler's read loop.
type Conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	open    atomic.Bool
	once    sync.Once
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	c := &Conn{id: uuid.NewString(), ws: ws, writeTimeout: writeTimeout}
	c.open.Store(true)
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Open() bool { return c.open.Load() }

// Send writes one text frame. A failed write marks the connection closed.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if !c.Open() {
		return websocket.ErrCloseSent
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		c.open.Store(false)
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

// Close sends a close frame, best effort, and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.open.Store(false)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
