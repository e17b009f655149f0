// Package ws upgrades stream subscribers to websockets and registers them
// with the broadcast hub.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/pulse/internal/adapters/broadcast"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

const (
	defaultWriteTimeout = 5 * time.Second
	maxMessageBytes     = 64 << 10
	greeting            = "Connected to event stream"
)

// Registry is the hub side of a subscription.
type Registry interface {
	Register(ctx context.Context, sub broadcast.Subscriber) error
	Unregister(sub broadcast.Subscriber) bool
}

// Handler serves the stream endpoint.
type Handler struct {
	hub          Registry
	total        func() int64
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       logger.Logger
}

// NewHandler returns a handler registering connections with hub. total
// reports the generated-event count sent in the greeting.
func NewHandler(hub Registry, total func() int64, opts ...Option) *Handler {
	h := &Handler{
		hub:          hub,
		total:        total,
		writeTimeout: defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("ws")
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	raw.SetReadLimit(maxMessageBytes)
	// http.Server read timeouts carry over to the hijacked connection.
	_ = raw.SetReadDeadline(time.Time{})
	conn := newConn(raw, h.writeTimeout)
	defer conn.Close()

	if err := h.greet(ctx, conn); err != nil {
		h.logger.Debug(ctx, "greeting failed", logger.String("id", conn.ID()), logger.Error(err))
		return
	}
	if err := h.hub.Register(ctx, conn); err != nil {
		h.logger.Debug(ctx, "register failed", logger.String("id", conn.ID()), logger.Error(err))
		return
	}
	defer h.hub.Unregister(conn)

	h.logger.Info(ctx, "subscriber connected",
		logger.String("id", conn.ID()),
		logger.String("remote", r.RemoteAddr),
	)
	h.readLoop(ctx, conn, raw)
	h.logger.Info(ctx, "subscriber disconnected", logger.String("id", conn.ID()))
}

func (h *Handler) greet(ctx context.Context, conn *Conn) error {
	env := model.Envelope{Type: model.TypeConnected, Message: greeting}
	if h.total != nil {
		env.Total = h.total()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Send(ctx, payload)
}

// readLoop answers pings until the peer goes away. Anything else inbound
// is ignored.
func (h *Handler) readLoop(ctx context.Context, conn *Conn, raw *websocket.Conn) {
	pong, _ := json.Marshal(model.Pong())
	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		env, err := model.DecodeEnvelope(data)
		if err != nil {
			h.logger.Debug(ctx, "ignoring malformed message", logger.String("id", conn.ID()), logger.Error(err))
			continue
		}
		if env.Type != model.TypePing {
			continue
		}
		if err := conn.Send(ctx, pong); err != nil {
			return
		}
	}
}
