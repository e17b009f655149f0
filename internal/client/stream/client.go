// Package stream is the subscriber side of the event stream: a websocket
// client that reconnects on a fixed delay, keeps the link alive with
// heartbeats and queues outbound messages while it is down.
//
// All state is owned by the goroutine running Run. Commands, transport
// callbacks and timers reach it as events on one channel, and every event
// from a transport carries the generation it was opened under so that
// late events from a superseded connection are discarded.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/task"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = 3 * time.Second
	defaultMaxAttempts       = 10
	defaultOutboundLimit     = 1000
	eventBuffer              = 256
	malformedLogInterval     = 10 * time.Second
)

// MessageHandler receives every inbound envelope except pongs, in arrival
// order, on the client goroutine.
type MessageHandler func(env model.Envelope)

// StateHandler observes every state transition on the client goroutine.
type StateHandler func(from, to State)

// Client is the reconnecting stream subscriber.
type Client struct {
	url               string
	dialer            Dialer
	sched             task.Scheduler
	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	maxAttempts       int
	outboundLimit     int
	onMessage         MessageHandler
	onState           StateHandler
	logger            logger.Logger
	malformed         rate.Sometimes

	events   chan any
	commands chan command
	stopped  chan struct{}
	runOnce  sync.Once

	// owned by the Run goroutine
	ctx       context.Context
	gen       uint64
	conn      Conn
	outbound  [][]byte
	heartbeat task.Task
	reconnect task.Task

	mu     sync.RWMutex
	status Status
}

// New creates a disconnected client for url.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, ErrMissingURL
	}
	c := &Client{
		url:               url,
		dialer:            WebsocketDialer{},
		sched:             task.System(),
		heartbeatInterval: defaultHeartbeatInterval,
		reconnectDelay:    defaultReconnectDelay,
		maxAttempts:       defaultMaxAttempts,
		outboundLimit:     defaultOutboundLimit,
		malformed:         rate.Sometimes{Interval: malformedLogInterval},
		events:            make(chan any, eventBuffer),
		commands:          make(chan command),
		stopped:           make(chan struct{}),
		status:            Status{State: StateDisconnected},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("stream-client")
	}
	return c, nil
}

// Run processes events until ctx is canceled. It closes any open
// transport on return. Run may be called once.
func (c *Client) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return ErrClosed
	}
	c.ctx = ctx
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.commands:
			c.handle(cmd.cmd)
			close(cmd.done)
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Client) shutdown() {
	c.stopTimers()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++
	if c.State() != StateDisconnected {
		c.setState(StateDisconnected)
	}
	close(c.stopped)
}

// Connect starts a session from disconnected or failed, with the attempt
// count reset. While reconnecting it dials immediately. Otherwise it does
// nothing.
func (c *Client) Connect(ctx context.Context) error {
	return c.do(ctx, connectCmd{})
}

// Disconnect closes the transport and cancels the heartbeat and any
// pending reconnect.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, disconnectCmd{})
}

// Send transmits env now when connected and queues it otherwise.
func (c *Client) Send(ctx context.Context, env model.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}
	return c.do(ctx, sendCmd{payload: payload})
}

// do hands cmd to the loop and waits until it has been applied.
func (c *Client) do(ctx context.Context, cmd any) error {
	done := make(chan struct{})
	select {
	case c.commands <- command{cmd: cmd, done: done}:
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.State
}

// Status returns the current state, attempt count and queue length.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// post delivers a transport or timer event to the loop. It gives up once
// the loop has exited.
func (c *Client) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

func (c *Client) handle(ev any) {
	switch ev := ev.(type) {
	case connectCmd:
		c.onConnect()
	case disconnectCmd:
		c.onDisconnect()
	case sendCmd:
		c.onSend(ev.payload)
	case opened:
		c.onOpened(ev)
	case dialFailed:
		if ev.gen != c.gen {
			return
		}
		c.logger.Warn(c.ctx, "dial failed", logger.String("url", c.url), logger.Error(ev.err))
		c.setState(StateErrored)
		c.onLost()
	case received:
		if ev.gen != c.gen {
			return
		}
		c.onReceived(ev.data)
	case closed:
		if ev.gen != c.gen {
			return
		}
		if !errors.Is(ev.err, io.EOF) {
			c.logger.Warn(c.ctx, "connection error", logger.Error(ev.err))
			c.setState(StateErrored)
		}
		c.onLost()
	case heartbeatDue:
		if ev.gen != c.gen || c.conn == nil {
			return
		}
		ping, _ := json.Marshal(model.Ping())
		c.write(ping)
	case reconnectDue:
		if ev.gen != c.gen || c.State() != StateReconnecting {
			return
		}
		c.reconnect = nil
		c.dial()
	}
}

func (c *Client) onConnect() {
	switch c.State() {
	case StateDisconnected, StateFailed:
		c.setAttempts(0)
		c.dial()
	case StateReconnecting:
		c.stopTimers()
		c.dial()
	}
}

func (c *Client) onDisconnect() {
	c.stopTimers()
	c.gen++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.State() != StateDisconnected {
		c.setState(StateDisconnected)
	}
}

func (c *Client) onSend(payload []byte) {
	if c.conn != nil && c.State() == StateConnected && c.write(payload) {
		return
	}
	c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) {
	if c.outboundLimit > 0 && len(c.outbound) >= c.outboundLimit {
		c.outbound = c.outbound[1:]
		metrics.RecordClientOutboundDropped()
	}
	c.outbound = append(c.outbound, payload)
	c.syncOutbound()
}

// dial opens a new generation and dials off the loop.
func (c *Client) dial() {
	c.gen++
	gen := c.gen
	c.setState(StateConnecting)

	ctx := c.ctx
	go func() {
		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.post(dialFailed{gen: gen, err: err})
			return
		}
		c.post(opened{gen: gen, conn: conn})
	}()
}

func (c *Client) onOpened(ev opened) {
	if ev.gen != c.gen || c.State() != StateConnecting {
		_ = ev.conn.Close()
		return
	}
	c.conn = ev.conn
	go c.readLoop(ev.gen, ev.conn)

	gen := ev.gen
	c.heartbeat = c.sched.Every(c.heartbeatInterval, func() {
		// a missed heartbeat is harmless, a blocked timer is not
		select {
		case c.events <- heartbeatDue{gen: gen}:
		default:
		}
	})

	pending := c.outbound
	c.outbound = nil
	c.syncOutbound()
	for i, payload := range pending {
		if !c.write(payload) {
			// keep what was not sent for the next session
			c.outbound = append(pending[i:len(pending):len(pending)], c.outbound...)
			c.syncOutbound()
			return
		}
	}

	c.setAttempts(0)
	c.setState(StateConnected)
	c.logger.Info(c.ctx, "connected", logger.String("url", c.url), logger.Int("flushed", len(pending)))
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			c.post(closed{gen: gen, err: err})
			return
		}
		c.post(received{gen: gen, data: data})
	}
}

// write sends payload on the current transport. A failed write is handled
// as a transport error.
func (c *Client) write(payload []byte) bool {
	if err := c.conn.Write(c.ctx, payload); err != nil {
		c.logger.Warn(c.ctx, "write failed", logger.Error(err))
		c.setState(StateErrored)
		c.onLost()
		return false
	}
	return true
}

func (c *Client) onReceived(data []byte) {
	env, err := model.DecodeEnvelope(data)
	if err != nil {
		metrics.RecordClientMalformed()
		c.malformed.Do(func() {
			c.logger.Warn(c.ctx, "dropping malformed message", logger.Int("bytes", len(data)), logger.Error(err))
		})
		return
	}
	if env.Type == model.TypePong {
		return
	}
	if c.onMessage != nil {
		c.onMessage(env)
	}
}

// onLost handles the end of a transport: heartbeat off, then either a
// fixed-delay reconnect or failed.
func (c *Client) onLost() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	// late events from this transport are now stale
	c.gen++

	attempts := c.Status().Attempts
	if attempts >= c.maxAttempts {
		c.logger.Error(c.ctx, "giving up reconnecting", logger.Int("attempts", attempts))
		c.setState(StateFailed)
		return
	}
	c.setAttempts(attempts + 1)
	gen := c.gen
	c.reconnect = c.sched.After(c.reconnectDelay, func() {
		c.post(reconnectDue{gen: gen})
	})
	metrics.RecordClientReconnect()
	c.setState(StateReconnecting)
}

func (c *Client) stopTimers() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) setState(to State) {
	c.mu.Lock()
	from := c.status.State
	c.status.State = to
	c.mu.Unlock()

	metrics.RecordClientTransition(string(to))
	c.logger.Debug(c.ctx, "state change", logger.String("from", string(from)), logger.String("to", string(to)))
	if c.onState != nil {
		c.onState(from, to)
	}
}

func (c *Client) setAttempts(n int) {
	c.mu.Lock()
	c.status.Attempts = n
	c.mu.Unlock()
}

func (c *Client) syncOutbound() {
	c.mu.Lock()
	c.status.Outbound = len(c.outbound)
	c.mu.Unlock()
}
