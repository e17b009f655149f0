package stream

import (
	"time"

	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/task"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithScheduler sets the clock driving heartbeats and reconnects.
func WithScheduler(s task.Scheduler) Option {
	return func(c *Client) {
		if s != nil {
			c.sched = s
		}
	}
}

// WithHeartbeatInterval sets how often a ping is sent while connected.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// WithReconnectDelay sets the fixed wait before each reconnect.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithMaxAttempts bounds consecutive reconnects before failing.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxAttempts = n
		}
	}
}

// WithOutboundLimit caps the queue of messages sent while disconnected.
// Zero means unbounded.
func WithOutboundLimit(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.outboundLimit = n
		}
	}
}

// WithOnMessage sets the inbound message callback.
func WithOnMessage(fn MessageHandler) Option {
	return func(c *Client) { c.onMessage = fn }
}

// WithOnStateChange sets the transition callback.
func WithOnStateChange(fn StateHandler) Option {
	return func(c *Client) { c.onState = fn }
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(c *Client) {
		if lg != nil {
			c.logger = lg
		}
	}
}
