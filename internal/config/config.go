// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"time"
)

// Config contains process configuration for the server and the watch
// client. Durations are configured in milliseconds.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Rate is the initial generation rate in events per second.
	Rate int `koanf:"rate"`
	// BatchSize is the number of events per flush.
	BatchSize int `koanf:"batch_size"`
	// Autostart starts the producer with the server.
	Autostart bool `koanf:"autostart"`

	// WindowMS and MaxRequests set the admission quota per client.
	WindowMS        int `koanf:"window_ms"`
	MaxRequests     int `koanf:"max_requests"`
	SweepIntervalMS int `koanf:"sweep_interval_ms"`

	// HubFanout bounds concurrent subscriber closes on shutdown.
	HubFanout int `koanf:"hub_fanout"`
	// HubQueueSize is how many messages a subscriber may lag behind
	// before it is dropped.
	HubQueueSize      int `koanf:"hub_queue_size"`
	HubWriteTimeoutMS int `koanf:"hub_write_timeout_ms"`

	// PersistWorkers, PersistQueueSize and PersistTimeoutMS size the
	// persistence pipeline.
	PersistWorkers   int `koanf:"persist_workers"`
	PersistQueueSize int `koanf:"persist_queue_size"`
	PersistTimeoutMS int `koanf:"persist_timeout_ms"`

	// SinkDriver is one of none, memory, pebble, redis, mongo, postgres.
	SinkDriver       string `koanf:"sink_driver"`
	SinkPath         string `koanf:"sink_path"`
	SinkURL          string `koanf:"sink_url"`
	SinkDatabase     string `koanf:"sink_database"`
	SinkCollection   string `koanf:"sink_collection"`
	SinkStreamMaxLen int64  `koanf:"sink_stream_max_len"`

	// Client settings are read by pulse-watch.
	ClientURL            string `koanf:"client_url"`
	BufferCapacity       int    `koanf:"buffer_capacity"`
	BatchCommitDelayMS   int    `koanf:"batch_commit_delay_ms"`
	HeartbeatIntervalMS  int    `koanf:"heartbeat_interval_ms"`
	ReconnectDelayMS     int    `koanf:"reconnect_delay_ms"`
	MaxReconnectAttempts int    `koanf:"max_reconnect_attempts"`
	OutboundLimit        int    `koanf:"outbound_limit"`
	ThroughputIntervalMS int    `koanf:"throughput_interval_ms"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":9080",

		Rate:      10,
		BatchSize: 10,
		Autostart: true,

		WindowMS:        60_000,
		MaxRequests:     100,
		SweepIntervalMS: 60_000,

		HubFanout:         32,
		HubQueueSize:      256,
		HubWriteTimeoutMS: 5_000,

		PersistWorkers:   2,
		PersistQueueSize: 1024,
		PersistTimeoutMS: 5_000,

		SinkDriver:     "memory",
		SinkPath:       "data/events",
		SinkDatabase:   "pulse",
		SinkCollection: "events",

		ClientURL:            "ws://localhost:9080/ws",
		BufferCapacity:       5000,
		BatchCommitDelayMS:   100,
		HeartbeatIntervalMS:  30_000,
		ReconnectDelayMS:     3_000,
		MaxReconnectAttempts: 10,
		OutboundLimit:        1000,
		ThroughputIntervalMS: 1_000,
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Addr != "", "addr must not be empty"},
		{c.Rate >= 1 && c.Rate <= 1000, fmt.Sprintf("rate %d outside 1-1000", c.Rate)},
		{c.BatchSize >= 1, fmt.Sprintf("batch_size %d must be positive", c.BatchSize)},
		{c.WindowMS > 0, fmt.Sprintf("window_ms %d must be positive", c.WindowMS)},
		{c.MaxRequests > 0, fmt.Sprintf("max_requests %d must be positive", c.MaxRequests)},
		{c.SweepIntervalMS > 0, fmt.Sprintf("sweep_interval_ms %d must be positive", c.SweepIntervalMS)},
		{c.HubFanout > 0, fmt.Sprintf("hub_fanout %d must be positive", c.HubFanout)},
		{c.HubQueueSize > 0, fmt.Sprintf("hub_queue_size %d must be positive", c.HubQueueSize)},
		{c.HubWriteTimeoutMS > 0, fmt.Sprintf("hub_write_timeout_ms %d must be positive", c.HubWriteTimeoutMS)},
		{c.PersistWorkers > 0, fmt.Sprintf("persist_workers %d must be positive", c.PersistWorkers)},
		{c.PersistQueueSize > 0, fmt.Sprintf("persist_queue_size %d must be positive", c.PersistQueueSize)},
		{c.PersistTimeoutMS > 0, fmt.Sprintf("persist_timeout_ms %d must be positive", c.PersistTimeoutMS)},
		{c.BufferCapacity > 0, fmt.Sprintf("buffer_capacity %d must be positive", c.BufferCapacity)},
		{c.BatchCommitDelayMS > 0, fmt.Sprintf("batch_commit_delay_ms %d must be positive", c.BatchCommitDelayMS)},
		{c.HeartbeatIntervalMS > 0, fmt.Sprintf("heartbeat_interval_ms %d must be positive", c.HeartbeatIntervalMS)},
		{c.ReconnectDelayMS > 0, fmt.Sprintf("reconnect_delay_ms %d must be positive", c.ReconnectDelayMS)},
		{c.ThroughputIntervalMS > 0, fmt.Sprintf("throughput_interval_ms %d must be positive", c.ThroughputIntervalMS)},
		{c.MaxReconnectAttempts >= 0, fmt.Sprintf("max_reconnect_attempts %d must not be negative", c.MaxReconnectAttempts)},
		{c.OutboundLimit >= 0, fmt.Sprintf("outbound_limit %d must not be negative", c.OutboundLimit)},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, check.msg)
		}
	}
	switch c.SinkDriver {
	case "none", "memory", "pebble", "redis", "mongo", "postgres":
	default:
		return fmt.Errorf("%w: unknown sink_driver %q", ErrInvalidConfig, c.SinkDriver)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Window returns the admission window.
func (c *Config) Window() time.Duration { return ms(c.WindowMS) }

// SweepInterval returns how often idle limiter buckets are swept.
func (c *Config) SweepInterval() time.Duration { return ms(c.SweepIntervalMS) }

// HubWriteTimeout bounds a single subscriber write.
func (c *Config) HubWriteTimeout() time.Duration { return ms(c.HubWriteTimeoutMS) }

// PersistTimeout bounds a single sink write.
func (c *Config) PersistTimeout() time.Duration { return ms(c.PersistTimeoutMS) }

// BatchCommitDelay is the client's coalescing window.
func (c *Config) BatchCommitDelay() time.Duration { return ms(c.BatchCommitDelayMS) }

// HeartbeatInterval is the client's ping cadence.
func (c *Config) HeartbeatInterval() time.Duration { return ms(c.HeartbeatIntervalMS) }

// ReconnectDelay is the client's fixed wait between reconnects.
func (c *Config) ReconnectDelay() time.Duration { return ms(c.ReconnectDelayMS) }

// ThroughputInterval is the client's sampling cadence.
func (c *Config) ThroughputInterval() time.Duration { return ms(c.ThroughputIntervalMS) }
