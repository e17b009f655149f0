package watch

import (
	"io"
	"time"

	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/internal/domain/model"
)

// Config holds configuration for a watch session.
type Config struct {
	URL            string         // Stream endpoint, ws:// or wss://
	Category       model.Category // Report filter; empty means all
	ReportInterval time.Duration  // How often a report line is printed
	Duration       time.Duration  // Stop after this long; zero runs until canceled
	Tail           int            // Most recent records printed per report

	BufferCapacity     int
	CommitDelay        time.Duration
	ThroughputInterval time.Duration
	HeartbeatInterval  time.Duration
	ReconnectDelay     time.Duration
	MaxAttempts        int
	OutboundLimit      int

	Output io.Writer
}

// FromConfig takes the client settings of cfg.
func FromConfig(cfg *config.Config) Config {
	return Config{
		URL:                cfg.ClientURL,
		ReportInterval:     defaultReportInterval,
		BufferCapacity:     cfg.BufferCapacity,
		CommitDelay:        cfg.BatchCommitDelay(),
		ThroughputInterval: cfg.ThroughputInterval(),
		HeartbeatInterval:  cfg.HeartbeatInterval(),
		ReconnectDelay:     cfg.ReconnectDelay(),
		MaxAttempts:        cfg.MaxReconnectAttempts,
		OutboundLimit:      cfg.OutboundLimit,
	}
}
