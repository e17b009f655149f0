// Package sink persists committed batches. Every driver implements Sink;
// New picks one from configuration.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// Supported drivers.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverPebble   = "pebble"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

const (
	defaultStream     = "pulse:events"
	defaultDatabase   = "pulse"
	defaultCollection = "events"
	defaultAttempts   = 5
)

// Sink stores batches of events. A failed write may have stored part of
// the batch.
type Sink interface {
	WriteBatch(ctx context.Context, events []model.Event) error
	Close(ctx context.Context) error
	Name() string
}

// Config selects and parameterizes a driver.
type Config struct {
	Driver string
	// Path is the pebble data directory.
	Path string
	// URL is the redis, mongo or postgres connection string.
	URL string
	// Database is the mongo database.
	Database string
	// Collection is the mongo collection, postgres table or redis stream key.
	Collection string
	// StreamMaxLen caps the redis stream, approximately. Zero leaves it unbounded.
	StreamMaxLen int64
	// ConnectAttempts bounds connection retries for networked drivers.
	ConnectAttempts int
	ConnectTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverNone
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.ConnectAttempts < 1 {
		c.ConnectAttempts = defaultAttempts
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

func (c Config) collection(fallback string) string {
	if c.Collection != "" {
		return c.Collection
	}
	return fallback
}

// New opens the sink named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Sink, error) {
	cfg = cfg.withDefaults()
	lg := logger.Get().Named("sink")

	switch cfg.Driver {
	case DriverNone:
		return Nop{}, nil
	case DriverMemory:
		return NewMemory(), nil
	case DriverPebble:
		return OpenPebble(cfg.Path)
	case DriverRedis:
		return NewRedis(ctx, cfg, lg)
	case DriverMongo:
		return NewMongo(ctx, cfg, lg)
	case DriverPostgres:
		return NewPostgres(ctx, cfg, lg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// eventID returns the id the generator stamped into the metadata, or ""
// when the event carries none.
func eventID(e model.Event) string {
	if id, ok := e.Metadata["id"].(string); ok {
		return id
	}
	return ""
}
