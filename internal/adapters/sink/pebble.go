package sink

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"

	"github.com/okian/pulse/internal/domain/model"
)

var pebblePrefix = []byte("evt/")

// Pebble stores events in an embedded LSM keyed by generation time, so a
// time range is a single ordered scan.
type Pebble struct {
	mu sync.RWMutex
	db *pebble.DB
}

// PebbleOption configures OpenPebble.
type PebbleOption func(*pebble.Options)

// WithFS runs pebble on fs, typically vfs.NewMem() in tests.
func WithFS(fs vfs.FS) PebbleOption {
	return func(o *pebble.Options) { o.FS = fs }
}

// OpenPebble opens or creates the database at dir.
func OpenPebble(dir string, opts ...PebbleOption) (*Pebble, error) {
	if dir == "" {
		return nil, ErrMissingPath
	}
	po := &pebble.Options{
		WALMinSyncInterval: func() time.Duration { return 5 * time.Millisecond },
	}
	for _, opt := range opts {
		opt(po)
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	return &Pebble{db: db}, nil
}

// eventKey is prefix | big-endian unix nanos | id.
func eventKey(e model.Event) []byte {
	id := eventID(e)
	if id == "" {
		id = uuid.NewString()
	}
	key := make([]byte, 0, len(pebblePrefix)+8+len(id))
	key = append(key, pebblePrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(e.GeneratedAt.UnixNano()))
	return append(key, id...)
}

func timeBound(t time.Time) []byte {
	key := append([]byte(nil), pebblePrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
}

// WriteBatch commits all events atomically.
func (p *Pebble) WriteBatch(_ context.Context, events []model.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return ErrClosed
	}

	b := p.db.NewBatch()
	defer b.Close()
	for _, e := range events {
		val, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.Set(eventKey(e), val, nil); err != nil {
			return fmt.Errorf("stage event: %w", err)
		}
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Scan returns events generated in [from, to) in generation order.
func (p *Pebble) Scan(from, to time.Time) ([]model.Event, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: timeBound(from),
		UpperBound: timeBound(to),
	})
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	var out []model.Event
	for iter.First(); iter.Valid(); iter.Next() {
		var e model.Event
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

func (p *Pebble) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Pebble) Name() string { return DriverPebble }
