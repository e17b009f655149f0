package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

var postgresColumns = []string{"event_id", "generated_at", "category", "value", "metadata"}

// Postgres copies each batch into a table with COPY.
type Postgres struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// NewPostgres connects to cfg.URL and creates the table when missing.
func NewPostgres(ctx context.Context, cfg Config, lg logger.Logger) (*Postgres, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	var pool *pgxpool.Pool
	err = connect(ctx, lg, DriverPostgres, cfg.ConnectAttempts, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s := &Postgres{pool: pool, table: pgx.Identifier{cfg.collection(defaultCollection)}}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_id     TEXT,
	generated_at TIMESTAMPTZ NOT NULL,
	category     TEXT NOT NULL,
	value        DOUBLE PRECISION NOT NULL,
	metadata     JSONB
)`, s.table.Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table.Sanitize(), err)
	}
	return nil
}

func (s *Postgres) WriteBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]any, len(events))
	for i, e := range events {
		var id any
		if v := eventID(e); v != "" {
			id = v
		}
		var meta any
		if len(e.Metadata) > 0 {
			meta = e.Metadata
		}
		rows[i] = []any{id, e.GeneratedAt, string(e.Category), e.Value, meta}
	}
	n, err := s.pool.CopyFrom(ctx, s.table, postgresColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s (%d of %d rows): %w", s.table.Sanitize(), n, len(rows), err)
	}
	return nil
}

func (s *Postgres) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Name() string { return DriverPostgres }
