package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// Redis appends each event to a stream with one pipelined round trip per
// batch.
type Redis struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedis connects to cfg.URL.
func NewRedis(ctx context.Context, cfg Config, lg logger.Logger) (*Redis, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	err = connect(ctx, lg, DriverRedis, cfg.ConnectAttempts, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisFromClient(client, cfg.collection(defaultStream), cfg.StreamMaxLen), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, stream string, maxLen int64) *Redis {
	return &Redis{client: client, stream: stream, maxLen: maxLen}
}

func (r *Redis) WriteBatch(ctx context.Context, events []model.Event) error {
	pipe := r.client.Pipeline()
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		args := &redis.XAddArgs{
			Stream: r.stream,
			Values: map[string]any{
				"category": string(e.Category),
				"event":    payload,
			},
		}
		if r.maxLen > 0 {
			args.MaxLen = r.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Stream returns the stream key written to.
func (r *Redis) Stream() string { return r.stream }

func (r *Redis) Close(context.Context) error { return r.client.Close() }

func (r *Redis) Name() string { return DriverRedis }
