package sink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// Mongo inserts each batch with a single unordered InsertMany, so one bad
// document does not stop the rest.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo connects to cfg.URL.
func NewMongo(ctx context.Context, cfg Config, lg logger.Logger) (*Mongo, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}

	var client *mongo.Client
	err := connect(ctx, lg, DriverMongo, cfg.ConnectAttempts, func(ctx context.Context) error {
		c, err := mongo.Connect(options.Client().
			ApplyURI(cfg.URL).
			SetConnectTimeout(cfg.ConnectTimeout))
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := c.Ping(pingCtx, nil); err != nil {
			_ = c.Disconnect(ctx)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	coll := client.Database(cfg.Database).Collection(cfg.collection(defaultCollection))
	return &Mongo{client: client, coll: coll}, nil
}

func eventDocument(e model.Event) bson.M {
	doc := bson.M{
		"generatedAt": e.GeneratedAt,
		"value":       e.Value,
		"category":    string(e.Category),
	}
	if id := eventID(e); id != "" {
		doc["_id"] = id
	}
	if len(e.Metadata) > 0 {
		doc["metadata"] = e.Metadata
	}
	return doc
}

func (m *Mongo) WriteBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, len(events))
	for i, e := range events {
		docs[i] = eventDocument(e)
	}
	if _, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert into %s: %w", m.coll.Name(), err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }

func (m *Mongo) Name() string { return DriverMongo }
