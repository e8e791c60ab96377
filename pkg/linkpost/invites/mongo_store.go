package invites

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jholhewres/linkpost/pkg/linkpost/database"
)

// MongoStore keeps invite records in a MongoDB collection, one document per
// channel_id.
type MongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

// MongoConfig configures OpenMongoStore.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// OpenMongoStore connects to MongoDB and ensures the unique channel index.
func OpenMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("invites: mongodb uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("invites: connecting to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("invites: pinging mongodb: %w", err)
	}

	s := &MongoStore{
		client:  client,
		coll:    client.Database(cfg.Database).Collection(cfg.Collection),
		timeout: cfg.Timeout,
	}

	_, err = s.coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "channel_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("invites: creating channel_id index: %w", err)
	}
	return s, nil
}

// Upsert replaces the document for r.ChatID, creating it when missing.
func (s *MongoStore) Upsert(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.coll.UpdateOne(ctx,
		bson.M{"channel_id": r.ChatID},
		bson.M{"$set": bson.M{
			"title":       r.Title,
			"invite_link": r.InviteLink,
			"updated_at":  r.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert invite link: %w", err)
	}
	return nil
}

// List returns every record.
func (s *MongoStore) List(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list invite links: %w", err)
	}
	var records []Record
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode invite links: %w", err)
	}
	return records, nil
}

// Health pings the primary.
func (s *MongoStore) Health(ctx context.Context) map[string]database.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.client.Ping(ctx, nil)
	status := database.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Version: "mongodb"}
	if err != nil {
		status.Error = err.Error()
	}
	return map[string]database.HealthStatus{string(database.BackendMongoDB): status}
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
