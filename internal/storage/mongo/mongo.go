package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/kclinic/internal/config"
	"github.com/goodtune/kclinic/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements storage.Store on MongoDB
type Store struct {
	client       *mongo.Client
	timeout      time.Duration
	stateStore   *stateStore
	archiveStore *archiveStore
}

// Open connects to MongoDB and ensures the archive indexes exist
func Open(cfg config.MongoConfig) (*Store, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	archive := &archiveStore{sessions: db.Collection("finished_sessions")}
	if err := archive.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &Store{
		client:       client,
		timeout:      timeout,
		stateStore:   &stateStore{states: db.Collection("state")},
		archiveStore: archive,
	}, nil
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// State returns the StateStore implementation
func (s *Store) State() storage.StateStore {
	return s.stateStore
}

// Archive returns the ArchiveStore implementation
func (s *Store) Archive() storage.ArchiveStore {
	return s.archiveStore
}

type stateDocument struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type stateStore struct {
	states *mongo.Collection
}

func (s *stateStore) Load(ctx context.Context, key string) ([]byte, error) {
	var doc stateDocument
	err := s.states.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (s *stateStore) Save(ctx context.Context, key string, data []byte) error {
	update := bson.M{
		"$set": bson.M{"data": data, "updatedAt": time.Now().UTC()},
		"$inc": bson.M{"revision": 1},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.states.UpdateOne(ctx, bson.M{"_id": key}, update, opts)
	return err
}
