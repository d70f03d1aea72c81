package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/models"
)

// MongoDBStore implements RunStore using MongoDB
type MongoDBStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBStore creates a new MongoDB run store instance
func NewMongoDBStore(cfg config.StorageConfig) (*MongoDBStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDBStore{
		client:     client,
		collection: client.Database("jobsync").Collection(cfg.TableName),
	}, nil
}

// RecordRun stores a sync run record in MongoDB
func (m *MongoDBStore) RecordRun(ctx context.Context, run models.SyncRun) error {
	if _, err := m.collection.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns retrieves runs from MongoDB, newest first
func (m *MongoDBStore) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []models.SyncRun
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", err)
	}
	return runs, nil
}

// LastRun retrieves the most recent sync run
func (m *MongoDBStore) LastRun(ctx context.Context) (*models.SyncRun, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})

	var run models.SyncRun
	err := m.collection.FindOne(ctx, bson.D{}, opts).Decode(&run)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last run: %w", err)
	}
	return &run, nil
}

// Close closes the MongoDB connection
func (m *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
