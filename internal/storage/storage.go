package storage

import (
	"context"
	"fmt"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/models"
)

// RunStore persists sync run history so operators can see what past runs did.
type RunStore interface {
	RecordRun(ctx context.Context, run models.SyncRun) error
	ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
	LastRun(ctx context.Context) (*models.SyncRun, error)
	Close() error
}

// NewRunStore creates a run store instance based on configuration
func NewRunStore(cfg config.StorageConfig) (RunStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "dynamodb":
		return NewDynamoDBStore(cfg)
	case "mongodb":
		return NewMongoDBStore(cfg)
	case "postgresql":
		return NewPostgresStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
