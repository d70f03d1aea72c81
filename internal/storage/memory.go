package storage

import (
	"context"
	"sync"

	"github.com/oakline/job-sync-service/internal/models"
)

// MemoryStore keeps run history in process memory. Default backend; history
// is lost on restart, which is acceptable for single-operator deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []models.SyncRun // newest first
}

// NewMemoryStore creates an in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// RecordRun prepends the run to the history.
func (m *MemoryStore) RecordRun(_ context.Context, run models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append([]models.SyncRun{run}, m.runs...)
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]models.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]models.SyncRun, limit)
	copy(out, m.runs[:limit])
	return out, nil
}

// LastRun returns the most recent run, or nil when none has been recorded.
func (m *MemoryStore) LastRun(_ context.Context) (*models.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	run := m.runs[0]
	return &run, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
