package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/models"
)

// PostgresStore implements RunStore using PostgreSQL
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

// NewPostgresStore creates a new PostgreSQL run store instance
func NewPostgresStore(cfg config.StorageConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db, tableName: cfg.TableName}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}
	return store, nil
}

// ensureTable creates the runs table if it doesn't exist
func (p *PostgresStore) ensureTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			trigger_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			summary JSONB,
			error_message TEXT
		)`, p.tableName)
	if _, err := p.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// RecordRun stores a sync run record in PostgreSQL
func (p *PostgresStore) RecordRun(ctx context.Context, run models.SyncRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary for run %s: %w", run.ID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, trigger_kind, status, started_at, finished_at, summary, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, p.tableName)
	_, err = p.db.ExecContext(ctx, query,
		run.ID, run.Trigger, run.Status, run.StartedAt, run.FinishedAt, summary, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns retrieves runs from PostgreSQL, newest first
func (p *PostgresStore) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	query := fmt.Sprintf(`
		SELECT id, trigger_kind, status, started_at, finished_at, summary, error_message
		FROM %s ORDER BY started_at DESC`, p.tableName)
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun retrieves the most recent sync run
func (p *PostgresStore) LastRun(ctx context.Context) (*models.SyncRun, error) {
	runs, err := p.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Close closes the PostgreSQL connection
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func scanRun(rows *sql.Rows) (models.SyncRun, error) {
	var run models.SyncRun
	var summary []byte
	var errMsg sql.NullString
	if err := rows.Scan(&run.ID, &run.Trigger, &run.Status, &run.StartedAt,
		&run.FinishedAt, &summary, &errMsg); err != nil {
		return run, fmt.Errorf("failed to scan run: %w", err)
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			return run, fmt.Errorf("failed to unmarshal summary for run %s: %w", run.ID, err)
		}
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return run, nil
}
