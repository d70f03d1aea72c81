package sync

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/oakline/job-sync-service/internal/models"
)

// RunRecorder persists completed runs. Satisfied by storage.RunStore.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.SyncRun) error
}

// Runner executes syncs and records each outcome, whatever triggered it.
type Runner struct {
	engine *Engine
	runs   RunRecorder
}

// NewRunner creates a runner around an engine and a run recorder.
func NewRunner(engine *Engine, runs RunRecorder) *Runner {
	return &Runner{engine: engine, runs: runs}
}

// Engine exposes the wrapped engine for read-only operations like previews.
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Execute runs one sync and records it. The recorded run is returned along
// with the engine error, so callers can shape their own response; a failure
// to record is logged but never masks the sync result.
func (r *Runner) Execute(ctx context.Context, trigger string) (models.SyncRun, error) {
	run := models.SyncRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	summary, err := r.engine.Run(ctx)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Status = models.RunStatusFailure
		run.ErrorMessage = err.Error()
	} else {
		run.Status = models.RunStatusSuccess
		run.Summary = *summary
	}

	if recErr := r.runs.RecordRun(ctx, run); recErr != nil {
		log.Printf("[runner] failed to record run %s: %v", run.ID, recErr)
	}
	return run, err
}
