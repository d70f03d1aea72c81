// Package scheduler triggers periodic syncs so the live site keeps tracking
// the feed without operator involvement.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oakline/job-sync-service/internal/models"
	syncengine "github.com/oakline/job-sync-service/internal/sync"
)

// Scheduler runs the sync on a fixed interval.
type Scheduler struct {
	cron    *cron.Cron
	runner  *syncengine.Runner
	every   time.Duration
	timeout time.Duration
}

// New creates a scheduler that syncs every hours hours. Each run gets a
// timeout of one hour so a stuck run cannot pile up behind the next one.
func New(runner *syncengine.Runner, hours int) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		every:   time.Duration(hours) * time.Hour,
		timeout: time.Hour,
	}
}

// Start registers the sync job and starts the cron loop.
func (s *Scheduler) Start() error {
	schedule := fmt.Sprintf("@every %s", s.every)
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.cron.Start()
	log.Printf("[scheduler] sync scheduled every %s", s.every)
	return nil
}

// Stop halts the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("[scheduler] stopped")
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log.Println("[scheduler] starting scheduled sync")
	run, err := s.runner.Execute(ctx, models.TriggerScheduled)
	if err != nil {
		log.Printf("[scheduler] scheduled sync %s failed: %v", run.ID, err)
		return
	}
	log.Printf("[scheduler] scheduled sync %s completed: %d synced, %d skipped",
		run.ID, run.Summary.Synced, run.Summary.Skipped)
}
