package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/feed"
	"github.com/oakline/job-sync-service/internal/scheduler"
	"github.com/oakline/job-sync-service/internal/server"
	"github.com/oakline/job-sync-service/internal/storage"
	syncengine "github.com/oakline/job-sync-service/internal/sync"
	"github.com/oakline/job-sync-service/internal/webflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize run history storage
	runs, err := storage.NewRunStore(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize run storage:", err)
	}
	defer runs.Close()

	// Wire the sync engine: destination store, feed source, reconciler
	store := webflow.NewClient(cfg.Webflow)
	feedClient := feed.NewClient(cfg.Feed)
	engine := syncengine.NewEngine(store, feedClient, cfg.Webflow)
	runner := syncengine.NewRunner(engine, runs)

	// Initialize HTTP server for the operator API
	httpServer := server.NewServer(cfg.Server, cfg.Webflow, runner, store, runs)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Server.Port)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Start scheduled syncs when configured
	var sched *scheduler.Scheduler
	if cfg.Sync.ScheduleHours > 0 {
		sched = scheduler.New(runner, cfg.Sync.ScheduleHours)
		if err := sched.Start(); err != nil {
			log.Fatal("Failed to start scheduler:", err)
		}
	} else {
		log.Println("Scheduled syncs disabled; syncs run via POST /api/sync only")
	}

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, gracefully shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
