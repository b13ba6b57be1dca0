// Package worker runs periodic maintenance on the Redis-side state: pruning
// game event indexes whose documents have aged out, and sweeping subscriber
// sets whose connection records have expired.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leagueops/scorekeeper/internal/config"
)

// EventCompactor prunes stale members from game event indexes.
type EventCompactor interface {
	CompactGameIndexes(ctx context.Context) (int, error)
}

// ConnectionSweeper prunes stale members from subscriber indexes.
type ConnectionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// MaintenanceWorker handles periodic Redis housekeeping.
type MaintenanceWorker struct {
	events      EventCompactor
	connections ConnectionSweeper
	config      *config.WorkerConfig
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool
}

// NewMaintenanceWorker creates a new maintenance worker.
func NewMaintenanceWorker(
	events EventCompactor,
	connections ConnectionSweeper,
	cfg *config.WorkerConfig,
	logger *slog.Logger,
) *MaintenanceWorker {
	return &MaintenanceWorker{
		events:      events,
		connections: connections,
		config:      cfg,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background maintenance process.
func (w *MaintenanceWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("maintenance worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background maintenance process.
func (w *MaintenanceWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("maintenance worker stopped")
	return nil
}

// run is the main worker loop.
func (w *MaintenanceWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle runs one maintenance pass.
func (w *MaintenanceWorker) cycle(ctx context.Context) {
	w.logger.Info("starting maintenance cycle")
	startTime := time.Now()

	prunedEvents, err := w.events.CompactGameIndexes(ctx)
	if err != nil {
		w.logger.Error("failed to compact game indexes", "error", err)
	}

	prunedConns, err := w.connections.Sweep(ctx)
	if err != nil {
		w.logger.Error("failed to sweep connections", "error", err)
	}

	w.logger.Info("maintenance cycle completed",
		"duration", time.Since(startTime),
		"pruned_events", prunedEvents,
		"pruned_connections", prunedConns,
	)
}

// IsRunning returns whether the worker is currently running.
func (w *MaintenanceWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single maintenance cycle (useful for manual triggers).
func (w *MaintenanceWorker) RunOnce(ctx context.Context) {
	w.cycle(ctx)
}
