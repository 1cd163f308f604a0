package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lexroom/reviewd/pkg/config"
)

// dispatchBuffer bounds the in-process dispatch channel. Overflow is not an
// error: runs are already persisted as queued, so pollers pick them up.
const dispatchBuffer = 64

// WorkerPool manages a pool of run workers plus the orphan reaper.
type WorkerPool struct {
	store     Store
	config    *config.QueueConfig
	processor RunProcessor
	workers   []*Worker
	dispatch  chan string
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	started   bool

	// Orphan reaper state
	orphans orphanState
}

// orphanState tracks orphan reaper metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store Store, cfg *config.QueueConfig, processor RunProcessor) *WorkerPool {
	return &WorkerPool{
		store:     store,
		config:    cfg,
		processor: processor,
		workers:   make([]*Worker, 0, cfg.WorkerCount),
		dispatch:  make(chan string, dispatchBuffer),
		stopCh:    make(chan struct{}),
	}
}

// Start spawns worker goroutines and the orphan reaper background task.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.store, p.config, p.processor, p.dispatch)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanReaper(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current runs before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	p.stopOnce.Do(func() { close(p.stopCh) })
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// Enqueue hands a queued run to an idle worker without waiting for the next
// poll tick. The run must already exist with status queued; if the dispatch
// channel is full the pollers pick it up from the database instead.
func (p *WorkerPool) Enqueue(runID string) error {
	select {
	case <-p.stopCh:
		return ErrQueueStopped
	default:
	}

	select {
	case p.dispatch <- runID:
	default:
		slog.Debug("Dispatch channel full, run left for pollers", "run_id", runID)
	}
	return nil
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	activeRuns, err := p.store.CountActiveRuns(context.Background())
	if err != nil {
		slog.Error("Failed to query active runs for health check", "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	p.orphans.mu.Lock()
	lastOrphanScan := p.orphans.lastOrphanScan
	orphansRecovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	var dbError string
	if err != nil {
		dbError = fmt.Sprintf("active runs query failed: %v", err)
	}

	return &PoolHealth{
		IsHealthy:        len(p.workers) > 0 && err == nil,
		DBReachable:      err == nil,
		DBError:          dbError,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveRuns:       activeRuns,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastOrphanScan,
		OrphansRecovered: orphansRecovered,
	}
}

// runOrphanReaper periodically fails running runs whose heartbeat went stale.
// All replicas run this independently; the scan is idempotent.
func (p *WorkerPool) runOrphanReaper(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.reapOrphans(ctx); err != nil {
				slog.Error("Orphan scan failed", "error", err)
			}
		}
	}
}

// reapOrphans marks running runs without a recent heartbeat as failed.
func (p *WorkerPool) reapOrphans(ctx context.Context) error {
	message := fmt.Sprintf("Orphaned: no heartbeat for more than %s", p.config.OrphanThreshold)
	recovered, err := p.store.FailOrphanedRuns(ctx, p.config.OrphanThreshold, message)
	if err != nil {
		return fmt.Errorf("failing orphaned runs: %w", err)
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += len(recovered)
	p.orphans.mu.Unlock()

	if len(recovered) > 0 {
		slog.Warn("Recovered orphaned runs", "count", len(recovered), "run_ids", recovered)
	}
	return nil
}

// RecoverStartupOrphans fails runs left in running state by a previous
// process that crashed or was killed mid-run. Called once during startup,
// before the worker pool begins processing.
func RecoverStartupOrphans(ctx context.Context, store Store) error {
	recovered, err := store.FailRunningRuns(ctx, "Orphaned: service restarted while run was in progress")
	if err != nil {
		return fmt.Errorf("failing startup orphans: %w", err)
	}
	if len(recovered) > 0 {
		slog.Warn("Recovered startup orphans from previous process",
			"count", len(recovered), "run_ids", recovered)
	}
	return nil
}
