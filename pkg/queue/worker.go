package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lexroom/reviewd/pkg/config"
)

// Worker is a single queue worker that claims and processes runs. It takes
// work from the dispatch channel when a run was enqueued locally, and falls
// back to polling the database so runs enqueued by other replicas (or left
// behind by a crash) are still picked up.
type Worker struct {
	id        string
	store     Store
	config    *config.QueueConfig
	processor RunProcessor
	dispatch  <-chan string
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id string, store Store, cfg *config.QueueConfig, processor RunProcessor, dispatch <-chan string) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		config:       cfg,
		processor:    processor,
		dispatch:     dispatch,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		case runID := <-w.dispatch:
			claimed, err := w.store.ClaimQueuedRun(ctx, runID)
			if err != nil {
				log.Error("Failed to claim dispatched run", "run_id", runID, "error", err)
				w.sleep(time.Second)
				continue
			}
			if !claimed {
				// Another worker or replica got there first.
				continue
			}
			w.processRun(ctx, runID)
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing run", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the oldest queued run and processes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	runID, err := w.store.ClaimNextQueuedRun(ctx)
	if err != nil {
		return err
	}
	if runID == "" {
		return ErrNoRunsAvailable
	}

	w.processRun(ctx, runID)
	return nil
}

// processRun drives one claimed run through the processor with a run
// timeout, a heartbeat, and the retry policy. The processor owns the
// terminal run status; transient failures are retried with exponential
// backoff until MaxAttempts is exhausted.
func (w *Worker) processRun(ctx context.Context, runID string) {
	log := slog.With("run_id", runID, "worker_id", w.id)
	log.Info("Run claimed")

	w.setStatus(WorkerStatusWorking, runID)
	defer w.setStatus(WorkerStatusIdle, "")

	runCtx, cancelRun := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancelRun()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, runID)

	var err error
	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		err = w.processor.Process(runCtx, runID)
		if err == nil {
			break
		}
		if runCtx.Err() != nil {
			log.Warn("Run context expired, abandoning retries", "attempt", attempt, "error", err)
			break
		}
		if attempt < w.config.MaxAttempts {
			backoff := w.retryBackoff(attempt)
			log.Warn("Run attempt failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", err)
			w.sleep(backoff)
		}
	}

	cancelHeartbeat()

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	if err != nil {
		log.Error("Run processing failed", "attempts", w.config.MaxAttempts, "error", err)
		return
	}
	log.Info("Run processing complete")
}

// runHeartbeat periodically refreshes the run's heartbeat so the orphan
// reaper leaves it alone while this worker is alive.
func (w *Worker) runHeartbeat(ctx context.Context, runID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, runID); err != nil {
				slog.Warn("Heartbeat update failed", "run_id", runID, "error", err)
			}
		}
	}
}

// retryBackoff doubles the base backoff per attempt and adds jitter.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	base := w.config.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	backoff := base << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(base)))
	return backoff + jitter
}

// pollInterval returns the poll duration with jitter so workers and replicas
// do not hammer the queue table in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
