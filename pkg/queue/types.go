// Package queue provides the run queue worker pool. The queue itself lives
// in the database: workers claim queued runs with FOR UPDATE SKIP LOCKED, so
// any number of replicas can poll the same table safely. An in-process
// dispatch channel shortcuts the poll latency for runs enqueued locally.
package queue

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for queue operations.
var (
	// ErrNoRunsAvailable indicates no queued runs are waiting.
	ErrNoRunsAvailable = errors.New("no runs available")

	// ErrQueueStopped indicates the pool has been stopped and accepts no
	// new work.
	ErrQueueStopped = errors.New("queue stopped")
)

// RunProcessor executes one claimed run end to end. The processor persists
// results and the terminal run status itself; the worker only handles
// claiming, heartbeats, the run timeout, and the retry policy.
type RunProcessor interface {
	Process(ctx context.Context, runID string) error
}

// Store is the persistence surface the pool and workers need.
// *store.Store satisfies it.
type Store interface {
	ClaimQueuedRun(ctx context.Context, id string) (bool, error)
	ClaimNextQueuedRun(ctx context.Context) (string, error)
	Heartbeat(ctx context.Context, id string) error
	CountActiveRuns(ctx context.Context) (int, error)
	FailOrphanedRuns(ctx context.Context, threshold time.Duration, message string) ([]string, error)
	FailRunningRuns(ctx context.Context, message string) ([]string, error)
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveRuns       int            `json:"active_runs"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentRunID  string       `json:"current_run_id,omitempty"`
	RunsProcessed int          `json:"runs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}
