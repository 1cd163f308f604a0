package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how runs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica.
	// Each worker independently polls and processes runs.
	WorkerCount int

	// PollInterval is the base interval for checking queued runs.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// RunTimeout is the maximum time a single run can be processed.
	RunTimeout time.Duration

	// HeartbeatInterval is how often a worker refreshes the claimed run's
	// heartbeat while processing it.
	HeartbeatInterval time.Duration

	// MaxAttempts is how many times a worker re-runs a failed run before
	// leaving it failed for good.
	MaxAttempts int

	// RetryBackoff is the base delay between attempts; each retry doubles
	// it and adds jitter.
	RetryBackoff time.Duration

	// GracefulShutdownTimeout is the max time to wait for active runs
	// to complete during shutdown. Should match RunTimeout.
	GracefulShutdownTimeout time.Duration

	// OrphanDetectionInterval is how often to scan for orphaned runs.
	OrphanDetectionInterval time.Duration

	// OrphanThreshold is how long a run can go without a heartbeat
	// before it is considered orphaned.
	OrphanThreshold time.Duration
}

func loadQueueConfig() (QueueConfig, error) {
	workers, err := getEnvInt("QUEUE_WORKER_COUNT", 4)
	if err != nil {
		return QueueConfig{}, err
	}
	maxAttempts, err := getEnvInt("QUEUE_MAX_ATTEMPTS", 3)
	if err != nil {
		return QueueConfig{}, err
	}
	runTimeout, err := getEnvSeconds("QUEUE_RUN_TIMEOUT_SECONDS", 10*time.Minute)
	if err != nil {
		return QueueConfig{}, err
	}
	return QueueConfig{
		WorkerCount:             workers,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		RunTimeout:              runTimeout,
		HeartbeatInterval:       30 * time.Second,
		MaxAttempts:             maxAttempts,
		RetryBackoff:            200 * time.Millisecond,
		GracefulShutdownTimeout: runTimeout,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
	}, nil
}
