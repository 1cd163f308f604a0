package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexroom/reviewd/pkg/config"
)

// fakeQueueStore is an in-memory queue.Store.
type fakeQueueStore struct {
	mu         sync.Mutex
	queued     []string
	running    map[string]bool
	heartbeats map[string]int
	orphanIDs  []string
	runningIDs []string
}

func newFakeQueueStore(queued ...string) *fakeQueueStore {
	return &fakeQueueStore{
		queued:     queued,
		running:    map[string]bool{},
		heartbeats: map[string]int{},
	}
}

func (f *fakeQueueStore) ClaimQueuedRun(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, queued := range f.queued {
		if queued == id {
			f.queued = append(f.queued[:i], f.queued[i+1:]...)
			f.running[id] = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQueueStore) ClaimNextQueuedRun(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queued) == 0 {
		return "", nil
	}
	id := f.queued[0]
	f.queued = f.queued[1:]
	f.running[id] = true
	return id, nil
}

func (f *fakeQueueStore) Heartbeat(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats[id]++
	return nil
}

func (f *fakeQueueStore) CountActiveRuns(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued) + len(f.running), nil
}

func (f *fakeQueueStore) FailOrphanedRuns(context.Context, time.Duration, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.orphanIDs
	f.orphanIDs = nil
	return ids, nil
}

func (f *fakeQueueStore) FailRunningRuns(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.runningIDs
	f.runningIDs = nil
	return ids, nil
}

// fakeProcessor records Process calls and can fail a run a fixed number of
// times before succeeding.
type fakeProcessor struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	done     chan string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		calls:    map[string]int{},
		failures: map[string]int{},
		done:     make(chan string, 16),
	}
}

func (p *fakeProcessor) Process(_ context.Context, runID string) error {
	p.mu.Lock()
	p.calls[runID]++
	if p.failures[runID] > 0 {
		p.failures[runID]--
		p.mu.Unlock()
		return errors.New("transient failure")
	}
	p.mu.Unlock()
	p.done <- runID
	return nil
}

func (p *fakeProcessor) callCount(runID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[runID]
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		PollInterval:            5 * time.Millisecond,
		PollIntervalJitter:      2 * time.Millisecond,
		RunTimeout:              time.Second,
		HeartbeatInterval:       5 * time.Millisecond,
		MaxAttempts:             3,
		RetryBackoff:            time.Millisecond,
		GracefulShutdownTimeout: time.Second,
		OrphanDetectionInterval: 10 * time.Millisecond,
		OrphanThreshold:         time.Minute,
	}
}

func waitForRun(t *testing.T, done <-chan string, runID string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case id := <-done:
			if id == runID {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for run %s", runID)
		}
	}
}

func TestPoolProcessesDispatchedRun(t *testing.T) {
	store := newFakeQueueStore("run-1")
	processor := newFakeProcessor()
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	require.NoError(t, pool.Enqueue("run-1"))
	waitForRun(t, processor.done, "run-1")
	assert.Equal(t, 1, processor.callCount("run-1"))
}

func TestWorkerPollsQueuedRuns(t *testing.T) {
	store := newFakeQueueStore("run-a", "run-b", "run-c")
	processor := newFakeProcessor()
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	// No Enqueue: workers must find the runs by polling.
	for _, id := range []string{"run-a", "run-b", "run-c"} {
		waitForRun(t, processor.done, id)
		assert.Equal(t, 1, processor.callCount(id))
	}
}

func TestDispatchedRunAlreadyClaimed(t *testing.T) {
	store := newFakeQueueStore()
	processor := newFakeProcessor()
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	// The run is not queued anymore, so the dispatch claim loses.
	require.NoError(t, pool.Enqueue("run-gone"))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, processor.callCount("run-gone"))
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	store := newFakeQueueStore("run-flaky")
	processor := newFakeProcessor()
	processor.failures["run-flaky"] = 2
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	waitForRun(t, processor.done, "run-flaky")
	assert.Equal(t, 3, processor.callCount("run-flaky"))
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	store := newFakeQueueStore("run-doomed")
	processor := newFakeProcessor()
	processor.failures["run-doomed"] = 100
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return processor.callCount("run-doomed") == 3
	}, 2*time.Second, 10*time.Millisecond)
	pool.Stop()
	assert.Equal(t, 3, processor.callCount("run-doomed"))
}

func TestEnqueueAfterStop(t *testing.T) {
	store := newFakeQueueStore()
	processor := newFakeProcessor()
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))
	pool.Stop()

	assert.ErrorIs(t, pool.Enqueue("run-late"), ErrQueueStopped)
}

func TestHeartbeatRefreshedWhileProcessing(t *testing.T) {
	store := newFakeQueueStore("run-slow")
	// Hold the processor long enough for a few heartbeat ticks.
	slow := &blockingProcessor{inner: newFakeProcessor(), hold: 60 * time.Millisecond, done: make(chan string, 1)}
	pool := NewWorkerPool(store, testQueueConfig(), slow)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	waitForRun(t, slow.done, "run-slow")
	store.mu.Lock()
	beats := store.heartbeats["run-slow"]
	store.mu.Unlock()
	assert.Positive(t, beats)
}

type blockingProcessor struct {
	inner *fakeProcessor
	hold  time.Duration
	done  chan string
}

func (p *blockingProcessor) Process(ctx context.Context, runID string) error {
	time.Sleep(p.hold)
	err := p.inner.Process(ctx, runID)
	if err == nil {
		p.done <- runID
	}
	return err
}

func TestOrphanReaper(t *testing.T) {
	store := newFakeQueueStore()
	store.orphanIDs = []string{"run-dead-1", "run-dead-2"}
	processor := newFakeProcessor()
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		pool.orphans.mu.Lock()
		defer pool.orphans.mu.Unlock()
		return pool.orphans.orphansRecovered == 2
	}, 2*time.Second, 10*time.Millisecond)

	health := pool.Health()
	assert.Equal(t, 2, health.OrphansRecovered)
	assert.False(t, health.LastOrphanScan.IsZero())
}

func TestRecoverStartupOrphans(t *testing.T) {
	store := newFakeQueueStore()
	store.runningIDs = []string{"run-stale"}

	require.NoError(t, RecoverStartupOrphans(context.Background(), store))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.runningIDs)
}

func TestPoolHealth(t *testing.T) {
	store := newFakeQueueStore("run-x")
	processor := newFakeProcessor()
	pool := NewWorkerPool(store, testQueueConfig(), processor)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()
	waitForRun(t, processor.done, "run-x")

	health := pool.Health()
	assert.True(t, health.IsHealthy)
	assert.True(t, health.DBReachable)
	assert.Equal(t, 2, health.TotalWorkers)
	assert.Len(t, health.WorkerStats, 2)
}
