package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lexroom/reviewd/pkg/models"
)

const runColumns = `id, document_id, idempotency_key, request_fingerprint, status,
	current_stage, error, llm_model, prompt_rev, cache_key, cache_hits, cache_misses,
	prompt_tokens, completion_tokens, total_tokens, stage_timings,
	started_at, completed_at, last_heartbeat_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.ReviewRun, error) {
	var run models.ReviewRun
	err := row.Scan(
		&run.ID, &run.DocumentID, &run.IdempotencyKey, &run.RequestFingerprint, &run.Status,
		&run.CurrentStage, &run.Error, &run.LLMModel, &run.PromptRev, &run.CacheKey,
		&run.CacheHits, &run.CacheMisses,
		&run.TokenUsage.PromptTokens, &run.TokenUsage.CompletionTokens, &run.TokenUsage.TotalTokens,
		&run.StageTimings,
		&run.StartedAt, &run.CompletedAt, &run.LastHeartbeatAt, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if run.StageTimings == nil {
		run.StageTimings = map[string]int{}
	}
	return &run, nil
}

// CreateRun inserts a queued run. A conflicting (document_id, idempotency_key)
// pair surfaces as ErrDuplicateIdempotencyKey so the caller can fall back to
// reusing the winner.
func (s *Store) CreateRun(ctx context.Context, run *models.ReviewRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.StageTimings == nil {
		run.StageTimings = map[string]int{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO review_runs (id, document_id, idempotency_key, request_fingerprint, status, stage_timings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.DocumentID, run.IdempotencyKey, run.RequestFingerprint, run.Status, run.StageTimings, run.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*models.ReviewRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM review_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}
	return run, nil
}

// LatestRunByIdempotencyKey returns the most recent run for the document
// carrying the given idempotency key, or ErrNotFound.
func (s *Store) LatestRunByIdempotencyKey(ctx context.Context, documentID, key string) (*models.ReviewRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM review_runs
		 WHERE document_id = $1 AND idempotency_key = $2
		 ORDER BY created_at DESC LIMIT 1`, documentID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run by idempotency key: %w", err)
	}
	return run, nil
}

// LatestRunForDocument returns the most recent run for a document, or
// ErrNotFound when the document has never been reviewed.
func (s *Store) LatestRunForDocument(ctx context.Context, documentID string) (*models.ReviewRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM review_runs
		 WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching latest run for document %s: %w", documentID, err)
	}
	return run, nil
}

// CountActiveRuns counts queued and running runs across all replicas.
func (s *Store) CountActiveRuns(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM review_runs WHERE status IN ($1, $2)`,
		models.RunStatusQueued, models.RunStatusRunning).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active runs: %w", err)
	}
	return count, nil
}

// CountRecentRunsByFingerprint counts runs of any status submitted by the
// fingerprint since the given time.
func (s *Store) CountRecentRunsByFingerprint(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM review_runs WHERE request_fingerprint = $1 AND created_at >= $2`,
		fingerprint, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting recent runs: %w", err)
	}
	return count, nil
}

// ClaimQueuedRun atomically transitions a specific queued run to running.
// Returns false when the run was already claimed or is no longer queued.
func (s *Store) ClaimQueuedRun(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_runs SET status = $1, last_heartbeat_at = now()
		 WHERE id = $2 AND status = $3`,
		models.RunStatusRunning, id, models.RunStatusQueued)
	if err != nil {
		return false, fmt.Errorf("claiming run %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimNextQueuedRun claims the oldest queued run using FOR UPDATE SKIP
// LOCKED so concurrent workers never claim the same run. Returns
// ("", nil) when the queue is empty.
func (s *Store) ClaimNextQueuedRun(ctx context.Context) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("starting claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx,
		`SELECT id FROM review_runs WHERE status = $1
		 ORDER BY created_at ASC LIMIT 1
		 FOR UPDATE SKIP LOCKED`, models.RunStatusQueued).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("selecting next queued run: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE review_runs SET status = $1, last_heartbeat_at = now() WHERE id = $2`,
		models.RunStatusRunning, id)
	if err != nil {
		return "", fmt.Errorf("claiming run %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing claim: %w", err)
	}
	return id, nil
}

// Heartbeat refreshes the run's liveness timestamp while it is running.
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE review_runs SET last_heartbeat_at = now() WHERE id = $1 AND status = $2`,
		id, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("heartbeat for run %s: %w", id, err)
	}
	return nil
}

// UpdateRun persists the run's mutable pipeline fields. The heartbeat
// timestamp is deliberately excluded; the worker owns it.
func (s *Store) UpdateRun(ctx context.Context, run *models.ReviewRun) error {
	if run.StageTimings == nil {
		run.StageTimings = map[string]int{}
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE review_runs SET
			status = $2, current_stage = $3, error = $4,
			llm_model = $5, prompt_rev = $6, cache_key = $7,
			cache_hits = $8, cache_misses = $9,
			prompt_tokens = $10, completion_tokens = $11, total_tokens = $12,
			stage_timings = $13, started_at = $14, completed_at = $15
		 WHERE id = $1`,
		run.ID, run.Status, run.CurrentStage, run.Error,
		run.LLMModel, run.PromptRev, run.CacheKey,
		run.CacheHits, run.CacheMisses,
		run.TokenUsage.PromptTokens, run.TokenUsage.CompletionTokens, run.TokenUsage.TotalTokens,
		run.StageTimings, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.ID, err)
	}
	return nil
}

// MarkRunFailed records a terminal failure without touching pipeline
// metrics already persisted.
func (s *Store) MarkRunFailed(ctx context.Context, id, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE review_runs SET status = $1, error = $2, completed_at = now() WHERE id = $3`,
		models.RunStatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("marking run %s failed: %w", id, err)
	}
	return nil
}

// FailOrphanedRuns fails running runs whose heartbeat is older than the
// threshold and returns their IDs.
func (s *Store) FailOrphanedRuns(ctx context.Context, threshold time.Duration, message string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE review_runs SET status = $1, error = $2, completed_at = now()
		 WHERE status = $3
		   AND (last_heartbeat_at IS NULL OR last_heartbeat_at < now() - $4::interval)
		 RETURNING id`,
		models.RunStatusFailed, message, models.RunStatusRunning, threshold.String())
	if err != nil {
		return nil, fmt.Errorf("failing orphaned runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning orphaned run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FailRunningRuns fails every running run regardless of heartbeat age.
// Called once at startup before any worker exists.
func (s *Store) FailRunningRuns(ctx context.Context, message string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE review_runs SET status = $1, error = $2, completed_at = now()
		 WHERE status = $3 RETURNING id`,
		models.RunStatusFailed, message, models.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failing running runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteRunsBefore deletes terminal runs created before the cutoff. Chunks
// and run-scoped findings go with them via ON DELETE CASCADE.
func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM review_runs
		 WHERE created_at < $1 AND status IN ($2, $3, $4)`,
		cutoff, models.RunStatusSucceeded, models.RunStatusPartial, models.RunStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("deleting old runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
