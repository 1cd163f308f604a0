package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexroom/reviewd/pkg/config"
	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/store"
)

// RunStore is the persistence surface the review service needs.
// *store.Store satisfies it; tests use fakes.
type RunStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	CreateRun(ctx context.Context, run *models.ReviewRun) error
	GetRun(ctx context.Context, id string) (*models.ReviewRun, error)
	LatestRunByIdempotencyKey(ctx context.Context, documentID, key string) (*models.ReviewRun, error)
	CountActiveRuns(ctx context.Context) (int, error)
	CountRecentRunsByFingerprint(ctx context.Context, fingerprint string, since time.Time) (int, error)
	MarkRunFailed(ctx context.Context, id, message string) error
	CountFindingsForRun(ctx context.Context, runID string) (int, error)
}

// Enqueuer hands accepted runs to the worker pool.
type Enqueuer interface {
	Enqueue(runID string) error
}

// SubmitResult is the outcome of an accepted (or reused) run submission.
type SubmitResult struct {
	Document *models.Document
	Run      *models.ReviewRun
	Reused   bool
}

// ReviewService owns run intake and run reads.
type ReviewService struct {
	store RunStore
	queue Enqueuer
	cfg   config.ReviewConfig
}

func NewReviewService(s RunStore, queue Enqueuer, cfg config.ReviewConfig) *ReviewService {
	return &ReviewService{store: s, queue: queue, cfg: cfg}
}

// SubmitRun admits a review run for the document. Admission order: document
// existence, idempotency reuse, concurrency cap, per-fingerprint rate limit,
// then create and enqueue. Reused runs bypass the caps; they represent no
// new work.
func (s *ReviewService) SubmitRun(ctx context.Context, documentID, idempotencyKey, fingerprint string) (*SubmitResult, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
		}
		return nil, err
	}

	if idempotencyKey != "" {
		existing, err := s.store.LatestRunByIdempotencyKey(ctx, documentID, idempotencyKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			if time.Since(existing.CreatedAt) <= s.cfg.IdempotencyWindow {
				slog.Info("Reusing review run for idempotency key",
					"run_id", existing.ID, "document_id", documentID)
				s.attachFindingsCount(ctx, existing)
				return &SubmitResult{Document: doc, Run: existing, Reused: true}, nil
			}
			return nil, &IdempotencyExpiredError{RunID: existing.ID}
		}
	}

	concurrentLimit := max(1, s.cfg.MaxConcurrentRuns)
	active, err := s.store.CountActiveRuns(ctx)
	if err != nil {
		return nil, err
	}
	if active >= concurrentLimit {
		return nil, &ConcurrencyLimitError{Limit: concurrentLimit}
	}

	rateLimit := max(1, s.cfg.RateLimitPerMinute)
	recent, err := s.store.CountRecentRunsByFingerprint(ctx, fingerprint, time.Now().Add(-time.Minute))
	if err != nil {
		return nil, err
	}
	if recent >= rateLimit {
		return nil, &RateLimitError{LimitPerMinute: rateLimit}
	}

	run := &models.ReviewRun{
		DocumentID:         documentID,
		RequestFingerprint: fingerprint,
	}
	if idempotencyKey != "" {
		run.IdempotencyKey = &idempotencyKey
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		// Two submissions raced on the same key; the partial unique index
		// picked a winner. Reuse it.
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) && idempotencyKey != "" {
			winner, lookupErr := s.store.LatestRunByIdempotencyKey(ctx, documentID, idempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &SubmitResult{Document: doc, Run: winner, Reused: true}, nil
		}
		return nil, err
	}

	if err := s.queue.Enqueue(run.ID); err != nil {
		msg := fmt.Sprintf("Failed to enqueue review run: %v", err)
		if markErr := s.store.MarkRunFailed(ctx, run.ID, msg); markErr != nil {
			slog.Error("Failed to mark unenqueued run as failed", "run_id", run.ID, "error", markErr)
		}
		failed, getErr := s.store.GetRun(ctx, run.ID)
		if getErr != nil {
			failed = run
		}
		return nil, &EnqueueFailedError{Run: failed, Cause: err}
	}

	slog.Info("Queued review run", "run_id", run.ID, "document_id", documentID, "fingerprint", fingerprint)
	return &SubmitResult{Document: doc, Run: run, Reused: false}, nil
}

// GetRun returns a run with its document and findings count.
func (s *ReviewService) GetRun(ctx context.Context, runID string) (*models.ReviewRun, *models.Document, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, nil, err
	}
	doc, err := s.store.GetDocument(ctx, run.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	s.attachFindingsCount(ctx, run)
	return run, doc, nil
}

func (s *ReviewService) attachFindingsCount(ctx context.Context, run *models.ReviewRun) {
	count, err := s.store.CountFindingsForRun(ctx, run.ID)
	if err != nil {
		slog.Warn("Failed to count findings for run", "run_id", run.ID, "error", err)
		return
	}
	run.FindingsCount = count
}
