package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexroom/reviewd/pkg/config"
	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/store"
)

// fakeStore is an in-memory RunStore / FindingsStore / DocumentStore.
type fakeStore struct {
	docs     map[string]*models.Document
	runs     map[string]*models.ReviewRun
	findings map[string][]models.Finding

	activeCount int
	recentCount int
	createErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string]*models.Document{},
		runs:     map[string]*models.ReviewRun{},
		findings: map[string][]models.Finding{},
	}
}

func (f *fakeStore) addDocument(title string) *models.Document {
	doc := &models.Document{ID: uuid.NewString(), Title: title, Text: "text", SourceType: models.SourceText}
	f.docs[doc.ID] = doc
	return doc
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) CreateDocument(_ context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) CreateRun(_ context.Context, run *models.ReviewRun) error {
	if f.createErr != nil {
		return f.createErr
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Status = models.RunStatusQueued
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id string) (*models.ReviewRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) LatestRunByIdempotencyKey(_ context.Context, documentID, key string) (*models.ReviewRun, error) {
	var latest *models.ReviewRun
	for _, run := range f.runs {
		if run.DocumentID != documentID || run.IdempotencyKey == nil || *run.IdempotencyKey != key {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (f *fakeStore) LatestRunForDocument(_ context.Context, documentID string) (*models.ReviewRun, error) {
	var latest *models.ReviewRun
	for _, run := range f.runs {
		if run.DocumentID != documentID {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (f *fakeStore) CountActiveRuns(context.Context) (int, error) {
	return f.activeCount, nil
}

func (f *fakeStore) CountRecentRunsByFingerprint(context.Context, string, time.Time) (int, error) {
	return f.recentCount, nil
}

func (f *fakeStore) MarkRunFailed(_ context.Context, id, message string) error {
	run, ok := f.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.Error = &message
	run.CompletedAt = &now
	return nil
}

func (f *fakeStore) CountFindingsForRun(_ context.Context, runID string) (int, error) {
	return len(f.findings[runID]), nil
}

func (f *fakeStore) ListFindings(_ context.Context, q store.FindingsQuery) ([]models.Finding, int, error) {
	all := f.findings[q.RunID]
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := min(start+q.PageSize, total)
	return all[start:end], total, nil
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) Enqueue(runID string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, runID)
	return nil
}

func reviewConfig() config.ReviewConfig {
	return config.ReviewConfig{
		MaxConcurrentRuns:       4,
		RateLimitPerMinute:      10,
		IdempotencyWindow:       24 * time.Hour,
		PreferredJurisdiction:   "California",
		FindingsDefaultPageSize: 20,
		FindingsMaxPageSize:     100,
	}
}

func TestSubmitRun(t *testing.T) {
	ctx := context.Background()

	t.Run("missing document", func(t *testing.T) {
		svc := NewReviewService(newFakeStore(), &fakeQueue{}, reviewConfig())
		_, err := svc.SubmitRun(ctx, uuid.NewString(), "", "ip:127.0.0.1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("fresh submission queues and enqueues", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		queue := &fakeQueue{}
		svc := NewReviewService(fs, queue, reviewConfig())

		result, err := svc.SubmitRun(ctx, doc.ID, "key-1", "user:alice")
		require.NoError(t, err)
		assert.False(t, result.Reused)
		assert.Equal(t, models.RunStatusQueued, result.Run.Status)
		assert.Equal(t, "key-1", *result.Run.IdempotencyKey)
		assert.Equal(t, "user:alice", result.Run.RequestFingerprint)
		assert.Equal(t, []string{result.Run.ID}, queue.enqueued)
	})

	t.Run("recent idempotency key reuses the run", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		queue := &fakeQueue{}
		svc := NewReviewService(fs, queue, reviewConfig())

		first, err := svc.SubmitRun(ctx, doc.ID, "key-1", "user:alice")
		require.NoError(t, err)
		second, err := svc.SubmitRun(ctx, doc.ID, "key-1", "user:alice")
		require.NoError(t, err)

		assert.True(t, second.Reused)
		assert.Equal(t, first.Run.ID, second.Run.ID)
		assert.Len(t, queue.enqueued, 1)
	})

	t.Run("reuse bypasses admission limits", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		svc := NewReviewService(fs, &fakeQueue{}, reviewConfig())

		_, err := svc.SubmitRun(ctx, doc.ID, "key-1", "user:alice")
		require.NoError(t, err)

		fs.activeCount = 100
		fs.recentCount = 100
		result, err := svc.SubmitRun(ctx, doc.ID, "key-1", "user:alice")
		require.NoError(t, err)
		assert.True(t, result.Reused)
	})

	t.Run("expired idempotency key conflicts", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		svc := NewReviewService(fs, &fakeQueue{}, reviewConfig())

		key := "expired-key-1"
		old := &models.ReviewRun{
			ID: uuid.NewString(), DocumentID: doc.ID, IdempotencyKey: &key,
			Status: models.RunStatusSucceeded, CreatedAt: time.Now().Add(-25 * time.Hour),
		}
		fs.runs[old.ID] = old

		_, err := svc.SubmitRun(ctx, doc.ID, key, "user:alice")
		var expired *IdempotencyExpiredError
		require.ErrorAs(t, err, &expired)
		assert.Equal(t, old.ID, expired.RunID)
	})

	t.Run("concurrency cap rejects", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		fs.activeCount = 4
		svc := NewReviewService(fs, &fakeQueue{}, reviewConfig())

		_, err := svc.SubmitRun(ctx, doc.ID, "", "user:alice")
		var limited *ConcurrencyLimitError
		require.ErrorAs(t, err, &limited)
		assert.Equal(t, 4, limited.Limit)
	})

	t.Run("rate limit rejects", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		fs.recentCount = 10
		svc := NewReviewService(fs, &fakeQueue{}, reviewConfig())

		_, err := svc.SubmitRun(ctx, doc.ID, "", "user:alice")
		var limited *RateLimitError
		require.ErrorAs(t, err, &limited)
		assert.Equal(t, 10, limited.LimitPerMinute)
	})

	t.Run("enqueue failure fails the run", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		queue := &fakeQueue{err: errors.New("queue full")}
		svc := NewReviewService(fs, queue, reviewConfig())

		_, err := svc.SubmitRun(ctx, doc.ID, "", "user:alice")
		var failed *EnqueueFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, models.RunStatusFailed, failed.Run.Status)
		require.NotNil(t, failed.Run.Error)
		assert.Contains(t, *failed.Run.Error, "Failed to enqueue review run")
		assert.NotNil(t, failed.Run.CompletedAt)
	})

	t.Run("duplicate key race reuses the winner", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		svc := NewReviewService(fs, &fakeQueue{}, reviewConfig())

		key := "race-key"
		winner := &models.ReviewRun{
			ID: uuid.NewString(), DocumentID: doc.ID, IdempotencyKey: &key,
			Status: models.RunStatusQueued, CreatedAt: time.Now(),
		}
		// Winner row exists but the lookup-before-create missed it, as in a
		// concurrent insert; CreateRun then hits the unique index.
		fs.createErr = store.ErrDuplicateIdempotencyKey
		fs.runs[winner.ID] = winner

		result, err := svc.SubmitRun(ctx, doc.ID, key, "user:alice")
		require.NoError(t, err)
		assert.True(t, result.Reused)
		assert.Equal(t, winner.ID, result.Run.ID)
	})
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	doc := fs.addDocument("MSA")
	run := &models.ReviewRun{ID: uuid.NewString(), DocumentID: doc.ID, Status: models.RunStatusSucceeded, CreatedAt: time.Now()}
	fs.runs[run.ID] = run
	fs.findings[run.ID] = []models.Finding{{ID: "f1"}, {ID: "f2"}}

	svc := NewReviewService(fs, &fakeQueue{}, reviewConfig())

	got, gotDoc, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, doc.ID, gotDoc.ID)
	assert.Equal(t, 2, got.FindingsCount)

	_, _, err = svc.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindingsList(t *testing.T) {
	ctx := context.Background()

	setup := func(count int) (*fakeStore, *models.Document, *models.ReviewRun) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		run := &models.ReviewRun{ID: uuid.NewString(), DocumentID: doc.ID, Status: models.RunStatusSucceeded, CreatedAt: time.Now()}
		fs.runs[run.ID] = run
		for i := 0; i < count; i++ {
			fs.findings[run.ID] = append(fs.findings[run.ID], models.Finding{
				ID: fmt.Sprintf("f%03d", i), Summary: "s", Severity: models.SeverityMedium,
			})
		}
		return fs, doc, run
	}

	t.Run("defaults to latest run with pagination", func(t *testing.T) {
		fs, doc, run := setup(45)
		svc := NewFindingsService(fs, reviewConfig())

		result, err := svc.List(ctx, doc.ID, "", 2, 20, "created_at")
		require.NoError(t, err)
		assert.Equal(t, run.ID, result.Run.ID)
		assert.Len(t, result.Findings, 20)
		assert.Equal(t, 45, result.Total)
		assert.Equal(t, 3, result.TotalPages)
		assert.True(t, result.HasNext)
		assert.True(t, result.HasPrev)
	})

	t.Run("page size is clamped to the max", func(t *testing.T) {
		fs, doc, _ := setup(5)
		svc := NewFindingsService(fs, reviewConfig())

		result, err := svc.List(ctx, doc.ID, "", 1, 10000, "")
		require.NoError(t, err)
		assert.Equal(t, 100, result.PageSize)
	})

	t.Run("zero page size uses the default", func(t *testing.T) {
		fs, doc, _ := setup(5)
		svc := NewFindingsService(fs, reviewConfig())

		result, err := svc.List(ctx, doc.ID, "", 0, 0, "")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Page)
		assert.Equal(t, 20, result.PageSize)
	})

	t.Run("document with no runs", func(t *testing.T) {
		fs := newFakeStore()
		doc := fs.addDocument("MSA")
		svc := NewFindingsService(fs, reviewConfig())

		result, err := svc.List(ctx, doc.ID, "", 1, 20, "")
		require.NoError(t, err)
		assert.Nil(t, result.Run)
		assert.Empty(t, result.Findings)
		assert.Equal(t, 1, result.TotalPages)
	})

	t.Run("run belonging to another document is not found", func(t *testing.T) {
		fs, doc, _ := setup(1)
		other := fs.addDocument("Other")
		otherRun := &models.ReviewRun{ID: uuid.NewString(), DocumentID: other.ID, CreatedAt: time.Now()}
		fs.runs[otherRun.ID] = otherRun

		svc := NewFindingsService(fs, reviewConfig())
		_, err := svc.List(ctx, doc.ID, otherRun.ID, 1, 20, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentService(t *testing.T) {
	ctx := context.Background()

	t.Run("upload text document", func(t *testing.T) {
		fs := newFakeStore()
		svc := NewDocumentService(fs)

		doc, err := svc.Upload(ctx, "MSA", "msa.txt", []byte("1. Termination\nBody."))
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, models.SourceText, doc.SourceType)
		assert.Equal(t, "1. Termination\nBody.", doc.Text)
	})

	t.Run("upload csv document", func(t *testing.T) {
		fs := newFakeStore()
		svc := NewDocumentService(fs)

		doc, err := svc.Upload(ctx, "Vendors", "vendors.csv", []byte("vendor,days\nAcme,15\n"))
		require.NoError(t, err)
		assert.Equal(t, models.SourceSpreadsheet, doc.SourceType)
		assert.Contains(t, doc.Text, "[Sheet: Sheet1]")
		assert.Equal(t, "spreadsheet", doc.IngestionMetadata["kind"])
	})

	t.Run("blank title is rejected", func(t *testing.T) {
		svc := NewDocumentService(newFakeStore())
		_, err := svc.Upload(ctx, "  ", "msa.txt", []byte("x"))
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}
