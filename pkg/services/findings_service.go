package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexroom/reviewd/pkg/config"
	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/store"
)

// FindingsStore is the persistence surface for findings listing.
type FindingsStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetRun(ctx context.Context, id string) (*models.ReviewRun, error)
	LatestRunForDocument(ctx context.Context, documentID string) (*models.ReviewRun, error)
	ListFindings(ctx context.Context, q store.FindingsQuery) ([]models.Finding, int, error)
}

// FindingsResult is one page of findings for a document plus the run they
// belong to. Run is nil when the document has never been reviewed.
type FindingsResult struct {
	Document   *models.Document
	Run        *models.ReviewRun
	Findings   []models.Finding
	Page       int
	PageSize   int
	Total      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// FindingsService lists persisted findings for a document.
type FindingsService struct {
	store FindingsStore
	cfg   config.ReviewConfig
}

func NewFindingsService(s FindingsStore, cfg config.ReviewConfig) *FindingsService {
	return &FindingsService{store: s, cfg: cfg}
}

// List returns a page of findings for the document. With an empty runID the
// most recent run is used. Page and page size are clamped; unknown ordering
// fields fall back to created_at.
func (s *FindingsService) List(ctx context.Context, documentID, runID string, page, pageSize int, ordering string) (*FindingsResult, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
		}
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.cfg.FindingsDefaultPageSize
	}
	if pageSize > s.cfg.FindingsMaxPageSize {
		pageSize = s.cfg.FindingsMaxPageSize
	}

	var run *models.ReviewRun
	if runID != "" {
		run, err = s.store.GetRun(ctx, runID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
			}
			return nil, err
		}
		if run.DocumentID != documentID {
			return nil, fmt.Errorf("run %s for document %s: %w", runID, documentID, ErrNotFound)
		}
	} else {
		run, err = s.store.LatestRunForDocument(ctx, documentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	result := &FindingsResult{
		Document:   doc,
		Run:        run,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: 1,
	}
	if run == nil {
		return result, nil
	}

	findings, total, err := s.store.ListFindings(ctx, store.FindingsQuery{
		DocumentID: documentID,
		RunID:      run.ID,
		Page:       page,
		PageSize:   pageSize,
		Ordering:   ordering,
	})
	if err != nil {
		return nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	result.Findings = findings
	result.Total = total
	result.TotalPages = totalPages
	result.HasNext = page < totalPages
	result.HasPrev = page > 1
	return result, nil
}
