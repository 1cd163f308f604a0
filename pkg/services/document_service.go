package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexroom/reviewd/pkg/ingest"
	"github.com/lexroom/reviewd/pkg/models"
	"github.com/lexroom/reviewd/pkg/store"
)

// DocumentStore is the persistence surface for document operations.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// DocumentService ingests uploads into canonical document text.
type DocumentService struct {
	store DocumentStore
}

func NewDocumentService(s DocumentStore) *DocumentService {
	return &DocumentService{store: s}
}

// Upload extracts text from the uploaded file by extension, stores the
// document, and returns it.
func (s *DocumentService) Upload(ctx context.Context, title, filename string, data []byte) (*models.Document, error) {
	if strings.TrimSpace(title) == "" {
		return nil, NewValidationError("title", "must not be empty")
	}

	extracted, err := ingest.FromUpload(filename, data)
	if err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", filename, err)
	}

	doc := &models.Document{
		Title:             title,
		Text:              extracted.Text,
		SourceType:        extracted.SourceType,
		IngestionMetadata: extracted.Metadata,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	slog.Info("Ingested document",
		"document_id", doc.ID, "source_type", doc.SourceType, "bytes", len(data))
	return doc, nil
}

// GetDocument fetches a document by ID.
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return doc, nil
}
