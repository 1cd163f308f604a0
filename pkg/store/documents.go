package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexroom/reviewd/pkg/models"
)

// CreateDocument inserts a document, assigning an ID and creation time if
// unset.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.IngestionMetadata == nil {
		doc.IngestionMetadata = map[string]any{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, text, source_type, ingestion_metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Title, doc.Text, doc.SourceType, doc.IngestionMetadata, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, text, source_type, ingestion_metadata, created_at
		 FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Title, &doc.Text, &doc.SourceType, &doc.IngestionMetadata, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return &doc, nil
}
