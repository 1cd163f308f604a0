// Package models contains the domain types shared across the review pipeline:
// documents, review runs, chunks, clauses, and findings.
package models

import "time"

// SourceType identifies how a document's text was produced.
type SourceType string

// Source type constants.
const (
	SourceText        SourceType = "text"
	SourcePDF         SourceType = "pdf"
	SourceSpreadsheet SourceType = "spreadsheet"
)

// Document is an uploaded contract with its extracted canonical text.
// For spreadsheets, IngestionMetadata carries the structured sheet/row layout
// the chunker consumes instead of the flat text.
type Document struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Text              string         `json:"text"`
	SourceType        SourceType     `json:"source_type"`
	IngestionMetadata map[string]any `json:"ingestion_metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
