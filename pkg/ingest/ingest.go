// Package ingest turns uploaded files into canonical document text plus
// structured ingestion metadata, dispatching on file extension.
package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/lexroom/reviewd/pkg/models"
)

// Result is the canonical form of an uploaded file.
type Result struct {
	Text       string
	SourceType models.SourceType
	Metadata   map[string]any
}

// FromUpload extracts document text from raw upload bytes. PDFs get page
// text extraction, CSV and XLSX go through the spreadsheet reader, and
// everything else is treated as UTF-8 text with invalid bytes replaced.
func FromUpload(filename string, data []byte) (*Result, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		text, err := extractPDFText(data)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, SourceType: models.SourcePDF, Metadata: map[string]any{}}, nil

	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		text, metadata, err := parseCSV(data)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, SourceType: models.SourceSpreadsheet, Metadata: metadata}, nil

	case strings.HasSuffix(strings.ToLower(filename), ".xlsx"):
		text, metadata, err := parseXLSX(data)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, SourceType: models.SourceSpreadsheet, Metadata: metadata}, nil

	default:
		text := strings.ToValidUTF8(string(data), string(utf8.RuneError))
		return &Result{Text: text, SourceType: models.SourceText, Metadata: map[string]any{}}, nil
	}
}
