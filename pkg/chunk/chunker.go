// Package chunk splits a document into deterministic, stably-identified
// chunks. Identical inputs always yield byte-identical chunks including ids,
// which is what makes result caching and retry idempotence possible.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lexroom/reviewd/pkg/models"
)

// SchemaVersion tags the chunking algorithm revision. Bump it whenever the
// chunk shape or id derivation changes so cached results are invalidated.
const SchemaVersion = "v1"

// rowWindowSize is how many spreadsheet rows are grouped into one chunk.
const rowWindowSize = 5

// Chunk is the deterministic unit of analysis produced by the chunker.
// Offsets are byte offsets into the normalized text; both are nil for
// spreadsheet chunks.
type Chunk struct {
	ChunkID       string         `json:"chunk_id"`
	SchemaVersion string         `json:"schema_version"`
	Ordinal       int            `json:"ordinal"`
	Heading       string         `json:"heading"`
	Body          string         `json:"body"`
	StartOffset   *int           `json:"start_offset"`
	EndOffset     *int           `json:"end_offset"`
	Metadata      map[string]any `json:"metadata"`
}

// EvidencePointer returns the spreadsheet evidence pointer carried in the
// chunk metadata, or nil for prose chunks.
func (c Chunk) EvidencePointer() *models.EvidencePointer {
	raw, ok := c.Metadata["evidence_pointer"].(map[string]any)
	if !ok {
		return nil
	}
	p := &models.EvidencePointer{}
	if kind, ok := raw["kind"].(string); ok {
		p.Kind = kind
	}
	if sheet, ok := raw["sheet"].(string); ok {
		p.Sheet = sheet
	}
	p.RowStart = asInt(raw["row_start"])
	p.RowEnd = asInt(raw["row_end"])
	return p
}

// stableChunkID derives the content-addressed chunk identifier.
func stableChunkID(ordinal int, heading, body string) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", ordinal, heading, body)))
	return "chk_" + hex.EncodeToString(digest[:])[:24]
}

// FromDocument splits document text (or spreadsheet rows) into ordered chunk
// artifacts. Pure and deterministic.
func FromDocument(text string, sourceType models.SourceType, ingestionMetadata map[string]any) []Chunk {
	if sourceType == models.SourceSpreadsheet && ingestionMetadata != nil {
		if chunks := spreadsheetChunks(ingestionMetadata); len(chunks) > 0 {
			return chunks
		}
	}

	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	blocks := splitIntoBlocks(normalized)
	chunks := make([]Chunk, 0, len(blocks))
	cursor := 0

	for i, block := range blocks {
		ordinal := i + 1
		lines := strings.Split(block, "\n")
		firstLine := strings.TrimSpace(lines[0])

		var heading, body string
		if IsHeadingLine(firstLine) {
			heading = firstLine
			body = strings.TrimSpace(strings.Join(lines[1:], "\n"))
		} else {
			body = block
		}
		if heading == "" {
			heading = fmt.Sprintf("Clause %d", ordinal)
		}
		if body == "" {
			body = heading
		}

		var startOffset, endOffset *int
		start := indexFrom(normalized, block, cursor)
		if start < 0 {
			start = strings.Index(normalized, block)
		}
		if start >= 0 {
			end := start + len(block)
			cursor = end
			startOffset, endOffset = &start, &end
		}

		chunks = append(chunks, Chunk{
			ChunkID:       stableChunkID(ordinal, heading, body),
			SchemaVersion: SchemaVersion,
			Ordinal:       ordinal,
			Heading:       heading,
			Body:          body,
			StartOffset:   startOffset,
			EndOffset:     endOffset,
			Metadata:      map[string]any{},
		})
	}

	if len(chunks) == 0 {
		start, end := 0, len(normalized)
		chunks = append(chunks, Chunk{
			ChunkID:       stableChunkID(1, "Document", normalized),
			SchemaVersion: SchemaVersion,
			Ordinal:       1,
			Heading:       "Document",
			Body:          normalized,
			StartOffset:   &start,
			EndOffset:     &end,
			Metadata:      map[string]any{},
		})
	}

	return chunks
}

// spreadsheetChunks windows each sheet's rows into fixed-size chunks carrying
// an evidence pointer instead of text offsets.
func spreadsheetChunks(metadata map[string]any) []Chunk {
	sheets, ok := metadata["sheets"].([]any)
	if !ok {
		return nil
	}

	var chunks []Chunk
	ordinal := 1

	for _, rawSheet := range sheets {
		sheet, ok := rawSheet.(map[string]any)
		if !ok {
			continue
		}
		sheetName, _ := sheet["name"].(string)
		if sheetName == "" {
			sheetName = "Sheet"
		}
		rows, _ := sheet["rows"].([]any)
		if len(rows) == 0 {
			continue
		}

		for idx := 0; idx < len(rows); idx += rowWindowSize {
			end := idx + rowWindowSize
			if end > len(rows) {
				end = len(rows)
			}
			window := rows[idx:end]

			rowStart := rowNumber(window[0])
			rowEnd := rowNumber(window[len(window)-1])
			heading := fmt.Sprintf("%s rows %d-%d", sheetName, rowStart, rowEnd)

			var bodyLines []string
			for _, rawRow := range window {
				row, ok := rawRow.(map[string]any)
				if !ok {
					continue
				}
				rowText, _ := row["text"].(string)
				if rowText != "" {
					bodyLines = append(bodyLines, fmt.Sprintf("Row %d: %s", asInt(row["row_number"]), rowText))
				}
			}
			body := strings.TrimSpace(strings.Join(bodyLines, "\n"))
			if body == "" {
				body = heading
			}

			chunks = append(chunks, Chunk{
				ChunkID:       stableChunkID(ordinal, heading, body),
				SchemaVersion: SchemaVersion,
				Ordinal:       ordinal,
				Heading:       heading,
				Body:          body,
				Metadata: map[string]any{
					"source": "spreadsheet",
					"evidence_pointer": map[string]any{
						"kind":      "spreadsheet",
						"sheet":     sheetName,
						"row_start": rowStart,
						"row_end":   rowEnd,
					},
				},
			})
			ordinal++
		}
	}

	return chunks
}

// Clauses projects chunks to the analyzer-facing clause shape. The clause id
// is the stable chunk id, so findings produced downstream key back to chunks.
func Clauses(chunks []Chunk) []models.Clause {
	clauses := make([]models.Clause, len(chunks))
	for i, c := range chunks {
		clauses[i] = models.Clause{ID: c.ChunkID, Heading: c.Heading, Body: c.Body}
	}
	return clauses
}

func rowNumber(rawRow any) int {
	row, ok := rawRow.(map[string]any)
	if !ok {
		return 0
	}
	return asInt(row["row_number"])
}

// asInt tolerates the numeric types that survive a JSON round trip.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// indexFrom is strings.Index constrained to start searching at offset from.
func indexFrom(s, substr string, from int) int {
	if from < 0 || from > len(s) {
		return -1
	}
	idx := strings.Index(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return from + idx
}
