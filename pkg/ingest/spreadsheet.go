package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetSchemaVersion versions the canonical spreadsheet metadata shape.
const SpreadsheetSchemaVersion = "v1"

// parseCSV reads the whole CSV as a single "Sheet1" sheet.
func parseCSV(raw []byte) (string, map[string]any, error) {
	decoded := strings.TrimPrefix(string(raw), "\uFEFF")
	reader := csv.NewReader(strings.NewReader(decoded))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", nil, fmt.Errorf("parsing csv: %w", err)
	}
	rows := make([][]string, len(records))
	for i, record := range records {
		cells := make([]string, len(record))
		for j, cell := range record {
			cells[j] = strings.TrimSpace(cell)
		}
		rows[i] = cells
	}

	metadata := map[string]any{
		"kind":           "spreadsheet",
		"schema_version": SpreadsheetSchemaVersion,
		"sheets":         []any{sheetToCanonical("Sheet1", rows)},
	}
	return canonicalToText(metadata), metadata, nil
}

// parseXLSX reads every worksheet in workbook order.
func parseXLSX(raw []byte) (string, map[string]any, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer func() { _ = wb.Close() }()

	var sheets []any
	for _, name := range wb.GetSheetList() {
		records, err := wb.GetRows(name)
		if err != nil {
			return "", nil, fmt.Errorf("reading sheet %q: %w", name, err)
		}
		rows := make([][]string, len(records))
		for i, record := range records {
			cells := make([]string, len(record))
			for j, cell := range record {
				cells[j] = strings.TrimSpace(cell)
			}
			rows[i] = cells
		}
		sheets = append(sheets, sheetToCanonical(name, rows))
	}

	metadata := map[string]any{
		"kind":           "spreadsheet",
		"schema_version": SpreadsheetSchemaVersion,
		"sheets":         sheets,
	}
	return canonicalToText(metadata), metadata, nil
}

// sheetToCanonical converts raw cell rows to the canonical sheet shape. The
// first row acts as a header when any of its cells is non-empty; header
// cells name the columns, missing names fall back to col_<idx>.
func sheetToCanonical(name string, rows [][]string) map[string]any {
	if len(rows) == 0 {
		return map[string]any{"name": name, "columns": []any{}, "rows": []any{}}
	}

	header := rows[0]
	hasHeader := anyNonEmpty(header)
	dataRows := rows
	rowStart := 1
	if hasHeader {
		dataRows = rows[1:]
		rowStart = 2
	}

	var canonicalRows []any
	for offset, row := range dataRows {
		rowNumber := rowStart + offset
		colCount := max(len(row), len(header))

		cells := make([]any, colCount)
		cellMap := map[string]any{}
		var pairs []string
		for idx := 0; idx < colCount; idx++ {
			val := ""
			if idx < len(row) {
				val = row[idx]
			}
			cells[idx] = val

			key := fmt.Sprintf("col_%d", idx+1)
			if idx < len(header) && header[idx] != "" {
				key = header[idx]
			}
			cellMap[key] = val
			if val != "" {
				pairs = append(pairs, fmt.Sprintf("%s=%s", key, val))
			}
		}

		canonicalRows = append(canonicalRows, map[string]any{
			"row_number": rowNumber,
			"cells":      cells,
			"cell_map":   cellMap,
			"text":       strings.Join(pairs, " ; "),
		})
	}
	if canonicalRows == nil {
		canonicalRows = []any{}
	}

	columns := []any{}
	if hasHeader {
		for _, h := range header {
			columns = append(columns, h)
		}
	}
	return map[string]any{"name": name, "columns": columns, "rows": canonicalRows}
}

// canonicalToText renders metadata as the document's searchable text: a
// [Sheet: <name>] line per sheet, Row <n>: lines for non-empty rows, and a
// blank line between sheets.
func canonicalToText(metadata map[string]any) string {
	var parts []string
	sheets, _ := metadata["sheets"].([]any)
	for _, raw := range sheets {
		sheet, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := sheet["name"].(string)
		if name == "" {
			name = "Sheet"
		}
		parts = append(parts, fmt.Sprintf("[Sheet: %s]", name))

		rows, _ := sheet["rows"].([]any)
		for _, rawRow := range rows {
			row, ok := rawRow.(map[string]any)
			if !ok {
				continue
			}
			text, _ := row["text"].(string)
			if text != "" {
				parts = append(parts, fmt.Sprintf("Row %v: %s", row["row_number"], text))
			}
		}
		parts = append(parts, "")
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func anyNonEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return true
		}
	}
	return false
}
