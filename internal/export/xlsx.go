// Package export renders a recorded query and its per-stand results as an
// xlsx workbook: one sheet per stand, plus a pivot sheet when the result
// shape qualifies.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/queryfan/queryfan/internal/stand"
	"github.com/queryfan/queryfan/internal/store"
)

const (
	querySheet = "Query"
	pivotSheet = "Summary"

	noDataHeader = "no data"
)

// Workbook builds the export document for one query. Relational queries get
// full per-stand tables and, when every stand returned a single one-field
// record, a leading two-column pivot sheet. Document queries get a fixed
// (_id, record) sheet per stand.
func Workbook(syntax stand.Syntax, content string, results []store.StandResult) (*excelize.File, error) {
	f := excelize.NewFile()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName(f.GetSheetName(0), querySheet); err != nil {
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	setCell(f, querySheet, 1, 1, "Query text")
	_ = f.SetCellStyle(querySheet, "A1", "A1", bold)
	setCell(f, querySheet, 1, 2, content)

	names := newSheetNamer(querySheet, pivotSheet)

	switch syntax {
	case stand.SyntaxRelational:
		if pivot := store.Pivot(results); pivot != nil {
			if err := writePivotSheet(f, bold, pivot); err != nil {
				return nil, err
			}
		}
		for _, res := range results {
			if err := writeTableSheet(f, bold, names.take(res.Stand), res.Records); err != nil {
				return nil, err
			}
		}
	case stand.SyntaxDocument:
		for _, res := range results {
			if err := writeDocumentSheet(f, bold, names.take(res.Stand), res.Records); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported syntax class %d", int(syntax))
	}

	return f, nil
}

func writePivotSheet(f *excelize.File, bold int, pivot []store.PivotRow) error {
	if _, err := f.NewSheet(pivotSheet); err != nil {
		return fmt.Errorf("create pivot sheet: %w", err)
	}
	setCell(f, pivotSheet, 1, 1, "Stand")
	setCell(f, pivotSheet, 2, 1, "Value")
	_ = f.SetCellStyle(pivotSheet, "A1", "B1", bold)

	for i, row := range pivot {
		setCell(f, pivotSheet, 1, i+2, row.Stand)
		setCell(f, pivotSheet, 2, i+2, row.Value)
	}
	return nil
}

func writeTableSheet(f *excelize.File, bold int, sheet string, records []stand.Record) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %q: %w", sheet, err)
	}

	if len(records) == 0 {
		setCell(f, sheet, 1, 1, noDataHeader)
		_ = f.SetCellStyle(sheet, "A1", "A1", bold)
		return nil
	}

	// Records are maps, so column order has to be pinned somehow; sorted
	// field names keep repeated exports byte-comparable.
	headers := sortedKeys(records[0])
	for col, h := range headers {
		setCell(f, sheet, col+1, 1, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, bold)

	for rowNum, rec := range records {
		for col, h := range headers {
			setCell(f, sheet, col+1, rowNum+2, rec[h])
		}
	}
	return nil
}

func writeDocumentSheet(f *excelize.File, bold int, sheet string, records []stand.Record) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %q: %w", sheet, err)
	}

	setCell(f, sheet, 1, 1, "_id")
	setCell(f, sheet, 2, 1, "Record")
	_ = f.SetCellStyle(sheet, "A1", "B1", bold)

	for rowNum, rec := range records {
		setCell(f, sheet, 1, rowNum+2, rec["_id"])
		encoded, err := json.Marshal(rec)
		if err != nil {
			encoded = []byte(fmt.Sprint(rec))
		}
		setCell(f, sheet, 2, rowNum+2, string(encoded))
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return
	}
	switch v.(type) {
	case nil:
		return
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		_ = f.SetCellValue(sheet, cell, v)
	default:
		_ = f.SetCellValue(sheet, cell, fmt.Sprint(v))
	}
}

func sortedKeys(rec stand.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sheetNamer sanitizes stand names into valid, unique sheet names. Excel
// caps names at 31 runes and forbids a handful of characters.
type sheetNamer struct {
	used map[string]bool
}

func newSheetNamer(reserved ...string) *sheetNamer {
	n := &sheetNamer{used: make(map[string]bool)}
	for _, r := range reserved {
		n.used[r] = true
	}
	return n
}

func (n *sheetNamer) take(name string) string {
	base := sanitizeSheetName(name)
	candidate := base
	for i := 2; n.used[candidate]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateRunes(base, 31-len(suffix)) + suffix
	}
	n.used[candidate] = true
	return candidate
}

func sanitizeSheetName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(truncateRunes(cleaned, 31))
	if cleaned == "" {
		return "stand"
	}
	return cleaned
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
