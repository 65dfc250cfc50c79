package extract

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// SpreadsheetExtractor renders an xlsx sheet as text, one line per data row.
// The first row of the selected range holds the column headers.
type SpreadsheetExtractor struct{}

func (e *SpreadsheetExtractor) SupportedTypes() []string {
	return []string{MimeSpreadsheet}
}

func (e *SpreadsheetExtractor) Priority() int {
	return 50
}

func (e *SpreadsheetExtractor) Extract(_ context.Context, req domain.ExtractRequest) (*domain.ExtractedContent, error) {
	f, err := excelize.OpenReader(bytes.NewReader(req.Payload.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open spreadsheet: %v", domain.ErrUnsupportedContent, err)
	}
	defer f.Close()

	var sheet, ref string
	if cfg := req.Source.Spreadsheet; cfg != nil {
		sheet, ref = cfg.SheetName, cfg.Range
	}
	if name, cells, ok := strings.Cut(ref, "!"); ok {
		if sheet == "" {
			sheet = strings.Trim(name, "'")
		}
		ref = cells
	}
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: spreadsheet has no sheets", domain.ErrUnsupportedContent)
		}
		sheet = sheets[0]
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: sheet %q not found", domain.ErrInvalidInput, sheet)
	}

	bounds, err := parseRange(ref)
	if err != nil {
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	rows = bounds.apply(rows)

	fields := map[string]string{"sheet": sheet, "row_count": "0"}
	if ref != "" {
		fields["range"] = ref
	}
	if len(rows) == 0 {
		return &domain.ExtractedContent{Title: sheet, Fields: fields, MimeType: MimeSpreadsheet}, nil
	}

	headers := rows[0]
	fields["columns"] = strings.Join(headers, ",")
	fields["row_count"] = strconv.Itoa(len(rows) - 1)

	var b strings.Builder
	for _, row := range rows[1:] {
		var cells []string
		for i, value := range row {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			cells = append(cells, columnName(headers, i)+": "+value)
		}
		if len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, "; "))
		b.WriteByte('\n')
	}

	return &domain.ExtractedContent{
		Title:    sheet,
		Text:     strings.TrimSpace(b.String()),
		Fields:   fields,
		MimeType: MimeSpreadsheet,
	}, nil
}

func columnName(headers []string, i int) string {
	if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
		return strings.TrimSpace(headers[i])
	}
	return "column_" + strconv.Itoa(i+1)
}

// cellRange is a 1-based inclusive window; zero bounds are open.
type cellRange struct {
	firstCol, firstRow, lastCol, lastRow int
}

// parseRange accepts "A1:D20", "A:D" and single cells such as "B2".
func parseRange(ref string) (cellRange, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return cellRange{}, nil
	}
	start, end, found := strings.Cut(ref, ":")
	if !found {
		end = start
	}
	c1, r1, err := parseCorner(start)
	if err != nil {
		return cellRange{}, err
	}
	c2, r2, err := parseCorner(end)
	if err != nil {
		return cellRange{}, err
	}
	return cellRange{firstCol: c1, firstRow: r1, lastCol: c2, lastRow: r2}, nil
}

func parseCorner(cell string) (int, int, error) {
	cell = strings.ReplaceAll(strings.TrimSpace(cell), "$", "")
	if strings.IndexAny(cell, "0123456789") == -1 {
		col, err := excelize.ColumnNameToNumber(cell)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: invalid range %q: %v", domain.ErrInvalidInput, cell, err)
		}
		return col, 0, nil
	}
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid range %q: %v", domain.ErrInvalidInput, cell, err)
	}
	return col, row, nil
}

func (r cellRange) apply(rows [][]string) [][]string {
	if r == (cellRange{}) {
		return rows
	}
	var out [][]string
	for i, row := range rows {
		n := i + 1
		if r.firstRow > 0 && n < r.firstRow {
			continue
		}
		if r.lastRow > 0 && n > r.lastRow {
			break
		}
		lo, hi := 0, len(row)
		if r.firstCol > 0 {
			lo = min(r.firstCol-1, len(row))
		}
		if r.lastCol > 0 {
			hi = min(r.lastCol, len(row))
		}
		if lo > hi {
			lo = hi
		}
		out = append(out, row[lo:hi])
	}
	return out
}
