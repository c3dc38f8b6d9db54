package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/crestway-partners/leadscout/internal/model"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads one sheet of an XLSX file and returns all rows as string
// slices, header included.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// ReadXLSXDrafts parses a headered XLSX export into drafts using the field
// map. Rows without a name are counted as skipped.
func ReadXLSXDrafts(ctx context.Context, path string, opts XLSXOptions, fm FieldMap, sourceURL string) ([]model.Draft, int, error) {
	rows, err := ReadXLSX(path, opts)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, eris.Errorf("xlsx: empty sheet in %s", path)
	}

	mapper, err := newRowMapper(rows[0], fm)
	if err != nil {
		return nil, 0, err
	}

	var (
		drafts  []model.Draft
		skipped int
	)
	for _, row := range rows[1:] {
		if ctx.Err() != nil {
			return nil, 0, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		d, ok := mapper.draft(row, sourceURL)
		if !ok {
			skipped++
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, skipped, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
