package input

import (
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shandley/crucible/internal/errors"
)

// XLSXReader parses the first sheet of an Excel workbook into a table.
type XLSXReader struct {
	Sheet   string // empty = first sheet
	MaxRows int    // 0 = all
}

// ReadFile parses an .xlsx file.
func (r *XLSXReader) ReadFile(path string) (*DataTable, *SourceMetadata, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.WithCode(errors.CodeInput, err),
			"read %s", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(errors.WithCode(errors.CodeInput, err), "open workbook")
	}
	defer f.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, errors.InputError("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.WithCode(errors.CodeInput, err),
			"read sheet %s", sheet)
	}
	if len(cells) == 0 {
		return nil, nil, errors.InputError("no rows found")
	}

	headers := cells[0]
	body := cells[1:]
	if r.MaxRows > 0 && len(body) > r.MaxRows {
		body = body[:r.MaxRows]
	}

	rows := make([][]string, len(body))
	for i, record := range body {
		row := make([]string, len(headers))
		copy(row, record)
		rows[i] = row
	}

	meta := &SourceMetadata{
		File:        filepath.Base(path),
		Path:        path,
		Hash:        HashBytes(contents),
		SizeBytes:   int64(len(contents)),
		Format:      "xlsx",
		Encoding:    "utf-8",
		RowCount:    len(rows),
		ColumnCount: len(headers),
		AnalyzedAt:  time.Now().UTC(),
	}
	return NewDataTable(headers, rows), meta, nil
}

// OpenTable dispatches on extension: .xlsx, .jsonl/.ndjson, otherwise
// delimited text with auto-detection.
func OpenTable(path string) (*DataTable, *SourceMetadata, error) {
	switch ext := filepath.Ext(path); ext {
	case ".xlsx":
		return (&XLSXReader{}).ReadFile(path)
	case ".jsonl", ".ndjson":
		return (&JSONLReader{}).ReadFile(path)
	default:
		return NewReader(DefaultReaderConfig()).ReadFile(path)
	}
}
