package input

import (
	"strings"
	"time"
)

// SourceMetadata describes the file a table was parsed from.
type SourceMetadata struct {
	File        string    `json:"file"`
	Path        string    `json:"path"`
	Hash        string    `json:"hash"`
	SizeBytes   int64     `json:"size_bytes"`
	Format      string    `json:"format"`
	Encoding    string    `json:"encoding"`
	RowCount    int       `json:"row_count"`
	ColumnCount int       `json:"column_count"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// DataTable is parsed tabular data. Cells are uninterpreted text; rows keep
// their original file position so downstream evidence can reference them.
type DataTable struct {
	headers []string
	rows    [][]string
}

// NewDataTable creates a table from headers and row-major cells.
func NewDataTable(headers []string, rows [][]string) *DataTable {
	return &DataTable{headers: headers, rows: rows}
}

// Headers returns the column names in order.
func (t *DataTable) Headers() []string { return t.headers }

// Rows returns the row data in original order.
func (t *DataTable) Rows() [][]string { return t.rows }

// RowCount returns the number of data rows.
func (t *DataTable) RowCount() int { return len(t.rows) }

// ColumnCount returns the number of columns.
func (t *DataTable) ColumnCount() int { return len(t.headers) }

// ColumnIndex returns the index of the named column, or -1.
func (t *DataTable) ColumnIndex(name string) int {
	for i, h := range t.headers {
		if h == name {
			return i
		}
	}
	return -1
}

// ColumnValues returns all cells of a column in row order. Short rows yield
// empty strings.
func (t *DataTable) ColumnValues(index int) []string {
	values := make([]string, len(t.rows))
	for i, row := range t.rows {
		if index < len(row) {
			values[i] = row[index]
		}
	}
	return values
}

// Get returns a single cell, or "" when out of range.
func (t *DataTable) Get(row, col int) string {
	if row < 0 || row >= len(t.rows) {
		return ""
	}
	r := t.rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Clone returns a deep copy. The transform engine works on clones so the
// original rows are never mutated.
func (t *DataTable) Clone() *DataTable {
	headers := make([]string, len(t.headers))
	copy(headers, t.headers)
	rows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		r := make([]string, len(row))
		copy(r, row)
		rows[i] = r
	}
	return &DataTable{headers: headers, rows: rows}
}

// Set overwrites a cell, padding the row if it is short.
func (t *DataTable) Set(row, col int, value string) {
	if row < 0 || row >= len(t.rows) || col < 0 || col >= len(t.headers) {
		return
	}
	for len(t.rows[row]) <= col {
		t.rows[row] = append(t.rows[row], "")
	}
	t.rows[row][col] = value
}

// AddColumn appends a column filled with defaultValue.
func (t *DataTable) AddColumn(name, defaultValue string) {
	t.headers = append(t.headers, name)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], defaultValue)
	}
}

// nullTokens are cell values recognized as missing, lower-cased.
var nullTokens = map[string]struct{}{
	"":               {},
	"na":             {},
	"n/a":            {},
	"null":           {},
	"none":           {},
	"nil":            {},
	".":              {},
	"-":              {},
	"missing":        {},
	"not applicable": {},
	"not collected":  {},
	"unknown":        {},
}

// IsNullValue reports whether a cell matches a recognized null pattern.
func IsNullValue(value string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// IsNullValueWith also checks caller-supplied extra tokens (lower-cased).
func IsNullValueWith(value string, extra map[string]struct{}) bool {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if _, ok := nullTokens[trimmed]; ok {
		return true
	}
	_, ok := extra[trimmed]
	return ok
}
