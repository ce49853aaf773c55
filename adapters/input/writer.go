package input

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shandley/crucible/internal/errors"
)

// OutputFormat selects the curated-output encoding.
type OutputFormat string

const (
	FormatTSV  OutputFormat = "tsv"
	FormatCSV  OutputFormat = "csv"
	FormatJSON OutputFormat = "json"
)

// Sidecar records which curation layer produced an output file.
type Sidecar struct {
	CrucibleVersion string `json:"crucible_version"`
	LayerHash       string `json:"layer_hash"`
	SourceHash      string `json:"source_hash"`
}

// WriteTable encodes a table in the given format. Records keep input order;
// columns keep table order.
func WriteTable(table *DataTable, format OutputFormat) ([]byte, error) {
	switch format {
	case FormatTSV:
		return writeDelimited(table, '\t')
	case FormatCSV:
		return writeDelimited(table, ',')
	case FormatJSON:
		return writeJSON(table)
	default:
		return nil, errors.Newf(errors.CodeInput, "unsupported output format: %s", format)
	}
}

// WriteTableFile writes the encoded table plus a sidecar file recording the
// producing layer.
func WriteTableFile(table *DataTable, path string, format OutputFormat, sidecar *Sidecar) error {
	encoded, err := WriteTable(table, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return errors.Persistence(fmt.Sprintf("write %s", path), err)
	}
	if sidecar != nil {
		raw, err := json.MarshalIndent(sidecar, "", "  ")
		if err != nil {
			return errors.Persistence("encode sidecar", err)
		}
		if err := os.WriteFile(path+".crucible.json", append(raw, '\n'), 0o644); err != nil {
			return errors.Persistence("write sidecar", err)
		}
	}
	return nil
}

func writeDelimited(table *DataTable, delimiter rune) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delimiter
	if err := w.Write(table.Headers()); err != nil {
		return nil, errors.Persistence("write header", err)
	}
	for _, row := range table.Rows() {
		record := make([]string, len(table.Headers()))
		copy(record, row)
		if err := w.Write(record); err != nil {
			return nil, errors.Persistence("write row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Persistence("flush output", err)
	}
	return buf.Bytes(), nil
}

func writeJSON(table *DataTable) ([]byte, error) {
	headers := table.Headers()
	records := make([]map[string]string, table.RowCount())
	for i, row := range table.Rows() {
		record := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(row) {
				record[h] = row[j]
			} else {
				record[h] = ""
			}
		}
		records[i] = record
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, errors.Persistence("encode json output", err)
	}
	return append(raw, '\n'), nil
}
