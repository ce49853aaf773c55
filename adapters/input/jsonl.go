package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shandley/crucible/internal/errors"
)

// JSONLReader parses newline-delimited JSON objects into a table. Column
// order is the key order of the first record, with later-discovered keys
// appended alphabetically.
type JSONLReader struct {
	MaxRows int // 0 = all
}

// ReadFile parses a .jsonl/.ndjson file.
func (r *JSONLReader) ReadFile(path string) (*DataTable, *SourceMetadata, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.WithCode(errors.CodeInput, err),
			"read %s", path)
	}

	table, err := r.ReadBytes(contents)
	if err != nil {
		return nil, nil, err
	}

	meta := &SourceMetadata{
		File:        filepath.Base(path),
		Path:        path,
		Hash:        HashBytes(contents),
		SizeBytes:   int64(len(contents)),
		Format:      "jsonl",
		Encoding:    "utf-8",
		RowCount:    table.RowCount(),
		ColumnCount: table.ColumnCount(),
		AnalyzedAt:  time.Now().UTC(),
	}
	return table, meta, nil
}

// ReadBytes parses raw JSONL bytes.
func (r *JSONLReader) ReadBytes(contents []byte) (*DataTable, error) {
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	scanner.Buffer(make([]byte, 4*1024*1024), 4*1024*1024)

	var headers []string
	headerIndex := map[string]int{}
	var records []map[string]json.RawMessage

	lineNo := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNo++
		if line == "" {
			continue
		}
		if r.MaxRows > 0 && len(records) >= r.MaxRows {
			break
		}

		var record map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, errors.Newf(errors.CodeInput,
				"line %d: not a JSON object: %v", lineNo, err)
		}

		if headers == nil {
			// First record defines the base column order; decode again with
			// a token walk to keep the file's key order.
			headers = objectKeyOrder(line)
			for i, h := range headers {
				headerIndex[h] = i
			}
		} else {
			var extra []string
			for k := range record {
				if _, ok := headerIndex[k]; !ok {
					extra = append(extra, k)
				}
			}
			sort.Strings(extra)
			for _, k := range extra {
				headerIndex[k] = len(headers)
				headers = append(headers, k)
			}
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, errors.InputError("no data rows found")
	}

	rows := make([][]string, len(records))
	for i, record := range records {
		row := make([]string, len(headers))
		for k, raw := range record {
			row[headerIndex[k]] = scalarString(raw)
		}
		rows[i] = row
	}

	return NewDataTable(headers, rows), nil
}

// objectKeyOrder returns the keys of a JSON object in document order.
func objectKeyOrder(line string) []string {
	dec := json.NewDecoder(strings.NewReader(line))
	var keys []string
	depth := 0
	expectKey := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				depth++
				expectKey = depth == 1
			case '}':
				depth--
			case '[', ']':
			}
		case string:
			if depth == 1 && expectKey {
				keys = append(keys, t)
				expectKey = false
				// Skip the value so the next string token is a key again.
				var skip json.RawMessage
				_ = dec.Decode(&skip)
				expectKey = true
			}
		}
	}
	return keys
}

// scalarString renders a JSON value as cell text. null becomes the empty
// cell; nested structures keep their compact JSON form.
func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case 't', 'f':
		return string(trimmed)
	case '{', '[':
		return string(trimmed)
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err == nil {
			if f == float64(int64(f)) {
				return strconv.FormatInt(int64(f), 10)
			}
			return fmt.Sprintf("%g", f)
		}
	}
	return string(trimmed)
}
