package input

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shandley/crucible/internal/errors"
)

// delimiters tried during auto-detection.
var delimiters = []rune{'\t', ',', ';', '|'}

// ReaderConfig controls delimited-file parsing.
type ReaderConfig struct {
	Delimiter rune // 0 = auto-detect
	HasHeader bool
	MaxRows   int // 0 = all
}

// DefaultReaderConfig returns the standard configuration.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{HasHeader: true}
}

// Reader parses delimited text files (TSV, CSV, semicolon, pipe).
type Reader struct {
	config ReaderConfig
}

// NewReader creates a reader with the given configuration.
func NewReader(config ReaderConfig) *Reader {
	return &Reader{config: config}
}

// ReadFile parses a file and returns the table plus source metadata.
func (r *Reader) ReadFile(path string) (*DataTable, *SourceMetadata, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.WithCode(errors.CodeInput, err),
			"read %s", path)
	}

	hash := HashBytes(contents)

	delimiter := r.config.Delimiter
	if delimiter == 0 {
		delimiter, err = DetectDelimiter(contents)
		if err != nil {
			return nil, nil, err
		}
	}

	table, err := r.ReadBytes(contents, delimiter)
	if err != nil {
		return nil, nil, err
	}

	meta := &SourceMetadata{
		File:        filepath.Base(path),
		Path:        path,
		Hash:        hash,
		SizeBytes:   int64(len(contents)),
		Format:      formatForDelimiter(delimiter),
		Encoding:    "utf-8",
		RowCount:    table.RowCount(),
		ColumnCount: table.ColumnCount(),
		AnalyzedAt:  time.Now().UTC(),
	}
	return table, meta, nil
}

// ReadBytes parses raw delimited bytes.
func (r *Reader) ReadBytes(contents []byte, delimiter rune) (*DataTable, error) {
	cr := csv.NewReader(bytes.NewReader(contents))
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.WithCode(errors.CodeInput, err), "parse delimited data")
	}
	if len(records) == 0 {
		return nil, errors.InputError("no rows found")
	}

	var headers []string
	var body [][]string
	if r.config.HasHeader {
		headers = records[0]
		body = records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i+1)
		}
		body = records
	}
	if len(headers) == 0 {
		return nil, errors.InputError("no columns found")
	}

	rows := make([][]string, 0, len(body))
	for i, record := range body {
		if r.config.MaxRows > 0 && i >= r.config.MaxRows {
			break
		}
		row := make([]string, len(headers))
		copy(row, record)
		rows = append(rows, row)
	}

	return NewDataTable(headers, rows), nil
}

// HashBytes returns the sha256 content hash in the layer's format.
func HashBytes(contents []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(contents))
}

// HashFile hashes a file's contents, returning "" when unreadable.
func HashFile(path string) string {
	contents, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return HashBytes(contents)
}

// DetectDelimiter inspects the first lines and picks the most consistent
// candidate. Tab gets a small bonus since tabs rarely occur in values.
func DetectDelimiter(contents []byte) (rune, error) {
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	var lines []string
	for scanner.Scan() && len(lines) < 10 {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return 0, errors.InputError("no lines to analyze")
	}

	best := ','
	bestScore := 0
	for _, delim := range delimiters {
		counts := make([]int, len(lines))
		for i, line := range lines {
			counts[i] = countDelimiter(line, delim)
		}
		first := counts[0]
		if first == 0 {
			continue
		}
		consistent := true
		for _, c := range counts {
			if c != first {
				consistent = false
				break
			}
		}
		score := first
		if consistent {
			score = first * 1000
			if delim == '\t' {
				score += 100
			}
		}
		if score > bestScore {
			bestScore = score
			best = delim
		}
	}
	return best, nil
}

// countDelimiter counts occurrences outside double quotes.
func countDelimiter(line string, delim rune) int {
	count := 0
	inQuotes := false
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == delim && !inQuotes:
			count++
		}
	}
	return count
}

func formatForDelimiter(delimiter rune) string {
	switch delimiter {
	case '\t':
		return "tsv"
	case ',':
		return "csv"
	case ';':
		return "csv-semicolon"
	case '|':
		return "psv"
	default:
		return "delimited"
	}
}
