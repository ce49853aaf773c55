package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
)

// maxSampleRows caps row-index evidence so it stays reviewable.
const maxSampleRows = 50

// Config tunes validator thresholds.
type Config struct {
	// Null fraction above which completeness warns / errors.
	CompletenessWarn  float64
	CompletenessError float64
	// Type mismatch fraction above which severity escalates to error.
	TypeErrorFraction float64
	// Outlier fraction above which severity escalates from info to warning.
	OutlierWarnFraction float64
	// Strict escalates set-membership violations to errors.
	Strict bool
	// ExpectedSampleCount enables the cardinality check when positive.
	ExpectedSampleCount int
	// ExtraNullTokens extends the recognized null patterns.
	ExtraNullTokens []string
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		CompletenessWarn:    0.3,
		CompletenessError:   0.9,
		TypeErrorFraction:   0.10,
		OutlierWarnFraction: 0.01,
	}
}

func (c Config) isNull(v string) bool {
	if len(c.ExtraNullTokens) == 0 {
		return input.IsNullValue(v)
	}
	extra := make(map[string]struct{}, len(c.ExtraNullTokens))
	for _, t := range c.ExtraNullTokens {
		extra[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return input.IsNullValueWith(v, extra)
}

// Validator is a pure check from (schema, rows, config) to observations.
type Validator interface {
	Name() string
	Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation
}

// CompletenessValidator flags columns with a high missing-value rate.
type CompletenessValidator struct{}

func (CompletenessValidator) Name() string { return "completeness_validator" }

func (v CompletenessValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		fraction := col.NullFraction()
		if fraction <= cfg.CompletenessWarn {
			continue
		}
		severity := SeverityWarning
		if fraction > cfg.CompletenessError {
			severity = SeverityError
		}
		observations = append(observations, NewObservation(
			Completeness,
			severity,
			col.Name,
			fmt.Sprintf("%.1f%% of values are missing", fraction*100),
			Evidence{
				Occurrences: col.Statistics.NullCount,
				Percentage:  fraction * 100,
				Pattern:     "null_fraction",
			},
			0.95,
			v.Name(),
		))
	}
	return observations
}

// UniquenessValidator flags duplicate values in columns marked unique.
type UniquenessValidator struct{}

func (UniquenessValidator) Name() string { return "uniqueness_validator" }

func (v UniquenessValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if col.FindConstraint(schema.ConstraintUnique) == nil && !col.Unique {
			continue
		}
		duplicates := duplicateRows(table, col.Position, cfg)
		if len(duplicates) == 0 {
			continue
		}
		dupCount := 0
		counts := map[string]int{}
		var rows []int
		for _, d := range duplicates {
			dupCount += len(d.rows) - 1
			counts[d.value] = len(d.rows)
			rows = append(rows, d.rows...)
		}
		if len(rows) > maxSampleRows {
			rows = rows[:maxSampleRows]
		}
		observations = append(observations, NewObservation(
			Duplicate,
			SeverityError,
			col.Name,
			fmt.Sprintf("%d duplicate value(s) in column that should be unique", dupCount),
			Evidence{
				Occurrences: dupCount,
				Percentage:  percentage(dupCount, table.RowCount()),
				SampleRows:  rows,
				ValueCounts: counts,
			},
			0.95,
			v.Name(),
		))
	}
	return observations
}

// TypeValidator flags non-null cells that fail to parse as the inferred type.
type TypeValidator struct{}

func (TypeValidator) Name() string { return "type_validator" }

func (v TypeValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if col.InferredType == schema.TypeString || col.InferredType == schema.TypeUnknown {
			continue
		}
		var mismatches []int
		for rowIdx, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			if !cellMatchesType(value, col.InferredType) {
				mismatches = append(mismatches, rowIdx)
			}
		}
		if len(mismatches) == 0 {
			continue
		}
		fraction := float64(len(mismatches)) / float64(table.RowCount())
		severity := SeverityWarning
		if fraction > cfg.TypeErrorFraction {
			severity = SeverityError
		}
		sample := mismatches
		if len(sample) > maxSampleRows {
			sample = sample[:maxSampleRows]
		}
		observations = append(observations, NewObservation(
			TypeMismatch,
			severity,
			col.Name,
			fmt.Sprintf("%d value(s) (%.1f%%) don't match expected type %s",
				len(mismatches), fraction*100, col.InferredType),
			Evidence{
				Occurrences: len(mismatches),
				Percentage:  fraction * 100,
				SampleRows:  sample,
				Expected:    string(col.InferredType),
			},
			0.9,
			v.Name(),
		))
	}
	return observations
}

// RangeValidator flags numeric cells outside the expected range.
type RangeValidator struct{}

func (RangeValidator) Name() string { return "range_validator" }

func (v RangeValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if !col.InferredType.IsNumeric() || col.ExpectedRange == nil {
			continue
		}
		min, max := col.ExpectedRange.Min, col.ExpectedRange.Max
		span := max - min
		var outOfRange []int
		worstExcess := 0.0
		for rowIdx, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				continue
			}
			if f < min || f > max {
				outOfRange = append(outOfRange, rowIdx)
				excess := min - f
				if f > max {
					excess = f - max
				}
				if excess > worstExcess {
					worstExcess = excess
				}
			}
		}
		if len(outOfRange) == 0 {
			continue
		}
		severity := SeverityWarning
		if span > 0 && worstExcess > 3*span {
			severity = SeverityError
		}
		sample := outOfRange
		if len(sample) > maxSampleRows {
			sample = sample[:maxSampleRows]
		}
		observations = append(observations, NewObservation(
			ConstraintViolation,
			severity,
			col.Name,
			fmt.Sprintf("%d value(s) outside expected range [%g, %g]", len(outOfRange), min, max),
			Evidence{
				Occurrences: len(outOfRange),
				Percentage:  percentage(len(outOfRange), table.RowCount()),
				SampleRows:  sample,
				Expected:    map[string]float64{"max": max, "min": min},
			},
			0.85,
			v.Name(),
		))
	}
	return observations
}

// SetMembershipValidator flags categorical cells not in the expected set,
// ignoring near-variants (those are the consistency validators' job).
type SetMembershipValidator struct{}

func (SetMembershipValidator) Name() string { return "set_validator" }

func (v SetMembershipValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if len(col.ExpectedValues) == 0 {
			continue
		}
		expectedLower := make(map[string]struct{}, len(col.ExpectedValues))
		for _, e := range col.ExpectedValues {
			expectedLower[strings.ToLower(e)] = struct{}{}
		}
		var rows []int
		unexpected := map[string]int{}
		for rowIdx, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			trimmed := strings.TrimSpace(value)
			if contains(col.ExpectedValues, trimmed) {
				continue
			}
			if isNearVariant(trimmed, col.ExpectedValues, expectedLower) {
				continue
			}
			rows = append(rows, rowIdx)
			unexpected[trimmed]++
		}
		if len(rows) == 0 {
			continue
		}
		severity := SeverityWarning
		if cfg.Strict {
			severity = SeverityError
		}
		sample := rows
		if len(sample) > maxSampleRows {
			sample = sample[:maxSampleRows]
		}
		observations = append(observations, NewObservation(
			ConstraintViolation,
			severity,
			col.Name,
			fmt.Sprintf("%d value(s) not in expected set: %s",
				len(rows), previewKeys(unexpected, 3)),
			Evidence{
				Occurrences: len(rows),
				Percentage:  percentage(len(rows), table.RowCount()),
				SampleRows:  sample,
				Expected:    col.ExpectedValues,
				ValueCounts: unexpected,
			},
			0.85,
			v.Name(),
		))
	}
	return observations
}

// PatternValidator flags cells failing the column's pattern constraint.
type PatternValidator struct{}

func (PatternValidator) Name() string { return "pattern_validator" }

func (v PatternValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		constraint := col.FindConstraint(schema.ConstraintPattern)
		if constraint == nil || constraint.Pattern == "" {
			continue
		}
		re, err := compilePattern(constraint.Pattern)
		if err != nil {
			continue
		}
		var rows []int
		var examples []string
		for rowIdx, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			trimmed := strings.TrimSpace(value)
			if !re.MatchString(trimmed) {
				rows = append(rows, rowIdx)
				if len(examples) < 3 {
					examples = append(examples, trimmed)
				}
			}
		}
		if len(rows) == 0 {
			continue
		}
		sample := rows
		if len(sample) > maxSampleRows {
			sample = sample[:maxSampleRows]
		}
		observations = append(observations, NewObservation(
			ConstraintViolation,
			SeverityWarning,
			col.Name,
			fmt.Sprintf("%d value(s) don't match the column pattern: %v", len(rows), examples),
			Evidence{
				Occurrences: len(rows),
				Percentage:  percentage(len(rows), table.RowCount()),
				SampleRows:  sample,
				Pattern:     constraint.Pattern,
			},
			0.75,
			v.Name(),
		))
	}
	return observations
}

// DuplicateRowValidator flags rows identical on the identifier columns.
type DuplicateRowValidator struct{}

func (DuplicateRowValidator) Name() string { return "duplicate_validator" }

func (v DuplicateRowValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if col.SemanticRole != schema.RoleSampleID || col.Unique {
			// Columns already marked unique are the uniqueness validator's job.
			continue
		}
		duplicates := duplicateRows(table, col.Position, cfg)
		if len(duplicates) == 0 {
			continue
		}
		dupCount := 0
		counts := map[string]int{}
		var rows []int
		for _, d := range duplicates {
			dupCount += len(d.rows) - 1
			counts[d.value] = len(d.rows)
			rows = append(rows, d.rows...)
		}
		if len(rows) > maxSampleRows {
			rows = rows[:maxSampleRows]
		}
		observations = append(observations, NewObservation(
			Duplicate,
			SeverityError,
			col.Name,
			fmt.Sprintf("identifier column has %d duplicate value(s): %s",
				dupCount, previewKeys(counts, 3)),
			Evidence{
				Occurrences: dupCount,
				Percentage:  percentage(dupCount, table.RowCount()),
				SampleRows:  rows,
				ValueCounts: counts,
			},
			0.95,
			v.Name(),
		))
	}
	return observations
}

// CardinalityValidator compares the observed row count against the expected
// sample count from context hints.
type CardinalityValidator struct{}

func (CardinalityValidator) Name() string { return "cardinality_validator" }

func (v CardinalityValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	if cfg.ExpectedSampleCount <= 0 || table.RowCount() == cfg.ExpectedSampleCount {
		return nil
	}
	column := ""
	if ids := ts.IdentifierColumns(); len(ids) > 0 {
		column = ids[0].Name
	} else if len(ts.Columns) > 0 {
		column = ts.Columns[0].Name
	}
	return []Observation{NewObservation(
		Cardinality,
		SeverityWarning,
		column,
		fmt.Sprintf("table has %d rows but %d samples were expected",
			table.RowCount(), cfg.ExpectedSampleCount),
		Evidence{
			Occurrences: table.RowCount(),
			Expected:    cfg.ExpectedSampleCount,
			Pattern:     "sample_count",
		},
		0.9,
		v.Name(),
	)}
}

// helpers

type duplicateGroup struct {
	value string
	rows  []int
}

// duplicateRows groups non-null values appearing more than once, in
// first-occurrence order.
func duplicateRows(table *input.DataTable, position int, cfg Config) []duplicateGroup {
	byValue := map[string][]int{}
	var order []string
	for rowIdx, value := range table.ColumnValues(position) {
		if cfg.isNull(value) {
			continue
		}
		trimmed := strings.TrimSpace(value)
		if _, seen := byValue[trimmed]; !seen {
			order = append(order, trimmed)
		}
		byValue[trimmed] = append(byValue[trimmed], rowIdx)
	}
	var groups []duplicateGroup
	for _, value := range order {
		if rows := byValue[value]; len(rows) > 1 {
			groups = append(groups, duplicateGroup{value: value, rows: rows})
		}
	}
	return groups
}

func cellMatchesType(value string, columnType schema.ColumnType) bool {
	trimmed := strings.TrimSpace(value)
	switch columnType {
	case schema.TypeInteger:
		_, err := strconv.ParseInt(trimmed, 10, 64)
		return err == nil
	case schema.TypeFloat:
		_, err := strconv.ParseFloat(trimmed, 64)
		return err == nil
	case schema.TypeBoolean:
		switch strings.ToLower(trimmed) {
		case "true", "false", "yes", "no", "y", "n", "1", "0":
			return true
		}
		return false
	default:
		return true
	}
}

// isNearVariant reports whether a value is a case variant or one edit away
// from an expected value.
func isNearVariant(value string, expected []string, expectedLower map[string]struct{}) bool {
	if _, ok := expectedLower[strings.ToLower(value)]; ok {
		return true
	}
	for _, e := range expected {
		if editDistance(strings.ToLower(value), strings.ToLower(e)) <= 1 {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// previewKeys renders up to n map keys in sorted order.
func previewKeys(m map[string]int, n int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	return strings.Join(keys, ", ")
}
