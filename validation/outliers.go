package validation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
)

// MissingPatternValidator reports columns whose cells use textual null
// tokens (NA, missing, ".", ...) instead of a single null representation.
type MissingPatternValidator struct{}

func (MissingPatternValidator) Name() string { return "missing_pattern_validator" }

func (v MissingPatternValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]

		tokenCounts := map[string]int{}
		total := 0
		nonEmptyTokens := 0
		for _, value := range table.ColumnValues(col.Position) {
			if !cfg.isNull(value) {
				continue
			}
			token := strings.TrimSpace(value)
			tokenCounts[token]++
			total++
			if token != "" {
				nonEmptyTokens++
			}
		}
		// A column that only uses empty cells already has a single null
		// representation.
		if nonEmptyTokens == 0 {
			continue
		}

		tokens := make([]string, 0, len(tokenCounts))
		for t := range tokenCounts {
			tokens = append(tokens, t)
		}
		sort.Strings(tokens)

		observations = append(observations, NewObservation(
			MissingPattern,
			SeverityWarning,
			col.Name,
			fmt.Sprintf("%d cell(s) use textual missing-value tokens: %s",
				total, previewKeys(tokenCounts, 5)),
			Evidence{
				Occurrences: total,
				Percentage:  percentage(total, table.RowCount()),
				ValueCounts: tokenCounts,
				Expected:    tokens,
				Pattern:     "null_tokens",
			},
			0.88,
			v.Name(),
		))
	}
	return observations
}

// OutlierValidator reports numeric values that are IQR outliers with a high
// z-score, or that fall outside the expected range.
type OutlierValidator struct {
	IQRMultiplier float64
	ZThreshold    float64
}

// NewOutlierValidator returns the validator with default thresholds.
func NewOutlierValidator() OutlierValidator {
	return OutlierValidator{IQRMultiplier: 1.5, ZThreshold: 4.0}
}

func (OutlierValidator) Name() string { return "statistical_outlier_validator" }

func (v OutlierValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if !col.InferredType.IsNumeric() || col.Statistics.Numeric == nil {
			continue
		}
		numeric := col.Statistics.Numeric

		type hit struct {
			row     int
			value   float64
			z       float64
			outside bool
		}
		var hits []hit
		for rowIdx, value := range table.ColumnValues(col.Position) {
			if cfg.isNull(value) {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				continue
			}
			outside := col.ExpectedRange != nil &&
				(f < col.ExpectedRange.Min || f > col.ExpectedRange.Max)
			statistical := numeric.IsOutlierIQR(f, v.IQRMultiplier) &&
				math.Abs(numeric.ZScore(f)) >= v.ZThreshold
			if outside || statistical {
				hits = append(hits, hit{row: rowIdx, value: f, z: numeric.ZScore(f), outside: outside})
				if len(hits) >= maxSampleRows {
					break
				}
			}
		}
		if len(hits) == 0 {
			continue
		}

		anyOutside := false
		for _, h := range hits {
			if h.outside {
				anyOutside = true
				break
			}
		}
		severity := SeverityInfo
		if anyOutside || float64(len(hits))/float64(table.RowCount()) > cfg.OutlierWarnFraction {
			severity = SeverityWarning
		}

		reason := "statistical_outlier"
		if anyOutside {
			reason = "out_of_expected_range"
		}

		evidence := Evidence{
			Occurrences: len(hits),
			Percentage:  percentage(len(hits), table.RowCount()),
			Pattern:     reason,
		}
		if len(hits) == 1 {
			row := hits[0].row
			z := round2(hits[0].z)
			evidence.Value = hits[0].value
			evidence.Row = &row
			evidence.ZScore = &z
			evidence.SampleRows = []int{row}
		} else {
			rows := make([]int, len(hits))
			for j, h := range hits {
				rows[j] = h.row
			}
			evidence.SampleRows = rows
		}
		if col.ExpectedRange != nil {
			evidence.Expected = map[string]float64{
				"max": col.ExpectedRange.Max,
				"min": col.ExpectedRange.Min,
			}
		}

		observations = append(observations, NewObservation(
			Outlier,
			severity,
			col.Name,
			fmt.Sprintf("%d outlier value(s) detected in column '%s'", len(hits), col.Name),
			evidence,
			0.85,
			v.Name(),
		))
	}
	return observations
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
