package validation

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/internal/dateformat"
	"github.com/shandley/crucible/schema"
)

// CrossColumnValidator evaluates the table's cross-column rules: date
// ordering, conditional presence, and functional dependencies.
type CrossColumnValidator struct{}

func (CrossColumnValidator) Name() string { return "cross_column_validator" }

func (v CrossColumnValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for _, rule := range ts.CrossColumnRules {
		switch rule.Kind {
		case "date_order":
			if obs := v.checkDateOrder(table, ts, rule, cfg); obs != nil {
				observations = append(observations, *obs)
			}
		case "conditional_presence":
			if obs := v.checkConditionalPresence(table, ts, rule, cfg); obs != nil {
				observations = append(observations, *obs)
			}
		case "functional_dependency":
			if obs := v.checkBMIDependency(table, ts, rule, cfg); obs != nil {
				observations = append(observations, *obs)
			}
		}
	}
	return observations
}

func (v CrossColumnValidator) checkDateOrder(table *input.DataTable, ts *schema.TableSchema, rule schema.CrossColumnRule, cfg Config) *Observation {
	if len(rule.Columns) != 2 {
		return nil
	}
	start, end := ts.Column(rule.Columns[0]), ts.Column(rule.Columns[1])
	if start == nil || end == nil {
		return nil
	}

	var rows []int
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		startVal := table.Get(rowIdx, start.Position)
		endVal := table.Get(rowIdx, end.Position)
		if cfg.isNull(startVal) || cfg.isNull(endVal) {
			continue
		}
		if dateformat.Comparable(startVal) > dateformat.Comparable(endVal) {
			rows = append(rows, rowIdx)
			if len(rows) >= maxSampleRows {
				break
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}

	obs := NewObservation(
		CrossColumn,
		SeverityWarning,
		rule.Columns[0],
		fmt.Sprintf("%d row(s) violate rule: %s", len(rows), rule.Description),
		Evidence{
			Occurrences: len(rows),
			Percentage:  percentage(len(rows), table.RowCount()),
			SampleRows:  rows,
			Pattern:     rule.Kind,
		},
		rule.Confidence,
		v.Name(),
	)
	obs.Columns = rule.Columns
	return &obs
}

func (v CrossColumnValidator) checkConditionalPresence(table *input.DataTable, ts *schema.TableSchema, rule schema.CrossColumnRule, cfg Config) *Observation {
	if len(rule.Columns) != 2 {
		return nil
	}
	sex, pregnant := ts.Column(rule.Columns[0]), ts.Column(rule.Columns[1])
	if sex == nil || pregnant == nil {
		return nil
	}

	var rows []int
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		sexVal := strings.ToLower(strings.TrimSpace(table.Get(rowIdx, sex.Position)))
		pregVal := strings.ToLower(strings.TrimSpace(table.Get(rowIdx, pregnant.Position)))
		isMale := sexVal == "m" || (strings.Contains(sexVal, "male") && !strings.Contains(sexVal, "female"))
		isPregnant := pregVal == "yes" || pregVal == "y" || pregVal == "true" || pregVal == "1"
		if isMale && isPregnant {
			rows = append(rows, rowIdx)
			if len(rows) >= maxSampleRows {
				break
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}

	obs := NewObservation(
		CrossColumn,
		SeverityError,
		rule.Columns[0],
		fmt.Sprintf("%d row(s) violate rule: %s", len(rows), rule.Description),
		Evidence{
			Occurrences: len(rows),
			Percentage:  percentage(len(rows), table.RowCount()),
			SampleRows:  rows,
			Pattern:     rule.Kind,
		},
		rule.Confidence,
		v.Name(),
	)
	obs.Columns = rule.Columns
	return &obs
}

// checkBMIDependency verifies BMI against weight/height^2. The correlation
// between reported and derived BMI gates the per-row check: when the two
// series do not track each other at all, the columns probably do not mean
// what their names suggest and the rule is skipped.
func (v CrossColumnValidator) checkBMIDependency(table *input.DataTable, ts *schema.TableSchema, rule schema.CrossColumnRule, cfg Config) *Observation {
	if len(rule.Columns) != 3 {
		return nil
	}
	bmi, weight, height := ts.Column(rule.Columns[0]), ts.Column(rule.Columns[1]), ts.Column(rule.Columns[2])
	if bmi == nil || weight == nil || height == nil {
		return nil
	}

	var reported, derived []float64
	var candidateRows []int
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		b, okB := parseCell(table.Get(rowIdx, bmi.Position), cfg)
		w, okW := parseCell(table.Get(rowIdx, weight.Position), cfg)
		h, okH := parseCell(table.Get(rowIdx, height.Position), cfg)
		if !okB || !okW || !okH || h <= 0 || w <= 0 {
			continue
		}
		if h > 3 { // centimeters
			h /= 100
		}
		expected := w / (h * h)
		reported = append(reported, b)
		derived = append(derived, expected)
		if diff := (b - expected) / expected; diff > 0.1 || diff < -0.1 {
			candidateRows = append(candidateRows, rowIdx)
		}
	}
	if len(reported) < 3 || len(candidateRows) == 0 {
		return nil
	}
	if r := stat.Correlation(reported, derived, nil); r < 0.2 {
		return nil
	}

	rows := candidateRows
	if len(rows) > maxSampleRows {
		rows = rows[:maxSampleRows]
	}
	obs := NewObservation(
		CrossColumn,
		SeverityWarning,
		rule.Columns[0],
		fmt.Sprintf("%d row(s) violate rule: %s", len(candidateRows), rule.Description),
		Evidence{
			Occurrences: len(candidateRows),
			Percentage:  percentage(len(candidateRows), table.RowCount()),
			SampleRows:  rows,
			Pattern:     rule.Kind,
		},
		rule.Confidence,
		v.Name(),
	)
	obs.Columns = rule.Columns
	return &obs
}

func parseCell(value string, cfg Config) (float64, bool) {
	if cfg.isNull(value) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return f, err == nil
}
