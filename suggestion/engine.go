package suggestion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/validation"
)

// Engine maps observations to suggestions using rule-based logic. No LLM is
// required; the augmentor may later calibrate confidences.
type Engine struct{}

// NewEngine creates a suggestion engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Generate produces zero or more suggestions per observation, sorted by
// (priority, id).
func (e *Engine) Generate(observations []validation.Observation, table *input.DataTable, ts *schema.TableSchema) []Suggestion {
	var suggestions []Suggestion
	for i := range observations {
		suggestions = append(suggestions, e.ForObservation(&observations[i], table, ts)...)
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Priority != suggestions[j].Priority {
			return suggestions[i].Priority < suggestions[j].Priority
		}
		return suggestions[i].ID < suggestions[j].ID
	})
	return suggestions
}

// ForObservation applies the mapping rules for one observation.
func (e *Engine) ForObservation(obs *validation.Observation, table *input.DataTable, ts *schema.TableSchema) []Suggestion {
	switch obs.Type {
	case validation.MissingPattern:
		return e.convertNA(obs)
	case validation.Inconsistency:
		if obs.Evidence.Pattern == "date_formats" {
			return e.convertDate(obs)
		}
		return e.standardize(obs)
	case validation.Outlier:
		return e.flagOutlier(obs)
	case validation.Duplicate:
		return e.handleDuplicate(obs, table, ts)
	case validation.TypeMismatch:
		return e.handleTypeMismatch(obs, ts)
	case validation.ConstraintViolation:
		return e.flag(obs, "constraint_violation")
	case validation.Completeness:
		return e.flagCompleteness(obs)
	case validation.Cardinality:
		return nil // informational only
	case validation.CrossColumn:
		return e.flag(obs, "cross_column_inconsistency")
	}
	return nil
}

func (e *Engine) convertNA(obs *validation.Observation) []Suggestion {
	fromValues, ok := obs.Evidence.Expected.([]string)
	if !ok || len(fromValues) == 0 {
		return nil
	}
	values := make([]interface{}, len(fromValues))
	for i, v := range fromValues {
		values[i] = v
	}

	s := NewSuggestion(obs.ID, ConvertNA, fmt.Sprintf(
		"Convert %d textual missing-value token(s) in column '%s' to a single null representation.",
		obs.Evidence.Occurrences, obs.Column))
	s.Parameters = map[string]interface{}{
		"column":      obs.Column,
		"from_values": values,
		"to":          nil,
	}
	s.AffectedRows = obs.Evidence.Occurrences
	s.Confidence = obs.Confidence
	s.Priority = PriorityFor(obs.Severity.Rank(), ConvertNA, s.Confidence)
	return []Suggestion{s}
}

// standardize builds a value mapping from the observation's evidence. The
// validator records the canonical per group in Expected; every other surface
// form maps to it.
func (e *Engine) standardize(obs *validation.Observation) []Suggestion {
	mapping := standardizeMapping(obs)
	if len(mapping) == 0 {
		return nil
	}

	params := map[string]interface{}{
		"column":  obs.Column,
		"mapping": toInterfaceMap(mapping),
	}

	confidence := obs.Confidence
	if obs.Evidence.Pattern == "edit_distance_1" {
		// Typo fixes are one edit away; discount accordingly.
		confidence *= 0.9
	}

	variants := make([]string, 0, len(mapping))
	for from := range mapping {
		variants = append(variants, from)
	}
	sort.Strings(variants)

	s := NewSuggestion(obs.ID, Standardize, fmt.Sprintf(
		"Standardize %d variant(s) in column '%s': %s.",
		len(mapping), obs.Column, strings.Join(variants, ", ")))
	s.Parameters = params
	s.AffectedRows = obs.Evidence.Occurrences
	s.Confidence = confidence
	s.Priority = PriorityFor(obs.Severity.Rank(), Standardize, confidence)
	return []Suggestion{s}
}

// standardizeMapping extracts {variant -> canonical} from evidence.
func standardizeMapping(obs *validation.Observation) map[string]string {
	mapping := map[string]string{}

	switch expected := obs.Evidence.Expected.(type) {
	case map[string]string:
		if counts, ok := obs.Evidence.ValueCounts.(map[string]map[string]int); ok {
			// Group form: Expected maps group key -> canonical; variants come
			// from the group's surface counts.
			for group, canonical := range expected {
				for surface := range counts[group] {
					if surface != canonical {
						mapping[surface] = canonical
					}
				}
			}
		} else {
			// Direct form (typos, boolean variants): Expected maps each
			// variant to its replacement.
			for from, to := range expected {
				if from != to {
					mapping[from] = to
				}
			}
		}
	}
	return mapping
}

func (e *Engine) convertDate(obs *validation.Observation) []Suggestion {
	s := NewSuggestion(obs.ID, ConvertDate, fmt.Sprintf(
		"Standardize %d date value(s) in column '%s' to ISO 8601 (YYYY-MM-DD).",
		obs.Evidence.Occurrences, obs.Column))
	s.Parameters = map[string]interface{}{
		"column":        obs.Column,
		"target_format": "YYYY-MM-DD",
	}
	s.AffectedRows = obs.Evidence.Occurrences
	s.Confidence = obs.Confidence
	s.Priority = PriorityFor(obs.Severity.Rank(), ConvertDate, s.Confidence)
	return []Suggestion{s}
}

func (e *Engine) flagOutlier(obs *validation.Observation) []Suggestion {
	reason := obs.Evidence.Pattern
	if reason == "" {
		reason = "statistical_outlier"
	}
	s := NewSuggestion(obs.ID, Flag, fmt.Sprintf(
		"Flag %d outlier value(s) in column '%s' for review; outliers are never removed automatically.",
		obs.Evidence.Occurrences, obs.Column))
	s.Parameters = map[string]interface{}{
		"column":      obs.Column,
		"rows":        toInterfaceRows(obs.Evidence.SampleRows),
		"flag_column": obs.Column + "_flagged",
		"flag_value":  reason,
		"reason":      reason,
	}
	s.AffectedRows = obs.Evidence.Occurrences
	s.Confidence = obs.Confidence
	s.Priority = PriorityFor(obs.Severity.Rank(), Flag, s.Confidence)
	return []Suggestion{s}
}

// handleDuplicate suggests Merge when the duplicated rows are strictly
// compatible (identical on every other column), Flag otherwise.
func (e *Engine) handleDuplicate(obs *validation.Observation, table *input.DataTable, ts *schema.TableSchema) []Suggestion {
	compatible := duplicateRowsCompatible(obs, table, ts)

	if compatible {
		s := NewSuggestion(obs.ID, Merge, fmt.Sprintf(
			"Merge %d duplicate row(s) in column '%s'; the duplicated rows are identical on all other columns.",
			obs.Evidence.Occurrences, obs.Column))
		s.Parameters = map[string]interface{}{
			"column": obs.Column,
			"rows":   toInterfaceRows(obs.Evidence.SampleRows),
		}
		s.AffectedRows = obs.Evidence.Occurrences
		s.Confidence = obs.Confidence
		s.Priority = PriorityFor(obs.Severity.Rank(), Merge, s.Confidence)
		return []Suggestion{s}
	}

	s := NewSuggestion(obs.ID, Flag, fmt.Sprintf(
		"Flag %d duplicate identifier value(s) in column '%s'; the rows differ elsewhere and need manual review.",
		obs.Evidence.Occurrences, obs.Column))
	s.Parameters = map[string]interface{}{
		"column":      obs.Column,
		"rows":        toInterfaceRows(obs.Evidence.SampleRows),
		"flag_column": obs.Column + "_duplicate",
		"flag_value":  "duplicate",
	}
	s.AffectedRows = obs.Evidence.Occurrences
	s.Confidence = obs.Confidence
	s.Priority = PriorityFor(obs.Severity.Rank(), Flag, s.Confidence)
	return []Suggestion{s}
}

// duplicateRowsCompatible checks whether every duplicated value's rows agree
// on all non-identifier columns.
func duplicateRowsCompatible(obs *validation.Observation, table *input.DataTable, ts *schema.TableSchema) bool {
	col := ts.Column(obs.Column)
	if col == nil || len(obs.Evidence.SampleRows) == 0 {
		return false
	}

	byValue := map[string][]int{}
	for _, rowIdx := range obs.Evidence.SampleRows {
		value := strings.TrimSpace(table.Get(rowIdx, col.Position))
		byValue[value] = append(byValue[value], rowIdx)
	}
	for _, rows := range byValue {
		if len(rows) < 2 {
			continue
		}
		first := rows[0]
		for _, other := range rows[1:] {
			for c := 0; c < table.ColumnCount(); c++ {
				if c == col.Position {
					continue
				}
				if table.Get(first, c) != table.Get(other, c) {
					return false
				}
			}
		}
	}
	return true
}

func (e *Engine) handleTypeMismatch(obs *validation.Observation, ts *schema.TableSchema) []Suggestion {
	col := ts.Column(obs.Column)
	targetType := ""
	if expected, ok := obs.Evidence.Expected.(string); ok {
		targetType = expected
	}
	numericTarget := col != nil && col.InferredType.IsNumeric()

	if numericTarget && obs.Evidence.Percentage < 10 {
		s := NewSuggestion(obs.ID, Coerce, fmt.Sprintf(
			"Coerce %d value(s) in column '%s' to %s; non-convertible values become null.",
			obs.Evidence.Occurrences, obs.Column, targetType))
		s.Parameters = map[string]interface{}{
			"column":      obs.Column,
			"target_type": targetType,
			"rows":        toInterfaceRows(obs.Evidence.SampleRows),
		}
		s.AffectedRows = obs.Evidence.Occurrences
		s.Confidence = obs.Confidence * 0.9
		s.Priority = PriorityFor(obs.Severity.Rank(), Coerce, s.Confidence)
		return []Suggestion{s}
	}

	return e.flag(obs, "type_mismatch")
}

func (e *Engine) flagCompleteness(obs *validation.Observation) []Suggestion {
	s := NewSuggestion(obs.ID, Flag, fmt.Sprintf(
		"Column '%s' is %.1f%% missing; review whether it belongs in analysis or can be imputed.",
		obs.Column, obs.Evidence.Percentage))
	s.Parameters = map[string]interface{}{
		"column":             obs.Column,
		"missing_percentage": obs.Evidence.Percentage,
		"flag_column":        obs.Column + "_flagged",
		"flag_value":         "incomplete",
	}
	s.AffectedRows = obs.Evidence.Occurrences
	s.Confidence = obs.Confidence
	s.Priority = PriorityFor(obs.Severity.Rank(), Flag, s.Confidence)
	return []Suggestion{s}
}

func (e *Engine) flag(obs *validation.Observation, flagValue string) []Suggestion {
	s := NewSuggestion(obs.ID, Flag, fmt.Sprintf(
		"Flag %d value(s) in column '%s' for review: %s.",
		obs.Evidence.Occurrences, obs.Column, obs.Description))
	s.Parameters = map[string]interface{}{
		"column":      obs.Column,
		"rows":        toInterfaceRows(obs.Evidence.SampleRows),
		"flag_column": obs.Column + "_flagged",
		"flag_value":  flagValue,
	}
	s.AffectedRows = obs.Evidence.Occurrences
	s.Confidence = obs.Confidence
	s.Priority = PriorityFor(obs.Severity.Rank(), Flag, s.Confidence)
	return []Suggestion{s}
}

func toInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toInterfaceRows(rows []int) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
