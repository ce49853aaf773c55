package validation

import (
	"fmt"
	"strings"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
)

// SchemaConflictValidator reports columns where a context override
// contradicts statistically certain reality, e.g. a declared range the data
// lies entirely outside, or a declared value set the data never uses. The
// conflict is a warning observation; analysis continues with the override in
// place.
type SchemaConflictValidator struct{}

func (SchemaConflictValidator) Name() string { return "schema_conflict_validator" }

func (v SchemaConflictValidator) Validate(table *input.DataTable, ts *schema.TableSchema, cfg Config) []Observation {
	var observations []Observation
	for i := range ts.Columns {
		col := &ts.Columns[i]
		if !containsSource(col.InferenceSources, "contextual") {
			continue
		}

		if col.ExpectedRange != nil && col.Statistics.Numeric != nil {
			observed := col.Statistics.Numeric
			declared := col.ExpectedRange
			if observed.Min > declared.Max || observed.Max < declared.Min {
				observations = append(observations, NewObservation(
					ConstraintViolation,
					SeverityWarning,
					col.Name,
					fmt.Sprintf(
						"declared range [%g, %g] is disjoint from observed values [%g, %g]",
						declared.Min, declared.Max, observed.Min, observed.Max),
					Evidence{
						Expected: map[string]float64{"max": declared.Max, "min": declared.Min},
						Value:    map[string]float64{"max": observed.Max, "min": observed.Min},
						Pattern:  "schema_conflict_range",
					},
					0.9,
					v.Name(),
				))
			}
		}

		if len(col.ExpectedValues) > 0 && len(col.Statistics.ValueCounts) > 0 {
			declared := make(map[string]struct{}, len(col.ExpectedValues))
			for _, e := range col.ExpectedValues {
				declared[strings.ToLower(e)] = struct{}{}
			}
			matched := 0
			for observed := range col.Statistics.ValueCounts {
				if _, ok := declared[strings.ToLower(observed)]; ok {
					matched++
				}
			}
			if matched == 0 {
				observations = append(observations, NewObservation(
					ConstraintViolation,
					SeverityWarning,
					col.Name,
					fmt.Sprintf(
						"none of the %d observed value(s) appear in the declared value set",
						len(col.Statistics.ValueCounts)),
					Evidence{
						Expected: col.ExpectedValues,
						Pattern:  "schema_conflict_values",
					},
					0.9,
					v.Name(),
				))
			}
		}
	}
	return observations
}

func containsSource(sources []string, source string) bool {
	for _, s := range sources {
		if s == source {
			return true
		}
	}
	return false
}
