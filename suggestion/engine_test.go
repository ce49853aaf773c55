package suggestion

import (
	"testing"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/validation"
)

func sexObservation() validation.Observation {
	return validation.NewObservation(
		validation.Inconsistency,
		validation.SeverityWarning,
		"sex",
		"case or naming variants detected",
		validation.Evidence{
			Occurrences: 8,
			ValueCounts: map[string]map[string]int{
				"m": {"M": 1, "m": 1, "male": 1, "Male": 1},
				"f": {"F": 2, "f": 1, "Female": 1},
			},
			Expected: map[string]string{"m": "male", "f": "female"},
		},
		0.9,
		"case_variant_validator",
	)
}

func TestStandardizeSexMapping(t *testing.T) {
	obs := sexObservation()
	suggestions := NewEngine().ForObservation(&obs, nil, &schema.TableSchema{})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	s := suggestions[0]
	if s.Action != Standardize {
		t.Fatalf("expected standardize, got %s", s.Action)
	}

	mapping := s.Parameters["mapping"].(map[string]interface{})
	want := map[string]string{
		"M": "male", "m": "male", "Male": "male",
		"F": "female", "f": "female", "Female": "female",
	}
	if len(mapping) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), mapping)
	}
	for from, to := range want {
		if mapping[from] != to {
			t.Errorf("mapping[%s]: expected %s, got %v", from, to, mapping[from])
		}
	}
	if !s.Reversible {
		t.Error("standardize should be reversible")
	}
}

func TestConvertNASuggestion(t *testing.T) {
	obs := validation.NewObservation(
		validation.MissingPattern,
		validation.SeverityWarning,
		"notes",
		"textual missing-value tokens",
		validation.Evidence{
			Occurrences: 5,
			ValueCounts: map[string]int{"": 1, "NA": 1, "N/A": 1, "missing": 1, ".": 1},
			Expected:    []string{"", ".", "N/A", "NA", "missing"},
		},
		0.88,
		"missing_pattern_validator",
	)

	suggestions := NewEngine().ForObservation(&obs, nil, &schema.TableSchema{})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	s := suggestions[0]
	if s.Action != ConvertNA {
		t.Fatalf("expected convert_na, got %s", s.Action)
	}
	fromValues := s.Parameters["from_values"].([]interface{})
	if len(fromValues) != 5 {
		t.Errorf("expected 5 from_values, got %v", fromValues)
	}
	if s.Confidence != obs.Confidence {
		t.Errorf("confidence should equal observation confidence")
	}
}

func TestOutlierNeverRemoves(t *testing.T) {
	row := 892
	z := 10.2
	obs := validation.NewObservation(
		validation.Outlier,
		validation.SeverityWarning,
		"age",
		"outlier detected",
		validation.Evidence{
			Occurrences: 1,
			Value:       45.2,
			Row:         &row,
			ZScore:      &z,
			SampleRows:  []int{892},
			Pattern:     "out_of_expected_range",
		},
		0.85,
		"statistical_outlier_validator",
	)

	suggestions := NewEngine().ForObservation(&obs, nil, &schema.TableSchema{})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	s := suggestions[0]
	if s.Action != Flag {
		t.Fatalf("outliers must be flagged, never removed; got %s", s.Action)
	}
	if s.Parameters["reason"] != "out_of_expected_range" {
		t.Errorf("expected out_of_expected_range reason, got %v", s.Parameters["reason"])
	}
}

func TestDuplicateMergeWhenCompatible(t *testing.T) {
	table := input.NewDataTable(
		[]string{"sample_id", "age"},
		[][]string{
			{"IBD001", "12"},
			{"IBD002", "14"},
			{"IBD001", "12"},
		},
	)
	ts := &schema.TableSchema{Columns: []schema.ColumnSchema{
		{Name: "sample_id", Position: 0, InferredType: schema.TypeString},
		{Name: "age", Position: 1, InferredType: schema.TypeInteger},
	}}

	obs := validation.NewObservation(
		validation.Duplicate,
		validation.SeverityError,
		"sample_id",
		"duplicates",
		validation.Evidence{
			Occurrences: 1,
			SampleRows:  []int{0, 2},
			ValueCounts: map[string]int{"IBD001": 2},
		},
		0.95,
		"uniqueness_validator",
	)

	suggestions := NewEngine().ForObservation(&obs, table, ts)
	if len(suggestions) != 1 || suggestions[0].Action != Merge {
		t.Fatalf("identical duplicate rows should merge, got %+v", suggestions)
	}
}

func TestDuplicateFlagWhenIncompatible(t *testing.T) {
	table := input.NewDataTable(
		[]string{"sample_id", "age"},
		[][]string{
			{"IBD001", "12"},
			{"IBD001", "45"},
		},
	)
	ts := &schema.TableSchema{Columns: []schema.ColumnSchema{
		{Name: "sample_id", Position: 0, InferredType: schema.TypeString},
		{Name: "age", Position: 1, InferredType: schema.TypeInteger},
	}}

	obs := validation.NewObservation(
		validation.Duplicate,
		validation.SeverityError,
		"sample_id",
		"duplicates",
		validation.Evidence{
			Occurrences: 1,
			SampleRows:  []int{0, 1},
			ValueCounts: map[string]int{"IBD001": 2},
		},
		0.95,
		"uniqueness_validator",
	)

	suggestions := NewEngine().ForObservation(&obs, table, ts)
	if len(suggestions) != 1 || suggestions[0].Action != Flag {
		t.Fatalf("differing duplicate rows should flag, got %+v", suggestions)
	}
}

func TestPriorityOrdering(t *testing.T) {
	errorPriority := PriorityFor(validation.SeverityError.Rank(), Flag, 0.9)
	infoPriority := PriorityFor(validation.SeverityInfo.Rank(), Flag, 0.9)
	if errorPriority >= infoPriority {
		t.Errorf("errors should rank before info: %v vs %v", errorPriority, infoPriority)
	}

	reversible := PriorityFor(validation.SeverityWarning.Rank(), Standardize, 0.9)
	destructive := PriorityFor(validation.SeverityWarning.Rank(), Remove, 0.9)
	if reversible >= destructive {
		t.Errorf("reversible actions should rank before destructive: %v vs %v", reversible, destructive)
	}

	if p := PriorityFor(validation.SeverityError.Rank(), Flag, 0); p <= 0 {
		t.Errorf("zero confidence must not divide by zero, got %v", p)
	}
}

func TestDeterministicSuggestionIDs(t *testing.T) {
	obs := sexObservation()
	first := NewEngine().ForObservation(&obs, nil, &schema.TableSchema{})
	second := NewEngine().ForObservation(&obs, nil, &schema.TableSchema{})
	if first[0].ID != second[0].ID {
		t.Errorf("suggestion ids differ across reruns")
	}
}
