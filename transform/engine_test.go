package transform

import (
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/validation"
)

func buildLayer(t *testing.T, table *input.DataTable, obs validation.Observation, sug suggestion.Suggestion) *curation.Layer {
	t.Helper()
	columns := make([]schema.ColumnSchema, len(table.Headers()))
	for i, h := range table.Headers() {
		columns[i] = schema.ColumnSchema{Name: h, Position: i, InferredType: schema.TypeString}
	}
	meta := input.SourceMetadata{
		File:        "data.tsv",
		Path:        "data.tsv",
		Hash:        "sha256:test",
		RowCount:    table.RowCount(),
		ColumnCount: table.ColumnCount(),
		AnalyzedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	return curation.NewLayer(meta, curation.CurationContext{},
		schema.TableSchema{Columns: columns},
		[]validation.Observation{obs}, []suggestion.Suggestion{sug})
}

func sexFixture(t *testing.T) (*curation.Layer, *input.DataTable) {
	t.Helper()
	table := input.NewDataTable([]string{"sex"}, [][]string{
		{"M"}, {"m"}, {"male"}, {"Male"}, {"F"}, {"f"}, {"Female"}, {"F"},
	})

	obs := validation.NewObservation(
		validation.Inconsistency, validation.SeverityWarning, "sex", "variants",
		validation.Evidence{Occurrences: 8}, 0.9, "case_variant_validator")

	sug := suggestion.NewSuggestion(obs.ID, suggestion.Standardize, "standardize sex")
	sug.Parameters = map[string]interface{}{
		"column": "sex",
		"mapping": map[string]interface{}{
			"M": "male", "m": "male", "Male": "male",
			"F": "female", "f": "female", "Female": "female",
		},
	}
	sug.Confidence = 0.9
	sug.Priority = 2.2

	return buildLayer(t, table, obs, sug), table
}

func TestApplyStandardize(t *testing.T) {
	layer, table := sexFixture(t)
	_, _, err := layer.Accept(layer.Suggestions[0].ID, "user", "")
	if err != nil {
		t.Fatal(err)
	}

	curated, audit, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}

	unique := map[string]bool{}
	for _, row := range curated.Rows() {
		unique[row[0]] = true
	}
	want := map[string]bool{"male": true, "female": true}
	if !reflect.DeepEqual(unique, want) {
		t.Errorf("expected unique values {male, female}, got %v", unique)
	}

	if len(audit.Changes) != 1 {
		t.Fatalf("expected 1 change set, got %d", len(audit.Changes))
	}
	if len(audit.Changes[0].Cells) != 7 {
		t.Errorf("expected 7 cells changed, got %d", len(audit.Changes[0].Cells))
	}
	// Original rows untouched.
	if table.Get(0, 0) != "M" {
		t.Error("apply mutated the original table")
	}
	// Decisions transitioned to applied.
	if layer.DecisionFor(layer.Suggestions[0].ID).Status != curation.StatusApplied {
		t.Error("expected decision to transition to applied")
	}
}

func TestApplySkipsRejected(t *testing.T) {
	layer, table := sexFixture(t)
	_, _, err := layer.Reject(layer.Suggestions[0].ID, "user", "leave it")
	if err != nil {
		t.Fatal(err)
	}

	curated, audit, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}
	if len(audit.Changes) != 0 {
		t.Errorf("rejected decisions must not apply, got %d changes", len(audit.Changes))
	}
	if curated.Get(0, 0) != "M" {
		t.Error("rejected suggestion changed data")
	}
}

func TestApplyIdempotent(t *testing.T) {
	layer, table := sexFixture(t)
	_, _, err := layer.Accept(layer.Suggestions[0].ID, "user", "")
	if err != nil {
		t.Fatal(err)
	}

	first, firstAudit, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}
	// All decisions are now Applied; a second run must reproduce output and
	// audit exactly.
	second, secondAudit, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Rows(), second.Rows()) {
		t.Error("second apply produced different rows")
	}
	if !reflect.DeepEqual(firstAudit, secondAudit) {
		t.Error("second apply produced a different audit log")
	}
}

func TestApplyConvertNA(t *testing.T) {
	table := input.NewDataTable([]string{"notes"}, [][]string{
		{"fine"}, {"NA"}, {"N/A"}, {"missing"}, {"."}, {""},
	})

	obs := validation.NewObservation(
		validation.MissingPattern, validation.SeverityWarning, "notes", "tokens",
		validation.Evidence{Occurrences: 5}, 0.88, "missing_pattern_validator")

	sug := suggestion.NewSuggestion(obs.ID, suggestion.ConvertNA, "convert tokens")
	sug.Parameters = map[string]interface{}{
		"column":      "notes",
		"from_values": []interface{}{"", ".", "N/A", "NA", "missing"},
	}
	sug.Priority = 2.5

	layer := buildLayer(t, table, obs, sug)
	if _, _, err := layer.Accept(sug.ID, "user", ""); err != nil {
		t.Fatal(err)
	}

	curated, _, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}
	for i, row := range curated.Rows() {
		if i == 0 {
			if row[0] != "fine" {
				t.Errorf("row 0 should be untouched, got %q", row[0])
			}
			continue
		}
		if row[0] != "" {
			t.Errorf("row %d: expected empty null representation, got %q", i, row[0])
		}
	}
}

func TestApplyConvertDate(t *testing.T) {
	table := input.NewDataTable([]string{"date"}, [][]string{
		{"2024-01-15"}, {"01/17/2024"}, {"Jan 20 2024"}, {"2024/01/25"},
	})

	obs := validation.NewObservation(
		validation.Inconsistency, validation.SeverityWarning, "date", "mixed formats",
		validation.Evidence{Occurrences: 4, Pattern: "date_formats"}, 0.9, "date_format_validator")

	sug := suggestion.NewSuggestion(obs.ID, suggestion.ConvertDate, "to iso")
	sug.Parameters = map[string]interface{}{"column": "date", "target_format": "YYYY-MM-DD"}
	sug.Priority = 2.2

	layer := buildLayer(t, table, obs, sug)
	if _, _, err := layer.Accept(sug.ID, "user", ""); err != nil {
		t.Fatal(err)
	}

	curated, _, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-01-15", "2024-01-17", "2024-01-20", "2024-01-25"}
	for i, row := range curated.Rows() {
		if row[0] != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], row[0])
		}
	}
}

func TestApplyFlagAddsColumn(t *testing.T) {
	table := input.NewDataTable([]string{"age"}, [][]string{
		{"10"}, {"12"}, {"45"},
	})

	obs := validation.NewObservation(
		validation.Outlier, validation.SeverityWarning, "age", "outlier",
		validation.Evidence{Occurrences: 1, SampleRows: []int{2}}, 0.85,
		"statistical_outlier_validator")

	sug := suggestion.NewSuggestion(obs.ID, suggestion.Flag, "flag outlier")
	sug.Parameters = map[string]interface{}{
		"column":      "age",
		"rows":        []interface{}{2},
		"flag_column": "age_flagged",
		"flag_value":  "out_of_expected_range",
	}
	sug.Priority = 2.8

	layer := buildLayer(t, table, obs, sug)
	if _, _, err := layer.Accept(sug.ID, "user", ""); err != nil {
		t.Fatal(err)
	}

	curated, audit, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}
	// Original values untouched; flag column added.
	if curated.Get(2, 0) != "45" {
		t.Error("flag must not change values")
	}
	if curated.Get(2, curated.ColumnIndex("age_flagged")) != "out_of_expected_range" {
		t.Error("flag column not set")
	}
	if len(audit.Changes) != 1 || audit.Changes[0].Action != "flag" {
		t.Errorf("expected one flag audit entry, got %+v", audit.Changes)
	}
}

func TestModifiedParamsOverride(t *testing.T) {
	layer, table := sexFixture(t)
	// Narrow the mapping: only capitalized variants.
	_, _, err := layer.Modify(layer.Suggestions[0].ID, "user", map[string]interface{}{
		"mapping": map[string]interface{}{"M": "male", "F": "female", "Male": "male", "Female": "female"},
	}, "keep lowercase singles")
	if err != nil {
		t.Fatal(err)
	}

	curated, _, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}

	var values []string
	for _, row := range curated.Rows() {
		values = append(values, row[0])
	}
	sort.Strings(values)
	// "m" and "f" survive because the modification dropped them.
	want := []string{"f", "female", "female", "female", "m", "male", "male", "male"}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("expected %v, got %v", want, values)
	}
}

func TestApplyRefusesStaleLayer(t *testing.T) {
	layer, table := sexFixture(t)
	layer.Stale = true
	_, _, err := NewEngine().Apply(layer, table)
	if err == nil {
		t.Fatal("expected stale source error")
	}
	if !errors.HasCode(err, errors.CodeStaleSource) {
		t.Errorf("expected STALE_SOURCE_ERROR, got %s", errors.GetCode(err))
	}
}

func TestApplyMergeDropsIdenticalRows(t *testing.T) {
	table := input.NewDataTable([]string{"sample_id", "age"}, [][]string{
		{"IBD001", "12"},
		{"IBD002", "14"},
		{"IBD001", "12"},
	})

	obs := validation.NewObservation(
		validation.Duplicate, validation.SeverityError, "sample_id", "dups",
		validation.Evidence{Occurrences: 1, SampleRows: []int{0, 2}}, 0.95,
		"uniqueness_validator")

	sug := suggestion.NewSuggestion(obs.ID, suggestion.Merge, "merge dups")
	sug.Parameters = map[string]interface{}{"column": "sample_id"}
	sug.Priority = 2.1

	layer := buildLayer(t, table, obs, sug)
	if _, _, err := layer.Accept(sug.ID, "user", ""); err != nil {
		t.Fatal(err)
	}

	curated, _, err := NewEngine().Apply(layer, table)
	if err != nil {
		t.Fatal(err)
	}
	if curated.RowCount() != 2 {
		t.Fatalf("expected 2 rows after merge, got %d", curated.RowCount())
	}
	if table.RowCount() != 3 {
		t.Error("merge mutated the original table")
	}
}
