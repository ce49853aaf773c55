package inference

import (
	"reflect"
	"testing"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
)

func TestRoleFromName(t *testing.T) {
	cases := []struct {
		name string
		role schema.SemanticRole
	}{
		{"sample_id", schema.RoleSampleID},
		{"diagnosis", schema.RoleGroupingVar},
		{"age", schema.RoleCovariate},
		{"outcome", schema.RoleOutcome},
		{"collection_date", schema.RoleTechnical},
		{"notes", schema.RoleAdministrative},
		{"zzz", schema.RoleUnknown},
	}
	for _, c := range cases {
		role, _ := roleFromName(c.name)
		if role != c.role {
			t.Errorf("%s: expected %s, got %s", c.name, c.role, role)
		}
	}
}

func TestDetectISODateFormat(t *testing.T) {
	a := NewSemanticAnalyzer()
	result := a.AnalyzeColumn("date",
		[]string{"2024-01-15", "2024-02-20", "2024-03-25"}, input.IsNullValue)

	if result.DetectedFormat != "iso_date" {
		t.Fatalf("expected iso_date, got %q", result.DetectedFormat)
	}
	if result.ValuePattern == "" {
		t.Error("expected a pattern constraint")
	}
}

func TestDetectAlphanumericID(t *testing.T) {
	a := NewSemanticAnalyzer()
	result := a.AnalyzeColumn("code",
		[]string{"IBD001", "IBD002", "IBD003"}, input.IsNullValue)

	if result.DetectedFormat != "alphanumeric_id" {
		t.Fatalf("expected alphanumeric_id, got %q", result.DetectedFormat)
	}
	if result.SemanticRole != schema.RoleSampleID {
		t.Errorf("expected sample_id role from format, got %s", result.SemanticRole)
	}
}

func TestFormatThreshold(t *testing.T) {
	// 2 of 3 match: below the 90% threshold.
	a := NewSemanticAnalyzer()
	result := a.AnalyzeColumn("mixed",
		[]string{"2024-01-15", "2024-02-20", "banana"}, input.IsNullValue)

	if result.DetectedFormat != "" {
		t.Errorf("expected no format, got %q", result.DetectedFormat)
	}
}

func TestNameTokens(t *testing.T) {
	cases := []struct {
		name   string
		tokens []string
	}{
		{"sample_id", []string{"sample", "id"}},
		{"collectionDate", []string{"collection", "date"}},
		{"age-at-onset", []string{"age", "at", "onset"}},
	}
	for _, c := range cases {
		got := NameTokens(c.name)
		if !reflect.DeepEqual(got, c.tokens) {
			t.Errorf("%s: expected %v, got %v", c.name, c.tokens, got)
		}
	}
}
