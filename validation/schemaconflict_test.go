package validation

import (
	"testing"

	"github.com/shandley/crucible/schema"
)

func TestSchemaConflictDisjointRange(t *testing.T) {
	table, ts := singleColumnTable("ph", []string{"7.1", "7.3", "7.2"})
	ts.Columns[0].InferredType = schema.TypeFloat
	ts.Columns[0].InferenceSources = []string{"statistical", "contextual"}
	ts.Columns[0].ExpectedRange = &schema.Range{Min: 100, Max: 200}
	ts.Columns[0].Statistics.Numeric = &schema.NumericStatistics{Min: 7.1, Max: 7.3}

	obs := SchemaConflictValidator{}.Validate(table, ts, DefaultConfig())
	if len(obs) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(obs))
	}
	if obs[0].Severity != SeverityWarning {
		t.Errorf("conflicts are warnings, got %s", obs[0].Severity)
	}
}

func TestSchemaConflictQuietWithoutContext(t *testing.T) {
	table, ts := singleColumnTable("ph", []string{"7.1", "7.3"})
	ts.Columns[0].ExpectedRange = &schema.Range{Min: 100, Max: 200}
	ts.Columns[0].Statistics.Numeric = &schema.NumericStatistics{Min: 7.1, Max: 7.3}

	if obs := (SchemaConflictValidator{}).Validate(table, ts, DefaultConfig()); len(obs) != 0 {
		t.Errorf("no contextual source, no conflict; got %d", len(obs))
	}
}

func TestSchemaConflictValueSet(t *testing.T) {
	table, ts := singleColumnTable("group", []string{"x", "y", "x"})
	ts.Columns[0].InferenceSources = []string{"statistical", "contextual"}
	ts.Columns[0].ExpectedValues = []string{"case", "control"}

	obs := SchemaConflictValidator{}.Validate(table, ts, DefaultConfig())
	if len(obs) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(obs))
	}
}
