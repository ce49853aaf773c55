package crucible

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/adapters/llm"
	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/validation"
)

func fixedClock() func() time.Time {
	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return stamp }
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testEngine() *Crucible {
	cfg := DefaultConfig()
	cfg.Clock = fixedClock()
	return WithConfig(cfg)
}

func TestAnalyzeSimpleCSV(t *testing.T) {
	path := writeTemp(t, "samples.csv",
		"sample_id,age,diagnosis\nS001,25,CD\nS002,30,UC\nS003,28,CD\n")

	layer, table, err := testEngine().AnalyzeFile(context.Background(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, len(layer.Schema.Columns))
	assert.Equal(t, 3, layer.Source.RowCount)
	assert.Equal(t, 3, table.RowCount())
	assert.Equal(t, "csv", layer.Source.Format)
	assert.Equal(t, schema.TypeInteger, layer.Schema.Column("age").InferredType)
	assert.NoError(t, layer.ValidateIntegrity())
}

func TestDeterministicAnalysis(t *testing.T) {
	content := "sample_id\tsex\tage\nS001\tM\t12\nS002\tm\t14\nS003\tmale\t10\nS004\tF\t9\n"
	pathA := writeTemp(t, "a.tsv", content)

	run := func(path string) []byte {
		layer, _, err := testEngine().AnalyzeFile(context.Background(), path, nil)
		require.NoError(t, err)
		raw, err := layer.Marshal()
		require.NoError(t, err)
		return raw
	}

	first := run(pathA)
	second := run(pathA)
	assert.True(t, bytes.Equal(first, second),
		"same bytes, same config, same clock: layers must be byte-identical")
}

func TestSexScenarioEndToEnd(t *testing.T) {
	path := writeTemp(t, "cohort.csv",
		"sex\nM\nm\nmale\nMale\nF\nf\nFemale\nF\n")

	engine := testEngine()
	layer, table, err := engine.AnalyzeFile(context.Background(), path, nil)
	require.NoError(t, err)

	var caseObs *validation.Observation
	for i := range layer.Observations {
		if layer.Observations[i].Detector == "case_variant_validator" {
			caseObs = &layer.Observations[i]
		}
	}
	require.NotNil(t, caseObs, "expected a case-variant observation on sex")

	var std *suggestion.Suggestion
	for i := range layer.Suggestions {
		if layer.Suggestions[i].ObservationID == caseObs.ID &&
			layer.Suggestions[i].Action == suggestion.Standardize {
			std = &layer.Suggestions[i]
		}
	}
	require.NotNil(t, std, "expected a standardize suggestion")

	_, _, err = layer.Accept(std.ID, "user:test", "")
	require.NoError(t, err)

	curated, _, err := engine.Apply(layer, table)
	require.NoError(t, err)

	unique := map[string]bool{}
	col := curated.ColumnIndex("sex")
	for _, row := range curated.Rows() {
		unique[row[col]] = true
	}
	assert.Equal(t, map[string]bool{"male": true, "female": true}, unique)
}

func TestNullTokenScenario(t *testing.T) {
	path := writeTemp(t, "notes.csv",
		"id,notes\n1,fine\n2,NA\n3,N/A\n4,missing\n5,.\n6,\n7,ok\n")

	engine := testEngine()
	layer, table, err := engine.AnalyzeFile(context.Background(), path, nil)
	require.NoError(t, err)

	var missObs *validation.Observation
	for i := range layer.Observations {
		if layer.Observations[i].Type == validation.MissingPattern &&
			layer.Observations[i].Column == "notes" {
			missObs = &layer.Observations[i]
		}
	}
	require.NotNil(t, missObs)
	assert.Equal(t, 5, missObs.Evidence.Occurrences)

	_, _, err = layer.BatchAccept(curation.BatchFilter{Action: suggestion.ConvertNA}, "user")
	require.NoError(t, err)

	curated, _, err := engine.Apply(layer, table)
	require.NoError(t, err)

	col := curated.ColumnIndex("notes")
	for i, row := range curated.Rows() {
		v := row[col]
		if v != "" && v != "fine" && v != "ok" {
			t.Errorf("row %d: expected single null representation, got %q", i, v)
		}
	}
}

func TestOutlierScenarioWithContext(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("age\n")
	for i := 0; i < 99; i++ {
		buf.WriteString("10\n")
	}
	buf.WriteString("45.2\n")
	path := writeTemp(t, "ages.csv", buf.String())

	ctx := &curation.CurationContext{
		KnownColumns: map[string]curation.ColumnHint{
			"age": {ExpectedRange: &schema.Range{Min: 0, Max: 18}},
		},
	}

	layer, _, err := testEngine().AnalyzeFile(context.Background(), path, ctx)
	require.NoError(t, err)

	var outlier *validation.Observation
	for i := range layer.Observations {
		if layer.Observations[i].Type == validation.Outlier {
			outlier = &layer.Observations[i]
		}
	}
	require.NotNil(t, outlier)
	assert.Equal(t, validation.SeverityWarning, outlier.Severity)
	assert.Equal(t, 45.2, outlier.Evidence.Value)
	require.NotNil(t, outlier.Evidence.Row)
	assert.Equal(t, 99, *outlier.Evidence.Row)

	var flag *suggestion.Suggestion
	for i := range layer.Suggestions {
		if layer.Suggestions[i].ObservationID == outlier.ID {
			flag = &layer.Suggestions[i]
		}
	}
	require.NotNil(t, flag)
	assert.Equal(t, suggestion.Flag, flag.Action)
	assert.Equal(t, "out_of_expected_range", flag.Parameters["reason"])
}

func TestEmptyTableBoundary(t *testing.T) {
	path := writeTemp(t, "empty.csv", "sample_id,age,diagnosis\n")

	layer, _, err := testEngine().AnalyzeFile(context.Background(), path, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, len(layer.Schema.Columns), "schema keeps its columns")
	assert.Empty(t, layer.Observations, "no observations for an empty table")
	assert.Equal(t, 1.0, layer.Summary.DataQualityScore)
}

func TestApplyNeverWritesSource(t *testing.T) {
	content := "sex\nM\nm\nF\nf\n"
	path := writeTemp(t, "src.csv", content)

	engine := testEngine()
	layer, table, err := engine.AnalyzeFile(context.Background(), path, nil)
	require.NoError(t, err)

	_, _, err = layer.BatchAccept(curation.BatchFilter{}, "user")
	require.NoError(t, err)
	_, _, err = engine.Apply(layer, table)
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(after), "apply must never write the source path")
	assert.Equal(t, layer.Source.Hash, input.HashBytes(after))
}

func TestMockProviderDeterminism(t *testing.T) {
	content := "sample_id,score\nS001,5\nS002,7\nS003,9\n"
	path := writeTemp(t, "scored.csv", content)

	run := func() []byte {
		cfg := DefaultConfig()
		cfg.Clock = fixedClock()
		cfg.Provider = llm.NewMockProvider()
		cfg.Cache = llm.NewMemoryCache()
		layer, _, err := WithConfig(cfg).AnalyzeFile(context.Background(), path, nil)
		require.NoError(t, err)
		raw, err := layer.Marshal()
		require.NoError(t, err)
		return raw
	}

	assert.True(t, bytes.Equal(run(), run()),
		"identical runs with the deterministic mock must match")
}

func TestProviderFailureDegradesGracefully(t *testing.T) {
	path := writeTemp(t, "g.csv", "id,v\n1,2\n3,4\n")

	cfg := DefaultConfig()
	cfg.Clock = fixedClock()
	mock := llm.NewMockProvider()
	mock.Err = assert.AnError
	cfg.Provider = mock

	layer, _, err := WithConfig(cfg).AnalyzeFile(context.Background(), path, nil)
	require.NoError(t, err, "LLM failures must never fail analysis")

	for _, col := range layer.Schema.Columns {
		assert.Contains(t, col.InferenceSources, "llm_unavailable")
	}
}
