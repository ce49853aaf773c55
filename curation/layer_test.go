package curation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/validation"
)

func testLayer(t *testing.T) *Layer {
	t.Helper()

	obs := validation.NewObservation(
		validation.MissingPattern,
		validation.SeverityWarning,
		"status",
		"textual missing tokens",
		validation.Evidence{Occurrences: 3, Pattern: "null_tokens"},
		0.9,
		"missing_pattern_validator",
	)

	sug := suggestion.NewSuggestion(obs.ID, suggestion.ConvertNA, "convert tokens to null")
	sug.Parameters = map[string]interface{}{"column": "status"}
	sug.AffectedRows = 3
	sug.Confidence = 0.9
	sug.Priority = 2.2

	meta := input.SourceMetadata{
		File:        "data.tsv",
		Path:        "data.tsv",
		Hash:        "sha256:abc",
		Format:      "tsv",
		Encoding:    "utf-8",
		RowCount:    10,
		ColumnCount: 1,
		AnalyzedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	ts := schema.TableSchema{Columns: []schema.ColumnSchema{
		{Name: "status", Position: 0, InferredType: schema.TypeString},
	}}

	return NewLayer(meta, CurationContext{}, ts,
		[]validation.Observation{obs}, []suggestion.Suggestion{sug})
}

func TestDecisionLifecycle(t *testing.T) {
	layer := testLayer(t)
	sugID := layer.Suggestions[0].ID

	decision, summary, err := layer.Accept(sugID, "user:test", "")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, decision.Status)
	assert.Equal(t, "user:test", decision.DecidedBy)
	assert.Equal(t, 1, summary.ByDecisionStatus.Accepted)
	assert.Equal(t, 0, summary.ByDecisionStatus.Pending)

	decision, summary, err = layer.Reset(sugID, "user:test")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, decision.Status)
	assert.Nil(t, decision.DecidedAt)
	assert.Equal(t, 1, summary.ByDecisionStatus.Pending)

	// Reset is a transition, not a deletion: the row survives.
	assert.Len(t, layer.Decisions, 1)

	decision, _, err = layer.Modify(sugID, "user:test",
		map[string]interface{}{"from_values": []interface{}{"unknown"}}, "narrowed")
	require.NoError(t, err)
	assert.Equal(t, StatusModified, decision.Status)
	assert.NotNil(t, decision.Modifications)
}

func TestRejectUnknownSuggestion(t *testing.T) {
	layer := testLayer(t)
	_, _, err := layer.Reject("sug_nope", "user", "no")
	assert.Error(t, err)
}

func TestBatchAccept(t *testing.T) {
	layer := testLayer(t)
	decided, summary, err := layer.BatchAccept(BatchFilter{}, "user:batch")
	require.NoError(t, err)
	assert.Len(t, decided, 1)
	assert.Equal(t, 1, summary.ByDecisionStatus.Accepted)

	// Already-decided suggestions are skipped on a second pass.
	decided, _, err = layer.BatchAccept(BatchFilter{}, "user:batch")
	require.NoError(t, err)
	assert.Empty(t, decided)
}

func TestMarkAppliedAndModifyAfterApply(t *testing.T) {
	layer := testLayer(t)
	sugID := layer.Suggestions[0].ID

	_, _, err := layer.Accept(sugID, "user", "")
	require.NoError(t, err)

	layer.MarkApplied([]string{sugID})
	assert.Equal(t, StatusApplied, layer.DecisionFor(sugID).Status)

	// Modifying after apply returns the decision to Modified.
	decision, _, err := layer.Modify(sugID, "user",
		map[string]interface{}{"column": "status"}, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusModified, decision.Status)
}

func TestSummaryRecomputedOnMutation(t *testing.T) {
	layer := testLayer(t)
	before := layer.UpdatedAt

	_, _, err := layer.Accept(layer.Suggestions[0].ID, "user", "")
	require.NoError(t, err)
	assert.False(t, layer.UpdatedAt.Before(before))
	assert.Equal(t, 1, layer.Summary.ByDecisionStatus.Accepted)
}

func TestIntegrityBrokenSuggestionRef(t *testing.T) {
	layer := testLayer(t)
	layer.Suggestions[0].ObservationID = "obs_missing"
	assert.Error(t, layer.ValidateIntegrity())
}

func TestIntegrityRowOutOfRange(t *testing.T) {
	layer := testLayer(t)
	layer.Observations[0].Evidence.SampleRows = []int{99}
	assert.Error(t, layer.ValidateIntegrity())
}

func TestQualityScoreEmptyTable(t *testing.T) {
	summary := ComputeSummary(&schema.TableSchema{}, nil, nil, nil)
	assert.Equal(t, 1.0, summary.DataQualityScore)
}

func TestMonotonicDecisionTimestamps(t *testing.T) {
	layer := testLayer(t)

	extra := suggestion.NewSuggestion(layer.Observations[0].ID, suggestion.Flag, "flag it")
	layer.Suggestions = append(layer.Suggestions, extra)

	_, _, err := layer.Accept(layer.Suggestions[0].ID, "user", "")
	require.NoError(t, err)
	_, _, err = layer.Accept(extra.ID, "user", "")
	require.NoError(t, err)

	first := layer.Decisions[0].DecidedAt
	second := layer.Decisions[1].DecidedAt
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.False(t, second.Before(*first))
}
