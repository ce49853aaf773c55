package ui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/validation"
)

func serverFixture(t *testing.T) (*Server, string) {
	t.Helper()

	obs := validation.NewObservation(
		validation.MissingPattern, validation.SeverityWarning, "status", "tokens",
		validation.Evidence{Occurrences: 2, Pattern: "null_tokens"}, 0.9,
		"missing_pattern_validator")
	sug := suggestion.NewSuggestion(obs.ID, suggestion.ConvertNA, "convert")
	sug.Parameters = map[string]interface{}{"column": "status"}

	meta := input.SourceMetadata{
		File: "d.tsv", Path: "d.tsv", Hash: "sha256:x",
		RowCount: 5, ColumnCount: 1,
		AnalyzedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	ts := schema.TableSchema{Columns: []schema.ColumnSchema{
		{Name: "status", Position: 0, InferredType: schema.TypeString},
	}}
	layer := curation.NewLayer(meta, curation.CurationContext{}, ts,
		[]validation.Observation{obs}, []suggestion.Suggestion{sug})

	return NewServer(layer, ""), sug.ID
}

func TestSummaryEndpoint(t *testing.T) {
	server, _ := serverFixture(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/summary")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var summary curation.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.TotalSuggestions != 1 {
		t.Errorf("expected 1 suggestion, got %d", summary.TotalSuggestions)
	}
}

func TestAcceptEndpoint(t *testing.T) {
	server, sugID := serverFixture(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Post(
		ts.URL+"/api/suggestions/"+sugID+"/accept",
		"application/json",
		strings.NewReader(`{"actor": "user:web"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var decoded decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Decision.Status != curation.StatusAccepted {
		t.Errorf("expected accepted, got %s", decoded.Decision.Status)
	}
	if decoded.Decision.DecidedBy != "user:web" {
		t.Errorf("expected actor recorded, got %q", decoded.Decision.DecidedBy)
	}
	if decoded.Summary.ByDecisionStatus.Accepted != 1 {
		t.Error("summary should reflect the new decision")
	}
}

func TestAcceptUnknownSuggestion(t *testing.T) {
	server, _ := serverFixture(t)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/suggestions/sug_nope/accept", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
