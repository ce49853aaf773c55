package curation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/validation"
)

// Version of the curation layer format.
const Version = "1.0.0"

// Layer is the durable curation document: source identity, inferred schema,
// observations, suggestions, and append-only decisions. All mutations are
// serialized behind a single writer lock and return the post-state.
type Layer struct {
	CrucibleVersion string                   `json:"crucible_version"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	Source          input.SourceMetadata     `json:"source"`
	Context         CurationContext          `json:"context"`
	Schema          schema.TableSchema       `json:"schema"`
	Observations    []validation.Observation `json:"observations"`
	Suggestions     []suggestion.Suggestion  `json:"suggestions"`
	Decisions       []Decision               `json:"decisions"`
	Summary         Summary                  `json:"summary"`

	// Stale is set when the source hash no longer matches the file on disk.
	// Apply refuses to run on a stale layer until acknowledged.
	Stale bool `json:"-"`

	// Extra preserves unknown top-level fields across load/save cycles.
	Extra map[string]json.RawMessage `json:"-"`

	mu sync.Mutex
}

// NewLayer assembles a layer from analysis results. Decisions start empty;
// they are created lazily when a suggestion is first decided.
func NewLayer(
	source input.SourceMetadata,
	context CurationContext,
	tableSchema schema.TableSchema,
	observations []validation.Observation,
	suggestions []suggestion.Suggestion,
) *Layer {
	if observations == nil {
		observations = []validation.Observation{}
	}
	if suggestions == nil {
		suggestions = []suggestion.Suggestion{}
	}
	now := time.Now().UTC()
	layer := &Layer{
		CrucibleVersion: Version,
		CreatedAt:       now,
		UpdatedAt:       now,
		Source:          source,
		Context:         context,
		Schema:          tableSchema,
		Observations:    observations,
		Suggestions:     suggestions,
		Decisions:       []Decision{},
	}
	layer.Summary = ComputeSummary(&layer.Schema, layer.Observations, layer.Suggestions, layer.Decisions)
	return layer
}

// Suggestion returns the suggestion with the given id, or nil.
func (l *Layer) Suggestion(id string) *suggestion.Suggestion {
	for i := range l.Suggestions {
		if l.Suggestions[i].ID == id {
			return &l.Suggestions[i]
		}
	}
	return nil
}

// Observation returns the observation with the given id, or nil.
func (l *Layer) Observation(id string) *validation.Observation {
	for i := range l.Observations {
		if l.Observations[i].ID == id {
			return &l.Observations[i]
		}
	}
	return nil
}

// DecisionFor returns the decision for a suggestion, or nil.
func (l *Layer) DecisionFor(suggestionID string) *Decision {
	for i := range l.Decisions {
		if l.Decisions[i].SuggestionID == suggestionID {
			return &l.Decisions[i]
		}
	}
	return nil
}

// PendingSuggestions returns suggestions without an approving or rejecting
// decision.
func (l *Layer) PendingSuggestions() []*suggestion.Suggestion {
	var pending []*suggestion.Suggestion
	for i := range l.Suggestions {
		d := l.DecisionFor(l.Suggestions[i].ID)
		if d == nil || d.Status == StatusPending {
			pending = append(pending, &l.Suggestions[i])
		}
	}
	return pending
}

// Accept approves a suggestion as-is and returns the post-state decision.
func (l *Layer) Accept(suggestionID, actor, notes string) (*Decision, *Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(suggestionID, StatusAccepted, actor, nil, notes)
}

// Reject declines a suggestion with an explanation.
func (l *Layer) Reject(suggestionID, actor, notes string) (*Decision, *Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(suggestionID, StatusRejected, actor, nil, notes)
}

// Modify approves a suggestion with overriding parameters. Modifying an
// already-applied decision returns it to Modified so it becomes eligible
// for re-apply.
func (l *Layer) Modify(suggestionID, actor string, params map[string]interface{}, notes string) (*Decision, *Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(suggestionID, StatusModified, actor, params, notes)
}

// Reset returns a decision to Pending. The decision row is retained.
func (l *Layer) Reset(suggestionID, actor string) (*Decision, *Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transition(suggestionID, StatusPending, actor, nil, "")
}

// BatchFilter selects suggestions for batch operations. Zero values match
// everything.
type BatchFilter struct {
	Column        string
	Action        suggestion.Action
	MaxPriority   float64
	MinConfidence float64
}

func (f BatchFilter) matches(s *suggestion.Suggestion) bool {
	if f.Column != "" {
		col, _ := s.Parameters["column"].(string)
		if !strings.EqualFold(col, f.Column) {
			return false
		}
	}
	if f.Action != "" && s.Action != f.Action {
		return false
	}
	if f.MaxPriority > 0 && s.Priority > f.MaxPriority {
		return false
	}
	if f.MinConfidence > 0 && s.Confidence < f.MinConfidence {
		return false
	}
	return true
}

// BatchAccept accepts every pending suggestion matching the filter.
func (l *Layer) BatchAccept(filter BatchFilter, actor string) ([]Decision, *Summary, error) {
	return l.batch(filter, StatusAccepted, actor, "")
}

// BatchReject rejects every pending suggestion matching the filter.
func (l *Layer) BatchReject(filter BatchFilter, actor, notes string) ([]Decision, *Summary, error) {
	return l.batch(filter, StatusRejected, actor, notes)
}

func (l *Layer) batch(filter BatchFilter, status DecisionStatus, actor, notes string) ([]Decision, *Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var decided []Decision
	for i := range l.Suggestions {
		s := &l.Suggestions[i]
		if !filter.matches(s) {
			continue
		}
		if d := l.DecisionFor(s.ID); d != nil && d.Status.IsDecided() {
			continue
		}
		d, _, err := l.transition(s.ID, status, actor, nil, notes)
		if err != nil {
			return nil, nil, err
		}
		decided = append(decided, *d)
	}
	summary := l.Summary
	return decided, &summary, nil
}

// MarkApplied transitions approved decisions to Applied after a successful
// transform.
func (l *Layer) MarkApplied(suggestionIDs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range suggestionIDs {
		if d := l.DecisionFor(id); d != nil && (d.Status == StatusAccepted || d.Status == StatusModified) {
			d.Status = StatusApplied
			d.DecidedAt = &now
		}
	}
	l.touch()
}

// AcknowledgeStale clears the stale flag after the user confirms the source
// change is intentional.
func (l *Layer) AcknowledgeStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Stale = false
}

// transition moves a decision (creating it on first touch) and recomputes
// the summary. Timestamps are non-decreasing in insertion order.
func (l *Layer) transition(
	suggestionID string,
	status DecisionStatus,
	actor string,
	params map[string]interface{},
	notes string,
) (*Decision, *Summary, error) {
	if l.Suggestion(suggestionID) == nil {
		return nil, nil, errors.NotFound(fmt.Sprintf("suggestion '%s'", suggestionID))
	}

	d := l.DecisionFor(suggestionID)
	if d == nil {
		l.Decisions = append(l.Decisions, Decision{
			ID:           fmt.Sprintf("dec_%03d", len(l.Decisions)+1),
			SuggestionID: suggestionID,
			Status:       StatusPending,
		})
		d = &l.Decisions[len(l.Decisions)-1]
	}

	now := time.Now().UTC()
	d.Status = status
	if status == StatusPending {
		// Reset keeps the row but clears the verdict details.
		d.DecidedAt = nil
		d.Modifications = nil
		d.Notes = ""
		d.DecidedBy = actor
	} else {
		d.DecidedAt = &now
		d.DecidedBy = actor
		if params != nil {
			d.Modifications = params
		}
		if notes != "" {
			d.Notes = notes
		}
	}

	l.touch()
	result := *d
	summary := l.Summary
	return &result, &summary, nil
}

func (l *Layer) touch() {
	l.UpdatedAt = time.Now().UTC()
	l.Summary = ComputeSummary(&l.Schema, l.Observations, l.Suggestions, l.Decisions)
}

// ValidateIntegrity checks referential integrity: suggestions reference
// existing observations, decisions reference existing suggestions, ids are
// unique, and evidence row indices are in range.
func (l *Layer) ValidateIntegrity() error {
	obsIDs := map[string]struct{}{}
	for i := range l.Observations {
		id := l.Observations[i].ID
		if _, dup := obsIDs[id]; dup {
			return errors.LayerIntegrity(fmt.Sprintf("duplicate observation id '%s'", id))
		}
		obsIDs[id] = struct{}{}
		for _, row := range l.Observations[i].Evidence.SampleRows {
			if row < 0 || row >= l.Source.RowCount {
				return errors.LayerIntegrity(fmt.Sprintf(
					"observation '%s' references row %d outside [0, %d)", id, row, l.Source.RowCount))
			}
		}
		if !l.Schema.HasColumn(l.Observations[i].Column) {
			return errors.LayerIntegrity(fmt.Sprintf(
				"observation '%s' references unknown column '%s'", id, l.Observations[i].Column))
		}
	}

	sugIDs := map[string]struct{}{}
	for i := range l.Suggestions {
		s := &l.Suggestions[i]
		if _, dup := sugIDs[s.ID]; dup {
			return errors.LayerIntegrity(fmt.Sprintf("duplicate suggestion id '%s'", s.ID))
		}
		sugIDs[s.ID] = struct{}{}
		if _, ok := obsIDs[s.ObservationID]; !ok {
			return errors.LayerIntegrity(fmt.Sprintf(
				"suggestion '%s' references unknown observation '%s'", s.ID, s.ObservationID))
		}
	}

	decIDs := map[string]struct{}{}
	for i := range l.Decisions {
		d := &l.Decisions[i]
		if _, dup := decIDs[d.ID]; dup {
			return errors.LayerIntegrity(fmt.Sprintf("duplicate decision id '%s'", d.ID))
		}
		decIDs[d.ID] = struct{}{}
		if _, ok := sugIDs[d.SuggestionID]; !ok {
			return errors.LayerIntegrity(fmt.Sprintf(
				"decision '%s' references unknown suggestion '%s'", d.ID, d.SuggestionID))
		}
	}

	return nil
}
