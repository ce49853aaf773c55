package suggestion

import (
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

// Action is the kind of fix a suggestion proposes.
type Action string

const (
	Standardize Action = "standardize"
	ConvertNA   Action = "convert_na"
	Coerce      Action = "coerce"
	ConvertDate Action = "convert_date"
	Flag        Action = "flag"
	Remove      Action = "remove"
	Merge       Action = "merge"
	Rename      Action = "rename"
	Split       Action = "split"
	Derive      Action = "derive"
)

// actionWeights favor reversible operations when computing priority.
var actionWeights = map[Action]float64{
	Standardize: 1.0,
	ConvertNA:   1.0,
	ConvertDate: 1.0,
	Rename:      1.0,
	Flag:        1.2,
	Coerce:      1.5,
	Merge:       2.0,
	Split:       2.0,
	Derive:      2.0,
	Remove:      3.0,
}

// reversibleActions can be undone from the audit trail alone.
var reversibleActions = map[Action]bool{
	Standardize: true,
	ConvertNA:   true,
	ConvertDate: true,
	Rename:      true,
	Flag:        true,
	Coerce:      true,
	Merge:       false,
	Split:       true,
	Derive:      true,
	Remove:      false,
}

// Reversible reports whether the action can be undone.
func (a Action) Reversible() bool { return reversibleActions[a] }

// Suggestion is a concrete proposed fix for exactly one observation.
// Suggestions are append-only: once created they are never mutated.
type Suggestion struct {
	ID            string                 `json:"id"`
	ObservationID string                 `json:"observation_id"`
	Action        Action                 `json:"action"`
	Priority      float64                `json:"priority"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	Rationale     string                 `json:"rationale"`
	AffectedRows  int                    `json:"affected_rows"`
	Confidence    float64                `json:"confidence"`
	Reversible    bool                   `json:"reversible"`
	SuggestedAt   time.Time              `json:"suggested_at"`
	Suggester     string                 `json:"suggester"`
}

// PriorityFor computes the ordering score: lower means more important.
// Error severity ranks 1, warning 2, info 3.
func PriorityFor(severityRank int, action Action, confidence float64) float64 {
	rank := 4 - severityRank // error(3) -> 1, warning(2) -> 2, info(1) -> 3
	weight, ok := actionWeights[action]
	if !ok {
		weight = 2.0
	}
	p := float64(rank) * weight / math.Max(confidence, 0.01)
	return math.Round(p*100) / 100
}

// NewSuggestion builds a suggestion with a deterministic id from its
// observation and action, so reruns produce identical ids.
func NewSuggestion(observationID string, action Action, rationale string) Suggestion {
	h := fnv.New64a()
	h.Write([]byte(observationID))
	h.Write([]byte{0})
	h.Write([]byte(action))
	return Suggestion{
		ID:            fmt.Sprintf("sug_%016x", h.Sum64()),
		ObservationID: observationID,
		Action:        action,
		Rationale:     rationale,
		Reversible:    action.Reversible(),
		SuggestedAt:   time.Now().UTC(),
		Suggester:     "rule_engine",
	}
}
