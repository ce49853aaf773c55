package validation

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ObservationType tags the kind of issue detected.
type ObservationType string

const (
	MissingPattern      ObservationType = "missing_pattern"
	Inconsistency       ObservationType = "inconsistency"
	Outlier             ObservationType = "outlier"
	Duplicate           ObservationType = "duplicate"
	TypeMismatch        ObservationType = "type_mismatch"
	ConstraintViolation ObservationType = "constraint_violation"
	Completeness        ObservationType = "completeness"
	Cardinality         ObservationType = "cardinality"
	CrossColumn         ObservationType = "cross_column"
)

// Severity level of an observation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rank orders severities: info < warning < error.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Evidence supports an observation. The populated fields determine the
// shape: a value-counts map, a row-index list, a value+row singleton, an
// expected-vs-actual pair, or a combination. It always permits re-deriving
// the finding.
type Evidence struct {
	Value       interface{} `json:"value,omitempty"`
	Row         *int        `json:"row,omitempty"`
	Pattern     string      `json:"pattern,omitempty"`
	Occurrences int         `json:"occurrences,omitempty"`
	Percentage  float64     `json:"percentage,omitempty"`
	SampleRows  []int       `json:"sample_rows,omitempty"`
	Expected    interface{} `json:"expected,omitempty"`
	ValueCounts interface{} `json:"value_counts,omitempty"`
	ZScore      *float64    `json:"z_score,omitempty"`
}

// Key returns the canonical evidence key used for deterministic ids and
// result ordering: the first non-empty of pattern, sorted value-count keys,
// sample rows, expected.
func (e *Evidence) Key() string {
	if e.Pattern != "" {
		return e.Pattern
	}
	if counts, ok := e.ValueCounts.(map[string]map[string]int); ok && len(counts) > 0 {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return strings.Join(keys, ",")
	}
	if counts, ok := e.ValueCounts.(map[string]int); ok && len(counts) > 0 {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return strings.Join(keys, ",")
	}
	if len(e.SampleRows) > 0 {
		rows := make([]string, len(e.SampleRows))
		for i, r := range e.SampleRows {
			rows[i] = strconv.Itoa(r)
		}
		return strings.Join(rows, ",")
	}
	if e.Expected != nil {
		return fmt.Sprintf("%v", e.Expected)
	}
	return ""
}

// Observation is a machine-detected fact about data quality. Observations
// are append-only: once created they are never mutated.
type Observation struct {
	ID          string          `json:"id"`
	Type        ObservationType `json:"type"`
	Severity    Severity        `json:"severity"`
	Column      string          `json:"column"`
	Columns     []string        `json:"columns,omitempty"`
	Description string          `json:"description"`
	Evidence    Evidence        `json:"evidence"`
	Confidence  float64         `json:"confidence"`
	Detector    string          `json:"detector"`
	DetectedAt  time.Time       `json:"detected_at"`
	Explanation string          `json:"llm_explanation,omitempty"`
}

// NewObservation builds an observation with a deterministic id derived from
// (detector, column, evidence key) so reruns produce identical ids.
func NewObservation(
	obsType ObservationType,
	severity Severity,
	column string,
	description string,
	evidence Evidence,
	confidence float64,
	detector string,
) Observation {
	return Observation{
		ID:          deterministicID("obs", detector, column, evidence.Key()),
		Type:        obsType,
		Severity:    severity,
		Column:      column,
		Description: description,
		Evidence:    evidence,
		Confidence:  confidence,
		Detector:    detector,
		DetectedAt:  time.Now().UTC(),
	}
}

// deterministicID renders a 64-bit fnv hash of the parts in base-16.
func deterministicID(prefix string, parts ...string) string {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%s_%016x", prefix, h.Sum64())
}
