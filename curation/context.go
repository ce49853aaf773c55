package curation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/schema"
)

// ColumnHint carries user knowledge about one column.
type ColumnHint struct {
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	ExpectedValues []string      `json:"expected_values,omitempty" yaml:"expected_values,omitempty"`
	ExpectedRange  *schema.Range `json:"expected_range,omitempty" yaml:"expected_range,omitempty"`
	Ontology       string        `json:"ontology,omitempty" yaml:"ontology,omitempty"`
}

// InferenceConfig tunes the fusion stage.
type InferenceConfig struct {
	ConfidenceThreshold float64            `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty"`
	LLMEnabled          bool               `json:"llm_enabled,omitempty" yaml:"llm_enabled,omitempty"`
	SourceWeights       map[string]float64 `json:"source_weights,omitempty" yaml:"source_weights,omitempty"`
}

// CurationContext is the user-supplied context for an analysis run. All
// fields are optional; an empty context runs a purely data-driven analysis.
type CurationContext struct {
	Domain              string                `json:"domain,omitempty" yaml:"domain,omitempty"`
	StudyName           string                `json:"study_name,omitempty" yaml:"study_name,omitempty"`
	ExpectedSampleCount int                   `json:"expected_sample_count,omitempty" yaml:"expected_sample_count,omitempty"`
	IdentifierColumn    string                `json:"identifier_column,omitempty" yaml:"identifier_column,omitempty"`
	KnownColumns        map[string]ColumnHint `json:"known_columns,omitempty" yaml:"known_columns,omitempty"`
	NullTokensExtra     []string              `json:"null_tokens_extra,omitempty" yaml:"null_tokens_extra,omitempty"`
	Strict              bool                  `json:"strict,omitempty" yaml:"strict,omitempty"`
	Inference           InferenceConfig       `json:"inference_config,omitempty" yaml:"inference_config,omitempty"`
	Custom              map[string]string     `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// IsEmpty reports whether no hints were provided.
func (c *CurationContext) IsEmpty() bool {
	return c.Domain == "" && c.StudyName == "" && c.ExpectedSampleCount == 0 &&
		c.IdentifierColumn == "" && len(c.KnownColumns) == 0 &&
		len(c.NullTokensExtra) == 0 && len(c.Custom) == 0
}

// Hint returns the hint for a column, matching case-insensitively.
func (c *CurationContext) Hint(column string) (ColumnHint, bool) {
	if hint, ok := c.KnownColumns[column]; ok {
		return hint, true
	}
	for name, hint := range c.KnownColumns {
		if strings.EqualFold(name, column) {
			return hint, true
		}
	}
	return ColumnHint{}, false
}

// PromptString renders the context for LLM prompts.
func (c *CurationContext) PromptString() string {
	var parts []string
	if c.StudyName != "" {
		parts = append(parts, "Study: "+c.StudyName)
	}
	if c.Domain != "" {
		parts = append(parts, "Domain: "+c.Domain)
	}
	if c.ExpectedSampleCount > 0 {
		parts = append(parts, fmt.Sprintf("Expected samples: %d", c.ExpectedSampleCount))
	}
	if c.IdentifierColumn != "" {
		parts = append(parts, "Identifier column: "+c.IdentifierColumn)
	}
	keys := make([]string, 0, len(c.Custom))
	for k := range c.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+c.Custom[k])
	}
	if len(parts) == 0 {
		return "No additional context provided."
	}
	return strings.Join(parts, "\n")
}

// LoadContext reads a context-hints file; .yaml/.yml parse as YAML,
// everything else as JSON.
func LoadContext(path string) (*CurationContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeInput, err),
			"read context file %s", path)
	}
	var ctx CurationContext
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &ctx); err != nil {
			return nil, errors.Wrap(errors.WithCode(errors.CodeInput, err), "parse context yaml")
		}
	default:
		if err := json.Unmarshal(raw, &ctx); err != nil {
			return nil, errors.Wrap(errors.WithCode(errors.CodeInput, err), "parse context json")
		}
	}
	return &ctx, nil
}
