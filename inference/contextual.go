package inference

import (
	"strings"

	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/schema"
)

// ContextualAnalysis carries user-supplied overrides for one column. These
// are the highest-trust inputs: a non-nil field replaces whatever the other
// analyzers inferred.
type ContextualAnalysis struct {
	Role           *schema.SemanticRole
	ExpectedValues []string
	ExpectedRange  *schema.Range
	Description    string
	IsIdentifier   bool
	Confidence     float64
}

// ContextualAnalyzer turns curation context hints into per-column overrides.
type ContextualAnalyzer struct {
	context *curation.CurationContext
}

// NewContextualAnalyzer creates an analyzer over the given context. A nil
// context produces empty analyses.
func NewContextualAnalyzer(ctx *curation.CurationContext) *ContextualAnalyzer {
	return &ContextualAnalyzer{context: ctx}
}

// AnalyzeColumn resolves overrides for the named column.
func (a *ContextualAnalyzer) AnalyzeColumn(name string) ContextualAnalysis {
	var analysis ContextualAnalysis
	if a.context == nil {
		return analysis
	}

	if a.context.IdentifierColumn != "" && strings.EqualFold(a.context.IdentifierColumn, name) {
		role := schema.RoleSampleID
		analysis.Role = &role
		analysis.IsIdentifier = true
		analysis.Confidence = 1.0
	}

	if hint, ok := a.context.Hint(name); ok {
		analysis.Confidence = 1.0
		analysis.Description = hint.Description
		if len(hint.ExpectedValues) > 0 {
			analysis.ExpectedValues = append([]string(nil), hint.ExpectedValues...)
		}
		if hint.ExpectedRange != nil {
			r := *hint.ExpectedRange
			analysis.ExpectedRange = &r
		}
	}

	return analysis
}

// ExtraNullTokens returns any per-run null tokens from the context.
func (a *ContextualAnalyzer) ExtraNullTokens() []string {
	if a.context == nil {
		return nil
	}
	return a.context.NullTokensExtra
}
