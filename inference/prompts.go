package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/validation"
)

// SystemPrompt frames every Crucible LLM interaction.
const SystemPrompt = `You are a data quality expert assisting Crucible, a dataset curation tool.

Your role is to:
1. Analyze tabular data columns and provide semantic insights
2. Explain data quality issues in clear, actionable language
3. Calibrate confidence for proposed fixes

Guidelines:
- Be concise and specific
- Reference actual data values when explaining issues
- Consider domain context when making suggestions
- When uncertain, recommend flagging for human review rather than automatic fixes
- Always respond with valid JSON when requested`

// SchemaRefinementPrompt asks for insight and an optional role correction
// for a fused column schema.
func SchemaRefinementPrompt(col *schema.ColumnSchema, samples []string, ctx *curation.CurationContext) string {
	sampleStr := "No samples available"
	if len(samples) > 0 {
		shown := samples
		if len(shown) > 10 {
			shown = shown[:10]
		}
		quoted := make([]string, len(shown))
		for i, s := range shown {
			quoted[i] = fmt.Sprintf("  - %q", s)
		}
		sampleStr = strings.Join(quoted, "\n")
	}

	statsStr := fmt.Sprintf("Cardinality: %d unique values out of %d total",
		col.Statistics.UniqueCount, col.Statistics.Count)
	if col.Statistics.Numeric != nil {
		n := col.Statistics.Numeric
		statsStr = fmt.Sprintf("Numeric stats: min=%.2f, max=%.2f, mean=%.2f, median=%.2f",
			n.Min, n.Max, n.Mean, n.Median)
	}

	return fmt.Sprintf(`Analyze this column from a tabular dataset and provide insights.

## Column Information
- Name: %s
- Inferred type: %s
- Inferred semantic role: %s
- Nullable: %t
- Unique: %t
- %s

## Sample Values
%s

## Context
%s

## Task
Provide a concise insight (1-2 sentences) about what this column likely
represents. If the semantic role seems incorrect, suggest a better one from:
sample_id, grouping_var, covariate, outcome, technical, administrative.

Respond with a JSON object:
{
  "insight": "...",
  "suggested_role": null or "sample_id|grouping_var|covariate|outcome|technical|administrative",
  "confidence": 0.0-1.0
}`,
		col.Name, col.InferredType, col.SemanticRole, col.Nullable, col.Unique,
		statsStr, sampleStr, contextPrompt(ctx))
}

// ObservationExplanationPrompt asks for a plain-language explanation of a
// detected issue.
func ObservationExplanationPrompt(obs *validation.Observation, ctx *curation.CurationContext) string {
	evidence, err := json.MarshalIndent(obs.Evidence, "", "  ")
	if err != nil {
		evidence = []byte("unable to serialize evidence")
	}
	return fmt.Sprintf(`Explain this data quality issue in clear, actionable language.

## Issue Details
- Type: %s
- Severity: %s
- Column: %s
- Description: %s

## Evidence
%s

## Context
%s

## Task
Provide a clear, 2-3 sentence explanation covering what the problem is, why
it might have occurred, and the impact if not addressed. Write for a data
analyst deciding whether to fix this issue.`,
		obs.Type, obs.Severity, obs.Column, obs.Description, evidence, contextPrompt(ctx))
}

// RationaleCalibrationPrompt asks for a calibrated confidence and rationale
// for a proposed fix.
func RationaleCalibrationPrompt(action, rationale, column string, confidence float64, ctx *curation.CurationContext) string {
	return fmt.Sprintf(`Calibrate the confidence of this proposed data fix.

## Proposed Fix
- Action: %s
- Column: %s
- Current rationale: %s
- Current confidence: %.2f

## Context
%s

## Task
Consider domain-specific factors that make this fix more or less safe.
Respond with a JSON object:
{
  "confidence": 0.0-1.0,
  "rationale": "One or two sentences justifying the calibration"
}`,
		action, column, rationale, confidence, contextPrompt(ctx))
}

func contextPrompt(ctx *curation.CurationContext) string {
	if ctx == nil {
		return "No additional context provided."
	}
	return ctx.PromptString()
}
