package inference

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/internal"
	"github.com/shandley/crucible/ports"
	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/validation"
)

// ProvenanceLLMUnavailable marks a column whose LLM refinement was skipped
// or failed. Analysis continues in degraded mode.
const ProvenanceLLMUnavailable = "llm_unavailable"

// SchemaRefinement is the strictly-shaped response to a refinement prompt.
type SchemaRefinement struct {
	Insight       string  `json:"insight"`
	SuggestedRole string  `json:"suggested_role"`
	Confidence    float64 `json:"confidence"`
}

// RationaleCalibration is the response to a confidence-calibration prompt.
type RationaleCalibration struct {
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Augmentor layers optional LLM refinement over fused schemas. A nil
// provider disables augmentation silently; failures never fail analysis.
type Augmentor struct {
	provider    ports.Provider
	cache       ports.ResponseCache
	callTimeout time.Duration
	totalBudget time.Duration
	deadline    time.Time
	log         *internal.Logger
}

// NewAugmentor creates an augmentor. provider and cache may be nil.
func NewAugmentor(provider ports.Provider, cache ports.ResponseCache, callTimeout, totalBudget time.Duration) *Augmentor {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if totalBudget <= 0 {
		totalBudget = 2 * time.Minute
	}
	return &Augmentor{
		provider:    provider,
		cache:       cache,
		callTimeout: callTimeout,
		totalBudget: totalBudget,
		log:         internal.DefaultLogger,
	}
}

// Enabled reports whether a provider is configured.
func (a *Augmentor) Enabled() bool {
	return a != nil && a.provider != nil
}

// RefineSchema issues at most one call per column and folds accepted
// refinements into the table. Exhausted budget or failed calls leave the
// llm_unavailable provenance marker on the affected column.
func (a *Augmentor) RefineSchema(ctx context.Context, table *schema.TableSchema, curationCtx *curation.CurationContext) {
	if !a.Enabled() {
		return
	}
	a.deadline = time.Now().Add(a.totalBudget)

	for i := range table.Columns {
		if err := ctx.Err(); err != nil {
			return
		}
		col := &table.Columns[i]

		var refinement SchemaRefinement
		prompt := SchemaRefinementPrompt(col, col.Statistics.SampleValues, curationCtx)
		if err := a.completeJSON(ctx, prompt, &refinement); err != nil {
			a.log.Warn("llm refinement skipped for column %s: %v", col.Name, err)
			col.InferenceSources = append(col.InferenceSources, ProvenanceLLMUnavailable)
			continue
		}

		col.LLMInsight = refinement.Insight
		col.InferenceSources = append(col.InferenceSources, SourceLLM)

		// A confident refinement can override a weakly-fused role.
		if refinement.SuggestedRole != "" {
			role := schema.SemanticRole(refinement.SuggestedRole)
			if validRole(role) && refinement.Confidence*DefaultSourceWeights()[SourceLLM] > col.Confidence {
				col.SemanticRole = role
			}
		}
	}
}

// ExplainObservation returns a plain-language explanation, or "" on any
// failure.
func (a *Augmentor) ExplainObservation(ctx context.Context, obs *validation.Observation, curationCtx *curation.CurationContext) string {
	if !a.Enabled() {
		return ""
	}
	text, err := a.complete(ctx, ObservationExplanationPrompt(obs, curationCtx))
	if err != nil {
		a.log.Warn("llm explanation skipped for %s: %v", obs.ID, err)
		return ""
	}
	return text
}

// CalibrateSuggestion returns an adjusted confidence and rationale for a
// proposed fix, or ok=false when augmentation is unavailable.
func (a *Augmentor) CalibrateSuggestion(ctx context.Context, action, rationale, column string, confidence float64, curationCtx *curation.CurationContext) (RationaleCalibration, bool) {
	if !a.Enabled() {
		return RationaleCalibration{}, false
	}
	var calibration RationaleCalibration
	prompt := RationaleCalibrationPrompt(action, rationale, column, confidence, curationCtx)
	if err := a.completeJSON(ctx, prompt, &calibration); err != nil {
		a.log.Warn("llm calibration skipped for column %s: %v", column, err)
		return RationaleCalibration{}, false
	}
	if calibration.Confidence < 0 || calibration.Confidence > 1 {
		return RationaleCalibration{}, false
	}
	return calibration, true
}

func (a *Augmentor) complete(ctx context.Context, prompt string) (string, error) {
	key := promptHash(prompt)
	if a.cache != nil {
		if cached, ok := a.cache.Get(key, a.provider.Model()); ok {
			return cached, nil
		}
	}
	if time.Now().After(a.deadline) && !a.deadline.IsZero() {
		return "", fmt.Errorf("augmentation budget exhausted")
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	text, err := a.provider.Complete(callCtx, prompt)
	if err != nil {
		return "", err
	}
	if a.cache != nil {
		if err := a.cache.Put(key, a.provider.Model(), text); err != nil {
			a.log.Debug("llm cache write failed: %v", err)
		}
	}
	return text, nil
}

func (a *Augmentor) completeJSON(ctx context.Context, prompt string, out interface{}) error {
	text, err := a.complete(ctx, prompt)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(text), out)
}

func promptHash(prompt string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(prompt)))
}

func validRole(role schema.SemanticRole) bool {
	switch role {
	case schema.RoleSampleID, schema.RoleGroupingVar, schema.RoleCovariate,
		schema.RoleOutcome, schema.RoleTechnical, schema.RoleAdministrative:
		return true
	}
	return false
}
