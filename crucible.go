// Package crucible curates tabular datasets: it infers a per-column schema
// from the data, validates the data against that schema, proposes fixes,
// records user decisions in a persistent curation layer, and materializes a
// curated output by applying accepted decisions.
package crucible

import (
	"context"
	"time"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/inference"
	"github.com/shandley/crucible/internal"
	"github.com/shandley/crucible/ports"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/transform"
	"github.com/shandley/crucible/validation"
)

// Config assembles the engine's moving parts. The zero value plus
// DefaultConfig() gives a complete offline analysis; Provider and Cache are
// optional.
type Config struct {
	Reader     input.ReaderConfig
	Fusion     inference.FusionConfig
	Validation validation.Config
	Provider   ports.Provider
	Cache      ports.ResponseCache
	// LLM pacing for the augmentor.
	LLMCallTimeout time.Duration
	LLMTotalBudget time.Duration
	// Clock stamps analysis output; overridable for reproducible runs.
	Clock func() time.Time
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Reader:         input.DefaultReaderConfig(),
		Fusion:         inference.DefaultFusionConfig(),
		Validation:     validation.DefaultConfig(),
		LLMCallTimeout: 30 * time.Second,
		LLMTotalBudget: 2 * time.Minute,
		Clock:          time.Now,
	}
}

// Crucible is the analysis engine.
type Crucible struct {
	config Config
	log    *internal.Logger
}

// New creates an engine with the default configuration.
func New() *Crucible {
	return WithConfig(DefaultConfig())
}

// WithConfig creates an engine with a custom configuration.
func WithConfig(config Config) *Crucible {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Crucible{config: config, log: internal.DefaultLogger}
}

// AnalyzeFile parses a data file and analyzes it. The context hints may be
// nil.
func (c *Crucible) AnalyzeFile(ctx context.Context, path string, curationCtx *curation.CurationContext) (*curation.Layer, *input.DataTable, error) {
	table, meta, err := input.OpenTable(path)
	if err != nil {
		return nil, nil, err
	}
	layer, err := c.AnalyzeTable(ctx, table, meta, curationCtx)
	if err != nil {
		return nil, nil, err
	}
	return layer, table, nil
}

// AnalyzeTable runs inference, optional LLM augmentation, validation, and
// suggestion generation, returning the assembled curation layer.
func (c *Crucible) AnalyzeTable(ctx context.Context, table *input.DataTable, meta *input.SourceMetadata, curationCtx *curation.CurationContext) (*curation.Layer, error) {
	if curationCtx == nil {
		curationCtx = &curation.CurationContext{}
	}

	analyzedAt := c.config.Clock().UTC()
	meta.AnalyzedAt = analyzedAt

	// Inference: independent per-column analyses fused in column order.
	fusion := inference.NewFusion(curationCtx, c.config.Fusion)
	tableSchema, err := fusion.AnalyzeTable(ctx, table)
	if err != nil {
		return nil, err
	}

	// Optional LLM refinement, folded in at the fusion barrier.
	augmentor := inference.NewAugmentor(c.config.Provider, c.config.Cache,
		c.config.LLMCallTimeout, c.config.LLMTotalBudget)
	if augmentor.Enabled() {
		augmentor.RefineSchema(ctx, tableSchema, curationCtx)
	}

	// Validation.
	validationCfg := c.config.Validation
	validationCfg.Strict = curationCtx.Strict
	validationCfg.ExpectedSampleCount = curationCtx.ExpectedSampleCount
	validationCfg.ExtraNullTokens = curationCtx.NullTokensExtra

	engine := validation.NewEngine(c.config.Fusion.Workers)
	observations, err := engine.Validate(ctx, table, tableSchema, validationCfg)
	if err != nil {
		return nil, err
	}

	if augmentor.Enabled() {
		for i := range observations {
			observations[i].Explanation = augmentor.ExplainObservation(ctx, &observations[i], curationCtx)
		}
	}

	// Suggestions.
	suggestions := suggestion.NewEngine().Generate(observations, table, tableSchema)
	if augmentor.Enabled() {
		for i := range suggestions {
			s := &suggestions[i]
			column, _ := s.Parameters["column"].(string)
			if calibration, ok := augmentor.CalibrateSuggestion(ctx,
				string(s.Action), s.Rationale, column, s.Confidence, curationCtx); ok {
				s.Confidence = calibration.Confidence
				if calibration.Rationale != "" {
					s.Rationale = calibration.Rationale
				}
			}
		}
	}

	// Stamp analysis output with the run clock so identical inputs and
	// clocks produce byte-identical layers.
	for i := range observations {
		observations[i].DetectedAt = analyzedAt
	}
	for i := range suggestions {
		suggestions[i].SuggestedAt = analyzedAt
	}

	layer := curation.NewLayer(*meta, *curationCtx, *tableSchema, observations, suggestions)
	layer.CreatedAt = analyzedAt
	layer.UpdatedAt = analyzedAt

	if err := layer.ValidateIntegrity(); err != nil {
		return nil, err
	}
	return layer, nil
}

// Apply materializes the curated table for a layer. See transform.Engine.
func (c *Crucible) Apply(layer *curation.Layer, table *input.DataTable) (*input.DataTable, *transform.AuditLog, error) {
	return transform.NewEngine().Apply(layer, table)
}
