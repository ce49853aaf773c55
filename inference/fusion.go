package inference

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/ports"
	"github.com/shandley/crucible/schema"
)

// Inference source names recorded in ColumnSchema.InferenceSources.
const (
	SourceStatistical = "statistical"
	SourceSemantic    = "semantic"
	SourceContextual  = "contextual"
	SourceLLM         = "llm"
)

// DefaultSourceWeights weight each analyzer's vote during fusion. The
// contextual weight is nominal: a contextual value replaces rather than
// blends.
func DefaultSourceWeights() map[string]float64 {
	return map[string]float64{
		SourceContextual:  1.0,
		SourceStatistical: 0.6,
		SourceSemantic:    0.4,
		SourceLLM:         0.5,
	}
}

// FusionConfig controls the fusion stage.
type FusionConfig struct {
	SourceWeights       map[string]float64
	ConstraintThreshold float64
	Workers             int
}

// DefaultFusionConfig returns the standard configuration.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		SourceWeights:       DefaultSourceWeights(),
		ConstraintThreshold: 0.7,
		Workers:             4,
	}
}

// FusedInference bundles the analyzer outputs and the fused schema for one
// column.
type FusedInference struct {
	Statistical StatisticalAnalysis
	Semantic    SemanticAnalysis
	Contextual  ContextualAnalysis
	Schema      schema.ColumnSchema
}

// Fusion combines statistical, semantic and contextual analyses into a
// single table schema.
type Fusion struct {
	statistical *StatisticalAnalyzer
	semantic    *SemanticAnalyzer
	contextual  *ContextualAnalyzer
	config      FusionConfig
}

// NewFusion creates a fusion engine for the given context and config.
func NewFusion(ctx *curation.CurationContext, config FusionConfig) *Fusion {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.SourceWeights == nil {
		config.SourceWeights = DefaultSourceWeights()
	}
	if ctx != nil && len(ctx.Inference.SourceWeights) > 0 {
		for k, v := range ctx.Inference.SourceWeights {
			config.SourceWeights[k] = v
		}
	}
	contextual := NewContextualAnalyzer(ctx)
	return &Fusion{
		statistical: NewStatisticalAnalyzer().WithExtraNullTokens(contextual.ExtraNullTokens()),
		semantic:    NewSemanticAnalyzer(),
		contextual:  contextual,
		config:      config,
	}
}

// AnalyzeTable runs the per-column analyses in parallel (bounded by
// config.Workers) and joins results in original column order. Cancellation
// discards partial work.
func (f *Fusion) AnalyzeTable(ctx context.Context, provider ports.RowProvider) (*schema.TableSchema, error) {
	headers := provider.Headers()
	rows := provider.Rows()

	columns := make([]schema.ColumnSchema, len(headers))
	sem := semaphore.NewWeighted(int64(f.config.Workers))
	var wg sync.WaitGroup

	for i, name := range headers {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Cancelled("inference cancelled")
		}
		wg.Add(1)
		go func(idx int, colName string) {
			defer wg.Done()
			defer sem.Release(1)
			values := columnValues(rows, idx)
			fused := f.AnalyzeColumn(colName, idx, values)
			columns[idx] = fused.Schema
		}(i, name)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("inference cancelled")
	}

	table := &schema.TableSchema{Columns: columns}
	f.attachTableRules(table)
	return table, nil
}

// AnalyzeColumn runs all three analyzers on one column and fuses the result.
func (f *Fusion) AnalyzeColumn(name string, position int, values []string) FusedInference {
	statistical := f.statistical.AnalyzeColumn(name, values)
	semantic := f.semantic.AnalyzeColumn(name, values, f.statistical.isNull)
	contextual := f.contextual.AnalyzeColumn(name)

	fused := f.fuse(name, position, statistical, semantic, contextual)
	return FusedInference{
		Statistical: statistical,
		Semantic:    semantic,
		Contextual:  contextual,
		Schema:      fused,
	}
}

// fuse selects per-field winners. For each field, candidates carry (value,
// source, source confidence); a contextual candidate replaces everything
// else; otherwise the highest confidence×weight wins.
func (f *Fusion) fuse(
	name string,
	position int,
	statistical StatisticalAnalysis,
	semantic SemanticAnalysis,
	contextual ContextualAnalysis,
) schema.ColumnSchema {
	weights := f.config.SourceWeights

	sources := []string{SourceStatistical}
	if semantic.Confidence > 0.3 {
		sources = append(sources, SourceSemantic)
	}
	if contextual.Confidence > 0 {
		sources = append(sources, SourceContextual)
	}

	inferredType := statistical.InferredType
	semanticType := statistical.SemanticType

	// Role: contextual override wins outright, then the weighted vote
	// between the semantic prior and the uniqueness heuristic.
	role := schema.RoleUnknown
	roleScore := 0.0
	if semantic.SemanticRole != schema.RoleUnknown {
		role = semantic.SemanticRole
		roleScore = semantic.RoleConfidence * weights[SourceSemantic]
	}
	if statistical.Unique && !statistical.Nullable && statistical.Statistics.Count > 1 {
		if score := statistical.Confidence * weights[SourceStatistical]; score > roleScore {
			role = schema.RoleSampleID
			roleScore = score
		}
	}
	if contextual.Role != nil {
		role = *contextual.Role
	}

	// Contradiction rule: numeric-looking identifier columns are
	// identifiers, not measurements.
	if inferredType.IsNumeric() &&
		(semantic.SemanticRole == schema.RoleSampleID || contextual.IsIdentifier) &&
		statistical.Statistics.UniqueCount == statistical.Statistics.Count {
		inferredType = schema.TypeString
		semanticType = schema.SemanticIdentifier
	}
	if role == schema.RoleSampleID && statistical.Unique {
		semanticType = schema.SemanticIdentifier
	}

	expectedValues := statistical.ExpectedValues
	if len(contextual.ExpectedValues) > 0 {
		expectedValues = contextual.ExpectedValues
	}
	expectedRange := statistical.ExpectedRange
	if contextual.ExpectedRange != nil {
		expectedRange = contextual.ExpectedRange
	}

	constraints := f.mergeConstraints(statistical.Constraints, semantic.Constraints)
	if contextual.ExpectedRange != nil {
		min, max := contextual.ExpectedRange.Min, contextual.ExpectedRange.Max
		constraints = replaceConstraint(constraints, schema.Constraint{
			Kind:       schema.ConstraintRange,
			Min:        &min,
			Max:        &max,
			Confidence: 1.0,
		})
	}
	if len(contextual.ExpectedValues) > 0 {
		constraints = replaceConstraint(constraints, schema.Constraint{
			Kind:       schema.ConstraintSetMembership,
			Values:     contextual.ExpectedValues,
			Confidence: 1.0,
		})
	}

	confidence := f.fusedConfidence(statistical, semantic, contextual)

	return schema.ColumnSchema{
		Name:             name,
		Position:         position,
		InferredType:     inferredType,
		SemanticType:     semanticType,
		SemanticRole:     role,
		Nullable:         statistical.Nullable,
		Unique:           statistical.Unique || contextual.IsIdentifier,
		ExpectedValues:   expectedValues,
		ExpectedRange:    expectedRange,
		Constraints:      constraints,
		Statistics:       statistical.Statistics,
		Confidence:       confidence,
		InferenceSources: sources,
	}
}

// fusedConfidence is the weight-normalized sum over contributing sources.
func (f *Fusion) fusedConfidence(
	statistical StatisticalAnalysis,
	semantic SemanticAnalysis,
	contextual ContextualAnalysis,
) float64 {
	weights := f.config.SourceWeights
	if contextual.Confidence > 0 {
		return 1.0
	}
	sum := statistical.Confidence * weights[SourceStatistical]
	weight := weights[SourceStatistical]
	if semantic.Confidence > 0 {
		sum += semantic.Confidence * weights[SourceSemantic]
		weight += weights[SourceSemantic]
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// mergeConstraints deduplicates by kind; statistical constraints win ties.
func (f *Fusion) mergeConstraints(statistical, semantic []schema.Constraint) []schema.Constraint {
	var merged []schema.Constraint
	seen := map[schema.ConstraintKind]bool{}
	for _, group := range [][]schema.Constraint{statistical, semantic} {
		for _, c := range group {
			if c.Confidence < f.config.ConstraintThreshold {
				continue
			}
			if seen[c.Kind] {
				continue
			}
			seen[c.Kind] = true
			merged = append(merged, c)
		}
	}
	return merged
}

func replaceConstraint(constraints []schema.Constraint, replacement schema.Constraint) []schema.Constraint {
	for i := range constraints {
		if constraints[i].Kind == replacement.Kind {
			constraints[i] = replacement
			return constraints
		}
	}
	return append(constraints, replacement)
}

// attachTableRules derives row-level constraints and cross-column rules
// from the fused columns.
func (f *Fusion) attachTableRules(table *schema.TableSchema) {
	for i := range table.Columns {
		col := &table.Columns[i]
		if col.IsLikelyIdentifier() {
			table.RowConstraints = append(table.RowConstraints, schema.RowConstraint{
				Kind:       schema.RowConstraintUniqueIdentifier,
				Columns:    []string{col.Name},
				Confidence: 0.95,
			})
		}
	}

	// Date ordering pairs discovered from headers.
	datePairs := []struct {
		start, end  []string
		description string
	}{
		{[]string{"start_date", "start", "begin", "enrollment"}, []string{"end_date", "end", "finish", "completion"}, "start date precedes end date"},
		{[]string{"birth", "dob", "date_of_birth"}, []string{"death", "dod", "date_of_death"}, "birth date precedes death date"},
		{[]string{"admission", "admit"}, []string{"discharge"}, "admission precedes discharge"},
	}
	for _, pair := range datePairs {
		start := findColumnByPatterns(table, pair.start)
		end := findColumnByPatterns(table, pair.end)
		if start != nil && end != nil && start.Name != end.Name {
			table.CrossColumnRules = append(table.CrossColumnRules, schema.CrossColumnRule{
				Kind:        "date_order",
				Columns:     []string{start.Name, end.Name},
				Description: pair.description,
				Confidence:  0.85,
			})
		}
	}

	// Conditional presence: pregnancy implies a non-male sex value.
	sex := findColumnByPatterns(table, []string{"sex", "gender"})
	pregnant := findColumnByPatterns(table, []string{"pregnant", "pregnancy"})
	if sex != nil && pregnant != nil {
		table.CrossColumnRules = append(table.CrossColumnRules, schema.CrossColumnRule{
			Kind:        "conditional_presence",
			Columns:     []string{sex.Name, pregnant.Name},
			Description: "pregnancy is inconsistent with male sex",
			Condition:   "pregnant",
			Expectation: "sex != male",
			Confidence:  0.95,
		})
	}

	// Functional dependency: BMI derives from weight and height.
	bmi := findColumnByPatterns(table, []string{"bmi"})
	weight := findColumnByPatterns(table, []string{"weight", "wt"})
	height := findColumnByPatterns(table, []string{"height", "ht"})
	if bmi != nil && weight != nil && height != nil {
		table.CrossColumnRules = append(table.CrossColumnRules, schema.CrossColumnRule{
			Kind:        "functional_dependency",
			Columns:     []string{bmi.Name, weight.Name, height.Name},
			Description: "BMI should equal weight/height^2",
			Confidence:  0.7,
		})
	}
}

func findColumnByPatterns(table *schema.TableSchema, patterns []string) *schema.ColumnSchema {
	for i := range table.Columns {
		lower := strings.ToLower(table.Columns[i].Name)
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				return &table.Columns[i]
			}
		}
	}
	return nil
}

func columnValues(rows [][]string, index int) []string {
	values := make([]string, len(rows))
	for i, row := range rows {
		if index < len(row) {
			values[i] = row[index]
		}
	}
	return values
}
