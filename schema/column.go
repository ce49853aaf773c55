package schema

// NumericStatistics summarizes a numeric column.
type NumericStatistics struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// IQR returns the interquartile range.
func (n *NumericStatistics) IQR() float64 {
	return n.Q3 - n.Q1
}

// IsOutlierIQR reports whether value falls outside [q1-m*iqr, q3+m*iqr].
func (n *NumericStatistics) IsOutlierIQR(value, multiplier float64) bool {
	iqr := n.IQR()
	return value < n.Q1-multiplier*iqr || value > n.Q3+multiplier*iqr
}

// ZScore returns the standard score for value, or 0 when std is zero.
func (n *NumericStatistics) ZScore(value float64) float64 {
	if n.Std == 0 {
		return 0
	}
	return (value - n.Mean) / n.Std
}

// StringStatistics summarizes a string column.
type StringStatistics struct {
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// ColumnStatistics holds everything computed for a column during inference.
type ColumnStatistics struct {
	Count        int                `json:"count"`
	NullCount    int                `json:"null_count"`
	UniqueCount  int                `json:"unique_count"`
	SampleValues []string           `json:"sample_values,omitempty"`
	ValueCounts  map[string]int     `json:"value_counts,omitempty"`
	NullPatterns map[string]int     `json:"null_patterns,omitempty"`
	Numeric      *NumericStatistics `json:"numeric,omitempty"`
	String       *StringStatistics  `json:"string,omitempty"`
}

// ColumnSchema is the fused per-column schema.
type ColumnSchema struct {
	Name             string           `json:"name"`
	Position         int              `json:"position"`
	InferredType     ColumnType       `json:"inferred_type"`
	SemanticType     SemanticType     `json:"semantic_type"`
	SemanticRole     SemanticRole     `json:"semantic_role"`
	Nullable         bool             `json:"nullable"`
	Unique           bool             `json:"unique"`
	ExpectedValues   []string         `json:"expected_values,omitempty"`
	ExpectedRange    *Range           `json:"expected_range,omitempty"`
	Constraints      []Constraint     `json:"constraints,omitempty"`
	Statistics       ColumnStatistics `json:"statistics"`
	Confidence       float64          `json:"confidence"`
	InferenceSources []string         `json:"inference_sources,omitempty"`
	LLMInsight       string           `json:"llm_insight,omitempty"`
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NewColumnSchema creates an empty schema for a column at the given position.
func NewColumnSchema(name string, position int) *ColumnSchema {
	return &ColumnSchema{
		Name:         name,
		Position:     position,
		InferredType: TypeUnknown,
		SemanticType: SemanticUnknown,
		SemanticRole: RoleUnknown,
	}
}

// NullFraction returns the fraction of null cells, 0 for an empty column.
func (c *ColumnSchema) NullFraction() float64 {
	if c.Statistics.Count == 0 {
		return 0
	}
	return float64(c.Statistics.NullCount) / float64(c.Statistics.Count)
}

// IsLikelyIdentifier reports whether the column looks like a row identifier.
func (c *ColumnSchema) IsLikelyIdentifier() bool {
	return c.Unique && !c.Nullable && c.SemanticRole == RoleSampleID
}

// FindConstraint returns the first constraint of the given kind, or nil.
func (c *ColumnSchema) FindConstraint(kind ConstraintKind) *Constraint {
	for i := range c.Constraints {
		if c.Constraints[i].Kind == kind {
			return &c.Constraints[i]
		}
	}
	return nil
}
