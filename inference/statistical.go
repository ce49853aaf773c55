package inference

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/schema"
)

// maxOutlierRows caps the number of outlier row indices reported per column.
const maxOutlierRows = 50

// StatisticalAnalysis is the per-column statistical profile.
type StatisticalAnalysis struct {
	InferredType   schema.ColumnType
	SemanticType   schema.SemanticType
	Nullable       bool
	Unique         bool
	ExpectedValues []string
	ExpectedRange  *schema.Range
	Constraints    []schema.Constraint
	Statistics     schema.ColumnStatistics
	Confidence     float64
	Outliers       []int
}

// StatisticalAnalyzer infers type and distribution from column values.
type StatisticalAnalyzer struct {
	// Columns with at most this many unique values are treated as categorical.
	categoricalThreshold int
	// Value counts are retained when unique count is at most this cap or at
	// most 5% of the row count.
	valueCountCap int
	// Fraction of non-null cells that must parse for a type guess to win.
	typeThreshold float64
	iqrMultiplier float64
	zThreshold    float64
	// Above this many numeric values the quartiles are computed on a seeded
	// reservoir sample; mean/std stay exact via a single streaming pass.
	sampleThreshold int
	extraNullTokens map[string]struct{}
}

// NewStatisticalAnalyzer creates an analyzer with default settings.
func NewStatisticalAnalyzer() *StatisticalAnalyzer {
	return &StatisticalAnalyzer{
		categoricalThreshold: 20,
		valueCountCap:        256,
		typeThreshold:        0.95,
		iqrMultiplier:        1.5,
		zThreshold:           4.0,
		sampleThreshold:      100_000,
	}
}

// WithExtraNullTokens registers additional null tokens from context hints.
func (a *StatisticalAnalyzer) WithExtraNullTokens(tokens []string) *StatisticalAnalyzer {
	if len(tokens) == 0 {
		return a
	}
	a.extraNullTokens = make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		a.extraNullTokens[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return a
}

// AnalyzeColumn profiles one column. Iteration follows row order so the
// result is byte-identical across runs.
func (a *StatisticalAnalyzer) AnalyzeColumn(name string, values []string) StatisticalAnalysis {
	totalCount := len(values)

	nullCount := 0
	nullPatterns := map[string]int{}
	var nonNull []string
	for _, v := range values {
		if a.isNull(v) {
			nullCount++
			nullPatterns[strings.TrimSpace(v)]++
			continue
		}
		nonNull = append(nonNull, v)
	}
	nullable := nullCount > 0

	// Exact cardinality; first-seen order for sample values.
	valueCounts := map[string]int{}
	var firstSeen []string
	for _, v := range nonNull {
		trimmed := strings.TrimSpace(v)
		if valueCounts[trimmed] == 0 {
			firstSeen = append(firstSeen, trimmed)
		}
		valueCounts[trimmed]++
	}
	uniqueCount := len(valueCounts)
	unique := uniqueCount == len(nonNull) && len(nonNull) > 0

	inferredType, typeConfidence := a.inferType(nonNull)

	numeric, stringStats := a.computeStatistics(name, nonNull, inferredType)
	outliers := a.detectOutliers(values, numeric)

	semanticType := a.inferSemanticType(inferredType, uniqueCount, len(nonNull), numeric)
	if totalCount > 0 && nullCount == totalCount {
		inferredType = schema.TypeString
		semanticType = schema.SemanticMissing
		typeConfidence = 1.0
	}

	var constraints []schema.Constraint
	var expectedValues []string
	if semanticType == schema.SemanticCategorical && uniqueCount <= a.categoricalThreshold {
		expectedValues = append(expectedValues, firstSeen...)
		constraints = append(constraints, schema.Constraint{
			Kind:       schema.ConstraintSetMembership,
			Values:     expectedValues,
			Confidence: 0.9,
		})
	}
	var expectedRange *schema.Range
	if numeric != nil {
		min, max := numeric.Min, numeric.Max
		expectedRange = &schema.Range{Min: min, Max: max}
		constraints = append(constraints, schema.Constraint{
			Kind:       schema.ConstraintRange,
			Min:        &min,
			Max:        &max,
			Confidence: 0.85,
		})
	}
	if unique {
		constraints = append(constraints, schema.Constraint{Kind: schema.ConstraintUnique, Confidence: 0.95})
	}
	if !nullable && totalCount > 0 {
		constraints = append(constraints, schema.Constraint{Kind: schema.ConstraintNotNull, Confidence: 0.9})
	}

	sampleValues := firstSeen
	if len(sampleValues) > 5 {
		sampleValues = sampleValues[:5]
	}

	statistics := schema.ColumnStatistics{
		Count:        totalCount,
		NullCount:    nullCount,
		UniqueCount:  uniqueCount,
		SampleValues: append([]string(nil), sampleValues...),
		Numeric:      numeric,
		String:       stringStats,
	}
	if len(nullPatterns) > 0 {
		statistics.NullPatterns = nullPatterns
	}
	if uniqueCount <= a.valueCountCap || (totalCount > 0 && uniqueCount*20 <= totalCount) {
		statistics.ValueCounts = valueCounts
	}

	return StatisticalAnalysis{
		InferredType:   inferredType,
		SemanticType:   semanticType,
		Nullable:       nullable,
		Unique:         unique,
		ExpectedValues: expectedValues,
		ExpectedRange:  expectedRange,
		Constraints:    constraints,
		Statistics:     statistics,
		Confidence:     typeConfidence,
		Outliers:       outliers,
	}
}

func (a *StatisticalAnalyzer) isNull(v string) bool {
	if a.extraNullTokens != nil {
		return input.IsNullValueWith(v, a.extraNullTokens)
	}
	return input.IsNullValue(v)
}

// inferType tries each type in order and returns the first whose parse rate
// clears the threshold. Failing all, the column is a string.
func (a *StatisticalAnalyzer) inferType(nonNull []string) (schema.ColumnType, float64) {
	if len(nonNull) == 0 {
		return schema.TypeUnknown, 0
	}

	candidates := []struct {
		columnType schema.ColumnType
		parse      func(string) bool
	}{
		{schema.TypeBoolean, parsesBoolean},
		{schema.TypeInteger, parsesInteger},
		{schema.TypeFloat, parsesFloat},
		{schema.TypeDate, parsesDate},
		{schema.TypeDateTime, parsesDateTime},
	}

	total := float64(len(nonNull))
	for _, c := range candidates {
		matched := 0
		for _, v := range nonNull {
			if c.parse(strings.TrimSpace(v)) {
				matched++
			}
		}
		rate := float64(matched) / total
		if rate >= a.typeThreshold {
			return c.columnType, rate
		}
	}
	return schema.TypeString, 1.0
}

func parsesBoolean(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no", "y", "n", "1", "0":
		return true
	}
	return false
}

func parsesInteger(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

func parsesFloat(v string) bool {
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

// computeStatistics builds numeric or string statistics for the column. For
// large numeric columns quartiles come from a reservoir sample seeded from
// the column name; mean and std are always exact (Welford one-pass).
func (a *StatisticalAnalyzer) computeStatistics(
	name string,
	nonNull []string,
	columnType schema.ColumnType,
) (*schema.NumericStatistics, *schema.StringStatistics) {
	switch columnType {
	case schema.TypeInteger, schema.TypeFloat:
		var numbers []float64
		for _, v := range nonNull {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				numbers = append(numbers, f)
			}
		}
		if len(numbers) == 0 {
			return nil, nil
		}
		return a.numericStats(name, numbers), nil
	case schema.TypeString:
		if len(nonNull) == 0 {
			return nil, nil
		}
		minLen, maxLen, sum := len(nonNull[0]), len(nonNull[0]), 0
		for _, v := range nonNull {
			n := len(v)
			if n < minLen {
				minLen = n
			}
			if n > maxLen {
				maxLen = n
			}
			sum += n
		}
		return nil, &schema.StringStatistics{
			MinLength: minLen,
			MaxLength: maxLen,
			AvgLength: float64(sum) / float64(len(nonNull)),
		}
	default:
		return nil, nil
	}
}

func (a *StatisticalAnalyzer) numericStats(name string, numbers []float64) *schema.NumericStatistics {
	min, max := numbers[0], numbers[0]
	mean, m2 := 0.0, 0.0
	for i, x := range numbers {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	std := math.Sqrt(m2 / float64(len(numbers)))

	quantileSource := numbers
	if len(numbers) > a.sampleThreshold {
		quantileSource = reservoirSample(numbers, a.sampleThreshold, seedFor(name))
	}

	median, _ := stats.Median(quantileSource)
	q1, err := stats.Percentile(quantileSource, 25)
	if err != nil {
		// Too few values for a 25th-percentile rank: fall back to the minimum.
		q1 = min
	}
	q3, err := stats.Percentile(quantileSource, 75)
	if err != nil {
		q3 = max
	}

	return &schema.NumericStatistics{
		Min:    min,
		Max:    max,
		Mean:   mean,
		Std:    std,
		Median: median,
		Q1:     q1,
		Q3:     q3,
	}
}

// reservoirSample picks k values with a deterministic seed, then sorts for
// stable quantile input.
func reservoirSample(values []float64, k int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	sample := make([]float64, k)
	copy(sample, values[:k])
	for i := k; i < len(values); i++ {
		j := rng.Intn(i + 1)
		if j < k {
			sample[j] = values[i]
		}
	}
	sort.Float64s(sample)
	return sample
}

func seedFor(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// detectOutliers flags values that are both IQR outliers and have |z| over
// the threshold. Indices are row positions in the original data, capped at
// maxOutlierRows.
func (a *StatisticalAnalyzer) detectOutliers(values []string, numeric *schema.NumericStatistics) []int {
	if numeric == nil {
		return nil
	}
	var outliers []int
	for i, v := range values {
		if a.isNull(v) {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		if numeric.IsOutlierIQR(f, a.iqrMultiplier) && math.Abs(numeric.ZScore(f)) >= a.zThreshold {
			outliers = append(outliers, i)
			if len(outliers) >= maxOutlierRows {
				break
			}
		}
	}
	return outliers
}

func (a *StatisticalAnalyzer) inferSemanticType(
	columnType schema.ColumnType,
	uniqueCount, nonNullCount int,
	numeric *schema.NumericStatistics,
) schema.SemanticType {
	switch columnType {
	case schema.TypeBoolean:
		return schema.SemanticCategorical
	case schema.TypeInteger, schema.TypeFloat:
		return schema.SemanticContinuous
	case schema.TypeDate, schema.TypeDateTime:
		return schema.SemanticContinuous
	case schema.TypeString:
		if nonNullCount == 0 {
			return schema.SemanticMissing
		}
		if uniqueCount == nonNullCount && nonNullCount > 1 {
			return schema.SemanticIdentifier
		}
		if uniqueCount <= a.categoricalThreshold {
			return schema.SemanticCategorical
		}
		return schema.SemanticFreeText
	default:
		return schema.SemanticUnknown
	}
}
