package inference

import (
	"testing"

	"github.com/shandley/crucible/schema"
)

func TestInferIntegerType(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("count", []string{"1", "2", "3", "100"})

	if result.InferredType != schema.TypeInteger {
		t.Fatalf("expected integer, got %s", result.InferredType)
	}
	if result.Statistics.Numeric == nil {
		t.Fatal("expected numeric statistics")
	}
	if result.Statistics.Numeric.Min != 1 || result.Statistics.Numeric.Max != 100 {
		t.Errorf("unexpected min/max: %v/%v", result.Statistics.Numeric.Min, result.Statistics.Numeric.Max)
	}
}

func TestInferFloatType(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("value", []string{"1.5", "2.7", "3.14", "0.5"})

	if result.InferredType != schema.TypeFloat {
		t.Fatalf("expected float, got %s", result.InferredType)
	}
}

func TestInferBooleanType(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("active", []string{"yes", "no", "Yes", "NO"})

	if result.InferredType != schema.TypeBoolean {
		t.Fatalf("expected boolean, got %s", result.InferredType)
	}
}

func TestInferDateType(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("date", []string{"2024-01-15", "01/17/2024", "Jan 20 2024", "2024/01/25"})

	if result.InferredType != schema.TypeDate {
		t.Fatalf("expected date, got %s", result.InferredType)
	}
}

func TestTypeThresholdDemotesToString(t *testing.T) {
	// 3 of 4 parse as integers: below the 95% threshold.
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("mixed", []string{"1", "2", "3", "abc"})

	if result.InferredType != schema.TypeString {
		t.Fatalf("expected string, got %s", result.InferredType)
	}
}

func TestNullDetection(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("value", []string{"1", "NA", "3", "", "5", "not collected"})

	if !result.Nullable {
		t.Error("expected nullable")
	}
	if result.Statistics.NullCount != 3 {
		t.Errorf("expected 3 nulls, got %d", result.Statistics.NullCount)
	}
	if result.Statistics.NullPatterns["NA"] != 1 {
		t.Errorf("expected NA pattern count 1, got %d", result.Statistics.NullPatterns["NA"])
	}
}

func TestExtraNullTokens(t *testing.T) {
	a := NewStatisticalAnalyzer().WithExtraNullTokens([]string{"-999"})
	result := a.AnalyzeColumn("reading", []string{"10", "-999", "12"})

	if result.Statistics.NullCount != 1 {
		t.Errorf("expected custom token counted as null, got %d nulls", result.Statistics.NullCount)
	}
}

func TestCategoricalDetection(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("category", []string{"A", "B", "A", "C", "B"})

	if result.SemanticType != schema.SemanticCategorical {
		t.Fatalf("expected categorical, got %s", result.SemanticType)
	}
	if len(result.ExpectedValues) != 3 {
		t.Errorf("expected 3 expected values, got %v", result.ExpectedValues)
	}
}

func TestAllNullColumn(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("empty", []string{"NA", "", "null"})

	if result.InferredType != schema.TypeString {
		t.Errorf("expected string type, got %s", result.InferredType)
	}
	if result.SemanticType != schema.SemanticMissing {
		t.Errorf("expected missing semantic type, got %s", result.SemanticType)
	}
	if len(result.Outliers) != 0 {
		t.Errorf("expected no outliers, got %d", len(result.Outliers))
	}
}

func TestOutlierDetection(t *testing.T) {
	values := make([]string, 0, 101)
	for i := 0; i < 100; i++ {
		values = append(values, "10")
	}
	values = append(values, "1000")

	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("reading", values)

	if len(result.Outliers) != 1 {
		t.Fatalf("expected 1 outlier, got %d", len(result.Outliers))
	}
	if result.Outliers[0] != 100 {
		t.Errorf("expected outlier at row 100, got %d", result.Outliers[0])
	}
}

func TestDeterministicProfile(t *testing.T) {
	values := []string{"5", "7", "3", "NA", "9", "2", "8"}
	a := NewStatisticalAnalyzer()
	first := a.AnalyzeColumn("score", values)
	second := a.AnalyzeColumn("score", values)

	if first.Statistics.Numeric.Mean != second.Statistics.Numeric.Mean {
		t.Error("mean differs between identical runs")
	}
	if first.Statistics.Numeric.Q1 != second.Statistics.Numeric.Q1 {
		t.Error("q1 differs between identical runs")
	}
}

func TestUniqueColumn(t *testing.T) {
	a := NewStatisticalAnalyzer()
	result := a.AnalyzeColumn("sample_id", []string{"S001", "S002", "S003"})

	if !result.Unique {
		t.Error("expected unique")
	}
	if result.SemanticType != schema.SemanticIdentifier {
		t.Errorf("expected identifier semantic type, got %s", result.SemanticType)
	}
}
