package curation

import (
	"fmt"
	"math"

	"github.com/shandley/crucible/schema"
	"github.com/shandley/crucible/suggestion"
	"github.com/shandley/crucible/validation"
)

// SeverityCounts breaks observations down by severity.
type SeverityCounts struct {
	Error   int `json:"error"`
	Warning int `json:"warning"`
	Info    int `json:"info"`
}

// DecisionCounts breaks suggestions down by decision status.
type DecisionCounts struct {
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Modified int `json:"modified"`
	Rejected int `json:"rejected"`
	Applied  int `json:"applied"`
}

// Approved counts decisions eligible for apply.
func (d DecisionCounts) Approved() int { return d.Accepted + d.Modified + d.Applied }

// Summary aggregates the state of a curation layer. It is recomputed after
// every mutation.
type Summary struct {
	TotalColumns      int            `json:"total_columns"`
	ColumnsWithIssues int            `json:"columns_with_issues"`
	TotalObservations int            `json:"total_observations"`
	BySeverity        SeverityCounts `json:"observations_by_severity"`
	ByType            map[string]int `json:"observations_by_type"`
	TotalSuggestions  int            `json:"total_suggestions"`
	ByDecisionStatus  DecisionCounts `json:"suggestions_by_status"`
	TotalAffectedRows int            `json:"total_affected_rows"`
	DataQualityScore  float64        `json:"data_quality_score"`
	Recommendation    string         `json:"recommendation"`
}

// ComputeSummary derives the summary from the layer's components.
func ComputeSummary(
	ts *schema.TableSchema,
	observations []validation.Observation,
	suggestions []suggestion.Suggestion,
	decisions []Decision,
) Summary {
	affected := map[string]struct{}{}
	var bySeverity SeverityCounts
	byType := map[string]int{}
	for i := range observations {
		obs := &observations[i]
		affected[obs.Column] = struct{}{}
		switch obs.Severity {
		case validation.SeverityError:
			bySeverity.Error++
		case validation.SeverityWarning:
			bySeverity.Warning++
		case validation.SeverityInfo:
			bySeverity.Info++
		}
		byType[string(obs.Type)]++
	}

	totalAffectedRows := 0
	for i := range suggestions {
		totalAffectedRows += suggestions[i].AffectedRows
	}

	byStatus := DecisionCounts{Pending: len(suggestions)}
	for i := range decisions {
		switch decisions[i].Status {
		case StatusAccepted:
			byStatus.Pending--
			byStatus.Accepted++
		case StatusModified:
			byStatus.Pending--
			byStatus.Modified++
		case StatusRejected:
			byStatus.Pending--
			byStatus.Rejected++
		case StatusApplied:
			byStatus.Pending--
			byStatus.Applied++
		}
	}
	if byStatus.Pending < 0 {
		byStatus.Pending = 0
	}

	totalColumns := len(ts.Columns)
	score := qualityScore(totalColumns, len(affected), bySeverity)

	return Summary{
		TotalColumns:      totalColumns,
		ColumnsWithIssues: len(affected),
		TotalObservations: len(observations),
		BySeverity:        bySeverity,
		ByType:            byType,
		TotalSuggestions:  len(suggestions),
		ByDecisionStatus:  byStatus,
		TotalAffectedRows: totalAffectedRows,
		DataQualityScore:  score,
		Recommendation:    recommendation(bySeverity, score),
	}
}

// qualityScore is 1 minus a weighted penalty: the fraction of columns with
// issues, plus per-observation severity penalties capped at 0.5.
func qualityScore(totalColumns, columnsWithIssues int, counts SeverityCounts) float64 {
	if totalColumns == 0 {
		return 1.0
	}
	columnScore := 1.0 - float64(columnsWithIssues)/float64(totalColumns)
	penalty := math.Min(0.5,
		float64(counts.Error)*0.10+float64(counts.Warning)*0.02+float64(counts.Info)*0.005)
	return math.Max(0, math.Min(1, columnScore-penalty))
}

func recommendation(counts SeverityCounts, score float64) string {
	switch {
	case counts.Error > 0:
		return fmt.Sprintf("Address %d error-level issue(s) before proceeding with analysis.", counts.Error)
	case counts.Warning > 5:
		return fmt.Sprintf("Review %d warning-level issue(s) to improve data quality (score: %.0f%%).",
			counts.Warning, score*100)
	case score >= 0.9:
		return "Data quality is good. Minor issues detected for review."
	case score >= 0.7:
		return "Data quality is acceptable. Consider addressing warnings."
	default:
		return "Data quality needs attention. Review all observations."
	}
}
