package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/internal/dateformat"
	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/suggestion"
)

// Engine replays approved decisions onto the original rows. The original
// table is never mutated; Apply works on a clone.
type Engine struct{}

// NewEngine creates a transform engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Apply produces the curated table and audit trail for a layer. Decisions
// with status Accepted, Modified or Applied are replayed in (suggestion
// priority, suggestion id) order; Modified decisions merge their parameter
// overrides shallowly over the suggestion's parameters. After a successful
// run the applied decisions transition to Applied on the layer; the caller
// decides whether to persist. Replaying an already-applied layer reproduces
// the same output and audit.
func (e *Engine) Apply(layer *curation.Layer, table *input.DataTable) (*input.DataTable, *AuditLog, error) {
	if layer.Stale {
		return nil, nil, errors.StaleSource(
			"source file has changed since analysis; re-analyze or acknowledge before applying")
	}
	if err := layer.ValidateIntegrity(); err != nil {
		return nil, nil, err
	}

	type job struct {
		sug    *suggestion.Suggestion
		params map[string]interface{}
	}
	var jobs []job
	var appliedIDs []string
	for i := range layer.Decisions {
		d := &layer.Decisions[i]
		if !d.Status.IsApproved() {
			continue
		}
		sug := layer.Suggestion(d.SuggestionID)
		if sug == nil {
			return nil, nil, errors.LayerIntegrity(
				fmt.Sprintf("decision '%s' references unknown suggestion '%s'", d.ID, d.SuggestionID))
		}
		params := mergeParams(sug.Parameters, d.Modifications)
		jobs = append(jobs, job{sug: sug, params: params})
		appliedIDs = append(appliedIDs, sug.ID)
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].sug.Priority != jobs[j].sug.Priority {
			return jobs[i].sug.Priority < jobs[j].sug.Priority
		}
		return jobs[i].sug.ID < jobs[j].sug.ID
	})

	curated := table.Clone()
	audit := &AuditLog{}
	for _, j := range jobs {
		change, err := e.applyOne(j.sug, j.params, curated)
		if err != nil {
			return nil, nil, err
		}
		audit.Changes = append(audit.Changes, change)
	}

	layer.MarkApplied(appliedIDs)
	return curated, audit, nil
}

// mergeParams overlays modifications on the suggestion parameters; missing
// keys fall back to the original.
func mergeParams(base, overrides map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func (e *Engine) applyOne(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	switch sug.Action {
	case suggestion.Standardize:
		return e.applyStandardize(sug, params, table)
	case suggestion.ConvertNA:
		return e.applyConvertNA(sug, params, table)
	case suggestion.Coerce:
		return e.applyCoerce(sug, params, table)
	case suggestion.ConvertDate:
		return e.applyConvertDate(sug, params, table)
	case suggestion.Flag:
		return e.applyFlag(sug, params, table)
	case suggestion.Merge:
		return e.applyMerge(sug, params, table)
	case suggestion.Rename:
		return e.applyRename(sug, params, table)
	default:
		return Change{
			SuggestionID: sug.ID,
			Action:       string(sug.Action),
			Skipped:      true,
			Reason:       fmt.Sprintf("%s operations require manual handling", sug.Action),
		}, nil
	}
}

func (e *Engine) applyStandardize(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	column := stringParam(params, "column")
	colIdx := table.ColumnIndex(column)
	if colIdx < 0 {
		return Change{}, errors.NotFound(fmt.Sprintf("column '%s'", column))
	}
	mapping := stringMapParam(params, "mapping")

	change := Change{
		SuggestionID: sug.ID,
		Action:       string(sug.Action),
		Column:       column,
		Description:  fmt.Sprintf("standardized %d variant(s) in '%s'", len(mapping), column),
	}
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		value := strings.TrimSpace(table.Get(rowIdx, colIdx))
		replacement, ok := mapping[value]
		if !ok || replacement == value {
			continue
		}
		change.Cells = append(change.Cells, CellChange{
			Row: rowIdx, Column: column, Before: value, After: replacement,
		})
		change.RowsTouched = append(change.RowsTouched, rowIdx)
		table.Set(rowIdx, colIdx, replacement)
	}
	return change, nil
}

func (e *Engine) applyConvertNA(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	column := stringParam(params, "column")
	colIdx := table.ColumnIndex(column)
	if colIdx < 0 {
		return Change{}, errors.NotFound(fmt.Sprintf("column '%s'", column))
	}
	fromValues := stringSliceParam(params, "from_values")
	lookup := make(map[string]struct{}, len(fromValues))
	for _, v := range fromValues {
		lookup[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}

	change := Change{
		SuggestionID: sug.ID,
		Action:       string(sug.Action),
		Column:       column,
		Description:  fmt.Sprintf("converted %d token(s) to null in '%s'", len(fromValues), column),
	}
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		value := table.Get(rowIdx, colIdx)
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if _, ok := lookup[trimmed]; !ok || value == "" {
			continue
		}
		change.Cells = append(change.Cells, CellChange{
			Row: rowIdx, Column: column, Before: value, After: "",
		})
		change.RowsTouched = append(change.RowsTouched, rowIdx)
		table.Set(rowIdx, colIdx, "")
	}
	return change, nil
}

func (e *Engine) applyCoerce(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	column := stringParam(params, "column")
	colIdx := table.ColumnIndex(column)
	if colIdx < 0 {
		return Change{}, errors.NotFound(fmt.Sprintf("column '%s'", column))
	}
	targetType := stringParam(params, "target_type")

	change := Change{
		SuggestionID: sug.ID,
		Action:       string(sug.Action),
		Column:       column,
		Description:  fmt.Sprintf("coerced '%s' to %s", column, targetType),
	}
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		value := table.Get(rowIdx, colIdx)
		trimmed := strings.TrimSpace(value)
		if trimmed == "" || input.IsNullValue(trimmed) {
			continue
		}
		coerced, ok := coerceValue(trimmed, targetType)
		if ok && coerced == trimmed {
			continue
		}
		after := coerced
		if !ok {
			after = "" // non-convertible values become null
		}
		change.Cells = append(change.Cells, CellChange{
			Row: rowIdx, Column: column, Before: value, After: after,
		})
		change.RowsTouched = append(change.RowsTouched, rowIdx)
		table.Set(rowIdx, colIdx, after)
	}
	return change, nil
}

func coerceValue(value, targetType string) (string, bool) {
	switch strings.ToLower(targetType) {
	case "integer":
		if _, err := strconv.ParseInt(value, 10, 64); err == nil {
			return value, true
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), true
		}
		return "", false
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return value, true
		}
		return "", false
	case "boolean":
		switch strings.ToLower(value) {
		case "true", "yes", "y", "t", "1":
			return "true", true
		case "false", "no", "n", "f", "0":
			return "false", true
		}
		return "", false
	default:
		return value, true
	}
}

func (e *Engine) applyConvertDate(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	column := stringParam(params, "column")
	colIdx := table.ColumnIndex(column)
	if colIdx < 0 {
		return Change{}, errors.NotFound(fmt.Sprintf("column '%s'", column))
	}

	change := Change{
		SuggestionID: sug.ID,
		Action:       string(sug.Action),
		Column:       column,
		Description:  fmt.Sprintf("standardized dates in '%s' to ISO 8601", column),
	}
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		value := table.Get(rowIdx, colIdx)
		if input.IsNullValue(value) {
			continue
		}
		iso, ok := dateformat.ToISO(value)
		if !ok || iso == strings.TrimSpace(value) {
			continue
		}
		change.Cells = append(change.Cells, CellChange{
			Row: rowIdx, Column: column, Before: value, After: iso,
		})
		change.RowsTouched = append(change.RowsTouched, rowIdx)
		table.Set(rowIdx, colIdx, iso)
	}
	return change, nil
}

func (e *Engine) applyFlag(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	column := stringParam(params, "column")
	flagColumn := stringParam(params, "flag_column")
	if flagColumn == "" {
		flagColumn = column + "_flagged"
	}
	flagValue := stringParam(params, "flag_value")
	if flagValue == "" {
		flagValue = "review"
	}
	rows := intSliceParam(params, "rows")

	if table.ColumnIndex(flagColumn) < 0 {
		table.AddColumn(flagColumn, "")
	}
	flagIdx := table.ColumnIndex(flagColumn)

	change := Change{
		SuggestionID: sug.ID,
		Action:       string(sug.Action),
		Column:       flagColumn,
		Description:  fmt.Sprintf("flagged %d row(s) for review (issue in '%s')", len(rows), column),
	}
	for _, rowIdx := range rows {
		if rowIdx < 0 || rowIdx >= table.RowCount() {
			continue
		}
		before := table.Get(rowIdx, flagIdx)
		if before == flagValue {
			continue
		}
		change.Cells = append(change.Cells, CellChange{
			Row: rowIdx, Column: flagColumn, Before: before, After: flagValue,
		})
		change.RowsTouched = append(change.RowsTouched, rowIdx)
		table.Set(rowIdx, flagIdx, flagValue)
	}
	return change, nil
}

// applyMerge drops later rows that duplicate an earlier row on the merge
// column when the rows agree everywhere else; incompatible groups are left
// untouched and noted in the audit.
func (e *Engine) applyMerge(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	column := stringParam(params, "column")
	colIdx := table.ColumnIndex(column)
	if colIdx < 0 {
		return Change{}, errors.NotFound(fmt.Sprintf("column '%s'", column))
	}

	seen := map[string]int{}
	drop := map[int]bool{}
	incompatible := 0
	for rowIdx := 0; rowIdx < table.RowCount(); rowIdx++ {
		value := strings.TrimSpace(table.Get(rowIdx, colIdx))
		if value == "" || input.IsNullValue(value) {
			continue
		}
		first, ok := seen[value]
		if !ok {
			seen[value] = rowIdx
			continue
		}
		if rowsIdentical(table, first, rowIdx) {
			drop[rowIdx] = true
		} else {
			incompatible++
		}
	}

	change := Change{
		SuggestionID: sug.ID,
		Action:       string(sug.Action),
		Column:       column,
		Description:  fmt.Sprintf("merged %d duplicate row(s) on '%s'", len(drop), column),
	}
	if incompatible > 0 {
		change.Reason = fmt.Sprintf("%d duplicate group(s) differ elsewhere and were left for review", incompatible)
	}
	if len(drop) == 0 {
		change.Skipped = incompatible > 0
		return change, nil
	}

	headers := table.Headers()
	var kept [][]string
	for rowIdx, row := range table.Rows() {
		if drop[rowIdx] {
			change.RowsTouched = append(change.RowsTouched, rowIdx)
			change.Cells = append(change.Cells, CellChange{
				Row: rowIdx, Column: column,
				Before: table.Get(rowIdx, colIdx), After: "",
			})
			continue
		}
		kept = append(kept, row)
	}
	*table = *input.NewDataTable(headers, kept)
	return change, nil
}

func (e *Engine) applyRename(sug *suggestion.Suggestion, params map[string]interface{}, table *input.DataTable) (Change, error) {
	from := stringParam(params, "column")
	to := stringParam(params, "new_name")
	colIdx := table.ColumnIndex(from)
	if colIdx < 0 || to == "" {
		return Change{
			SuggestionID: sug.ID,
			Action:       string(sug.Action),
			Skipped:      true,
			Reason:       "rename requires an existing column and a new_name parameter",
		}, nil
	}
	table.Headers()[colIdx] = to
	return Change{
		SuggestionID: sug.ID,
		Action:       string(sug.Action),
		Column:       to,
		Description:  fmt.Sprintf("renamed column '%s' to '%s'", from, to),
	}, nil
}

func rowsIdentical(table *input.DataTable, a, b int) bool {
	for c := 0; c < table.ColumnCount(); c++ {
		if table.Get(a, c) != table.Get(b, c) {
			return false
		}
	}
	return true
}

// parameter helpers: parameters may hold native Go values (fresh analysis)
// or JSON-decoded values (reloaded layer).

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func stringMapParam(params map[string]interface{}, key string) map[string]string {
	out := map[string]string{}
	switch m := params[key].(type) {
	case map[string]interface{}:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	var out []string
	switch vs := params[key].(type) {
	case []interface{}:
		for _, v := range vs {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, vs...)
	}
	return out
}

func intSliceParam(params map[string]interface{}, key string) []int {
	var out []int
	switch vs := params[key].(type) {
	case []interface{}:
		for _, v := range vs {
			switch n := v.(type) {
			case int:
				out = append(out, n)
			case float64:
				out = append(out, int(n))
			}
		}
	case []int:
		out = append(out, vs...)
	}
	return out
}
