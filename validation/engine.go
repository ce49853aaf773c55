package validation

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/shandley/crucible/adapters/input"
	"github.com/shandley/crucible/internal"
	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/schema"
)

// Engine runs the validator set. Validators are pure and may run in
// parallel; the final observation list is re-sorted to a canonical order so
// scheduling never changes outputs.
type Engine struct {
	validators []Validator
	workers    int
	log        *internal.Logger
}

// NewEngine creates an engine with the full validator set.
func NewEngine(workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		validators: []Validator{
			CompletenessValidator{},
			UniquenessValidator{},
			TypeValidator{},
			RangeValidator{},
			SetMembershipValidator{},
			PatternValidator{},
			DuplicateRowValidator{},
			NewOutlierValidator(),
			MissingPatternValidator{},
			CaseConsistencyValidator{},
			TypoValidator{},
			BooleanConsistencyValidator{},
			DateConsistencyValidator{},
			CardinalityValidator{},
			SchemaConflictValidator{},
			CrossColumnValidator{},
		},
		workers: workers,
		log:     internal.DefaultLogger,
	}
}

// Validate runs all validators and returns observations in canonical order:
// (column position, detector, evidence key). A validator that panics is
// logged and its observations for that run are omitted; the rest proceed.
// Cancellation discards partial work after the current validator.
func (e *Engine) Validate(ctx context.Context, table *input.DataTable, ts *schema.TableSchema, cfg Config) ([]Observation, error) {
	results := make([][]Observation, len(e.validators))
	sem := semaphore.NewWeighted(int64(e.workers))
	var wg sync.WaitGroup

	for i, validator := range e.validators {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Cancelled("validation cancelled")
		}
		wg.Add(1)
		go func(idx int, v Validator) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("validator %s failed: %v; its observations are omitted", v.Name(), r)
					results[idx] = nil
				}
			}()
			results[idx] = v.Validate(table, ts, cfg)
		}(i, validator)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled("validation cancelled")
	}

	var observations []Observation
	for _, r := range results {
		observations = append(observations, r...)
	}

	position := columnPositions(ts)
	sort.SliceStable(observations, func(i, j int) bool {
		a, b := &observations[i], &observations[j]
		if pa, pb := position[a.Column], position[b.Column]; pa != pb {
			return pa < pb
		}
		if a.Detector != b.Detector {
			return a.Detector < b.Detector
		}
		return a.Evidence.Key() < b.Evidence.Key()
	})

	return observations, nil
}

func columnPositions(ts *schema.TableSchema) map[string]int {
	position := make(map[string]int, len(ts.Columns))
	for i := range ts.Columns {
		position[ts.Columns[i].Name] = ts.Columns[i].Position
	}
	return position
}
