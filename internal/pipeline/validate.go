package pipeline

import (
	"github.com/roach88/docagg/internal/ast"
)

// Plan is a validated pipeline, one field per grammar position.
type Plan struct {
	Filters  []*ast.Lambda
	GroupKey *ast.Lambda
	Seed     *ast.Lambda
	Combine  *ast.Lambda
	Result   *ast.Lambda
}

// grammar positions, in the order they may appear
const (
	phaseFilters = iota
	phaseGrouped
	phaseAggregated
	phaseProjected
)

// Validate checks stages against the pipeline grammar without compiling any
// expression. Violations are reported as CompileErrors.
func Validate(stages []Stage) (*Plan, error) {
	plan := &Plan{}
	phase := phaseFilters

	for i, s := range stages {
		n := i + 1
		if phase == phaseProjected {
			return nil, grammarError("%s stage %d follows the result stage", s.Kind, n)
		}
		if s.Fn == nil {
			return nil, grammarError("%s stage %d has no expression", s.Kind, n)
		}

		switch s.Kind {
		case StageFilter:
			switch phase {
			case phaseGrouped:
				return nil, grammarError("filter stage %d follows the group key", n)
			case phaseAggregated:
				return nil, grammarError("filter stage %d follows the aggregate", n)
			}
			if err := checkArity(s.Fn, 1, s.Kind, n); err != nil {
				return nil, err
			}
			plan.Filters = append(plan.Filters, s.Fn)

		case StageGroupKey:
			switch phase {
			case phaseGrouped:
				return nil, grammarError("pipeline has more than one group key (stage %d)", n)
			case phaseAggregated:
				return nil, grammarError("group key stage %d follows the aggregate", n)
			}
			if err := checkArity(s.Fn, 1, s.Kind, n); err != nil {
				return nil, err
			}
			plan.GroupKey = s.Fn
			phase = phaseGrouped

		case StageAggregate:
			if phase == phaseAggregated {
				return nil, grammarError("pipeline has more than one aggregate (stage %d)", n)
			}
			if err := checkArity(s.Fn, 2, s.Kind, n); err != nil {
				return nil, err
			}
			if s.Seed != nil {
				if err := checkArity(s.Seed, 1, s.Kind, n); err != nil {
					return nil, err
				}
			}
			plan.Combine = s.Fn
			plan.Seed = s.Seed
			phase = phaseAggregated

		case StageResult:
			if phase != phaseAggregated {
				return nil, grammarError("result stage %d precedes the aggregate", n)
			}
			if err := checkArity(s.Fn, 1, s.Kind, n); err != nil {
				return nil, err
			}
			plan.Result = s.Fn
			phase = phaseProjected

		default:
			return nil, grammarError("stage %d has unknown kind %s", n, s.Kind)
		}
	}

	if phase < phaseAggregated {
		return nil, grammarError("pipeline has no aggregate stage")
	}
	return plan, nil
}

func checkArity(fn *ast.Lambda, want int, kind StageKind, n int) error {
	if len(fn.Params) != want {
		return grammarError("%s stage %d must take %d parameter(s), got %d", kind, n, want, len(fn.Params))
	}
	return nil
}

func grammarError(format string, args ...any) error {
	err := ast.Errorf(format, args...)
	err.Stage = "pipeline"
	return err
}
