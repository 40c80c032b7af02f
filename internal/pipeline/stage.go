// Package pipeline validates the ordered stages of an aggregation pipeline
// and assembles them into a single generated server-side program.
//
// A pipeline follows the grammar
//
//	Filter* GroupKey? Aggregate(Seed?, Combine) Result?
//
// Assemble compiles the filters and group key into the source-document
// query, compiles the four script functions, substitutes everything into the
// embedded program template and derives the program id from the resulting
// text.
package pipeline

import (
	"fmt"

	"github.com/roach88/docagg/internal/ast"
)

// StageKind identifies a pipeline stage.
type StageKind int

const (
	StageFilter StageKind = iota
	StageGroupKey
	StageAggregate
	StageResult
)

var stageKindNames = [...]string{
	StageFilter:    "filter",
	StageGroupKey:  "group key",
	StageAggregate: "aggregate",
	StageResult:    "result",
}

func (k StageKind) String() string {
	if k < 0 || int(k) >= len(stageKindNames) {
		return fmt.Sprintf("StageKind(%d)", int(k))
	}
	return stageKindNames[k]
}

// Stage is one step of a pipeline.
//
// Fn is the filter predicate, group key selector, combine function or result
// projection depending on Kind. Seed is only used by aggregate stages.
type Stage struct {
	Kind StageKind
	Fn   *ast.Lambda
	Seed *ast.Lambda
}

// Where returns a filter stage.
func Where(predicate *ast.Lambda) Stage {
	return Stage{Kind: StageFilter, Fn: predicate}
}

// GroupBy returns a group key stage.
func GroupBy(key *ast.Lambda) Stage {
	return Stage{Kind: StageGroupKey, Fn: key}
}

// Aggregate returns an aggregate stage whose groups start from their first
// document.
func Aggregate(combine *ast.Lambda) Stage {
	return Stage{Kind: StageAggregate, Fn: combine}
}

// AggregateSeeded returns an aggregate stage with an explicit seed.
func AggregateSeeded(seed, combine *ast.Lambda) Stage {
	return Stage{Kind: StageAggregate, Fn: combine, Seed: seed}
}

// Select returns a result projection stage.
func Select(projection *ast.Lambda) Stage {
	return Stage{Kind: StageResult, Fn: projection}
}

// Builder accumulates stages fluently. It performs no validation; Assemble
// and Validate check the grammar.
type Builder struct {
	stages []Stage
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) Where(predicate *ast.Lambda) *Builder {
	b.stages = append(b.stages, Where(predicate))
	return b
}

func (b *Builder) GroupBy(key *ast.Lambda) *Builder {
	b.stages = append(b.stages, GroupBy(key))
	return b
}

func (b *Builder) Aggregate(combine *ast.Lambda) *Builder {
	b.stages = append(b.stages, Aggregate(combine))
	return b
}

func (b *Builder) AggregateSeeded(seed, combine *ast.Lambda) *Builder {
	b.stages = append(b.stages, AggregateSeeded(seed, combine))
	return b
}

func (b *Builder) Select(projection *ast.Lambda) *Builder {
	b.stages = append(b.stages, Select(projection))
	return b
}

// Stages returns a copy of the accumulated stages.
func (b *Builder) Stages() []Stage {
	out := make([]Stage, len(b.stages))
	copy(out, b.stages)
	return out
}

// Assemble is shorthand for Assemble(b.Stages()).
func (b *Builder) Assemble() (*Program, error) {
	return Assemble(b.Stages())
}
