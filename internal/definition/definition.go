// Package definition is the declarative form of an aggregation pipeline:
// the document types it uses and its stages as expression text. Definitions
// are decoded from CUE, YAML or JSON and built into a type registry and
// pipeline stages.
package definition

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docagg/internal/ast"
	"github.com/roach88/docagg/internal/exprparse"
	"github.com/roach88/docagg/internal/pipeline"
)

// Definition describes a pipeline over documents of type Source.
//
// Aggregate names the aggregate type. It defaults the parameter types of the
// combine and result expressions; when empty, the aggregate is assumed to be
// the source type, which is the case for pipelines without a seed.
type Definition struct {
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Source    string     `json:"source" yaml:"source"`
	Aggregate string     `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
	Types     []TypeDef  `json:"types" yaml:"types"`
	Pipeline  []StageDef `json:"pipeline" yaml:"pipeline"`
}

// TypeDef declares a document type.
type TypeDef struct {
	Name         string     `json:"name" yaml:"name"`
	Fields       []FieldDef `json:"fields" yaml:"fields"`
	Constructors [][]string `json:"constructors,omitempty" yaml:"constructors,omitempty"`
}

// FieldDef declares one field. Kind is one of bool, int, float, decimal,
// string, char, datetime, object or array; object fields name their Type.
type FieldDef struct {
	Name    string `json:"name" yaml:"name"`
	JSON    string `json:"json,omitempty" yaml:"json,omitempty"`
	Kind    string `json:"kind" yaml:"kind"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
	Ignore  bool   `json:"ignore,omitempty" yaml:"ignore,omitempty"`
}

// StageDef is one stage. Exactly one of Where, GroupBy, Aggregate or Select
// is set; Seed accompanies Aggregate.
type StageDef struct {
	Where     string `json:"where,omitempty" yaml:"where,omitempty"`
	GroupBy   string `json:"groupBy,omitempty" yaml:"groupBy,omitempty"`
	Seed      string `json:"seed,omitempty" yaml:"seed,omitempty"`
	Aggregate string `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
	Select    string `json:"select,omitempty" yaml:"select,omitempty"`
}

// Compiled is a built definition.
type Compiled struct {
	Registry *ast.Registry
	Stages   []pipeline.Stage
}

// Program assembles the generated program of the compiled stages.
func (c *Compiled) Program() (*pipeline.Program, error) {
	return pipeline.Assemble(c.Stages)
}

// DecodeYAML decodes a definition from YAML or JSON text. Unknown keys are
// rejected.
func DecodeYAML(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var d Definition
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &d, nil
}

// Build registers the declared types and parses every stage expression.
func (d *Definition) Build() (*Compiled, error) {
	reg, err := d.registry()
	if err != nil {
		return nil, err
	}
	if d.Source == "" {
		return nil, errors.New("definition has no source type")
	}
	if _, ok := reg.Lookup(d.Source); !ok {
		return nil, fmt.Errorf("source type %s is not declared", d.Source)
	}
	aggregate := d.Aggregate
	if aggregate == "" {
		aggregate = d.Source
	}
	if _, ok := reg.Lookup(aggregate); !ok {
		return nil, fmt.Errorf("aggregate type %s is not declared", aggregate)
	}

	stages := make([]pipeline.Stage, 0, len(d.Pipeline))
	for i, sd := range d.Pipeline {
		stage, err := sd.build(reg, d.Source, aggregate)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		stages = append(stages, stage)
	}
	return &Compiled{Registry: reg, Stages: stages}, nil
}

func (d *Definition) registry() (*ast.Registry, error) {
	reg := ast.NewRegistry()
	for _, td := range d.Types {
		t, err := td.schema()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	if err := reg.Check(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (td TypeDef) schema() (*ast.TypeSchema, error) {
	fields := make([]ast.Field, 0, len(td.Fields))
	for _, fd := range td.Fields {
		kind, err := ast.ParseKind(fd.Kind)
		if err != nil {
			return nil, fmt.Errorf("type %s: field %s: %w", td.Name, fd.Name, err)
		}
		f := ast.Field{
			Name:     fd.Name,
			JSONName: fd.JSON,
			Kind:     kind,
			TypeName: fd.Type,
			Ignore:   fd.Ignore,
		}
		if fd.Default != nil {
			lit, err := ast.LiteralOf(kind, fd.Default)
			if err != nil {
				return nil, fmt.Errorf("type %s: field %s: default: %w", td.Name, fd.Name, err)
			}
			f.Default = lit
		}
		fields = append(fields, f)
	}

	ctors := make([]ast.Constructor, len(td.Constructors))
	for i, params := range td.Constructors {
		ctors[i] = ast.Constructor{Params: params}
	}
	return ast.NewType(td.Name, fields, ctors...)
}

func (sd StageDef) build(reg *ast.Registry, source, aggregate string) (pipeline.Stage, error) {
	set := 0
	for _, s := range []string{sd.Where, sd.GroupBy, sd.Aggregate, sd.Select} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return pipeline.Stage{}, errors.New("exactly one of where, groupBy, aggregate or select must be set")
	}
	if sd.Seed != "" && sd.Aggregate == "" {
		return pipeline.Stage{}, errors.New("seed is only valid with aggregate")
	}

	switch {
	case sd.Where != "":
		fn, err := parse("where", sd.Where, reg, source)
		return pipeline.Where(fn), err
	case sd.GroupBy != "":
		fn, err := parse("groupBy", sd.GroupBy, reg, source)
		return pipeline.GroupBy(fn), err
	case sd.Select != "":
		fn, err := parse("select", sd.Select, reg, aggregate)
		return pipeline.Select(fn), err
	}

	combine, err := parse("aggregate", sd.Aggregate, reg, aggregate, source)
	if err != nil {
		return pipeline.Stage{}, err
	}
	if sd.Seed == "" {
		return pipeline.Aggregate(combine), nil
	}
	seed, err := parse("seed", sd.Seed, reg, source)
	if err != nil {
		return pipeline.Stage{}, err
	}
	return pipeline.AggregateSeeded(seed, combine), nil
}

func parse(field, src string, reg *ast.Registry, defaults ...string) (*ast.Lambda, error) {
	fn, err := exprparse.Parse(src, reg, defaults...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return fn, nil
}
