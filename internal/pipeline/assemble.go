package pipeline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/roach88/docagg/internal/ast"
	"github.com/roach88/docagg/internal/querysql"
	"github.com/roach88/docagg/internal/scriptgen"
)

//go:embed program.js
var programTemplate string

// NotAcceptedMessage starts the error a program throws when its first
// query is refused before any progress was made.
const NotAcceptedMessage = "The query was not accepted"

// Template placeholders.
const (
	placeholderQuery       = "$(Query)"
	placeholderSeed        = "$(SeedBody)"
	placeholderCombine     = "$(CombineBody)"
	placeholderGroupChange = "$(GroupChangeBody)"
	placeholderResult      = "$(ResultBody)"
)

// Bodies are the compiled bodies of the program's script functions.
type Bodies struct {
	Seed        string
	Combine     string
	GroupChange string
	Result      string
}

// Program is a generated server-side program. It is immutable.
type Program struct {
	ID         string
	Source     string
	QueryText  string
	Predicate  string
	OrderBy    []string
	Parameters []querysql.Parameter
	Bodies     Bodies
}

// Assemble validates stages, compiles them and renders the program.
// Grammar and expression errors are CompileErrors and are reported before
// any output is produced.
func Assemble(stages []Stage) (*Program, error) {
	plan, err := Validate(stages)
	if err != nil {
		return nil, err
	}
	return assemblePlan(plan)
}

func assemblePlan(plan *Plan) (*Program, error) {
	q, err := querysql.NewSQLCompiler().CompileQuery(plan.Filters, plan.GroupKey)
	if err != nil {
		return nil, ast.WithStage(err, "query")
	}

	var bodies Bodies
	if bodies.Seed, err = scriptgen.CompileSeed(plan.Seed); err != nil {
		return nil, ast.WithStage(err, "seed")
	}
	if bodies.Combine, err = scriptgen.CompileCombine(plan.Combine); err != nil {
		return nil, ast.WithStage(err, "combine")
	}
	if bodies.GroupChange, err = scriptgen.CompileGroupChange(plan.GroupKey); err != nil {
		return nil, ast.WithStage(err, "group key")
	}
	if bodies.Result, err = scriptgen.CompileResult(plan.Result); err != nil {
		return nil, ast.WithStage(err, "result")
	}

	queryLiteral, err := scriptString(q.Text)
	if err != nil {
		return nil, err
	}

	source := strings.NewReplacer(
		placeholderQuery, queryLiteral,
		placeholderSeed, bodies.Seed,
		placeholderCombine, bodies.Combine,
		placeholderGroupChange, bodies.GroupChange,
		placeholderResult, bodies.Result,
	).Replace(programTemplate)

	return &Program{
		ID:         ProgramID(source),
		Source:     source,
		QueryText:  q.Text,
		Predicate:  q.Predicate,
		OrderBy:    q.OrderBy,
		Parameters: q.Parameters,
		Bodies:     bodies,
	}, nil
}

// scriptString quotes s as a script string literal.
func scriptString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
