package querysql

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/docagg/internal/ast"
)

// RowAlias is the identifier source documents are bound to in queries.
const RowAlias = "r"

// Parameter is a named query parameter. Value is JSON-ready: nil, bool,
// int64, float64, string or json.Number for decimals.
type Parameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Query is the compiled source-document scan of a pipeline.
type Query struct {
	Text       string      // full query text
	Predicate  string      // WHERE fragment, empty without filters
	OrderBy    []string    // sort columns, empty without a group key
	Parameters []Parameter // hoisted literals in @p1..@pN order
}

// SQLCompiler compiles filter and group key lambdas to the document
// database's query language.
//
// CRITICAL: Literal values are never interpolated. Every literal is hoisted
// into a fresh @pN parameter, in visitation order, so compiled fragments can
// be combined without parameter name collisions.
type SQLCompiler struct {
	params []Parameter
}

// NewSQLCompiler creates a new SQLCompiler with no parameters.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Parameters returns the parameters hoisted so far.
func (c *SQLCompiler) Parameters() []Parameter {
	return c.params
}

// CompileQuery compiles the filters and optional group key of a pipeline
// into a single query. Multiple filters are combined with AND.
//
// The group key becomes the ORDER BY list: grouping compares adjacent
// documents only, so documents of one group must be contiguous in the scan.
func (c *SQLCompiler) CompileQuery(filters []*ast.Lambda, groupKey *ast.Lambda) (*Query, error) {
	var predicates []string
	for i, f := range filters {
		fragment, err := c.CompileWhere(f)
		if err != nil {
			return nil, fmt.Errorf("compile filter %d: %w", i+1, err)
		}
		predicates = append(predicates, fragment)
	}
	if len(predicates) > 1 {
		for i, f := range filters {
			switch ast.Unwrap(f.Body).(type) {
			case *ast.Member, *ast.Literal:
			default:
				predicates[i] = "(" + predicates[i] + ")"
			}
		}
	}

	var orderBy []string
	if groupKey != nil {
		cols, err := c.CompileOrderBy(groupKey)
		if err != nil {
			return nil, fmt.Errorf("compile group key: %w", err)
		}
		orderBy = cols
	}

	q := &Query{
		Predicate:  strings.Join(predicates, " AND "),
		OrderBy:    orderBy,
		Parameters: c.params,
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM root ")
	sb.WriteString(RowAlias)
	if q.Predicate != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Predicate)
	}
	if len(orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orderBy, ", "))
	}
	q.Text = sb.String()

	return q, nil
}

// CompileWhere compiles a filter lambda to a predicate fragment such as
// "r.amount > @p1", hoisting its literals into the compiler's parameters.
func (c *SQLCompiler) CompileWhere(fn *ast.Lambda) (string, error) {
	if fn == nil {
		return "", ast.Errorf("filter has no expression")
	}
	if len(fn.Params) != 1 {
		return "", ast.Errorf("filter must take exactly one parameter, got %d", len(fn.Params))
	}
	if !ast.IsBoolean(fn.Body) {
		return "", ast.Errorf("filter must be a boolean expression, got %s", ast.NodeName(ast.Unwrap(fn.Body)))
	}
	return c.compileNode(fn.Body, true)
}

// CompileOrderBy compiles a group key lambda to de-duplicated sort columns
// such as "r.storeId".
func (c *SQLCompiler) CompileOrderBy(fn *ast.Lambda) ([]string, error) {
	paths, err := ast.KeyPaths(fn)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(paths))
	for i, p := range paths {
		cols[i] = RowAlias + "." + p
	}
	return cols, nil
}

// compileNode renders n. Binary and conditional nodes are parenthesized
// unless they are the root of the predicate.
func (c *SQLCompiler) compileNode(n ast.Node, top bool) (string, error) {
	switch v := ast.Unwrap(n).(type) {
	case *ast.Binary:
		left, err := c.compileNode(v.Left, false)
		if err != nil {
			return "", err
		}
		right, err := c.compileNode(v.Right, false)
		if err != nil {
			return "", err
		}
		return wrap(left+" "+sqlOperator(v.Op)+" "+right, top), nil

	case *ast.Conditional:
		test, err := c.compileNode(v.Test, false)
		if err != nil {
			return "", err
		}
		ifTrue, err := c.compileNode(v.IfTrue, false)
		if err != nil {
			return "", err
		}
		ifFalse, err := c.compileNode(v.IfFalse, false)
		if err != nil {
			return "", err
		}
		return wrap(test+" ? "+ifTrue+" : "+ifFalse, top), nil

	case *ast.Member:
		path, err := ast.MemberPath(v, 0)
		if err != nil {
			return "", err
		}
		return RowAlias + "." + path, nil

	case *ast.Literal:
		value, err := ParamValue(v)
		if err != nil {
			return "", err
		}
		return c.hoist(value), nil

	case *ast.Construct:
		if v.Type.IsDateTime() && len(v.Args) == 3 && len(v.Fields) == 0 {
			if date, ok := ast.DateFromArgs(v.Args); ok {
				return c.hoist(date.Format("2006-01-02")), nil
			}
		}
		return "", ast.Errorf("unsupported expression: object construction is not allowed in filters")

	default:
		return "", ast.Unsupported(v)
	}
}

// hoist records value as the next parameter and returns its name.
func (c *SQLCompiler) hoist(value any) string {
	name := "@p" + strconv.Itoa(len(c.params)+1)
	c.params = append(c.params, Parameter{Name: name, Value: value})
	return name
}

func wrap(expr string, top bool) string {
	if top {
		return expr
	}
	return "(" + expr + ")"
}

// sqlOperator returns the query-language spelling of op. Only inequality
// differs from the expression syntax.
func sqlOperator(op ast.BinaryOp) string {
	if op == ast.OpNe {
		return "<>"
	}
	return op.Symbol()
}

// ParamValue converts a literal to its JSON-ready parameter value.
func ParamValue(lit *ast.Literal) (any, error) {
	switch lit.Kind {
	case ast.KindNull:
		return nil, nil
	case ast.KindBool, ast.KindInt, ast.KindString:
		return lit.Value, nil
	case ast.KindFloat:
		f := lit.Value.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ast.Errorf("float literal %v cannot be used as a parameter", f)
		}
		return f, nil
	case ast.KindChar:
		return string(lit.Value.(rune)), nil
	case ast.KindDecimal:
		return json.Number(lit.Value.(*apd.Decimal).Text('f')), nil
	case ast.KindDateTime:
		return ast.FormatDateTime(lit.Value.(time.Time)), nil
	default:
		return nil, ast.Errorf("%s literals cannot be used as parameters", lit.Kind)
	}
}
