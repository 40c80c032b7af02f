// Package scriptgen compiles pipeline stage lambdas into the bodies of the
// four script functions the generated server-side program calls: seed,
// combine, group change and result.
//
// Each compiler returns a complete function body of the form
// "return <expression>;". Constants are inlined as script literals; object
// construction becomes an object literal listing every serializable field of
// the constructed type, in declaration order.
package scriptgen

import (
	"strings"

	"github.com/roach88/docagg/internal/ast"
)

// Parameter names of the generated functions.
const (
	ParamFirst     = "first"
	ParamAggregate = "aggregate"
	ParamCurrent   = "current"
	ParamPrevious  = "previous"
)

// Bodies used when the pipeline omits the corresponding stage.
const (
	DefaultSeedBody        = "return " + ParamFirst + ";"
	DefaultResultBody      = "return " + ParamAggregate + ";"
	DefaultGroupChangeBody = "return false;"
)

// CompileSeed compiles the seed lambda (first) => aggregate. Without a seed
// the first document of a group becomes the aggregate unchanged.
func CompileSeed(fn *ast.Lambda) (string, error) {
	if fn == nil {
		return DefaultSeedBody, nil
	}
	return compileBody(fn, ParamFirst)
}

// CompileCombine compiles the combine lambda (aggregate, current) => aggregate.
func CompileCombine(fn *ast.Lambda) (string, error) {
	if fn == nil {
		return "", ast.Errorf("combine function is required")
	}
	return compileBody(fn, ParamAggregate, ParamCurrent)
}

// CompileResult compiles the result projection (aggregate) => result.
// Without a projection the aggregate itself is the result.
func CompileResult(fn *ast.Lambda) (string, error) {
	if fn == nil {
		return DefaultResultBody, nil
	}
	return compileBody(fn, ParamAggregate)
}

// CompileGroupChange compiles the group key into a test that is true when
// current and previous belong to different groups: any selected field
// differs. Without a group key every document belongs to a single group.
func CompileGroupChange(groupKey *ast.Lambda) (string, error) {
	if groupKey == nil {
		return DefaultGroupChangeBody, nil
	}
	paths, err := ast.KeyPaths(groupKey)
	if err != nil {
		return "", err
	}
	comparisons := make([]string, len(paths))
	for i, p := range paths {
		comparisons[i] = ParamCurrent + "." + p + " != " + ParamPrevious + "." + p
	}
	return "return " + strings.Join(comparisons, " || ") + ";", nil
}

func compileBody(fn *ast.Lambda, names ...string) (string, error) {
	if len(fn.Params) != len(names) {
		return "", ast.Errorf("function must take %d parameter(s), got %d", len(names), len(fn.Params))
	}
	switch root := ast.Unwrap(fn.Body).(type) {
	case *ast.Construct, *ast.Member, *ast.Param:
	default:
		return "", ast.Errorf("function must return a constructed object or a member, got %s", ast.NodeName(root))
	}

	c := &bodyCompiler{names: names}
	expr, err := c.expression(fn.Body)
	if err != nil {
		return "", err
	}
	return "return " + expr + ";", nil
}

// bodyCompiler renders expressions with parameter slots bound to names.
type bodyCompiler struct {
	names []string
}

func (c *bodyCompiler) expression(n ast.Node) (string, error) {
	switch v := ast.Unwrap(n).(type) {
	case *ast.Binary:
		left, err := c.expression(v.Left)
		if err != nil {
			return "", err
		}
		right, err := c.expression(v.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + scriptOperator(v.Op) + " " + right + ")", nil

	case *ast.Conditional:
		test, err := c.expression(v.Test)
		if err != nil {
			return "", err
		}
		ifTrue, err := c.expression(v.IfTrue)
		if err != nil {
			return "", err
		}
		ifFalse, err := c.expression(v.IfFalse)
		if err != nil {
			return "", err
		}
		return "(" + test + " ? " + ifTrue + " : " + ifFalse + ")", nil

	case *ast.Literal:
		return renderLiteral(v)

	case *ast.Member:
		switch base := ast.Unwrap(v.Base).(type) {
		case *ast.Param, *ast.Member:
			prefix, err := c.expression(base)
			if err != nil {
				return "", err
			}
			return prefix + "." + v.SerializedName(), nil
		default:
			return "", ast.Errorf("unsupported expression: member access on %s", ast.NodeName(base))
		}

	case *ast.Param:
		if v.Slot < 0 || v.Slot >= len(c.names) {
			return "", ast.Errorf("parameter slot %d is out of range", v.Slot)
		}
		return c.names[v.Slot], nil

	case *ast.Construct:
		return c.construct(v)

	default:
		return "", ast.Unsupported(v)
	}
}

// construct renders an object literal of every serializable field. Assigned
// fields use their compiled expression; the rest take the value they have on
// the instance created by the matching constructor.
func (c *bodyCompiler) construct(v *ast.Construct) (string, error) {
	if v.Type == nil {
		return "", ast.Errorf("construct has no type")
	}
	if v.Type.IsDateTime() {
		if len(v.Fields) == 0 {
			if t, ok := ast.DateFromArgs(v.Args); ok {
				return quote(ast.FormatDateTime(t))
			}
		}
		return "", ast.Errorf("DateTime must be constructed from integer literals")
	}

	defaults, err := defaultInstance(v.Type, v.Args)
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool, len(v.Fields))
	for _, a := range v.Fields {
		f, ok := v.Type.Field(a.Field)
		if !ok {
			return "", ast.Errorf("type %s has no field %s", v.Type.Name, a.Field)
		}
		if f.Ignore {
			return "", ast.Errorf("field %s.%s is not serialized and cannot be assigned", v.Type.Name, a.Field)
		}
		if seen[a.Field] {
			return "", ast.Errorf("field %s.%s is assigned more than once", v.Type.Name, a.Field)
		}
		seen[a.Field] = true
	}

	fields := v.Type.Serializable()
	if len(fields) == 0 {
		return "{}", nil
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		name, err := quote(f.SerializedName())
		if err != nil {
			return "", err
		}
		var value string
		if expr, ok := v.Assigned(f.Name); ok {
			value, err = c.expression(expr)
		} else {
			value, err = renderLiteral(defaults[f.Name])
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, name+": "+value)
	}
	return "{ " + strings.Join(parts, ", ") + " }", nil
}

// defaultInstance returns the field values of t constructed with args.
func defaultInstance(t *ast.TypeSchema, args []ast.Node) (map[string]*ast.Literal, error) {
	ctor, ok := t.Constructor(len(args))
	if !ok {
		return nil, ast.Errorf("type %s has no constructor taking %d argument(s)", t.Name, len(args))
	}

	values := make(map[string]*ast.Literal, len(t.Fields))
	for _, f := range t.Fields {
		values[f.Name] = f.DefaultLiteral()
	}
	for i, arg := range args {
		lit, ok := ast.Unwrap(arg).(*ast.Literal)
		if !ok {
			return nil, ast.Errorf("constructor arguments must be literals, got %s", ast.NodeName(ast.Unwrap(arg)))
		}
		f, _ := t.Field(ctor.Params[i])
		coerced, err := ast.Coerce(lit, f.Kind)
		if err != nil {
			return nil, ast.Errorf("constructor argument %d of %s: %v", i+1, t.Name, err)
		}
		values[f.Name] = coerced
	}
	return values, nil
}

// scriptOperator returns the script spelling of op. Coalescing uses ||,
// which the scripting dialect of the database supports.
func scriptOperator(op ast.BinaryOp) string {
	if op == ast.OpCoalesce {
		return "||"
	}
	return op.Symbol()
}
