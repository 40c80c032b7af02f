// Package exprparse parses the textual form of pipeline lambdas into AST
// nodes.
//
// A lambda declares its parameters, optionally typed, and an expression:
//
//	x => x.amount > 3
//	(x Sale) => x.Amount > 3m
//	(aggregate SaleAggregate, current Sale) => SaleAggregate{Count: aggregate.Count + 1}
//	first => SaleSummary(0.5m){TotalAmount: first.Amount}
//
// Members of a typed parameter resolve through the registry to their
// serialized names; members of an untyped parameter are used as written.
// Constructs, DateTime(y, m, d) and time("...") literals are recognized.
// Calls, indexing, array literals, default(T) and nested lambdas parse to
// the matching AST nodes so the compilers can reject them with a precise
// message.
package exprparse

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/docagg/internal/ast"
)

const (
	precLowest = iota
	precConditional
	precCoalesce
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precPower
	precPrefix
	precPostfix
)

var precedences = map[tokenType]int{
	tokQuestion: precConditional,
	tokCoalesce: precCoalesce,
	tokOr:       precOr,
	tokAnd:      precAnd,
	tokPipe:     precBitOr,
	tokCaret:    precBitXor,
	tokAmp:      precBitAnd,
	tokEq:       precEquality,
	tokNe:       precEquality,
	tokLt:       precRelational,
	tokLe:       precRelational,
	tokGt:       precRelational,
	tokGe:       precRelational,
	tokShl:      precShift,
	tokShr:      precShift,
	tokPlus:     precAdditive,
	tokMinus:    precAdditive,
	tokStar:     precMultiplicative,
	tokSlash:    precMultiplicative,
	tokPercent:  precMultiplicative,
	tokPower:    precPower,
	tokDot:      precPostfix,
	tokLBracket: precPostfix,
}

var binaryOps = map[tokenType]ast.BinaryOp{
	tokCoalesce: ast.OpCoalesce,
	tokOr:       ast.OpOr,
	tokAnd:      ast.OpAnd,
	tokPipe:     ast.OpBitOr,
	tokCaret:    ast.OpBitXor,
	tokAmp:      ast.OpBitAnd,
	tokEq:       ast.OpEq,
	tokNe:       ast.OpNe,
	tokLt:       ast.OpLt,
	tokLe:       ast.OpLe,
	tokGt:       ast.OpGt,
	tokGe:       ast.OpGe,
	tokShl:      ast.OpShl,
	tokShr:      ast.OpShr,
	tokPlus:     ast.OpAdd,
	tokMinus:    ast.OpSub,
	tokStar:     ast.OpMul,
	tokSlash:    ast.OpDiv,
	tokPercent:  ast.OpMod,
	tokPower:    ast.OpPow,
}

// expr is a parsed node with its document type, when known.
type expr struct {
	node ast.Node
	typ  *ast.TypeSchema
}

type binding struct {
	param *ast.Param
	typ   *ast.TypeSchema
}

type parser struct {
	lex    *lexer
	tok    token
	next   token
	reg    *ast.Registry
	scopes []map[string]binding
}

// Parse parses a lambda. defaults names the document type of each untyped
// parameter by position; an empty name leaves that parameter untyped.
func Parse(src string, reg *ast.Registry, defaults ...string) (lambda *ast.Lambda, err error) {
	if reg == nil {
		reg = ast.NewRegistry()
	}
	p := &parser{lex: newLexer(src), reg: reg}
	p.tok = p.lex.next()
	p.next = p.lex.next()

	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			lambda, err = nil, se
		}
	}()

	lambda = p.parseLambda(defaults)
	p.expect(tokEOF)
	return lambda, nil
}

// MustParse is Parse for expressions known to be valid, such as fixtures.
func MustParse(src string, reg *ast.Registry, defaults ...string) *ast.Lambda {
	l, err := Parse(src, reg, defaults...)
	if err != nil {
		panic(fmt.Sprintf("parse %q: %v", src, err))
	}
	return l
}

func (p *parser) fail(pos Position, format string, args ...any) {
	panic(&SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) advance() token {
	t := p.tok
	p.tok = p.next
	p.next = p.lex.next()
	if p.tok.Type == tokIllegal {
		p.fail(p.tok.Pos, "unexpected %q", p.tok.Literal)
	}
	return t
}

func (p *parser) expect(t tokenType) token {
	if p.tok.Type != t {
		p.fail(p.tok.Pos, "expected %s, found %s", describe(t), p.describeCurrent())
	}
	return p.advance()
}

func (p *parser) describeCurrent() string {
	if p.tok.Type == tokEOF {
		return "end of input"
	}
	return strconv.Quote(p.tok.Literal)
}

func describe(t tokenType) string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	default:
		return strconv.Quote(string(t))
	}
}

// parseLambda parses "x => body" or "(a T, b) => body".
func (p *parser) parseLambda(defaults []string) *ast.Lambda {
	if p.tok.Type == tokIllegal {
		p.fail(p.tok.Pos, "unexpected %q", p.tok.Literal)
	}

	type decl struct {
		name, typeName string
		pos            Position
	}
	var decls []decl

	switch p.tok.Type {
	case tokIdent:
		t := p.advance()
		decls = append(decls, decl{name: t.Literal, pos: t.Pos})
	case tokLParen:
		p.advance()
		for p.tok.Type != tokRParen {
			if len(decls) > 0 {
				p.expect(tokComma)
			}
			name := p.expect(tokIdent)
			d := decl{name: name.Literal, pos: name.Pos}
			if p.tok.Type == tokIdent {
				d.typeName = p.advance().Literal
			}
			decls = append(decls, d)
		}
		p.advance()
	default:
		p.fail(p.tok.Pos, "expected lambda parameters, found %s", p.describeCurrent())
	}
	p.expect(tokArrow)

	scope := make(map[string]binding, len(decls))
	lambda := &ast.Lambda{}
	for i, d := range decls {
		if _, dup := scope[d.name]; dup {
			p.fail(d.pos, "duplicate parameter %s", d.name)
		}
		typeName := d.typeName
		if typeName == "" && i < len(defaults) {
			typeName = defaults[i]
		}
		var typ *ast.TypeSchema
		if typeName != "" {
			t, ok := p.reg.Lookup(typeName)
			if !ok {
				p.fail(d.pos, "unknown type %s", typeName)
			}
			typ = t
		}
		param := &ast.Param{Slot: i, Name: d.name, TypeName: typeName}
		scope[d.name] = binding{param: param, typ: typ}
		lambda.Params = append(lambda.Params, param)
	}

	p.scopes = append(p.scopes, scope)
	lambda.Body = p.parseExpression(precLowest).node
	p.scopes = p.scopes[:len(p.scopes)-1]
	return lambda
}

func (p *parser) lookup(name string) (binding, bool) {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if b, ok := p.scopes[i][name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

func (p *parser) parseExpression(prec int) expr {
	left := p.parsePrefix()
	for {
		next, ok := precedences[p.tok.Type]
		if !ok || next <= prec {
			return left
		}
		left = p.parseInfix(left, next)
	}
}

func (p *parser) parseInfix(left expr, prec int) expr {
	op := p.advance()
	switch op.Type {
	case tokQuestion:
		ifTrue := p.parseExpression(precLowest)
		p.expect(tokColon)
		ifFalse := p.parseExpression(precConditional - 1)
		return expr{node: &ast.Conditional{Test: left.node, IfTrue: ifTrue.node, IfFalse: ifFalse.node}}
	case tokDot:
		name := p.expect(tokIdent)
		if p.tok.Type == tokLParen {
			return expr{node: &ast.Call{Receiver: left.node, Name: name.Literal, Args: p.parseArgs()}}
		}
		return p.member(left, name)
	case tokLBracket:
		index := p.parseExpression(precLowest)
		p.expect(tokRBracket)
		return expr{node: &ast.Index{Base: left.node, Index: index.node}}
	}

	// ?? and ** group to the right.
	rightPrec := prec
	if op.Type == tokCoalesce || op.Type == tokPower {
		rightPrec = prec - 1
	}
	right := p.parseExpression(rightPrec)
	return expr{node: &ast.Binary{Op: binaryOps[op.Type], Left: left.node, Right: right.node}}
}

// member resolves base.name against the base's document type.
func (p *parser) member(base expr, name token) expr {
	if base.typ == nil {
		return expr{node: &ast.Member{Base: base.node, Name: name.Literal, Kind: ast.KindUnknown}}
	}

	f, ok := base.typ.Field(name.Literal)
	if !ok {
		for _, candidate := range base.typ.Fields {
			if candidate.SerializedName() == name.Literal && !candidate.Ignore {
				f, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		p.fail(name.Pos, "type %s has no field %s", base.typ.Name, name.Literal)
	}
	if f.Ignore {
		p.fail(name.Pos, "field %s.%s is not serialized", base.typ.Name, f.Name)
	}

	m := &ast.Member{Base: base.node, Name: f.Name, JSONName: f.JSONName, Kind: f.Kind, TypeName: f.TypeName}
	var typ *ast.TypeSchema
	if f.Kind == ast.KindObject {
		typ, _ = p.reg.Lookup(f.TypeName)
	}
	return expr{node: m, typ: typ}
}

func (p *parser) parsePrefix() expr {
	t := p.tok
	switch t.Type {
	case tokInt, tokFloat, tokDecimal:
		p.advance()
		return expr{node: p.number(t, "")}
	case tokString:
		p.advance()
		s, err := strconv.Unquote(t.Literal)
		if err != nil {
			p.fail(t.Pos, "invalid string literal %s", t.Literal)
		}
		return expr{node: ast.StringLiteral(s)}
	case tokChar:
		p.advance()
		r, _, tail, err := strconv.UnquoteChar(t.Literal[1:len(t.Literal)-1], '\'')
		if err != nil || tail != "" {
			p.fail(t.Pos, "invalid character literal %s", t.Literal)
		}
		return expr{node: ast.CharLiteral(r)}
	case tokMinus:
		p.advance()
		if n := p.tok; n.Type == tokInt || n.Type == tokFloat || n.Type == tokDecimal {
			p.advance()
			return expr{node: p.number(n, "-")}
		}
		return expr{node: &ast.Unary{Op: ast.UnaryNegate, Operand: p.parseExpression(precPrefix).node}}
	case tokPlus:
		p.advance()
		operand := p.parseExpression(precPrefix)
		return expr{node: &ast.Unary{Op: ast.UnaryPlus, Operand: operand.node}, typ: operand.typ}
	case tokBang:
		p.advance()
		return expr{node: &ast.Unary{Op: ast.UnaryNot, Operand: p.parseExpression(precPrefix).node}}
	case tokLParen:
		p.advance()
		inner := p.parseExpression(precLowest)
		p.expect(tokRParen)
		return inner
	case tokLBracket:
		p.advance()
		var elems []ast.Node
		for p.tok.Type != tokRBracket {
			if len(elems) > 0 {
				p.expect(tokComma)
			}
			elems = append(elems, p.parseExpression(precLowest).node)
		}
		p.advance()
		return expr{node: &ast.ArrayInit{Elements: elems}}
	case tokIdent:
		return p.parseIdent()
	case tokEOF:
		p.fail(t.Pos, "unexpected end of input")
	}
	p.fail(t.Pos, "unexpected %s", p.describeCurrent())
	return expr{}
}

func (p *parser) parseIdent() expr {
	t := p.tok

	if p.next.Type == tokArrow {
		return expr{node: p.parseLambda(nil)}
	}
	p.advance()

	switch t.Literal {
	case "true":
		return expr{node: ast.BoolLiteral(true)}
	case "false":
		return expr{node: ast.BoolLiteral(false)}
	case "null":
		return expr{node: ast.NullLiteral()}
	}

	if b, ok := p.lookup(t.Literal); ok {
		return expr{node: b.param, typ: b.typ}
	}

	switch t.Literal {
	case "time":
		if p.tok.Type == tokLParen {
			return expr{node: p.timeLiteral(t)}
		}
	case "default":
		if p.tok.Type == tokLParen {
			p.advance()
			name := p.expect(tokIdent)
			p.expect(tokRParen)
			return expr{node: &ast.Default{TypeName: name.Literal}}
		}
	}

	if typ, ok := p.reg.Lookup(t.Literal); ok && (p.tok.Type == tokLParen || p.tok.Type == tokLBrace) {
		return p.construct(typ)
	}

	if p.tok.Type == tokLParen {
		return expr{node: &ast.Call{Name: t.Literal, Args: p.parseArgs()}}
	}
	p.fail(t.Pos, "unknown identifier %s", t.Literal)
	return expr{}
}

// construct parses T(args){Field: value, ...} with either part optional.
func (p *parser) construct(typ *ast.TypeSchema) expr {
	c := &ast.Construct{Type: typ}
	if p.tok.Type == tokLParen {
		c.Args = p.parseArgs()
	}
	if p.tok.Type == tokLBrace {
		p.advance()
		for p.tok.Type != tokRBrace {
			if len(c.Fields) > 0 {
				p.expect(tokComma)
				if p.tok.Type == tokRBrace {
					break
				}
			}
			name := p.expect(tokIdent)
			field := name.Literal
			if !typ.IsDateTime() {
				f, ok := typ.Field(field)
				if !ok {
					for _, candidate := range typ.Fields {
						if candidate.SerializedName() == field {
							f, ok = candidate, true
							break
						}
					}
				}
				if !ok {
					p.fail(name.Pos, "type %s has no field %s", typ.Name, field)
				}
				field = f.Name
			}
			p.expect(tokColon)
			c.Fields = append(c.Fields, ast.Assignment{Field: field, Value: p.parseExpression(precLowest).node})
		}
		p.advance()
	}
	return expr{node: c, typ: typ}
}

func (p *parser) parseArgs() []ast.Node {
	p.expect(tokLParen)
	var args []ast.Node
	for p.tok.Type != tokRParen {
		if len(args) > 0 {
			p.expect(tokComma)
		}
		args = append(args, p.parseExpression(precLowest).node)
	}
	p.advance()
	return args
}

// timeLiteral parses time("2024-01-02T03:04:05Z").
func (p *parser) timeLiteral(fn token) ast.Node {
	p.expect(tokLParen)
	arg := p.expect(tokString)
	p.expect(tokRParen)

	s, err := strconv.Unquote(arg.Literal)
	if err != nil {
		p.fail(arg.Pos, "invalid string literal %s", arg.Literal)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ast.DateTimeLiteral(t.UTC())
		}
	}
	p.fail(arg.Pos, "time(%s): not an RFC 3339 timestamp or date", arg.Literal)
	return nil
}

func (p *parser) number(t token, sign string) ast.Node {
	text := sign + t.Literal
	switch t.Type {
	case tokInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			p.fail(t.Pos, "integer literal %s is out of range", text)
		}
		return ast.IntLiteral(i)
	case tokFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.fail(t.Pos, "invalid number %s", text)
		}
		return ast.FloatLiteral(f)
	default:
		lit, err := ast.ParseDecimal(text)
		if err != nil {
			p.fail(t.Pos, "invalid decimal %s: %v", text, err)
		}
		return lit
	}
}
