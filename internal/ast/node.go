package ast

import "fmt"

// Node is an expression in a pipeline stage.
//
// This is a sealed interface - only types in this package implement it.
// Compilers switch over the concrete variants and must treat any variant they
// do not accept as a compile error.
//
// Accepted by the compilers:
//   - Literal: constant value
//   - Member: field access on a parameter, another member, or a construct
//   - Binary: arithmetic, bitwise, logical, coalesce and comparison operators
//   - Conditional: test ? ifTrue : ifFalse
//   - Unary: only the Convert, Quote and Plus forms, which are erased
//   - Construct: object construction with literal constructor arguments
//   - Param: reference to a lambda parameter by slot
//
// Always rejected, present so that front ends can represent them faithfully:
//   - Call, Lambda, ArrayInit, Index, Default, MemberBind
type Node interface {
	node() // Marker method - seals interface to this package
}

// Literal is a constant value.
//
// Value holds bool, int64, float64, *apd.Decimal, string, rune or time.Time
// according to Kind, and nil for KindNull.
type Literal struct {
	Value any
	Kind  Kind
}

// Member is a field access such as current.storeId.
//
// Name is the member name as written in the expression. JSONName is the
// serialized name when the field declares one. Kind and TypeName come from
// the schema of Base when it is known; an untyped base yields KindUnknown.
type Member struct {
	Base     Node
	Name     string
	JSONName string
	Kind     Kind
	TypeName string
}

// SerializedName returns the name under which the member appears in stored
// documents.
func (m *Member) SerializedName() string {
	if m.JSONName != "" {
		return m.JSONName
	}
	return m.Name
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpAnd
	OpOr
	OpCoalesce
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binaryOpSymbols = [...]string{
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpMod:      "%",
	OpPow:      "**",
	OpBitAnd:   "&",
	OpBitOr:    "|",
	OpBitXor:   "^",
	OpShl:      "<<",
	OpShr:      ">>",
	OpAnd:      "&&",
	OpOr:       "||",
	OpCoalesce: "??",
	OpEq:       "==",
	OpNe:       "!=",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
}

// Symbol returns the operator as written in expressions.
func (op BinaryOp) Symbol() string {
	if op < 0 || int(op) >= len(binaryOpSymbols) {
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
	return binaryOpSymbols[op]
}

func (op BinaryOp) String() string { return op.Symbol() }

// IsComparison reports whether op yields a boolean from two operands.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports whether op is && or ||.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// Binary applies Op to Left and Right.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// Conditional is the ternary operator.
type Conditional struct {
	Test    Node
	IfTrue  Node
	IfFalse Node
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	UnaryConvert UnaryOp = iota
	UnaryQuote
	UnaryPlus
	UnaryNegate
	UnaryNot
)

var unaryOpNames = [...]string{
	UnaryConvert: "convert",
	UnaryQuote:   "quote",
	UnaryPlus:    "unary plus",
	UnaryNegate:  "negate",
	UnaryNot:     "not",
}

func (op UnaryOp) String() string {
	if op < 0 || int(op) >= len(unaryOpNames) {
		return fmt.Sprintf("UnaryOp(%d)", int(op))
	}
	return unaryOpNames[op]
}

// Passthrough reports whether the operator leaves its operand unchanged once
// serialized. Passthrough nodes are unwrapped by the compilers.
func (op UnaryOp) Passthrough() bool {
	return op == UnaryConvert || op == UnaryQuote || op == UnaryPlus
}

// Unary applies Op to Operand.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

// Construct builds an instance of Type.
//
// Args are positional constructor arguments; compilers accept only literals.
// Fields assigns member values in the order they were written and overrides
// the defaults of the constructed instance.
type Construct struct {
	Type   *TypeSchema
	Args   []Node
	Fields []Assignment
}

// Assignment binds a member (by member name) to an expression.
type Assignment struct {
	Field string
	Value Node
}

// Assigned returns the expression bound to field, if any.
func (c *Construct) Assigned(field string) (Node, bool) {
	for _, a := range c.Fields {
		if a.Field == field {
			return a.Value, true
		}
	}
	return nil, false
}

// Param references a lambda parameter.
//
// Slot 0 is the first parameter (row, first, aggregate) and slot 1 the
// second (current) when a stage takes two. Name and TypeName record how the
// parameter was declared; compilers render their own parameter names.
type Param struct {
	Slot     int
	Name     string
	TypeName string
}

// Lambda is the payload of a pipeline stage, and is rejected when it appears
// nested inside another expression.
type Lambda struct {
	Params []*Param
	Body   Node
}

// Call is a function or method call.
type Call struct {
	Receiver Node // nil for free functions
	Name     string
	Args     []Node
}

// ArrayInit is an array or list literal.
type ArrayInit struct {
	Elements []Node
}

// Index is element access by index.
type Index struct {
	Base  Node
	Index Node
}

// Default is the default value of a type.
type Default struct {
	TypeName string
}

// MemberBind assigns the members of a nested member instead of replacing it.
type MemberBind struct {
	Field    string
	Bindings []Assignment
}

func (*Literal) node()     {}
func (*Member) node()      {}
func (*Binary) node()      {}
func (*Conditional) node() {}
func (*Unary) node()       {}
func (*Construct) node()   {}
func (*Param) node()       {}
func (*Lambda) node()      {}
func (*Call) node()        {}
func (*ArrayInit) node()   {}
func (*Index) node()       {}
func (*Default) node()     {}
func (*MemberBind) node()  {}

// NodeName returns a readable name for the variant of n.
func NodeName(n Node) string {
	switch v := n.(type) {
	case nil:
		return "empty expression"
	case *Literal:
		return v.Kind.String() + " literal"
	case *Member:
		return "member access"
	case *Binary:
		return "binary " + v.Op.Symbol()
	case *Conditional:
		return "conditional"
	case *Unary:
		return v.Op.String()
	case *Construct:
		return "construct"
	case *Param:
		return "parameter"
	case *Lambda:
		return "lambda"
	case *Call:
		return "method call"
	case *ArrayInit:
		return "array initializer"
	case *Index:
		return "index access"
	case *Default:
		return "default value"
	case *MemberBind:
		return "member binding"
	default:
		return fmt.Sprintf("%T", n)
	}
}

// Unwrap strips passthrough unary nodes.
func Unwrap(n Node) Node {
	for {
		u, ok := n.(*Unary)
		if !ok || !u.Op.Passthrough() {
			return n
		}
		n = u.Operand
	}
}

// IsBoolean reports whether n can be used as a filter condition. Members of
// unknown kind are accepted since their type cannot be checked.
func IsBoolean(n Node) bool {
	switch v := Unwrap(n).(type) {
	case *Binary:
		if v.Op == OpCoalesce {
			return IsBoolean(v.Left) && IsBoolean(v.Right)
		}
		return v.Op.IsComparison() || v.Op.IsLogical()
	case *Literal:
		return v.Kind == KindBool
	case *Member:
		return v.Kind == KindBool || v.Kind == KindUnknown
	case *Conditional:
		return IsBoolean(v.IfTrue) && IsBoolean(v.IfFalse)
	}
	return false
}
