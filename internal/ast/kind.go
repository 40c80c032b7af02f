package ast

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Kind classifies the value a literal holds or a field stores.
type Kind int

const (
	KindUnknown Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindChar
	KindDateTime
	KindObject
	KindArray
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindNull:     "null",
	KindBool:     "bool",
	KindInt:      "int",
	KindFloat:    "float",
	KindDecimal:  "decimal",
	KindString:   "string",
	KindChar:     "char",
	KindDateTime: "datetime",
	KindObject:   "object",
	KindArray:    "array",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a kind name as written in pipeline definitions to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown kind %q", s)
}

// IsScalar reports whether values of this kind are primitive, string or
// decimal. Only scalar fields may be used as sort and grouping keys.
func (k Kind) IsScalar() bool {
	switch k {
	case KindBool, KindInt, KindFloat, KindDecimal, KindString, KindChar:
		return true
	}
	return false
}

// IsNumeric reports whether the kind is Int, Float or Decimal.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat || k == KindDecimal
}

// nullable kinds accept a null default.
func (k Kind) nullable() bool {
	switch k {
	case KindString, KindObject, KindArray, KindNull, KindUnknown:
		return true
	}
	return false
}

// NullLiteral returns the null literal.
func NullLiteral() *Literal { return &Literal{Kind: KindNull} }

// BoolLiteral returns a boolean literal.
func BoolLiteral(b bool) *Literal { return &Literal{Value: b, Kind: KindBool} }

// IntLiteral returns an integer literal.
func IntLiteral(i int64) *Literal { return &Literal{Value: i, Kind: KindInt} }

// FloatLiteral returns a floating point literal.
func FloatLiteral(f float64) *Literal { return &Literal{Value: f, Kind: KindFloat} }

// StringLiteral returns a string literal.
func StringLiteral(s string) *Literal { return &Literal{Value: s, Kind: KindString} }

// CharLiteral returns a single-character literal.
func CharLiteral(r rune) *Literal { return &Literal{Value: r, Kind: KindChar} }

// DateTimeLiteral returns a date-time literal.
func DateTimeLiteral(t time.Time) *Literal { return &Literal{Value: t, Kind: KindDateTime} }

// DecimalLiteral returns a decimal literal holding d.
func DecimalLiteral(d *apd.Decimal) *Literal { return &Literal{Value: d, Kind: KindDecimal} }

// ParseDecimal parses s into a decimal literal.
func ParseDecimal(s string) (*Literal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return DecimalLiteral(d), nil
}

// MustDecimal is ParseDecimal for constants known to be valid.
func MustDecimal(s string) *Literal {
	lit, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return lit
}

// ZeroLiteral returns the value an unset field of kind k serializes as.
func ZeroLiteral(k Kind) *Literal {
	switch k {
	case KindBool:
		return BoolLiteral(false)
	case KindInt:
		return IntLiteral(0)
	case KindFloat:
		return FloatLiteral(0)
	case KindDecimal:
		return DecimalLiteral(apd.New(0, 0))
	case KindChar:
		return CharLiteral(0)
	case KindDateTime:
		return DateTimeLiteral(time.Time{}.UTC())
	default:
		return NullLiteral()
	}
}

// LiteralOf converts a decoded configuration value (as produced by JSON, YAML
// or CUE decoding) into a literal of kind k.
func LiteralOf(k Kind, v any) (*Literal, error) {
	if v == nil {
		if !k.nullable() {
			return nil, fmt.Errorf("%s cannot be null", k)
		}
		return NullLiteral(), nil
	}

	switch k {
	case KindBool:
		if b, ok := v.(bool); ok {
			return BoolLiteral(b), nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return IntLiteral(int64(n)), nil
		case int64:
			return IntLiteral(n), nil
		case float64:
			if n == math.Trunc(n) {
				return IntLiteral(int64(n)), nil
			}
		}
	case KindFloat:
		switch n := v.(type) {
		case int:
			return FloatLiteral(float64(n)), nil
		case int64:
			return FloatLiteral(float64(n)), nil
		case float64:
			return FloatLiteral(n), nil
		}
	case KindDecimal:
		switch n := v.(type) {
		case int:
			return DecimalLiteral(apd.New(int64(n), 0)), nil
		case int64:
			return DecimalLiteral(apd.New(n, 0)), nil
		case float64:
			return ParseDecimal(strconv.FormatFloat(n, 'f', -1, 64))
		case string:
			return ParseDecimal(n)
		}
	case KindString:
		if s, ok := v.(string); ok {
			return StringLiteral(s), nil
		}
	case KindChar:
		if s, ok := v.(string); ok {
			r := []rune(s)
			if len(r) == 1 {
				return CharLiteral(r[0]), nil
			}
		}
	case KindDateTime:
		switch t := v.(type) {
		case time.Time:
			return DateTimeLiteral(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("invalid datetime %q: %w", t, err)
			}
			return DateTimeLiteral(parsed), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T value %v as %s", v, v, k)
}

// Coerce widens an integer literal to a float or decimal field kind so that
// defaults render with the field's numeric form.
func Coerce(lit *Literal, k Kind) (*Literal, error) {
	if lit.Kind == k || lit.Kind == KindNull && k.nullable() {
		return lit, nil
	}
	if lit.Kind == KindInt {
		n := lit.Value.(int64)
		switch k {
		case KindFloat:
			return FloatLiteral(float64(n)), nil
		case KindDecimal:
			return DecimalLiteral(apd.New(n, 0)), nil
		}
	}
	return nil, fmt.Errorf("%s literal is not assignable to a %s field", lit.Kind, k)
}

// DateTimeLayout is the round-trippable ISO-8601 form date-times are
// serialized in: seven fractional digits and an explicit offset.
const DateTimeLayout = "2006-01-02T15:04:05.0000000Z07:00"

// FormatDateTime renders t in DateTimeLayout.
func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}
