package scriptgen

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/docagg/internal/ast"
)

// renderLiteral returns the script source for a literal value. Numbers of
// float and decimal kind always carry a fraction so they round-trip as
// non-integers.
func renderLiteral(lit *ast.Literal) (string, error) {
	switch lit.Kind {
	case ast.KindNull:
		return "null", nil
	case ast.KindBool:
		return strconv.FormatBool(lit.Value.(bool)), nil
	case ast.KindInt:
		return strconv.FormatInt(lit.Value.(int64), 10), nil
	case ast.KindFloat:
		f := lit.Value.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", ast.Errorf("float literal %v has no script representation", f)
		}
		return withFraction(strconv.FormatFloat(f, 'g', -1, 64)), nil
	case ast.KindDecimal:
		d := lit.Value.(*apd.Decimal)
		if d.Form != apd.Finite {
			return "", ast.Errorf("decimal literal %s has no script representation", d)
		}
		return withFraction(d.Text('f')), nil
	case ast.KindString:
		return quote(lit.Value.(string))
	case ast.KindChar:
		return quote(string(lit.Value.(rune)))
	case ast.KindDateTime:
		return quote(ast.FormatDateTime(lit.Value.(time.Time)))
	default:
		return "", ast.Errorf("unsupported expression: %s literal", lit.Kind)
	}
}

func withFraction(s string) string {
	if strings.ContainsAny(s, ".eE") {
		return s
	}
	return s + ".0"
}

// quote renders s as a JSON string literal.
// Strings are NFC normalized at this serialization boundary.
func quote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
