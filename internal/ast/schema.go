package ast

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// identifierPattern matches names that can be emitted verbatim as dotted
// paths in both the query language and generated scripts.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Field describes one member of a document type.
type Field struct {
	Name     string   // member name used in expressions
	JSONName string   // serialized name; empty means Name
	Kind     Kind     // value kind
	TypeName string   // document type of an object field
	Default  *Literal // value of a default instance; nil means the kind's zero value
	Ignore   bool     // excluded from serialization
}

// SerializedName returns the name the field is stored under.
func (f Field) SerializedName() string {
	if f.JSONName != "" {
		return f.JSONName
	}
	return f.Name
}

// DefaultLiteral returns the value of the field on a default instance.
func (f Field) DefaultLiteral() *Literal {
	if f.Default != nil {
		return f.Default
	}
	return ZeroLiteral(f.Kind)
}

// Constructor assigns positional literal arguments to the named fields.
type Constructor struct {
	Params []string
}

// TypeSchema is the explicit description of a document type.
//
// A schema is immutable once created by NewType. The serializable field list
// is computed at creation and reused by every compilation.
type TypeSchema struct {
	Name         string
	Fields       []Field
	Constructors []Constructor

	serializable []Field
	index        map[string]int
	builtin      bool
}

// DateTimeType is the built-in calendar type. DateTime(year, month, day)
// constructs midnight UTC of that date; a six argument form adds hour, minute
// and second.
var DateTimeType = &TypeSchema{
	Name:    "DateTime",
	index:   map[string]int{},
	builtin: true,
}

// NewType validates a type description and returns its schema.
func NewType(name string, fields []Field, ctors ...Constructor) (*TypeSchema, error) {
	if !identifierPattern.MatchString(name) {
		return nil, fmt.Errorf("type name %q is not an identifier", name)
	}

	t := &TypeSchema{
		Name:         name,
		Fields:       make([]Field, 0, len(fields)),
		Constructors: ctors,
		index:        make(map[string]int, len(fields)),
	}
	serialized := make(map[string]string)

	for _, f := range fields {
		if !identifierPattern.MatchString(f.Name) {
			return nil, fmt.Errorf("type %s: field name %q is not an identifier", name, f.Name)
		}
		if _, dup := t.index[f.Name]; dup {
			return nil, fmt.Errorf("type %s: duplicate field %s", name, f.Name)
		}
		switch f.Kind {
		case KindUnknown, KindNull:
			return nil, fmt.Errorf("type %s: field %s has no kind", name, f.Name)
		case KindObject:
			if f.TypeName == "" {
				return nil, fmt.Errorf("type %s: object field %s needs a type", name, f.Name)
			}
		}
		if f.Default != nil {
			if f.Kind == KindObject || f.Kind == KindArray {
				if f.Default.Kind != KindNull {
					return nil, fmt.Errorf("type %s: field %s: only null defaults are supported for %s fields", name, f.Name, f.Kind)
				}
			}
			lit, err := Coerce(f.Default, f.Kind)
			if err != nil {
				return nil, fmt.Errorf("type %s: field %s: %w", name, f.Name, err)
			}
			f.Default = lit
		}

		t.index[f.Name] = len(t.Fields)
		t.Fields = append(t.Fields, f)
		if f.Ignore {
			continue
		}

		sn := f.SerializedName()
		if !identifierPattern.MatchString(sn) {
			return nil, fmt.Errorf("type %s: serialized name %q of field %s is not an identifier", name, sn, f.Name)
		}
		if other, dup := serialized[sn]; dup {
			return nil, fmt.Errorf("type %s: fields %s and %s both serialize as %q", name, other, f.Name, sn)
		}
		serialized[sn] = f.Name
		t.serializable = append(t.serializable, f)
	}

	arities := make(map[int]bool)
	for _, c := range ctors {
		if arities[len(c.Params)] {
			return nil, fmt.Errorf("type %s: more than one constructor takes %d arguments", name, len(c.Params))
		}
		arities[len(c.Params)] = true
		for _, p := range c.Params {
			if _, ok := t.index[p]; !ok {
				return nil, fmt.Errorf("type %s: constructor parameter %s is not a field", name, p)
			}
		}
	}

	return t, nil
}

// MustType is NewType for schemas known to be valid, such as test fixtures.
func MustType(name string, fields []Field, ctors ...Constructor) *TypeSchema {
	t, err := NewType(name, fields, ctors...)
	if err != nil {
		panic(err)
	}
	return t
}

// Field looks up a field by member name.
func (t *TypeSchema) Field(name string) (Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// Serializable returns the non-ignored fields in declaration order.
func (t *TypeSchema) Serializable() []Field {
	return t.serializable
}

// Constructor returns the constructor taking n arguments. The parameterless
// constructor always exists.
func (t *TypeSchema) Constructor(n int) (Constructor, bool) {
	if n == 0 {
		return Constructor{}, true
	}
	for _, c := range t.Constructors {
		if len(c.Params) == n {
			return c, true
		}
	}
	return Constructor{}, false
}

// IsDateTime reports whether t is the built-in DateTime type.
func (t *TypeSchema) IsDateTime() bool {
	return t != nil && t.builtin && t.Name == DateTimeType.Name
}

// DateFromArgs interprets DateTime constructor arguments. It accepts three
// (year, month, day) or six (plus hour, minute, second) integer literals.
func DateFromArgs(args []Node) (time.Time, bool) {
	if len(args) != 3 && len(args) != 6 {
		return time.Time{}, false
	}
	parts := make([]int, 6)
	for i, a := range args {
		lit, ok := Unwrap(a).(*Literal)
		if !ok || lit.Kind != KindInt {
			return time.Time{}, false
		}
		parts[i] = int(lit.Value.(int64))
	}
	t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
	if t.Year() != parts[0] || int(t.Month()) != parts[1] || t.Day() != parts[2] {
		return time.Time{}, false
	}
	return t, true
}

// Registry holds the document types a pipeline may reference by name.
type Registry struct {
	types map[string]*TypeSchema
}

// NewRegistry returns a registry containing only the built-in types.
func NewRegistry() *Registry {
	return &Registry{
		types: map[string]*TypeSchema{DateTimeType.Name: DateTimeType},
	}
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t *TypeSchema) error {
	if t == nil {
		return fmt.Errorf("cannot register nil type")
	}
	if _, dup := r.types[t.Name]; dup {
		return fmt.Errorf("type %s is already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*TypeSchema, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check verifies that every object field refers to a registered type.
func (r *Registry) Check() error {
	for _, name := range r.Names() {
		for _, f := range r.types[name].Fields {
			if f.Kind != KindObject {
				continue
			}
			if _, ok := r.types[f.TypeName]; !ok {
				return fmt.Errorf("type %s: field %s refers to unknown type %s", name, f.Name, f.TypeName)
			}
		}
	}
	return nil
}
