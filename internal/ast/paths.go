package ast

import "strings"

// MemberPath returns the serialized dotted path of a member chain rooted at
// the parameter in slot. For row.store.id it returns "store.id".
func MemberPath(n Node, slot int) (string, error) {
	var parts []string
	for {
		switch v := Unwrap(n).(type) {
		case *Member:
			parts = append(parts, v.SerializedName())
			n = v.Base
		case *Param:
			if v.Slot != slot {
				return "", Errorf("member path must start at parameter %d, found parameter %d", slot, v.Slot)
			}
			if len(parts) == 0 {
				return "", Errorf("expected a member of the parameter, found the parameter itself")
			}
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return strings.Join(parts, "."), nil
		default:
			return "", Unsupported(v)
		}
	}
}

// KeyPaths walks a group key selector and returns the serialized paths of
// the fields it selects, de-duplicated in first-seen order.
//
// The body must be a member chain, or a construct whose field assignments are
// member chains or nested constructs. Constructor arguments are rejected and
// every selected leaf must be a scalar field.
func KeyPaths(fn *Lambda) ([]string, error) {
	if fn == nil {
		return nil, nil
	}
	if len(fn.Params) != 1 {
		return nil, Errorf("group key must take exactly one parameter, got %d", len(fn.Params))
	}

	var paths []string
	seen := make(map[string]bool)
	var visit func(n Node) error
	visit = func(n Node) error {
		switch v := Unwrap(n).(type) {
		case *Member:
			if v.Kind != KindUnknown && !v.Kind.IsScalar() {
				return Errorf("group key field %s has non-scalar kind %s", v.Name, v.Kind)
			}
			path, err := MemberPath(v, 0)
			if err != nil {
				return err
			}
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
			return nil
		case *Construct:
			if len(v.Args) > 0 {
				return Errorf("group key construct cannot take constructor arguments")
			}
			for _, a := range v.Fields {
				if err := visit(a.Value); err != nil {
					return err
				}
			}
			return nil
		default:
			return Unsupported(v)
		}
	}

	if err := visit(fn.Body); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, Errorf("group key selects no fields")
	}
	return paths, nil
}
