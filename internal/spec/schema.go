package spec

import (
	"fmt"
	"strconv"
	"strings"

	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// Kind is the kind of a [Schema] node.
type Kind int

const (
	KindValue    Kind = iota // A fixed value or expression, evaluated rather than generated
	KindString               // str
	KindBool                 // bool
	KindNumber               // num, any number
	KindInt                  // Sized integers e.g. u8, i32
	KindFloat                // Sized floats e.g. f32
	KindObject               // An ordered set of named fields
	KindArray                // A sequence of Elem
	KindWildcard             // The '*' slot in @BASERES
)

// String implements [fmt.Stringer] for a [Kind].
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindWildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Schema is a resolved type tree. Named references have been replaced by the
// tree of the declaration they refer to.
type Schema struct {
	Value  syntax.Expr            // The expression for a KindValue schema
	Elem   *Schema                // Element schema of a KindArray
	Mock   map[string]syntax.Expr // Per field mock generators of a KindObject, keyed by field name
	Ref    string                 // Name of the declaration this schema came from, if any
	Type   string                 // Primitive type name as written e.g. "u16"
	Fields []Field                // Fields of a KindObject in declaration order
	Kind   Kind                   // What sort of schema this is
	Bits   int                    // Bit width of a sized KindInt or KindFloat, 0 if unsized
	Signed bool                   // Whether a KindInt is signed
}

// Field is a single named field in an object [Schema].
type Field struct {
	Schema   *Schema // The field's type
	Name     string  // The field name
	Nullable bool    // Whether the field was marked with '?'
}

// Field returns the named field of an object schema.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}

	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}

	return Field{}, false
}

// Range returns the inclusive bounds of a sized integer schema.
func (s *Schema) Range() (lo, hi int64) {
	bits := s.Bits
	if bits == 0 || bits > 63 {
		// Clamp so everything fits in an int64, u64 and i64 still get an enormous range
		bits = 63
	}

	if s.Signed {
		return -(1 << (bits - 1)), (1 << (bits - 1)) - 1
	}

	return 0, (1 << bits) - 1
}

// String implements [fmt.Stringer] for a [Schema], rendering it in the
// same notation it is written in.
func (s *Schema) String() string {
	if s == nil {
		return "null"
	}

	switch s.Kind {
	case KindValue:
		return s.Value.String()
	case KindWildcard:
		return "*"
	case KindArray:
		return "[" + s.Elem.String() + "]"
	case KindObject:
		if len(s.Fields) == 0 {
			return "{}"
		}

		fields := make([]string, 0, len(s.Fields))
		for _, field := range s.Fields {
			text := strconv.Quote(field.Name) + ": " + field.Schema.String()
			if field.Nullable {
				text += "?"
			}
			fields = append(fields, text)
		}
		return "{ " + strings.Join(fields, ", ") + " }"
	default:
		return s.Type
	}
}

// primitive returns the schema for a primitive type name.
func (r *resolver) primitive(name string) (*Schema, error) {
	schema := &Schema{Type: name}

	switch name {
	case "str":
		schema.Kind = KindString
	case "bool":
		schema.Kind = KindBool
	case "num":
		schema.Kind = KindNumber
	case "array":
		schema.Kind = KindArray
		schema.Elem = &Schema{Kind: KindString, Type: "str"}
	default:
		// Sized numbers e.g. u8, i64, f32
		if len(name) < 2 || !strings.ContainsRune("uif", rune(name[0])) {
			return nil, r.errorf("unknown type %s", name)
		}

		bits, err := strconv.Atoi(name[1:])
		if err != nil || bits <= 0 {
			return nil, r.errorf("unknown type %s", name)
		}

		schema.Bits = bits
		switch name[0] {
		case 'u':
			schema.Kind = KindInt
		case 'i':
			schema.Kind = KindInt
			schema.Signed = true
		case 'f':
			schema.Kind = KindFloat
		}
	}

	return schema, nil
}

// wildcards returns the field paths of every wildcard slot in s.
func wildcards(s *Schema, path []string) [][]string {
	switch s.Kind {
	case KindWildcard:
		return [][]string{path}
	case KindObject:
		var found [][]string
		for _, field := range s.Fields {
			found = append(found, wildcards(field.Schema, append(path[:len(path):len(path)], field.Name))...)
		}
		return found
	default:
		return nil
	}
}

// substitute returns a copy of s with the schema at path replaced by with, the
// original is left untouched.
func substitute(s *Schema, path []string, with *Schema) *Schema {
	if len(path) == 0 {
		return with
	}

	out := *s
	out.Fields = make([]Field, len(s.Fields))
	copy(out.Fields, s.Fields)

	for i, field := range out.Fields {
		if field.Name == path[0] {
			out.Fields[i].Schema = substitute(field.Schema, path[1:], with)
		}
	}

	return &out
}

// mismatch reports whether a literal value is incompatible with the declared schema.
//
// Only literals are checked, anything else is only known when evaluated.
func mismatch(schema *Schema, value syntax.Expr) bool {
	switch v := value.(type) {
	case *syntax.StringLit:
		return schema.Kind != KindString
	case *syntax.BoolLit:
		return schema.Kind != KindBool
	case *syntax.NumberLit:
		switch schema.Kind {
		case KindNumber, KindFloat:
			return false
		case KindInt:
			return !v.IsInt()
		default:
			return true
		}
	case *syntax.ObjectLit:
		return schema.Kind != KindObject
	case *syntax.ArrayLit:
		return schema.Kind != KindArray
	default:
		return false
	}
}
