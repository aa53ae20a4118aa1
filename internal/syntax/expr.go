package syntax

import (
	"slices"
	"strconv"
	"strings"
)

// Span is a half open range of byte offsets into the source text.
type Span struct {
	Start int // Offset of the first byte
	End   int // Offset one past the last byte
}

// Expr is a single node in an expression tree.
//
// The same tree shape carries values, types and the mixture of the two found in
// object literals like `{ "name": "bob", "age": u8 }`, it is the job of the
// spec package to decide what a given tree means in context.
type Expr interface {
	// Source returns the byte range the node was parsed from.
	Source() Span

	// String renders the node back to canonical source text.
	String() string

	expr()
}

// StringLit is a double quoted string literal.
type StringLit struct {
	Value string
	Span
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Text  string  // Raw text as written
	Value float64 // Parsed value
	Span
}

// IsInt reports whether the number was written without a fractional part.
func (n *NumberLit) IsInt() bool {
	return !strings.Contains(n.Text, ".")
}

// BoolLit is one of `true` or `false`.
type BoolLit struct {
	Value bool
	Span
}

// NullLit is the literal `null`, the absence of a value.
type NullLit struct {
	Span
}

// Word is a bare word with no other meaning, e.g. the APP in `FROM: APP`, it
// evaluates to it's own text.
type Word struct {
	Value string
	Span
}

// TypeName is a primitive type marker e.g. `str` or `u16`.
type TypeName struct {
	Name string
	Span
}

// Wildcard is the `*` type slot.
type Wildcard struct {
	Span
}

// VarRef is a reference to a variable, optionally selecting a field path
// e.g. `@BASERES.code`.
type VarRef struct {
	Name string
	Path []string
	Span
}

// ThisRef is a reference to the response payload, optionally selecting a
// field path e.g. `this.usertoken`.
type ThisRef struct {
	Path []string
	Span
}

// Call is a call to a named built in function e.g. `random(1, 2)`.
type Call struct {
	Name string
	Args []Expr
	Span
}

// Unary is a prefix operator applied to an operand, e.g. `!x` or `-1`.
type Unary struct {
	X  Expr
	Op string
	Span
}

// Binary is an infix operator applied to two operands.
type Binary struct {
	Left  Expr
	Right Expr
	Op    string
	Span
}

// Field is a single key in an [ObjectLit].
type Field struct {
	Value    Expr   // The field's value, type or mixture
	Key      string // The key, with any quotes removed
	Nullable bool   // Whether the value was marked with a trailing '?'
	Span
}

// ObjectLit is an ordered collection of fields.
type ObjectLit struct {
	Fields []Field
	Span
}

// Get returns the field with the given key.
func (o *ObjectLit) Get(key string) (Field, bool) {
	for _, field := range o.Fields {
		if field.Key == key {
			return field, true
		}
	}

	return Field{}, false
}

// ArrayLit is a bracketed list of items, as a type it holds a single item,
// the element type, e.g. `[@collect]`.
type ArrayLit struct {
	Items []Expr
	Span
}

// Part is a single chunk of a [Template], either literal text or a
// variable interpolation.
type Part struct {
	Text string // Literal text, empty when Var is set
	Var  string // Name of the interpolated variable
}

// Template is free text with embedded `@name` variable references, used in
// request paths and header values.
type Template struct {
	Parts []Part
	Span
}

// Vars returns the names of the variables interpolated in the template, in order.
func (t *Template) Vars() []string {
	var vars []string
	for _, part := range t.Parts {
		if part.Var != "" {
			vars = append(vars, part.Var)
		}
	}

	return vars
}

// Source implementations.
func (s Span) Source() Span { return s }

func (*StringLit) expr() {}
func (*NumberLit) expr() {}
func (*BoolLit) expr()   {}
func (*NullLit) expr()   {}
func (*Word) expr()      {}
func (*TypeName) expr()  {}
func (*Wildcard) expr()  {}
func (*VarRef) expr()    {}
func (*ThisRef) expr()   {}
func (*Call) expr()      {}
func (*Unary) expr()     {}
func (*Binary) expr()    {}
func (*ObjectLit) expr() {}
func (*ArrayLit) expr()  {}
func (*Template) expr()  {}

func (s *StringLit) String() string { return `"` + s.Value + `"` }
func (n *NumberLit) String() string { return n.Text }
func (b *BoolLit) String() string   { return strconv.FormatBool(b.Value) }
func (*NullLit) String() string     { return "null" }
func (w *Word) String() string      { return w.Value }
func (t *TypeName) String() string  { return t.Name }
func (*Wildcard) String() string    { return "*" }

func (v *VarRef) String() string {
	return "@" + strings.Join(append([]string{v.Name}, v.Path...), ".")
}

func (t *ThisRef) String() string {
	return strings.Join(append([]string{"this"}, t.Path...), ".")
}

func (c *Call) String() string {
	args := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		args = append(args, arg.String())
	}

	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

func (u *Unary) String() string {
	if _, ok := u.X.(*Binary); ok {
		return u.Op + "(" + u.X.String() + ")"
	}
	return u.Op + u.X.String()
}

func (b *Binary) String() string {
	left := b.Left.String()
	if l, ok := b.Left.(*Binary); ok && bindingPower(l.Op) < bindingPower(b.Op) {
		left = "(" + left + ")"
	}

	// Operators are left associative so an equal power on the right needs grouping
	right := b.Right.String()
	if r, ok := b.Right.(*Binary); ok && bindingPower(r.Op) <= bindingPower(b.Op) {
		right = "(" + right + ")"
	}

	return left + " " + b.Op + " " + right
}

// bindingPower returns how tightly a binary operator binds, higher is tighter.
func bindingPower(op string) int {
	switch op {
	case "||":
		return 1
	case "&&":
		return 2
	case "==", "!=":
		return 3
	default:
		return 4
	}
}

func (o *ObjectLit) String() string {
	if len(o.Fields) == 0 {
		return "{}"
	}

	fields := make([]string, 0, len(o.Fields))
	for _, field := range o.Fields {
		s := strconv.Quote(field.Key) + ": " + field.Value.String()
		if field.Nullable {
			s += "?"
		}
		fields = append(fields, s)
	}

	return "{ " + strings.Join(fields, ", ") + " }"
}

func (a *ArrayLit) String() string {
	items := make([]string, 0, len(a.Items))
	for _, item := range a.Items {
		items = append(items, item.String())
	}

	return "[" + strings.Join(items, ", ") + "]"
}

func (t *Template) String() string {
	var s strings.Builder
	for _, part := range t.Parts {
		if part.Var != "" {
			s.WriteString("@" + part.Var)
			continue
		}
		s.WriteString(part.Text)
	}

	return s.String()
}

// Walk traverses an expression tree depth first in source order, calling fn for
// each node. If fn returns false, the children of that node are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}

	switch node := e.(type) {
	case *Call:
		for _, arg := range node.Args {
			Walk(arg, fn)
		}
	case *Unary:
		Walk(node.X, fn)
	case *Binary:
		Walk(node.Left, fn)
		Walk(node.Right, fn)
	case *ObjectLit:
		for _, field := range node.Fields {
			Walk(field.Value, fn)
		}
	case *ArrayLit:
		for _, item := range node.Items {
			Walk(item, fn)
		}
	}
}

// primitives is the set of primitive type names.
var primitives = []string{
	"str", "bool", "num", "array",
	"u8", "u16", "u32", "u64",
	"i8", "i16", "i32", "i64",
	"f16", "f32", "f64",
}

// IsPrimitive reports whether name is a primitive type name.
func IsPrimitive(name string) bool {
	return slices.Contains(primitives, name)
}
