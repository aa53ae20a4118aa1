package spec

import (
	"fmt"
	"slices"
	"strings"

	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// Range is the span of an endpoint block in the source, from the opening
// separator to the closing one.
type Range struct {
	Start syntax.Position `json:"start"`
	End   syntax.Position `json:"end"`
}

// Header is a single request header whose value is an expression, either a
// template from the endpoint's own header lines or a field of @HEADERS.
type Header struct {
	Value syntax.Expr // The value to be evaluated
	Key   string      // The header name
}

// Variable is a declared variable, global or local to an endpoint.
type Variable struct {
	Type  *Schema         // Declared type, nil if not given
	Value syntax.Expr     // Declared value, nil if not given
	Name  string          // Name without the '@'
	Pos   syntax.Position // Where it was declared
}

// Mock is a resolved MOCK directive.
type Mock struct {
	Request  *Schema           // The mocked request, nil if not given
	Response *syntax.ObjectLit // Field overrides for the generated response
}

// An Endpoint represents a single endpoint block described in a [Document].
type Endpoint struct {
	// Any schema error found while resolving this endpoint, an endpoint with an
	// error is still listed but may not be run
	Err error

	// The request path, may interpolate variables
	Path *syntax.Template

	// Request body schema, nil if the endpoint sends no body
	Request *Schema

	// The endpoint's own response schema as written, nil if not given
	Response *Schema

	// The full response shape, Response substituted into the @BASERES slot, equal
	// to Response if no @BASERES applies
	Wrapped *Schema

	// The effective success predicate, the endpoint's own, else the document's,
	// else `this.code == 0`
	OK syntax.Expr

	// The MOCK directive, nil if not given
	Mock *Mock

	// Name of the endpoint, endpoints not explicitly named are named after their
	// position in the file e.g. "#1"
	Name string

	// The HTTP method
	Method string

	// Field path of the @BASERES wildcard slot that Response was substituted into,
	// nil if no @BASERES applies
	Slot []string

	// Variables this endpoint is registered to SET
	Set []string

	// Variables that must be bound before this endpoint runs
	Must []string

	// Request headers in source order
	Headers []Header

	// Local declarations
	Locals []Variable

	// The OK action block
	OnOK []syntax.Assignment

	// The ERR action block
	OnErr []syntax.Assignment

	// Where the block is in the source
	Range Range

	// Position of the endpoint in the document, 0 indexed
	Index int

	// Whether the endpoint is always answered with a generated mock
	MockOnly bool
}

// Sets reports whether the endpoint is registered to SET the named variable.
func (e Endpoint) Sets(name string) bool {
	return slices.Contains(e.Set, name)
}

// String implements [fmt.Stringer] for an [Endpoint] as a one line summary.
func (e Endpoint) String() string {
	builder := &strings.Builder{}

	fmt.Fprintf(builder, "%s %s %s", e.Name, e.Method, e.Path)

	if e.MockOnly {
		builder.WriteString(" MOCK")
	}

	if len(e.Must) > 0 {
		fmt.Fprintf(builder, " MUST %s", varList(e.Must))
	}

	if len(e.Set) > 0 {
		fmt.Fprintf(builder, " SET %s", varList(e.Set))
	}

	return builder.String()
}

func varList(names []string) string {
	return "[@" + strings.Join(names, ", @") + "]"
}
