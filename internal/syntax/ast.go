package syntax

import (
	"fmt"
	"strings"
)

// Reserved global variable names with special meaning to the document.
const (
	ShowMockHeader = "_SHOW_MOCK_HEADER" // Whether mocked traffic is marked with a header
	BaseURL        = "BASEURL"           // Prefix for relative endpoint paths
	BaseHeaders    = "HEADERS"           // Headers sent with every request
	BaseResponse   = "BASERES"           // Schema wrapping every response
	OKPredicate    = "OK"                // Default success predicate, declared as `@OK: <expr>`
)

// IsReserved reports whether name is one of the reserved global variable names.
func IsReserved(name string) bool {
	switch name {
	case ShowMockHeader, BaseURL, BaseHeaders, BaseResponse, OKPredicate:
		return true
	default:
		return false
	}
}

// File represents a single .api file as parsed.
//
// Nothing has been resolved yet, variable references are names and types are
// still expression trees.
type File struct {
	OK        Expr       // The document level `@OK:` predicate, nil if not given
	Name      string     // Name of the file
	Decls     []Decl     // Global variable declarations in source order
	Endpoints []Endpoint // Endpoint blocks in source order
}

// Decl is a variable declaration, one of:
//
//	@name = <value>
//	@name: <type>
//	@name: <type> = <value>
//
// Optionally followed by `<= { ... }` mock overrides.
type Decl struct {
	Type  Expr       // Declared type, nil if not given
	Value Expr       // Declared value, nil if not given
	Mock  *ObjectLit // Per field mock generators, nil if not given
	Name  string     // Name of the variable without the '@'
	Pos   Position   // Position of the name
}

// Header is a single `key: value` line under a request line.
type Header struct {
	Value *Template // The value, may interpolate variables
	Key   string    // The header name
	Pos   Position  // Position of the key
}

// Assignment is a single `@target = <expr>` line in an OK or ERR block.
type Assignment struct {
	Value  Expr     // The value to assign, `null` clears the target
	Target string   // Name of the variable being assigned
	Pos    Position // Position of the target
}

// String implements [fmt.Stringer] for an [Assignment].
func (a Assignment) String() string {
	return fmt.Sprintf("@%s = %s", a.Target, a.Value)
}

// Mock is a `MOCK [request] => { ... }` directive.
type Mock struct {
	Request  Expr       // The mocked request body, nil for `MOCK => {...}`
	Response *ObjectLit // Field overrides for the mocked response
	Pos      Position   // Position of the MOCK keyword
}

// Override is a standalone `@name <= { ... }` directive, attaching mock
// generators to a declaration that may appear anywhere in the same block.
type Override struct {
	Fields *ObjectLit // The field generators
	Target string     // Name of the declaration
	Pos    Position   // Position of the name
}

// Endpoint is a single `###` delimited block.
type Endpoint struct {
	Path      *Template    // The request path, may interpolate variables
	Request   Expr         // Request body, nil if not given
	Response  Expr         // Response body, nil if not given
	OK        Expr         // Endpoint specific `@OK:` predicate, nil if not given
	Mock      *Mock        // MOCK directive, nil if not given
	Name      string       // Optional name given on the opening separator
	Method    string       // The HTTP method
	Set       []string     // Variables this endpoint registers to SET
	Must      []string     // Variables that must be bound before this endpoint runs
	Headers   []Header     // Request headers in source order
	Decls     []Decl       // Local variable declarations
	Overrides []Override   // Standalone mock overrides
	OnOK      []Assignment // The OK block
	OnErr     []Assignment // The ERR block
	Start     Position     // Position of the opening separator
	End       Position     // Position of the closing separator
	MockOnly  bool         // Whether the opening separator carried MOCK
}

// String implements [fmt.Stringer] for an [Endpoint], rendering it back to canonical
// source text.
func (e Endpoint) String() string {
	s := &strings.Builder{}

	s.WriteString("###")
	// Generated names like "#2" would read back as a comment
	if e.Name != "" && !strings.HasPrefix(e.Name, "#") {
		s.WriteString(" " + e.Name)
	}
	if e.MockOnly {
		s.WriteString(" MOCK")
	}
	if len(e.Must) > 0 {
		fmt.Fprintf(s, " MUST %s", varList(e.Must))
	}
	if len(e.Set) > 0 {
		fmt.Fprintf(s, " SET %s", varList(e.Set))
	}
	s.WriteByte('\n')

	fmt.Fprintf(s, "%s %s\n", e.Method, e.Path)
	for _, header := range e.Headers {
		fmt.Fprintf(s, "%s: %s\n", header.Key, header.Value)
	}

	if e.Request != nil {
		fmt.Fprintf(s, "\n%s\n", e.Request)
	}

	s.WriteString("\n=>")
	if e.Response != nil {
		fmt.Fprintf(s, " %s", e.Response)
	}
	s.WriteByte('\n')

	for _, decl := range e.Decls {
		s.WriteString(decl.String())
	}

	for _, override := range e.Overrides {
		fmt.Fprintf(s, "@%s <= %s\n", override.Target, override.Fields)
	}

	if e.Mock != nil {
		s.WriteString("MOCK")
		if e.Mock.Request != nil {
			fmt.Fprintf(s, " %s", e.Mock.Request)
		}
		fmt.Fprintf(s, " => %s\n", e.Mock.Response)
	}

	if e.OK != nil {
		fmt.Fprintf(s, "@OK: %s\n", e.OK)
	}

	writeBlock(s, "OK", e.OnOK)
	writeBlock(s, "ERR", e.OnErr)

	s.WriteString("###\n")

	return s.String()
}

// String implements [fmt.Stringer] for a [Decl].
func (d Decl) String() string {
	s := "@" + d.Name
	if d.Type != nil {
		s += ": " + d.Type.String()
	}
	if d.Value != nil {
		s += " = " + d.Value.String()
	}
	if d.Mock != nil {
		s += " <= " + d.Mock.String()
	}

	return s + "\n"
}

// String implements [fmt.Stringer] for a [File].
func (f File) String() string {
	s := &strings.Builder{}

	for _, decl := range f.Decls {
		s.WriteString(decl.String())
	}

	if f.OK != nil {
		fmt.Fprintf(s, "@OK: %s\n", f.OK)
	}

	for _, endpoint := range f.Endpoints {
		s.WriteByte('\n')
		s.WriteString(endpoint.String())
	}

	return s.String()
}

func varList(names []string) string {
	vars := make([]string, 0, len(names))
	for _, name := range names {
		vars = append(vars, "@"+name)
	}

	return "[" + strings.Join(vars, ", ") + "]"
}

func writeBlock(s *strings.Builder, keyword string, assignments []Assignment) {
	if len(assignments) == 0 {
		return
	}

	fmt.Fprintf(s, "%s {\n", keyword)
	for _, assignment := range assignments {
		fmt.Fprintf(s, "    %s\n", assignment)
	}
	s.WriteString("}\n")
}
