// Package spec provides the [Document] and [Endpoint] data structures which together
// represent a .api file.
//
// They differ from their counterparts in the syntax package in that they are "resolved". This means:
//   - Type expressions have been turned into [Schema] trees with named references replaced
//   - Responses have been wrapped in the @BASERES schema where one applies
//   - Default configuration has been put in place if not provided in the raw file
//
// This resolution means that the endpoints described can be correctly run or mocked.
package spec

import (
	"errors"
	"fmt"
	"slices"

	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// SchemaError is an unresolved or mismatched type in a declaration or endpoint.
type SchemaError struct {
	Endpoint string          // Name of the endpoint, empty for global declarations
	Msg      string          // What went wrong
	Pos      syntax.Position // Where it went wrong
}

// Error implements the error interface for [SchemaError].
func (e SchemaError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s: endpoint %s: %s", e.Pos, e.Endpoint, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// DefaultOK is the success predicate used when neither the endpoint nor the
// document declare one, `this.code == 0`.
func DefaultOK() syntax.Expr {
	return &syntax.Binary{
		Left:  &syntax.ThisRef{Path: []string{"code"}},
		Right: &syntax.NumberLit{Text: "0", Value: 0},
		Op:    "==",
	}
}

// ResolveFile converts a [syntax.File] to a [Document], resolving every type
// expression into a [Schema].
//
// A schema error in a global declaration is fatal and returned. A schema error in
// an endpoint is recorded on that endpoint so the rest of the document stays usable,
// see [Document.Err].
func ResolveFile(in syntax.File) (Document, error) {
	resolved := Document{
		Name:           in.Name,
		OK:             in.OK,
		ShowMockHeader: true,
		setters:        make(map[string][]int),
	}

	scope := NewScope()
	for _, decl := range in.Decls {
		scope.Global[decl.Name] = decl
	}

	// Variables declared implicitly by being SET or assigned to
	implicit := make(map[string]bool)
	for _, endpoint := range in.Endpoints {
		for _, name := range endpoint.Set {
			implicit[name] = true
		}
		for _, assignment := range slices.Concat(endpoint.OnOK, endpoint.OnErr) {
			implicit[assignment.Target] = true
		}
	}

	r := &resolver{scope: scope, implicit: implicit}

	for _, decl := range in.Decls {
		variable, err := r.declaration(decl)
		if err != nil {
			return Document{}, err
		}

		resolved.Vars = append(resolved.Vars, variable)

		switch decl.Name {
		case syntax.ShowMockHeader:
			show, ok := decl.Value.(*syntax.BoolLit)
			if !ok {
				return Document{}, SchemaError{Msg: "@" + syntax.ShowMockHeader + " must be true or false", Pos: decl.Pos}
			}
			resolved.ShowMockHeader = show.Value
		case syntax.BaseHeaders:
			headers, ok := decl.Value.(*syntax.ObjectLit)
			if !ok {
				return Document{}, SchemaError{Msg: "@" + syntax.BaseHeaders + " must be an object", Pos: decl.Pos}
			}
			for _, field := range headers.Fields {
				resolved.Headers = append(resolved.Headers, Header{Key: field.Key, Value: field.Value})
			}
		}
	}

	resolved.Endpoints = make([]Endpoint, 0, len(in.Endpoints))
	for index, endpoint := range in.Endpoints {
		resolved.Endpoints = append(resolved.Endpoints, r.endpoint(endpoint, index, in.OK))

		for _, name := range endpoint.Set {
			resolved.setters[name] = append(resolved.setters[name], index)
		}
	}

	return resolved, nil
}

// resolver turns type expressions into schemas.
type resolver struct {
	scope     Scope                        // Declarations visible to the current endpoint
	implicit  map[string]bool              // Variables only declared by SET lists and assignments
	overrides map[string]*syntax.ObjectLit // Standalone `@x <= {...}` overrides in the current endpoint
	current   string                       // Name of the endpoint being resolved, empty at the top level
	stack     []string                     // Declarations currently being resolved, guards against recursion
	pos       syntax.Position              // Position errors are reported at
	base      bool                         // Whether we're resolving @BASERES, the only place '*' is allowed
}

// errorf returns a [SchemaError] at the current position.
func (r *resolver) errorf(format string, a ...any) error {
	return SchemaError{Endpoint: r.current, Msg: fmt.Sprintf(format, a...), Pos: r.pos}
}

// declaration resolves a single declaration into a [Variable], checking any value
// against its declared type.
func (r *resolver) declaration(decl syntax.Decl) (Variable, error) {
	defer r.at(decl.Pos)()

	variable := Variable{Name: decl.Name, Value: decl.Value, Pos: decl.Pos}

	if decl.Type != nil {
		typ, err := r.resolve(decl.Type)
		if err != nil {
			return Variable{}, err
		}
		variable.Type = typ

		if decl.Value != nil && mismatch(typ, decl.Value) {
			return Variable{}, r.errorf("@%s is declared as %s but given %s", decl.Name, typ, decl.Value)
		}
	}

	// Resolving the shape is enough to catch bad references and misplaced wildcards
	if _, isSchema := shape(decl); isSchema {
		if _, err := r.reference(decl); err != nil {
			return Variable{}, err
		}
	}

	return variable, nil
}

// at moves error reporting to pos, returning a func that restores it.
func (r *resolver) at(pos syntax.Position) func() {
	previous := r.pos
	r.pos = pos
	return func() { r.pos = previous }
}

// endpoint resolves a single endpoint, index is its position in the document.
func (r *resolver) endpoint(in syntax.Endpoint, index int, documentOK syntax.Expr) Endpoint {
	resolved := Endpoint{
		Path:     in.Path,
		Name:     in.Name,
		Method:   in.Method,
		Set:      in.Set,
		Must:     in.Must,
		OnOK:     in.OnOK,
		OnErr:    in.OnErr,
		Index:    index,
		MockOnly: in.MockOnly,
		Range:    Range{Start: in.Start, End: in.End},
	}

	for _, header := range in.Headers {
		resolved.Headers = append(resolved.Headers, Header{Key: header.Key, Value: header.Value})
	}

	switch {
	case in.OK != nil:
		resolved.OK = in.OK
	case documentOK != nil:
		resolved.OK = documentOK
	default:
		resolved.OK = DefaultOK()
	}

	r.current = in.Name
	r.pos = in.Start
	r.scope.Local = make(map[string]syntax.Decl, len(in.Decls))
	r.overrides = make(map[string]*syntax.ObjectLit, len(in.Overrides))
	defer func() {
		r.current = ""
		r.scope.Local = nil
		r.overrides = nil
	}()

	for _, decl := range in.Decls {
		r.scope.Local[decl.Name] = decl
	}
	for _, override := range in.Overrides {
		r.overrides[override.Target] = override.Fields
	}

	if err := r.resolveEndpoint(in, &resolved); err != nil {
		resolved.Err = err
	}

	return resolved
}

// resolveEndpoint does the work of resolving the schemas of an endpoint.
func (r *resolver) resolveEndpoint(in syntax.Endpoint, out *Endpoint) error {
	for _, decl := range in.Decls {
		variable, err := r.declaration(decl)
		if err != nil {
			return err
		}
		out.Locals = append(out.Locals, variable)
	}

	var err error
	if in.Request != nil {
		if out.Request, err = r.resolve(in.Request); err != nil {
			return err
		}
	}

	if in.Response != nil {
		if out.Response, err = r.resolve(in.Response); err != nil {
			return err
		}
	}

	if in.Mock != nil {
		out.Mock = &Mock{Response: in.Mock.Response}
		if in.Mock.Request != nil {
			if out.Mock.Request, err = r.resolve(in.Mock.Request); err != nil {
				return err
			}
		}
	}

	base, err := r.baseResponse()
	if err != nil {
		return err
	}

	if base == nil {
		out.Wrapped = out.Response
		return nil
	}

	slots := wildcards(base, nil)
	switch {
	case len(slots) > 1:
		return r.errorf("@%s may only contain one * slot, found %d", syntax.BaseResponse, len(slots))
	case len(slots) == 0 && out.Response != nil:
		return r.errorf("@%s has no * slot to hold the response", syntax.BaseResponse)
	case len(slots) == 0:
		out.Wrapped = base
		return nil
	}

	body := out.Response
	if body == nil {
		body = &Schema{Kind: KindValue, Value: &syntax.NullLit{}}
	}

	out.Slot = slots[0]
	out.Wrapped = substitute(base, slots[0], body)

	return nil
}

// baseResponse resolves the @BASERES that applies to the current endpoint, a local
// declaration overrides the global and a local `@BASERES = null` opts out, nil
// means no wrapping.
func (r *resolver) baseResponse() (*Schema, error) {
	decl, ok := r.scope.Lookup(syntax.BaseResponse)
	if !ok {
		return nil, nil
	}

	if _, isNull := decl.Value.(*syntax.NullLit); isNull {
		return nil, nil
	}

	if _, isSchema := shape(decl); !isSchema {
		return nil, r.errorf("@%s must be an object", syntax.BaseResponse)
	}

	return r.reference(decl)
}

// shape returns the expression describing the shape of a declaration and whether
// it is a schema (an object or array) rather than a plain value.
func shape(decl syntax.Decl) (syntax.Expr, bool) {
	expr := decl.Value
	if expr == nil {
		expr = decl.Type
	}

	switch expr.(type) {
	case *syntax.ObjectLit, *syntax.ArrayLit:
		return expr, true
	default:
		return expr, false
	}
}

// reference resolves the schema of a declaration referenced by name, attaching
// any mock overrides given for it.
func (r *resolver) reference(decl syntax.Decl) (*Schema, error) {
	if slices.Contains(r.stack, decl.Name) {
		return nil, r.errorf("@%s refers to itself", decl.Name)
	}

	r.stack = append(r.stack, decl.Name)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	expr, _ := shape(decl)

	wasBase := r.base
	r.base = decl.Name == syntax.BaseResponse
	defer func() { r.base = wasBase }()

	schema, err := r.resolve(expr)
	if err != nil {
		return nil, err
	}

	// Copy so attaching overrides never leaks into other uses
	out := *schema
	out.Ref = decl.Name

	for _, overrides := range []*syntax.ObjectLit{decl.Mock, r.overrides[decl.Name]} {
		if overrides == nil {
			continue
		}

		if out.Kind != KindObject {
			return nil, r.errorf("mock overrides need an object but @%s is %s", decl.Name, out.Kind)
		}

		if out.Mock == nil {
			out.Mock = make(map[string]syntax.Expr, len(overrides.Fields))
		}

		for _, field := range overrides.Fields {
			if _, ok := out.Field(field.Key); !ok {
				return nil, r.errorf("mock override for unknown field %q of @%s", field.Key, decl.Name)
			}
			out.Mock[field.Key] = field.Value
		}
	}

	return &out, nil
}

// resolve turns a single type expression into a [Schema].
func (r *resolver) resolve(expr syntax.Expr) (*Schema, error) {
	switch node := expr.(type) {
	case *syntax.TypeName:
		return r.primitive(node.Name)
	case *syntax.Wildcard:
		if !r.base {
			return nil, r.errorf("* may only be used in @%s", syntax.BaseResponse)
		}
		return &Schema{Kind: KindWildcard}, nil
	case *syntax.ObjectLit:
		schema := &Schema{Kind: KindObject, Fields: make([]Field, 0, len(node.Fields))}
		for _, field := range node.Fields {
			fieldSchema, err := r.resolve(field.Value)
			if err != nil {
				return nil, err
			}
			schema.Fields = append(schema.Fields, Field{Name: field.Key, Schema: fieldSchema, Nullable: field.Nullable})
		}
		return schema, nil
	case *syntax.ArrayLit:
		if len(node.Items) != 1 {
			// Not an array type, a literal list of values
			return &Schema{Kind: KindValue, Value: node}, nil
		}
		elem, err := r.resolve(node.Items[0])
		if err != nil {
			return nil, err
		}
		return &Schema{Kind: KindArray, Elem: elem}, nil
	case *syntax.VarRef:
		if len(node.Path) > 0 {
			return &Schema{Kind: KindValue, Value: node}, nil
		}

		decl, ok := r.scope.Lookup(node.Name)
		if !ok {
			if r.implicit[node.Name] || syntax.IsReserved(node.Name) {
				return &Schema{Kind: KindValue, Value: node}, nil
			}
			return nil, r.errorf("unresolved reference to @%s", node.Name)
		}

		if _, isSchema := shape(decl); !isSchema {
			// A plain variable, its value is looked up when needed
			return &Schema{Kind: KindValue, Value: node}, nil
		}

		return r.reference(decl)
	case nil:
		return nil, errors.New("nil type expression")
	default:
		return &Schema{Kind: KindValue, Value: expr}, nil
	}
}
