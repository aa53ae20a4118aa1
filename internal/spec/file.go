package spec

import (
	"errors"
	"strings"

	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// A Document is a single resolved .api file.
//
// It may be constructed with [ResolveFile] from a [syntax.File].
type Document struct {
	// The document level success predicate, nil if not given
	OK syntax.Expr

	// Name of the file
	Name string

	// Global variable declarations
	Vars []Variable

	// Headers sent with every request, from @HEADERS
	Headers []Header

	// The endpoints described in the file
	Endpoints []Endpoint

	// Index of variable name to the endpoints registered to SET it
	setters map[string][]int

	// Whether mocked traffic is marked with a header, from @_SHOW_MOCK_HEADER
	ShowMockHeader bool
}

// String implements [fmt.Stringer] for a [Document], summarising each endpoint.
func (d Document) String() string {
	builder := &strings.Builder{}

	for _, endpoint := range d.Endpoints {
		builder.WriteString(endpoint.String())
		builder.WriteByte('\n')
	}

	return builder.String()
}

// GetEndpoint returns the endpoint by name from a Document.
func (d *Document) GetEndpoint(name string) (*Endpoint, bool) {
	for i := range d.Endpoints {
		if d.Endpoints[i].Name == name {
			return &d.Endpoints[i], true
		}
	}

	return nil, false
}

// GetVar returns the global declaration of name.
func (d *Document) GetVar(name string) (Variable, bool) {
	for _, variable := range d.Vars {
		if variable.Name == name {
			return variable, true
		}
	}

	return Variable{}, false
}

// Setters returns the endpoints registered to SET the named variable, in
// declaration order.
func (d *Document) Setters(name string) []*Endpoint {
	indices := d.setters[name]
	if len(indices) == 0 {
		return nil
	}

	setters := make([]*Endpoint, 0, len(indices))
	for _, index := range indices {
		setters = append(setters, &d.Endpoints[index])
	}

	return setters
}

// Err returns the schema errors of every endpoint joined together, or nil if
// every endpoint resolved cleanly.
func (d *Document) Err() error {
	var errs []error
	for _, endpoint := range d.Endpoints {
		if endpoint.Err != nil {
			errs = append(errs, endpoint.Err)
		}
	}

	return errors.Join(errs...)
}
