// Package openapi exports a resolved document as an OpenAPI 3 description.
package openapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// Version is the OpenAPI version exported documents declare.
const Version = "3.0.3"

// Extensions attached to every operation.
const (
	ExtensionSet      = "x-apidoc-set"
	ExtensionMust     = "x-apidoc-must"
	ExtensionMockOnly = "x-apidoc-mock-only"
)

// Options configure an export.
type Options struct {
	Title   string // Title of the API, defaults to the document's file name
	Version string // Version of the API, defaults to "0.0.0"
}

// Export converts doc into an OpenAPI description and validates it.
//
// Endpoints with schema errors are left out. Where two endpoints share a method
// and path, the first declared wins.
func Export(ctx context.Context, doc *spec.Document, options Options) (*openapi3.T, error) {
	title := options.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(doc.Name), filepath.Ext(doc.Name))
	}

	version := options.Version
	if version == "" {
		version = "0.0.0"
	}

	out := &openapi3.T{
		OpenAPI: Version,
		Info: &openapi3.Info{
			Title:   title,
			Version: version,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	if server, ok := baseURL(doc); ok {
		out.Servers = openapi3.Servers{{URL: server}}
	}

	e := &exporter{components: out.Components.Schemas, shapes: make(map[string]string)}

	for i := range doc.Endpoints {
		endpoint := &doc.Endpoints[i]
		if endpoint.Err != nil {
			continue
		}

		path := Path(endpoint.Path)
		item := out.Paths.Value(path)
		if item == nil {
			item = &openapi3.PathItem{}
			out.Paths.Set(path, item)
		}

		if item.GetOperation(endpoint.Method) != nil {
			continue
		}

		item.SetOperation(endpoint.Method, e.operation(doc, endpoint, path))
	}

	if err := out.Validate(ctx); err != nil {
		return nil, fmt.Errorf("exported description is not valid OpenAPI: %w", err)
	}

	return out, nil
}

// Path converts an endpoint path template to an OpenAPI path, `/users/@id` becomes
// `/users/{id}`. A leading @BASEURL, the scheme and host of an absolute URL and any
// query string are dropped.
func Path(tmpl *syntax.Template) string {
	parts := tmpl.Parts
	if len(parts) > 0 && parts[0].Var == syntax.BaseURL {
		parts = parts[1:]
	}

	var path strings.Builder
	for i, part := range parts {
		if part.Var != "" {
			path.WriteString("{" + part.Var + "}")
			continue
		}

		text := part.Text
		if i == 0 {
			if parsed, err := url.Parse(text); err == nil && parsed.Scheme != "" && parsed.Host != "" {
				text = parsed.Path
			}
		}

		if query := strings.IndexByte(text, '?'); query != -1 {
			path.WriteString(text[:query])
			break
		}

		path.WriteString(text)
	}

	out := path.String()
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}

	return out
}

// exporter holds the state shared across every operation in one export.
type exporter struct {
	components openapi3.Schemas // Named object schemas, keyed by declaration name
	shapes     map[string]string // The source form of each component, to spot clashing names
}

// operation builds the operation for a single endpoint.
func (e *exporter) operation(doc *spec.Document, endpoint *spec.Endpoint, path string) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = operationID(endpoint.Name)
	op.Summary = endpoint.Name
	op.Description = endpoint.String()

	op.Extensions = make(map[string]any)
	if len(endpoint.Set) > 0 {
		op.Extensions[ExtensionSet] = endpoint.Set
	}
	if len(endpoint.Must) > 0 {
		op.Extensions[ExtensionMust] = endpoint.Must
	}
	if endpoint.MockOnly {
		op.Extensions[ExtensionMockOnly] = true
	}

	seen := make(map[string]bool)
	for _, part := range endpoint.Path.Parts {
		// Variables in the query string aren't part of the path
		if part.Var == "" || seen[part.Var] || !strings.Contains(path, "{"+part.Var+"}") {
			continue
		}
		seen[part.Var] = true
		param := openapi3.NewPathParameter(part.Var).WithSchema(e.variable(doc, endpoint, part.Var))
		op.AddParameter(param)
	}

	clear(seen)
	for _, header := range append(doc.Headers[:len(doc.Headers):len(doc.Headers)], endpoint.Headers...) {
		key := http.CanonicalHeaderKey(header.Key)
		if reservedHeader(key) || seen[key] {
			continue
		}
		seen[key] = true
		op.AddParameter(openapi3.NewHeaderParameter(key).WithSchema(openapi3.NewStringSchema()))
	}

	if endpoint.Request != nil {
		if endpoint.Method == http.MethodGet {
			for _, field := range endpoint.Request.Fields {
				param := openapi3.NewQueryParameter(field.Name).WithSchema(e.schema(field.Schema).Value)
				param.Required = !field.Nullable
				op.AddParameter(param)
			}
		} else {
			body := openapi3.NewRequestBody().WithRequired(true)
			body.Content = openapi3.NewContentWithJSONSchemaRef(e.schema(endpoint.Request))
			op.RequestBody = &openapi3.RequestBodyRef{Value: body}
		}
	}

	response := openapi3.NewResponse().WithDescription("Success")
	if endpoint.Wrapped != nil {
		response.Content = openapi3.NewContentWithJSONSchemaRef(e.schema(endpoint.Wrapped))
	}
	op.Responses = openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: response}))

	return op
}

// variable returns the schema for a path parameter, from the variable's declared
// type if it has one.
func (e *exporter) variable(doc *spec.Document, endpoint *spec.Endpoint, name string) *openapi3.Schema {
	for _, local := range endpoint.Locals {
		if local.Name == name && local.Type != nil {
			return e.schema(local.Type).Value
		}
	}

	if global, ok := doc.GetVar(name); ok && global.Type != nil {
		return e.schema(global.Type).Value
	}

	return openapi3.NewStringSchema()
}

// schema converts a resolved schema. Named objects are shared through the
// document's components unless two declarations with the same name differ.
func (e *exporter) schema(s *spec.Schema) *openapi3.SchemaRef {
	converted := e.convert(s)

	if s.Kind != spec.KindObject || s.Ref == "" || s.Ref == syntax.BaseResponse {
		return openapi3.NewSchemaRef("", converted)
	}

	name := componentName(s.Ref)
	shape, ok := e.shapes[name]
	if ok && shape != s.String() {
		return openapi3.NewSchemaRef("", converted)
	}

	if !ok {
		e.shapes[name] = s.String()
		e.components[name] = openapi3.NewSchemaRef("", converted)
	}

	return openapi3.NewSchemaRef("#/components/schemas/"+name, converted)
}

// convert converts a single schema node and its children.
func (e *exporter) convert(s *spec.Schema) *openapi3.Schema {
	switch s.Kind {
	case spec.KindValue:
		return literal(s.Value)
	case spec.KindString:
		return openapi3.NewStringSchema()
	case spec.KindBool:
		return openapi3.NewBoolSchema()
	case spec.KindNumber:
		number := openapi3.NewFloat64Schema()
		number.Format = ""
		return number
	case spec.KindInt:
		var integer *openapi3.Schema
		if s.Bits > 32 || (s.Bits == 32 && !s.Signed) {
			integer = openapi3.NewInt64Schema()
		} else {
			integer = openapi3.NewInt32Schema()
		}
		lo, hi := s.Range()
		return integer.WithMin(float64(lo)).WithMax(float64(hi))
	case spec.KindFloat:
		float := openapi3.NewFloat64Schema()
		if s.Bits == 32 {
			float.Format = "float"
		}
		return float
	case spec.KindArray:
		array := openapi3.NewArraySchema()
		array.Items = e.schema(s.Elem)
		return array
	case spec.KindObject:
		object := openapi3.NewObjectSchema()
		for _, field := range s.Fields {
			property := e.schema(field.Schema)
			if field.Nullable {
				// A $ref can't carry siblings in 3.0, so nullable references are inlined
				property = openapi3.NewSchemaRef("", e.convert(field.Schema))
				property.Value.Nullable = true
			} else {
				object.Required = append(object.Required, field.Name)
			}
			object.Properties[field.Name] = property
		}
		return object
	default:
		// Wildcards and anything unknown accept any value
		return openapi3.NewSchema()
	}
}

// literal returns the schema for a fixed value, literals become single value enums.
func literal(expr syntax.Expr) *openapi3.Schema {
	switch value := expr.(type) {
	case *syntax.StringLit:
		return openapi3.NewStringSchema().WithEnum(value.Value)
	case *syntax.NumberLit:
		if value.IsInt() {
			return openapi3.NewInt64Schema().WithEnum(value.Value)
		}
		return openapi3.NewFloat64Schema().WithEnum(value.Value)
	case *syntax.BoolLit:
		return openapi3.NewBoolSchema().WithEnum(value.Value)
	case *syntax.NullLit:
		return openapi3.NewSchema().WithNullable()
	default:
		return openapi3.NewSchema()
	}
}

// baseURL returns the document's @BASEURL if it is a plain string.
func baseURL(doc *spec.Document) (string, bool) {
	variable, ok := doc.GetVar(syntax.BaseURL)
	if !ok {
		return "", false
	}

	value, ok := variable.Value.(*syntax.StringLit)
	if !ok {
		return "", false
	}

	return value.Value, true
}

// reservedHeader reports whether key is a header OpenAPI describes elsewhere and
// forbids as a parameter.
func reservedHeader(key string) bool {
	switch key {
	case "Accept", "Content-Type", "Authorization":
		return true
	default:
		return false
	}
}

// operationID turns an endpoint name into an operation ID, "#1" becomes "endpoint_1".
func operationID(name string) string {
	if rest, ok := strings.CutPrefix(name, "#"); ok {
		return "endpoint_" + rest
	}

	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '.' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return '_'
	}, name)
}

// componentName is the key of a named schema in the components section.
func componentName(ref string) string {
	return operationID(ref)
}
