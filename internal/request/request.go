// Package request builds concrete HTTP requests from endpoints and the current
// variable bindings.
package request

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.followtheprocess.codes/apidoc/internal/eval"
	"go.followtheprocess.codes/apidoc/internal/mock"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// MockHeader is the header marking requests and responses made in mock mode.
const MockHeader = "X-Apidoc-Mock"

// MissingFieldError is a typed request field the caller gave no value for.
type MissingFieldError struct {
	Endpoint string // Name of the endpoint
	Field    string // Dotted path of the field
}

// Error implements the error interface for [MissingFieldError].
func (e MissingFieldError) Error() string {
	return fmt.Sprintf("endpoint %s: request field %q has a type but no value, supply it in the payload", e.Endpoint, e.Field)
}

// Header is a single request header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Request is a fully built request, ready to be handed to a transport.
type Request struct {
	Body    any      `json:"body,omitempty"`    // JSON body, nil for a GET or an endpoint with no request body
	Method  string   `json:"method"`            // The HTTP method
	URL     string   `json:"url"`               // The complete URL including any query string
	Headers []Header `json:"headers,omitempty"` // Headers in the order they are sent
	Mock    bool     `json:"mock,omitempty"`    // Whether the request was built in mock mode
}

// Header returns the value of the named header, matched case insensitively.
func (r Request) Header(key string) (string, bool) {
	for _, header := range r.Headers {
		if strings.EqualFold(header.Key, key) {
			return header.Value, true
		}
	}

	return "", false
}

// Options control how a request is built.
type Options struct {
	Payload map[string]any  // Caller supplied values for typed request fields
	Mock    *mock.Generator // If set, the request is built in mock mode and typed fields are generated
}

// Build builds the request for an endpoint of doc. Variables are looked up with vars.
func Build(doc *spec.Document, endpoint *spec.Endpoint, vars eval.Lookup, options Options) (Request, error) {
	env := eval.Env{Vars: vars}
	if options.Mock != nil {
		env.Funcs = options.Mock.Funcs()
	}

	address, err := buildURL(endpoint.Path, env)
	if err != nil {
		return Request{}, fmt.Errorf("endpoint %s: path: %w", endpoint.Name, err)
	}

	request := Request{
		Method: endpoint.Method,
		URL:    address,
		Mock:   options.Mock != nil,
	}

	if request.Headers, err = buildHeaders(doc.Headers, endpoint.Headers, env); err != nil {
		return Request{}, fmt.Errorf("endpoint %s: %w", endpoint.Name, err)
	}

	body, err := buildBody(endpoint, env, options)
	if err != nil {
		return Request{}, err
	}

	if request.Mock && doc.ShowMockHeader {
		request.Headers = append(request.Headers, Header{Key: MockHeader, Value: "true"})
	}

	if body == nil {
		return request, nil
	}

	if endpoint.Method == "GET" {
		query, err := encodeQuery(body)
		if err != nil {
			return Request{}, fmt.Errorf("endpoint %s: %w", endpoint.Name, err)
		}
		if query != "" {
			separator := "?"
			if strings.Contains(request.URL, "?") {
				separator = "&"
			}
			request.URL += separator + query
		}
		return request, nil
	}

	request.Body = body
	if _, ok := request.Header("Content-Type"); !ok {
		request.Headers = append(request.Headers, Header{Key: "Content-Type", Value: "application/json"})
	}

	return request, nil
}

// buildURL interpolates the path and composes it with @BASEURL.
//
// A path that is already absolute is used as is. A path written with a leading
// @BASEURL drops it when it is unbound, and any other relative path is prefixed
// with @BASEURL when it is bound.
func buildURL(path *syntax.Template, env eval.Env) (string, error) {
	if path == nil {
		return "", errors.New("endpoint has no path")
	}

	base, hasBase := lookup(env, syntax.BaseURL)

	parts := path.Parts
	explicit := len(parts) > 0 && parts[0].Var == syntax.BaseURL
	if explicit && !hasBase {
		parts = parts[1:]
	}

	interpolated, err := eval.Eval(&syntax.Template{Parts: parts}, env)
	if err != nil {
		return "", err
	}

	address := eval.String(interpolated)

	if explicit || isAbsolute(address) || !hasBase {
		return address, nil
	}

	prefix := strings.TrimSuffix(eval.String(base), "/")
	if prefix == "" {
		return address, nil
	}

	if !strings.HasPrefix(address, "/") {
		address = "/" + address
	}

	return prefix + address, nil
}

// buildHeaders evaluates the document headers followed by the endpoint's own, a
// header referencing an unbound variable is left out entirely.
func buildHeaders(global, local []spec.Header, env eval.Env) ([]Header, error) {
	headers := make([]Header, 0, len(global)+len(local))

	for _, header := range append(global[:len(global):len(global)], local...) {
		value, err := eval.Eval(header.Value, env)
		if err != nil {
			var unbound eval.UnboundVariableError
			if errors.As(err, &unbound) {
				continue
			}
			return nil, fmt.Errorf("header %s: %w", header.Key, err)
		}

		headers = append(headers, Header{Key: header.Key, Value: eval.String(value)})
	}

	return headers, nil
}

// buildBody builds the request body. Fixed values are evaluated, typed fields
// come from the caller payload, or the mock generator in mock mode.
func buildBody(endpoint *spec.Endpoint, env eval.Env, options Options) (any, error) {
	if options.Mock != nil && endpoint.Mock != nil && endpoint.Mock.Request != nil {
		body, err := options.Mock.Request(endpoint, env.Vars)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", endpoint.Name, err)
		}
		if object, ok := body.(map[string]any); ok {
			for key, value := range options.Payload {
				object[key] = value
			}
		}
		return body, nil
	}

	if endpoint.Request == nil {
		return nil, nil
	}

	b := builder{endpoint: endpoint.Name, env: env, generator: options.Mock}
	if len(options.Payload) == 0 {
		return b.value(endpoint.Request, nil, nil, false)
	}

	return b.value(endpoint.Request, options.Payload, nil, true)
}

// builder fills in a request schema.
type builder struct {
	generator *mock.Generator
	endpoint  string
	env       eval.Env
}

// value builds the value for schema. supplied is the caller's value for this
// position and given reports whether there was one.
func (b builder) value(schema *spec.Schema, supplied any, path []string, given bool) (any, error) {
	switch schema.Kind {
	case spec.KindValue:
		if given {
			return supplied, nil
		}
		value, err := eval.Eval(schema.Value, b.env)
		if err != nil {
			var unbound eval.UnboundVariableError
			if errors.As(err, &unbound) {
				return nil, nil
			}
			return nil, fmt.Errorf("endpoint %s: request field %q: %w", b.endpoint, strings.Join(path, "."), err)
		}
		return value, nil
	case spec.KindObject:
		payload, isObject := supplied.(map[string]any)
		if supplied != nil && !isObject {
			// The caller gave something other than an object, send it as is
			return supplied, nil
		}

		object := make(map[string]any, len(schema.Fields))
		for _, field := range schema.Fields {
			fieldPath := append(path[:len(path):len(path)], field.Name)
			value, ok := payload[field.Name]

			if !ok && field.Schema.Kind != spec.KindValue && field.Schema.Kind != spec.KindObject && b.generator == nil {
				if field.Nullable {
					object[field.Name] = nil
					continue
				}
				return nil, MissingFieldError{Endpoint: b.endpoint, Field: strings.Join(fieldPath, ".")}
			}

			built, err := b.value(field.Schema, value, fieldPath, ok)
			if err != nil {
				return nil, err
			}
			object[field.Name] = built
		}

		return object, nil
	default:
		if given {
			return supplied, nil
		}
		if b.generator == nil {
			return nil, MissingFieldError{Endpoint: b.endpoint, Field: strings.Join(path, ".")}
		}
		value, err := b.generator.Value(schema, b.env.Vars)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", b.endpoint, err)
		}
		return value, nil
	}
}

// encodeQuery encodes a GET payload as a query string, keys are sorted.
func encodeQuery(body any) (string, error) {
	object, ok := body.(map[string]any)
	if !ok {
		return "", fmt.Errorf("a GET payload must be an object, got %s", eval.String(body))
	}

	values := url.Values{}
	for key, value := range object {
		switch v := value.(type) {
		case nil:
			continue
		case []any:
			for _, item := range v {
				values.Add(key, eval.String(item))
			}
		default:
			values.Set(key, eval.String(v))
		}
	}

	return values.Encode(), nil
}

func lookup(env eval.Env, name string) (any, bool) {
	if env.Vars == nil {
		return nil, false
	}

	value, ok := env.Vars(name)
	if !ok || value == nil {
		return nil, false
	}

	return value, true
}

func isAbsolute(address string) bool {
	parsed, err := url.Parse(address)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}
