// Package mock generates synthetic request and response data from resolved
// schemas, used whenever an endpoint runs in mock mode.
package mock

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.followtheprocess.codes/apidoc/internal/eval"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// Error is a failure to generate mock data, most often a call to a generator
// that doesn't exist.
type Error struct {
	Err   error  // The underlying cause
	Field string // The field being generated, empty if not known
}

// Error implements the error interface for [Error].
func (e Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("mock: %v", e.Err)
	}
	return fmt.Sprintf("mock %q: %v", e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e Error) Unwrap() error {
	return e.Err
}

// Generator produces mock values, it is safe for concurrent use.
type Generator struct {
	rand  *rand.Rand
	now   func() time.Time
	funcs map[string]eval.Func
}

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithClock sets the clock used by the now() generator.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New returns a [Generator] seeded with seed, the same seed produces the same
// sequence of values. A zero seed picks a random one.
func New(seed uint64, options ...Option) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}

	g := &Generator{
		rand: rand.New(&lockedSource{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}),
		now:  time.Now,
	}

	for _, option := range options {
		option(g)
	}

	g.funcs = g.builtins()

	return g
}

// Funcs returns the built in generator functions, for use in any [eval.Env].
func (g *Generator) Funcs() map[string]eval.Func {
	return g.funcs
}

// Value generates a value for schema. Variables referenced by fixed values and
// mock overrides are looked up with vars.
func (g *Generator) Value(schema *spec.Schema, vars eval.Lookup) (any, error) {
	return g.value(schema, g.env(vars), "")
}

// Response generates a full response for an endpoint, wrapped in @BASERES if one
// applies. The endpoint's MOCK overrides are applied to its own response and any
// equality its OK predicate requires is made to hold, so a generated response
// takes the OK path unless an override says otherwise.
func (g *Generator) Response(endpoint *spec.Endpoint, vars eval.Lookup) (any, error) {
	env := g.env(vars)

	top, err := g.value(endpoint.Wrapped, env, "")
	if err != nil {
		return nil, err
	}

	body := top
	if endpoint.Slot != nil {
		body, _ = eval.Select(top, endpoint.Slot)
	}

	overridden := make(map[string]bool)
	if endpoint.Mock != nil && endpoint.Mock.Response != nil && len(endpoint.Mock.Response.Fields) > 0 {
		object, ok := body.(map[string]any)
		if !ok {
			object = make(map[string]any, len(endpoint.Mock.Response.Fields))
			if endpoint.Slot == nil {
				top = object
			} else if wrapper, isObject := top.(map[string]any); isObject {
				setPath(wrapper, endpoint.Slot, object)
			}
			body = object
		}

		for _, field := range endpoint.Mock.Response.Fields {
			value, err := g.eval(field.Value, env, field.Key)
			if err != nil {
				return nil, err
			}
			object[field.Key] = value
			overridden[field.Key] = true
		}
	}

	g.constrain(endpoint, top, body, overridden)

	return top, nil
}

// Request generates the request body of an endpoint in mock mode, the MOCK
// request takes the place of the endpoint's own if one was given.
func (g *Generator) Request(endpoint *spec.Endpoint, vars eval.Lookup) (any, error) {
	schema := endpoint.Request
	if endpoint.Mock != nil && endpoint.Mock.Request != nil {
		schema = endpoint.Mock.Request
	}

	return g.value(schema, g.env(vars), "")
}

// constrain makes the equality constraints in the endpoint's OK predicate hold in
// a generated response. Fields are placed the way `this` looks them up, the top
// level first then the @BASERES slot.
func (g *Generator) constrain(endpoint *spec.Endpoint, top, body any, overridden map[string]bool) {
	if endpoint.OK == nil {
		return
	}

	wrapper, _ := top.(map[string]any)
	inner, _ := body.(map[string]any)

	for _, constraint := range eval.Constraints(endpoint.OK) {
		key := constraint.Path[0]

		switch {
		case constraint.Top:
			if wrapper != nil {
				setPath(wrapper, constraint.Path, constraint.Value)
			}
		case overridden[key]:
			// An explicit MOCK override wins, e.g. to force the ERR path
			continue
		case wrapper != nil && hasKey(wrapper, key):
			setPath(wrapper, constraint.Path, constraint.Value)
		case inner != nil:
			setPath(inner, constraint.Path, constraint.Value)
		case wrapper != nil:
			setPath(wrapper, constraint.Path, constraint.Value)
		}
	}
}

// value generates a value for a single schema node, field is the name of the
// field being generated for error reporting.
func (g *Generator) value(schema *spec.Schema, env eval.Env, field string) (any, error) {
	if schema == nil {
		return nil, nil
	}

	switch schema.Kind {
	case spec.KindValue:
		value, err := eval.Eval(schema.Value, env)
		if err != nil {
			var unbound eval.UnboundVariableError
			if errors.As(err, &unbound) {
				// Nothing to send yet, same as an absent value
				return nil, nil
			}
			return nil, Error{Field: field, Err: err}
		}
		return value, nil
	case spec.KindString:
		return g.text(8, alphanumeric), nil
	case spec.KindBool:
		return g.rand.IntN(2) == 0, nil
	case spec.KindNumber:
		return int64(g.rand.IntN(1000)), nil
	case spec.KindInt:
		lo, hi := schema.Range()
		return lo + int64(g.rand.Uint64N(uint64(hi-lo)+1)), nil
	case spec.KindFloat:
		return float64(g.rand.IntN(100000)) / 100, nil
	case spec.KindArray:
		n := 1 + g.rand.IntN(3)
		items := make([]any, 0, n)
		for range n {
			item, err := g.value(schema.Elem, env, field)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case spec.KindObject:
		return g.object(schema, env)
	case spec.KindWildcard:
		return nil, nil
	default:
		return nil, Error{Field: field, Err: fmt.Errorf("cannot generate a %s", schema.Kind)}
	}
}

// object generates an object, fields with a mock generator attached use it and
// the rest get a default value for their type.
func (g *Generator) object(schema *spec.Schema, env eval.Env) (map[string]any, error) {
	object := make(map[string]any, len(schema.Fields))

	for _, field := range schema.Fields {
		if generator, ok := schema.Mock[field.Name]; ok {
			value, err := g.eval(generator, env, field.Name)
			if err != nil {
				return nil, err
			}
			object[field.Name] = value
			continue
		}

		if field.Nullable && g.rand.IntN(4) == 0 {
			object[field.Name] = nil
			continue
		}

		value, err := g.value(field.Schema, env, field.Name)
		if err != nil {
			return nil, err
		}
		object[field.Name] = value
	}

	return object, nil
}

// eval evaluates a mock generator expression.
func (g *Generator) eval(expr syntax.Expr, env eval.Env, field string) (any, error) {
	value, err := eval.Eval(expr, env)
	if err != nil {
		return nil, Error{Field: field, Err: err}
	}

	return value, nil
}

func (g *Generator) env(vars eval.Lookup) eval.Env {
	return eval.Env{Vars: vars, Funcs: g.funcs}
}

func hasKey(object map[string]any, key string) bool {
	_, ok := object[key]
	return ok
}

// setPath sets value at path in object, creating intermediate objects as needed.
func setPath(object map[string]any, path []string, value any) {
	for _, key := range path[:len(path)-1] {
		next, ok := object[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			object[key] = next
		}
		object = next
	}

	object[path[len(path)-1]] = value
}

// lockedSource is a [rand.Source] safe for concurrent use, a [rand.Rand] has
// no state of its own so wrapping the source is enough.
type lockedSource struct {
	src rand.Source
	mu  sync.Mutex
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}
