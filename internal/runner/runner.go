// Package runner runs endpoints: resolving their MUST dependencies, building
// and performing the request, evaluating the response and applying the effects
// of the OK or ERR block.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"sync"

	"go.followtheprocess.codes/apidoc/internal/eval"
	"go.followtheprocess.codes/apidoc/internal/mock"
	"go.followtheprocess.codes/apidoc/internal/request"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/store"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/transport"
	"go.followtheprocess.codes/log"
)

// Result is the outcome of running a single endpoint.
type Result struct {
	Err          error              `json:"-"`                      // Why the ERR path was taken, nil on the OK path
	Response     transport.Response `json:"response"`               // The response, real or generated
	Request      request.Request    `json:"request"`                // The request as built
	Endpoint     string             `json:"endpoint"`               // Name of the endpoint
	Assigned     []string           `json:"assigned,omitempty"`     // Variables assigned by the action block, in order
	Dependencies []Result           `json:"dependencies,omitempty"` // Endpoints run first to satisfy MUST, in the order they ran
	OK           bool               `json:"ok"`                     // Whether the OK path was taken
}

// Session runs endpoints of a single document against a shared [store.Store].
//
// A Session is safe for concurrent use, top level runs are serialised so one
// flow never observes another's partial updates.
type Session struct {
	doc       *spec.Document
	store     *store.Store
	transport transport.Transport
	generator *mock.Generator
	logger    *log.Logger
	payloads  map[string]map[string]any
	mu        sync.Mutex
	mock      bool
}

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithTransport sets the transport used for real requests.
func WithTransport(t transport.Transport) Option {
	return func(s *Session) {
		s.transport = t
	}
}

// WithGenerator sets the mock generator.
func WithGenerator(g *mock.Generator) Option {
	return func(s *Session) {
		s.generator = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMock makes every endpoint run in mock mode.
func WithMock(mock bool) Option {
	return func(s *Session) {
		s.mock = mock
	}
}

// WithPayloads sets caller supplied request payloads keyed by endpoint name,
// used whether the endpoint is run directly or as a dependency.
func WithPayloads(payloads map[string]map[string]any) Option {
	return func(s *Session) {
		s.payloads = payloads
	}
}

// WithStore sets the variable store, by default a session starts with an
// empty one.
func WithStore(s *store.Store) Option {
	return func(session *Session) {
		session.store = s
	}
}

// New returns a new [Session] for doc, the store is seeded with the values of
// the document's global declarations.
func New(doc *spec.Document, options ...Option) (*Session, error) {
	session := &Session{
		doc:   doc,
		store: store.New(),
	}

	for _, option := range options {
		option(session)
	}

	if session.transport == nil {
		session.transport = transport.NewHTTP(transport.DefaultTimeout)
	}

	if session.generator == nil {
		session.generator = mock.New(0)
	}

	if session.logger == nil {
		session.logger = log.New(io.Discard)
	}

	if err := session.seed(); err != nil {
		return nil, err
	}

	return session, nil
}

// Store returns the session's variable store.
func (s *Session) Store() *store.Store {
	return s.store
}

// Run runs the named endpoint, first running whichever endpoints are needed to
// bind its MUST variables.
//
// The returned error is for failures that stop the run entirely, an endpoint
// taking its ERR path is reported in the [Result].
func (s *Session) Run(ctx context.Context, name string) (Result, error) {
	endpoint, ok := s.doc.GetEndpoint(name)
	if !ok {
		return Result{}, fmt.Errorf("no endpoint named %q in %s", name, s.doc.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := &run{session: s}
	if err := r.ensure(ctx, endpoint); err != nil {
		return Result{Endpoint: endpoint.Name, Dependencies: r.dependencies}, err
	}

	result, err := r.execute(ctx, endpoint)
	result.Dependencies = r.dependencies

	return result, err
}

// seed binds the global declarations that have a plain value.
func (s *Session) seed() error {
	for _, variable := range s.doc.Vars {
		if variable.Value == nil || !eval.IsValue(variable.Value) {
			continue
		}

		switch variable.Name {
		case syntax.BaseHeaders, syntax.BaseResponse, syntax.ShowMockHeader:
			// Settings of the document, not variables
			continue
		}

		value, err := eval.Eval(variable.Value, eval.Env{Vars: s.global, Funcs: s.generator.Funcs()})
		if err != nil {
			var unbound eval.UnboundVariableError
			if errors.As(err, &unbound) {
				// Depends on something set at run time
				continue
			}
			return fmt.Errorf("%s: @%s: %w", variable.Pos, variable.Name, err)
		}

		s.store.Set(variable.Name, store.Global, value)
	}

	return nil
}

func (s *Session) global(name string) (any, bool) {
	return s.store.Get(name, store.Global)
}

// run is the state of a single top level run.
type run struct {
	session      *Session
	stack        []string // Endpoints currently being resolved, outermost first
	dependencies []Result // Endpoints run so far to satisfy MUST
}

// ensure binds every MUST variable of endpoint, running the first other endpoint
// registered to SET each one that isn't bound. Providers have their own MUST
// variables ensured first.
func (r *run) ensure(ctx context.Context, endpoint *spec.Endpoint) error {
	r.stack = append(r.stack, endpoint.Name)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	logger := r.session.logger.With("endpoint", endpoint.Name)

	for _, variable := range endpoint.Must {
		if r.session.store.IsBound(variable, store.Global) {
			continue
		}

		provider := r.provider(variable, endpoint)
		if provider == nil {
			return UnresolvedDependencyError{
				Variable:  variable,
				Requester: endpoint.Name,
				Chain:     slices.Clone(r.stack),
			}
		}

		if start := slices.Index(r.stack, provider.Name); start != -1 {
			return DependencyCycleError{Path: append(slices.Clone(r.stack[start:]), provider.Name)}
		}

		logger.Debug("Resolving dependency", "variable", variable, "provider", provider.Name)

		if err := r.ensure(ctx, provider); err != nil {
			return err
		}

		result, err := r.execute(ctx, provider)
		if err != nil {
			return err
		}
		r.dependencies = append(r.dependencies, result)

		if !r.session.store.IsBound(variable, store.Global) {
			cause := result.Err
			if cause == nil && result.OK {
				cause = errors.New("its OK block did not assign it")
			}
			return UnresolvedDependencyError{
				Cause:     cause,
				Variable:  variable,
				Requester: endpoint.Name,
				Provider:  provider.Name,
				Chain:     slices.Clone(r.stack),
			}
		}
	}

	return nil
}

// provider returns the first endpoint other than requester registered to SET
// variable, nil if there isn't one.
func (r *run) provider(variable string, requester *spec.Endpoint) *spec.Endpoint {
	for _, setter := range r.session.doc.Setters(variable) {
		if setter.Name != requester.Name {
			return setter
		}
	}

	return nil
}

// execute runs a single endpoint end to end, its dependencies must already be
// ensured.
func (r *run) execute(ctx context.Context, endpoint *spec.Endpoint) (Result, error) {
	result := Result{Endpoint: endpoint.Name}

	if endpoint.Err != nil {
		return result, endpoint.Err
	}

	s := r.session
	logger := s.logger.With("endpoint", endpoint.Name)
	mocked := s.mock || endpoint.MockOnly

	if err := r.locals(endpoint); err != nil {
		return result, err
	}

	vars := func(name string) (any, bool) {
		return s.store.Lookup(name, endpoint.Name)
	}

	options := request.Options{Payload: s.payloads[endpoint.Name]}
	if mocked {
		options.Mock = s.generator
	}

	req, err := request.Build(s.doc, endpoint, vars, options)
	if err != nil {
		return result, err
	}
	result.Request = req

	logger.Debug("Sending request", "method", req.Method, "url", req.URL, "mock", mocked)

	var failure error
	if mocked {
		body, err := s.generator.Response(endpoint, vars)
		if err != nil {
			return result, fmt.Errorf("endpoint %s: %w", endpoint.Name, err)
		}

		result.Response = transport.Response{Status: http.StatusOK, Body: body, Header: http.Header{}}
		if s.doc.ShowMockHeader {
			result.Response.Header.Set(request.MockHeader, "true")
		}
	} else {
		result.Response, err = s.transport.Do(ctx, req)
		switch {
		case err != nil:
			failure = err
		case !result.Response.OK():
			failure = fmt.Errorf("request failed with status %d", result.Response.Status)
		}
	}

	env := eval.Env{
		Vars:    vars,
		Funcs:   s.generator.Funcs(),
		This:    result.Response.Body,
		Slot:    endpoint.Slot,
		HasThis: true,
	}

	if failure == nil {
		ok, err := eval.Eval(endpoint.OK, env)
		if err != nil {
			var field eval.FieldResolutionError
			if !errors.As(err, &field) {
				return result, fmt.Errorf("endpoint %s: OK predicate: %w", endpoint.Name, err)
			}
			failure = err
		} else if !eval.Truthy(ok) {
			failure = fmt.Errorf("OK predicate %s not satisfied", endpoint.OK)
		}
	}

	result.OK = failure == nil
	result.Err = failure

	block := endpoint.OnOK
	if !result.OK {
		block = endpoint.OnErr
		logger.Debug("Taking ERR path", "reason", failure)
	}

	assigned, err := r.effects(endpoint, block, env)
	if err != nil {
		return result, err
	}
	result.Assigned = assigned

	logger.Info("Ran endpoint", "status", result.Response.Status, "ok", result.OK)

	return result, nil
}

// effects applies an action block. Every target is checked before anything is
// evaluated and the bindings are committed together, so a failing block changes
// nothing. Later assignments see the values of earlier ones.
func (r *run) effects(endpoint *spec.Endpoint, block []syntax.Assignment, env eval.Env) ([]string, error) {
	for _, assignment := range block {
		if !endpoint.Sets(assignment.Target) {
			return nil, ScopeError{Endpoint: endpoint.Name, Variable: assignment.Target, Pos: assignment.Pos}
		}
	}

	overlay := make(map[string]any, len(block))
	vars := env.Vars
	env.Vars = func(name string) (any, bool) {
		if value, ok := overlay[name]; ok {
			return value, value != nil
		}
		return vars(name)
	}

	assigned := make([]string, 0, len(block))
	for _, assignment := range block {
		value, err := eval.Eval(assignment.Value, env)
		if err != nil {
			return nil, fmt.Errorf("%s: endpoint %s: @%s: %w", assignment.Pos, endpoint.Name, assignment.Target, err)
		}
		overlay[assignment.Target] = value
		assigned = append(assigned, assignment.Target)
	}

	r.session.store.Update(overlay)

	if len(overlay) > 0 {
		r.session.logger.Debug("Applied effects", "endpoint", endpoint.Name, "variables", slices.Sorted(maps.Keys(overlay)))
	}

	return assigned, nil
}

// locals binds the local declarations of endpoint that have a plain value.
func (r *run) locals(endpoint *spec.Endpoint) error {
	scope := store.Local(endpoint.Name)

	for _, variable := range endpoint.Locals {
		if variable.Value == nil || !eval.IsValue(variable.Value) {
			continue
		}

		// Opt out markers like `@BASERES = null`
		if _, isNull := variable.Value.(*syntax.NullLit); isNull {
			continue
		}

		value, err := eval.Eval(variable.Value, eval.Env{
			Vars:  func(name string) (any, bool) { return r.session.store.Lookup(name, endpoint.Name) },
			Funcs: r.session.generator.Funcs(),
		})
		if err != nil {
			var unbound eval.UnboundVariableError
			if errors.As(err, &unbound) {
				continue
			}
			return fmt.Errorf("%s: endpoint %s: @%s: %w", variable.Pos, endpoint.Name, variable.Name, err)
		}

		r.session.store.Set(variable.Name, scope, value)
	}

	return nil
}
