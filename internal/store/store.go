// Package store implements the variable store, the live bindings of variables to
// values that change as endpoints run.
//
// Values are the plain Go forms of JSON: nil, bool, float64, string, []any and
// map[string]any.
package store

import (
	"maps"
	"slices"
	"sync"
)

// Scope identifies where a variable lives, the zero value is the global scope.
type Scope struct {
	endpoint string // Owning endpoint, empty for global
}

// Global is the scope of variables visible to every endpoint.
var Global = Scope{}

// Local returns the scope of variables local to the named endpoint.
func Local(endpoint string) Scope {
	return Scope{endpoint: endpoint}
}

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool {
	return s.endpoint == ""
}

// String implements [fmt.Stringer] for a [Scope].
func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "local(" + s.endpoint + ")"
}

// Store holds variable bindings for a single session, it is safe for concurrent use.
type Store struct {
	global map[string]any            // Global bindings
	local  map[string]map[string]any // Per endpoint bindings keyed by endpoint name
	mu     sync.RWMutex
}

// New returns a new, empty [Store].
func New() *Store {
	return &Store{
		global: make(map[string]any),
		local:  make(map[string]map[string]any),
	}
}

// Get returns the value bound to name in scope.
func (s *Store) Get(name string, scope Scope) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.frame(scope)[name]
	return value, ok
}

// Set binds name to value in scope, setting a nil value is the same as [Store.Clear].
func (s *Store) Set(name string, scope Scope, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		delete(s.frame(scope), name)
		return
	}

	if scope.IsGlobal() {
		s.global[name] = value
		return
	}

	frame, ok := s.local[scope.endpoint]
	if !ok {
		frame = make(map[string]any)
		s.local[scope.endpoint] = frame
	}
	frame[name] = value
}

// IsBound reports whether name currently has a value in scope. It is false both
// for a variable that was never given a value and one that has been cleared.
func (s *Store) IsBound(name string, scope Scope) bool {
	_, ok := s.Get(name, scope)
	return ok
}

// Clear unbinds name in scope.
func (s *Store) Clear(name string, scope Scope) {
	s.Set(name, scope, nil)
}

// Lookup resolves name from within the named endpoint's frame, the endpoint's
// local bindings shadow globals. Other endpoints' locals are never visible.
func (s *Store) Lookup(name, endpoint string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if endpoint != "" {
		if value, ok := s.local[endpoint][name]; ok {
			return value, true
		}
	}

	value, ok := s.global[name]
	return value, ok
}

// Update applies a batch of global bindings atomically, nil values clear.
func (s *Store) Update(bindings map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, value := range bindings {
		if value == nil {
			delete(s.global, name)
			continue
		}
		s.global[name] = value
	}
}

// Names returns the names of every bound global variable, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.global))
}

// frame returns the bindings map for scope, callers must hold the lock.
//
// The returned map may be nil for a local scope with no bindings, which is fine
// for reads and deletes.
func (s *Store) frame(scope Scope) map[string]any {
	if scope.IsGlobal() {
		return s.global
	}
	return s.local[scope.endpoint]
}
