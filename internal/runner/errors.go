package runner

import (
	"fmt"
	"strings"

	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// UnresolvedDependencyError is a required variable that could not be bound,
// either because no other endpoint is registered to SET it or because running
// the one that is left it unbound.
type UnresolvedDependencyError struct {
	Cause     error    // Why the provider didn't bind it, nil if there was no provider
	Variable  string   // The required variable
	Requester string   // The endpoint that requires it
	Provider  string   // The endpoint that was run to bind it, empty if there was none
	Chain     []string // Endpoints being resolved, from the one originally run down to the requester
}

// Error implements the error interface for [UnresolvedDependencyError].
func (e UnresolvedDependencyError) Error() string {
	var msg string
	if e.Provider == "" {
		msg = fmt.Sprintf("endpoint %s requires @%s but no other endpoint is registered to SET it", e.Requester, e.Variable)
	} else {
		msg = fmt.Sprintf("endpoint %s requires @%s but it is still unbound after running %s", e.Requester, e.Variable, e.Provider)
	}

	if len(e.Chain) > 1 {
		msg += " (while resolving " + strings.Join(e.Chain, " -> ") + ")"
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap returns the underlying cause, if any.
func (e UnresolvedDependencyError) Unwrap() error {
	return e.Cause
}

// DependencyCycleError is a chain of MUST requirements that leads back to an
// endpoint already being resolved.
type DependencyCycleError struct {
	Path []string // The cycle, the first and last endpoints are the same
}

// Error implements the error interface for [DependencyCycleError].
func (e DependencyCycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// ScopeError is an assignment to a variable the endpoint is not registered to SET.
type ScopeError struct {
	Endpoint string          // The endpoint making the assignment
	Variable string          // The assigned variable
	Pos      syntax.Position // Position of the assignment
}

// Error implements the error interface for [ScopeError].
func (e ScopeError) Error() string {
	return fmt.Sprintf("%s: endpoint %s assigns @%s but is not registered to SET it", e.Pos, e.Endpoint, e.Variable)
}
