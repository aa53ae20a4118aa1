package spec

import "go.followtheprocess.codes/apidoc/internal/syntax"

// A Scope represents the declarations visible from within an endpoint block, the
// global declarations at the top of the file as well as the local declarations
// of the block itself.
type Scope struct {
	// Global declarations available to the entire file.
	Global map[string]syntax.Decl

	// Local declarations, available only to a single endpoint.
	Local map[string]syntax.Decl
}

// NewScope returns a new [Scope].
func NewScope() Scope {
	return Scope{
		Global: make(map[string]syntax.Decl),
		Local:  make(map[string]syntax.Decl),
	}
}

// Lookup returns the declaration of name, local declarations shadow globals.
func (s Scope) Lookup(name string) (syntax.Decl, bool) {
	if decl, ok := s.Local[name]; ok {
		return decl, true
	}

	decl, ok := s.Global[name]
	return decl, ok
}
