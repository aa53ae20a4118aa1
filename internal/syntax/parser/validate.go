package parser

import (
	"fmt"
	"slices"

	"go.followtheprocess.codes/apidoc/internal/syntax"
)

// scope is the set of variable names visible at some point in the file.
type scope map[string]bool

// validate checks the parsed file for errors that can only be found once the whole
// file has been seen: duplicate names, references to undeclared variables and
// misplaced use of `this`.
//
// Declarations may appear after their use so this has to be a second pass.
func (p *Parser) validate(file syntax.File) {
	globals := scope{}
	for _, name := range []string{
		syntax.ShowMockHeader,
		syntax.BaseURL,
		syntax.BaseHeaders,
		syntax.BaseResponse,
		syntax.OKPredicate,
	} {
		globals[name] = true
	}

	// Names an endpoint promises to SET and the targets of OK/ERR assignments
	// are implicitly global
	for _, endpoint := range file.Endpoints {
		for _, name := range endpoint.Set {
			globals[name] = true
		}
		for _, assignment := range slices.Concat(endpoint.OnOK, endpoint.OnErr) {
			globals[assignment.Target] = true
		}
	}

	declared := make(map[string]syntax.Position, len(file.Decls))
	for _, decl := range file.Decls {
		if previous, exists := declared[decl.Name]; exists {
			p.report(decl.Pos, fmt.Sprintf("variable @%s already declared at %d:%d", decl.Name, previous.Line, previous.StartCol))
			continue
		}
		declared[decl.Name] = decl.Pos
		globals[decl.Name] = true
	}

	for _, decl := range file.Decls {
		p.checkDecl(decl, globals)
	}

	p.checkExpr(file.OK, globals, true)

	names := make(map[string]syntax.Position, len(file.Endpoints))
	for _, endpoint := range file.Endpoints {
		if previous, exists := names[endpoint.Name]; exists {
			p.report(endpoint.Start, fmt.Sprintf("endpoint %q already declared at %d:%d", endpoint.Name, previous.Line, previous.StartCol))
		} else {
			names[endpoint.Name] = endpoint.Start
		}

		p.checkEndpoint(endpoint, globals)
	}
}

// checkEndpoint validates a single endpoint block.
func (p *Parser) checkEndpoint(endpoint syntax.Endpoint, globals scope) {
	visible := make(scope, len(globals)+len(endpoint.Decls))
	for name := range globals {
		visible[name] = true
	}

	locals := make(map[string]syntax.Decl, len(endpoint.Decls))
	for _, decl := range endpoint.Decls {
		if previous, exists := locals[decl.Name]; exists {
			p.report(decl.Pos, fmt.Sprintf("variable @%s already declared at %d:%d", decl.Name, previous.Pos.Line, previous.Pos.StartCol))
			continue
		}
		locals[decl.Name] = decl
		visible[decl.Name] = true
	}

	for _, name := range endpoint.Must {
		if !globals[name] {
			p.report(endpoint.Start, fmt.Sprintf("MUST references undeclared variable @%s", name))
		}
	}

	p.checkTemplate(endpoint.Path, visible)
	for _, header := range endpoint.Headers {
		p.checkTemplate(header.Value, visible)
	}

	p.checkExpr(endpoint.Request, visible, false)
	p.checkExpr(endpoint.Response, visible, false)

	for _, decl := range endpoint.Decls {
		p.checkDecl(decl, visible)
	}

	overridden := make(map[string]bool, len(endpoint.Overrides))
	for _, override := range endpoint.Overrides {
		decl, ok := locals[override.Target]
		switch {
		case !ok:
			p.report(override.Pos, fmt.Sprintf("mock override targets @%s which is not declared in this block", override.Target))
		case decl.Mock != nil || overridden[override.Target]:
			p.report(override.Pos, fmt.Sprintf("duplicate mock override for @%s", override.Target))
		}
		overridden[override.Target] = true
		p.checkExpr(override.Fields, visible, false)
	}

	if endpoint.Mock != nil {
		p.checkExpr(endpoint.Mock.Request, visible, false)
		p.checkExpr(endpoint.Mock.Response, visible, false)
	}

	p.checkExpr(endpoint.OK, visible, true)
	for _, assignment := range endpoint.OnOK {
		p.checkExpr(assignment.Value, visible, true)
	}
	for _, assignment := range endpoint.OnErr {
		p.checkExpr(assignment.Value, visible, true)
	}
}

// checkDecl validates the expressions in a declaration.
func (p *Parser) checkDecl(decl syntax.Decl, visible scope) {
	p.checkExpr(decl.Type, visible, false)
	p.checkExpr(decl.Value, visible, false)
	if decl.Mock != nil {
		p.checkExpr(decl.Mock, visible, false)
	}
}

// checkTemplate validates the variables interpolated in a template.
func (p *Parser) checkTemplate(tmpl *syntax.Template, visible scope) {
	if tmpl == nil {
		return
	}

	for _, name := range tmpl.Vars() {
		if !visible[name] {
			p.report(p.position(tmpl.Start, tmpl.End), fmt.Sprintf("undeclared variable @%s", name))
		}
	}
}

// checkExpr validates the variable references in an expression, allowThis
// controls whether `this` may appear.
func (p *Parser) checkExpr(expr syntax.Expr, visible scope, allowThis bool) {
	syntax.Walk(expr, func(node syntax.Expr) bool {
		switch node := node.(type) {
		case *syntax.VarRef:
			if !visible[node.Name] {
				p.report(p.position(node.Start, node.End), fmt.Sprintf("undeclared variable @%s", node.Name))
			}
		case *syntax.ThisRef:
			if !allowThis {
				p.report(p.position(node.Start, node.End), "this may only be used in predicates and OK/ERR blocks")
			}
		}
		return true
	})
}
