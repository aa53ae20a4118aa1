// Package parser implements the .api file parser.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"

	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/syntax/scanner"
	"go.followtheprocess.codes/apidoc/internal/syntax/token"
)

// ErrParse is a generic parsing error, details on the error are passed
// to the parsers [syntax.ErrorHandler] at the moment it occurs.
var ErrParse = errors.New("parse error")

// Parser is the .api file parser.
type Parser struct {
	handler     syntax.ErrorHandler // The error handler
	scanner     *scanner.Scanner    // Scanner to generate tokens
	name        string              // Name of the file being parsed
	src         []byte              // Raw source text
	pending     []syntax.Error      // Scanner errors not yet reached by the parser
	diagnostics []syntax.Error      // Every error reported so far, in order
	current     token.Token         // Current token under inspection
	next        token.Token         // Next token in the stream
	prevEnd     int                 // End offset of the last consumed token
	mu          sync.Mutex          // Guards pending, the scanner reports from it's own goroutine
	bailed      bool                // Whether we hit a syntax error and stopped parsing
}

// New returns a new [Parser].
func New(name string, r io.Reader, handler syntax.ErrorHandler) (*Parser, error) {
	// .api files are smol, it's okay to read the whole thing
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read from input: %w", err)
	}

	p := &Parser{
		handler: handler,
		name:    name,
		src:     src,
	}

	p.scanner = scanner.New(name, src, p.scanError)

	// Read 2 tokens so current and next are set
	p.advance()
	p.advance()

	return p, nil
}

// Parse parses the file to completion returning a [syntax.File] and any parsing
// errors encountered.
//
// The returned error wraps [ErrParse] and the first [syntax.Error], every error is
// also passed to the handler given to [New] as it is found. When an error is
// returned, the [syntax.File] is always the zero value.
func (p *Parser) Parse() (syntax.File, error) {
	file := syntax.File{
		Name: p.name,
	}

	for !p.done() {
		switch p.current.Kind {
		case token.At:
			p.parseGlobal(&file)
		case token.Separator:
			endpoint := p.parseEndpoint()
			// If it's name is missing, name it after its position in the file (1 indexed)
			if endpoint.Name == "" {
				endpoint.Name = fmt.Sprintf("#%d", 1+len(file.Endpoints))
			}
			file.Endpoints = append(file.Endpoints, endpoint)
		default:
			p.errorf("unexpected %s, expected a variable declaration or an endpoint block", p.current.Kind)
		}
	}

	// Make sure the scanner goroutine finishes
	for p.current.Kind != token.EOF {
		p.advance()
	}

	if len(p.diagnostics) == 0 {
		p.validate(file)
	}

	if len(p.diagnostics) > 0 {
		return syntax.File{}, fmt.Errorf("%w: %w", ErrParse, p.diagnostics[0])
	}

	return file, nil
}

// Diagnostics returns every error reported during parsing.
func (p *Parser) Diagnostics() []syntax.Error {
	return p.diagnostics
}

// advance advances the parser by a single token, comments are skipped.
func (p *Parser) advance() {
	p.prevEnd = p.current.End
	p.current = p.next
	for {
		p.next = p.scanner.Scan()
		if p.next.Kind != token.Comment {
			break
		}
	}

	if p.current.Kind == token.Error || p.current.Kind == token.EOF {
		p.flushScanErrors()
	}
}

// done reports whether the parser should stop, either because the input is
// exhausted or because of a syntax error.
func (p *Parser) done() bool {
	return p.bailed || p.current.Kind == token.EOF || p.current.Kind == token.Error
}

// eat consumes the current token if it is of the given kind, emitting a syntax error if not.
func (p *Parser) eat(kind token.Kind) (token.Token, bool) {
	tok := p.current
	if tok.Kind != kind {
		p.errorf("expected %s, got %s", kind, tok.Kind)
		return tok, false
	}

	p.advance()
	return tok, true
}

// text returns the chunk of source text described by tok.
func (p *Parser) text(tok token.Token) string {
	return string(p.src[tok.Start:tok.End])
}

// sameLine reports whether tok starts on the same line that the source offset
// 'from' is on.
func (p *Parser) sameLine(from int, tok token.Token) bool {
	if tok.Kind == token.EOF || tok.Start < from {
		return false
	}
	return !bytes.ContainsRune(p.src[from:tok.Start], '\n')
}

// position returns a [syntax.Position] for the range of source between
// the byte offsets start and end.
//
// A range spanning multiple lines is clipped to the end of the first line.
func (p *Parser) position(start, end int) syntax.Position {
	line := 1              // Line counter
	lastNewLineOffset := 0 // The byte offset of the (end of the) last newline seen
	for index, byt := range p.src {
		if index >= start {
			break
		}

		if byt == '\n' {
			lastNewLineOffset = index + 1 // +1 to account for len("\n")
			line++
		}
	}

	if lineEnd := bytes.IndexByte(p.src[min(start, len(p.src)):], '\n'); lineEnd != -1 {
		end = min(end, start+lineEnd)
	}

	// The column is therefore the number of bytes between the end of the last newline
	// and the current position, +1 because editors columns start at 1. Applying this
	// correction here means you can click a syntax error in the terminal and be
	// taken to a precise location in an editor which is probably what we want to happen
	startCol := 1 + start - lastNewLineOffset
	endCol := max(1+end-lastNewLineOffset, startCol)

	return syntax.Position{
		Name:     p.name,
		Offset:   start,
		Line:     line,
		StartCol: startCol,
		EndCol:   endCol,
	}
}

// report records a diagnostic and calls the installed error handler.
func (p *Parser) report(pos syntax.Position, msg string) {
	p.diagnostics = append(p.diagnostics, syntax.Error{Pos: pos, Msg: msg})

	if p.handler != nil {
		p.handler(pos, msg)
	}
}

// error reports a syntax error at the current token and stops the parse, only the
// first syntax error is reported as everything after it is likely noise.
func (p *Parser) error(msg string) {
	if p.bailed {
		return
	}
	p.bailed = true

	if p.current.Kind == token.Error {
		// The scanner already told us what went wrong
		return
	}

	p.report(p.position(p.current.Start, p.current.End), msg)
}

// errorf calls error with a formatted message.
func (p *Parser) errorf(format string, a ...any) {
	p.error(fmt.Sprintf(format, a...))
}

// scanError is the [syntax.ErrorHandler] given to the scanner.
//
// The scanner runs ahead of the parser in it's own goroutine so errors are held
// until the parser catches up with them, if the parser already gave up before
// that point they are dropped.
func (p *Parser) scanError(pos syntax.Position, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, syntax.Error{Pos: pos, Msg: msg})
}

// flushScanErrors reports any pending scanner errors.
func (p *Parser) flushScanErrors() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if p.bailed || len(pending) == 0 {
		return
	}

	p.bailed = true
	for _, err := range pending {
		p.report(err.Pos, err.Msg)
	}
}

// parseGlobal parses a global variable declaration or the document `@OK:` predicate.
func (p *Parser) parseGlobal(file *syntax.File) {
	start := p.current.Start
	p.advance() // '@'

	ident, ok := p.eat(token.Ident)
	if !ok {
		return
	}

	name := p.text(ident)
	if name == syntax.OKPredicate {
		if file.OK != nil {
			p.errorf("duplicate %s predicate", "@OK")
			return
		}
		file.OK = p.parsePredicate()
		return
	}

	file.Decls = append(file.Decls, p.parseDecl(name, p.position(start, ident.End)))
}

// parsePredicate parses the `: <expr>` following `@OK`.
func (p *Parser) parsePredicate() syntax.Expr {
	if _, ok := p.eat(token.Colon); !ok {
		return nil
	}
	return p.parseExpr()
}

// parseDecl parses the remainder of a variable declaration, the '@name' has
// already been consumed.
func (p *Parser) parseDecl(name string, pos syntax.Position) syntax.Decl {
	decl := syntax.Decl{Name: name, Pos: pos}

	switch p.current.Kind {
	case token.Colon:
		p.advance()
		decl.Type = p.parseExpr()
		if p.current.Kind == token.Eq {
			p.advance()
			decl.Value = p.parseExpr()
		}
	case token.Eq:
		p.advance()
		decl.Value = p.parseExpr()
	default:
		p.errorf("expected %s or %s after @%s, got %s", token.Colon, token.Eq, name, p.current.Kind)
		return decl
	}

	if p.current.Kind == token.LeftArrow {
		p.advance()
		decl.Mock = p.parseObject()
	}

	return decl
}

// parseVarList parses a list of variables e.g. `[@token, @userid]`.
func (p *Parser) parseVarList() []string {
	if _, ok := p.eat(token.LeftBracket); !ok {
		return nil
	}

	var names []string
	for p.current.Kind != token.RightBracket && !p.done() {
		if _, ok := p.eat(token.At); !ok {
			return nil
		}
		ident, ok := p.eat(token.Ident)
		if !ok {
			return nil
		}
		names = append(names, p.text(ident))

		if p.current.Kind == token.Comma {
			p.advance()
		}
	}

	p.eat(token.RightBracket)
	return names
}

// parseAnnotations parses the optional name and MOCK, SET and MUST annotations
// on the same line as an opening separator.
func (p *Parser) parseAnnotations(endpoint *syntax.Endpoint, lineStart int) {
	first := true
	for p.sameLine(lineStart, p.current) && !p.done() {
		switch p.current.Kind {
		case token.Ident:
			if !first {
				p.errorf("an endpoint name must come before any annotations")
				return
			}
			endpoint.Name = p.text(p.current)
			p.advance()
		case token.Mock:
			endpoint.MockOnly = true
			p.advance()
		case token.Set:
			if endpoint.Set != nil {
				p.errorf("duplicate %s annotation", token.Set)
				return
			}
			p.advance()
			endpoint.Set = p.parseVarList()
		case token.Must:
			if endpoint.Must != nil {
				p.errorf("duplicate %s annotation", token.Must)
				return
			}
			p.advance()
			endpoint.Must = p.parseVarList()
		default:
			p.errorf("unexpected %s in endpoint annotations, expected a name, MOCK, SET or MUST", p.current.Kind)
			return
		}
		first = false
	}
}

// parseEndpoint parses a single '###' delimited endpoint block.
func (p *Parser) parseEndpoint() syntax.Endpoint {
	open := p.current
	endpoint := syntax.Endpoint{Start: p.position(open.Start, open.End)}
	p.advance()

	p.parseAnnotations(&endpoint, open.End)

	// Local declarations and predicates may come before the request line
	for p.current.Kind == token.At && !p.done() {
		p.parseLocal(&endpoint)
	}

	if p.done() {
		if !p.bailed {
			p.unterminated(open)
		}
		return endpoint
	}

	if !token.IsMethod(p.current.Kind) {
		p.errorf("expected a request line (GET or POST) in endpoint block, got %s", p.current.Kind)
		return endpoint
	}

	endpoint.Method = p.text(p.current)
	p.advance()

	path, ok := p.eat(token.Text)
	if !ok {
		return endpoint
	}
	endpoint.Path = p.parseTemplate(path)

	for p.current.Kind == token.Header && !p.done() {
		key := p.current
		p.advance()
		if _, ok := p.eat(token.Colon); !ok {
			return endpoint
		}
		value, ok := p.eat(token.Text)
		if !ok {
			return endpoint
		}
		endpoint.Headers = append(endpoint.Headers, syntax.Header{
			Key:   p.text(key),
			Value: p.parseTemplate(value),
			Pos:   p.position(key.Start, key.End),
		})
	}

	if p.current.Kind != token.Arrow && p.startsExpr() {
		endpoint.Request = p.parseExpr()
	}

	arrow := p.current
	if arrow.Kind != token.Arrow {
		p.errorf("expected %s dividing the request and response, got %s", token.Arrow, p.current.Kind)
		return endpoint
	}
	p.advance()

	if p.startsExpr() && (p.current.Kind != token.At || p.sameLine(arrow.End, p.current)) {
		endpoint.Response = p.parseExpr()
	}

	for p.current.Kind != token.Separator && !p.done() {
		switch p.current.Kind {
		case token.At:
			p.parseLocal(&endpoint)
		case token.Mock:
			p.parseMock(&endpoint)
		case token.OK:
			if endpoint.OnOK != nil {
				p.errorf("duplicate %s block", token.OK)
				return endpoint
			}
			p.advance()
			endpoint.OnOK = p.parseBlock()
		case token.Err:
			if endpoint.OnErr != nil {
				p.errorf("duplicate %s block", token.Err)
				return endpoint
			}
			p.advance()
			endpoint.OnErr = p.parseBlock()
		default:
			p.errorf("unexpected %s in endpoint block", p.current.Kind)
			return endpoint
		}
	}

	if p.bailed {
		return endpoint
	}

	if p.current.Kind != token.Separator {
		p.unterminated(open)
		return endpoint
	}

	closing := p.current
	endpoint.End = p.position(closing.Start, closing.End)
	p.advance()

	if p.sameLine(closing.End, p.current) {
		p.errorf("unexpected %s after closing separator, annotations belong on the opening ###", p.current.Kind)
	}

	return endpoint
}

// unterminated reports an endpoint block with no closing separator.
func (p *Parser) unterminated(open token.Token) {
	p.bailed = true
	p.report(p.position(open.Start, open.End), "unterminated endpoint block, missing closing ###")
}

// parseLocal parses a local declaration, a standalone mock override or an
// `@OK:` predicate inside an endpoint block.
func (p *Parser) parseLocal(endpoint *syntax.Endpoint) {
	start := p.current.Start
	p.advance() // '@'

	ident, ok := p.eat(token.Ident)
	if !ok {
		return
	}

	name := p.text(ident)
	pos := p.position(start, ident.End)

	switch {
	case name == syntax.OKPredicate:
		if endpoint.OK != nil {
			p.errorf("duplicate %s predicate", "@OK")
			return
		}
		endpoint.OK = p.parsePredicate()
	case p.current.Kind == token.LeftArrow:
		p.advance()
		endpoint.Overrides = append(endpoint.Overrides, syntax.Override{
			Target: name,
			Fields: p.parseObject(),
			Pos:    pos,
		})
	default:
		endpoint.Decls = append(endpoint.Decls, p.parseDecl(name, pos))
	}
}

// parseMock parses a `MOCK [request] => { ... }` directive.
func (p *Parser) parseMock(endpoint *syntax.Endpoint) {
	if endpoint.Mock != nil {
		p.errorf("duplicate %s directive", token.Mock)
		return
	}

	mock := &syntax.Mock{Pos: p.position(p.current.Start, p.current.End)}
	p.advance()

	if p.current.Kind != token.Arrow {
		mock.Request = p.parseExpr()
	}

	if _, ok := p.eat(token.Arrow); !ok {
		return
	}

	mock.Response = p.parseObject()
	endpoint.Mock = mock
}

// parseBlock parses the `{ @a = <expr> ... }` body of an OK or ERR block.
func (p *Parser) parseBlock() []syntax.Assignment {
	if _, ok := p.eat(token.LeftBrace); !ok {
		return nil
	}

	assignments := []syntax.Assignment{}
	for p.current.Kind != token.RightBrace && !p.done() {
		at, ok := p.eat(token.At)
		if !ok {
			return nil
		}
		ident, ok := p.eat(token.Ident)
		if !ok {
			return nil
		}
		if _, ok := p.eat(token.Eq); !ok {
			return nil
		}

		assignments = append(assignments, syntax.Assignment{
			Target: p.text(ident),
			Value:  p.parseExpr(),
			Pos:    p.position(at.Start, ident.End),
		})

		if p.current.Kind == token.Comma {
			p.advance()
		}
	}

	p.eat(token.RightBrace)
	return assignments
}

// parseTemplate splits a line of free text into literal text and `@name` interpolations.
//
// An '@' only starts an interpolation when it isn't preceded by a word character so
// that things like email addresses come through untouched.
func (p *Parser) parseTemplate(tok token.Token) *syntax.Template {
	text := p.text(tok)
	tmpl := &syntax.Template{Span: syntax.Span{Start: tok.Start, End: tok.End}}

	literal := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '@' || i+1 >= len(text) || !isWordStart(text[i+1]) || (i > 0 && isWordChar(text[i-1])) {
			continue
		}

		end := i + 1
		for end < len(text) && isWordChar(text[end]) {
			end++
		}

		if i > literal {
			tmpl.Parts = append(tmpl.Parts, syntax.Part{Text: text[literal:i]})
		}
		tmpl.Parts = append(tmpl.Parts, syntax.Part{Var: text[i+1 : end]})

		literal = end
		i = end - 1
	}

	if literal < len(text) {
		tmpl.Parts = append(tmpl.Parts, syntax.Part{Text: text[literal:]})
	}

	return tmpl
}

// startsExpr reports whether the current token can start an expression.
func (p *Parser) startsExpr() bool {
	switch p.current.Kind {
	case token.String, token.Number, token.True, token.False, token.Null, token.This,
		token.At, token.Ident, token.Star, token.LeftBrace, token.LeftBracket,
		token.LeftParen, token.Bang, token.Minus:
		return true
	default:
		return false
	}
}

// parseExpr parses an expression.
func (p *Parser) parseExpr() syntax.Expr {
	return p.parseBinary(0)
}

// precedence levels for binary operators, lowest first.
var precedence = [][]token.Kind{
	{token.OrOr},
	{token.AndAnd},
	{token.EqEq, token.NotEq},
	{token.Plus, token.Minus},
}

// operators maps binary operator tokens to their source form.
var operators = map[token.Kind]string{
	token.OrOr:   "||",
	token.AndAnd: "&&",
	token.EqEq:   "==",
	token.NotEq:  "!=",
	token.Plus:   "+",
	token.Minus:  "-",
}

// parseBinary parses a left associative chain of binary operators at the given
// precedence level.
func (p *Parser) parseBinary(level int) syntax.Expr {
	if level == len(precedence) {
		return p.parseUnary()
	}

	start := p.current.Start
	left := p.parseBinary(level + 1)

	for !p.done() && slices.Contains(precedence[level], p.current.Kind) {
		op := operators[p.current.Kind]
		p.advance()
		right := p.parseBinary(level + 1)
		left = &syntax.Binary{
			Left:  left,
			Right: right,
			Op:    op,
			Span:  syntax.Span{Start: start, End: p.prevEnd},
		}
	}

	return left
}

// parseUnary parses a prefix operator expression.
func (p *Parser) parseUnary() syntax.Expr {
	start := p.current.Start

	var op string
	switch p.current.Kind {
	case token.Bang:
		op = "!"
	case token.Minus:
		op = "-"
	default:
		return p.parsePrimary()
	}

	p.advance()
	x := p.parseUnary()

	return &syntax.Unary{X: x, Op: op, Span: syntax.Span{Start: start, End: p.prevEnd}}
}

// parsePrimary parses a single operand.
func (p *Parser) parsePrimary() syntax.Expr {
	tok := p.current
	span := syntax.Span{Start: tok.Start, End: tok.End}

	switch tok.Kind {
	case token.String:
		p.advance()
		// Strip the quotes
		return &syntax.StringLit{Value: string(p.src[tok.Start+1 : tok.End-1]), Span: span}
	case token.Number:
		p.advance()
		text := p.text(tok)
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.errorf("bad number literal %q: %v", text, err)
		}
		return &syntax.NumberLit{Text: text, Value: value, Span: span}
	case token.True, token.False:
		p.advance()
		return &syntax.BoolLit{Value: tok.Kind == token.True, Span: span}
	case token.Null:
		p.advance()
		return &syntax.NullLit{Span: span}
	case token.Star:
		p.advance()
		return &syntax.Wildcard{Span: span}
	case token.This:
		p.advance()
		path := p.parsePath()
		return &syntax.ThisRef{Path: path, Span: syntax.Span{Start: tok.Start, End: p.prevEnd}}
	case token.At:
		p.advance()
		ident, ok := p.eat(token.Ident)
		if !ok {
			return &syntax.NullLit{Span: span}
		}
		path := p.parsePath()
		return &syntax.VarRef{Name: p.text(ident), Path: path, Span: syntax.Span{Start: tok.Start, End: p.prevEnd}}
	case token.Ident:
		name := p.text(tok)
		p.advance()
		if p.current.Kind == token.LeftParen {
			return p.parseCall(name, tok.Start)
		}
		if syntax.IsPrimitive(name) {
			return &syntax.TypeName{Name: name, Span: span}
		}
		return &syntax.Word{Value: name, Span: span}
	case token.LeftBrace:
		return p.parseObject()
	case token.LeftBracket:
		return p.parseArray()
	case token.LeftParen:
		p.advance()
		inner := p.parseExpr()
		p.eat(token.RightParen)
		return inner
	default:
		p.errorf("expected an expression, got %s", tok.Kind)
		return &syntax.NullLit{Span: span}
	}
}

// parsePath parses a run of `.field` selectors.
func (p *Parser) parsePath() []string {
	var path []string
	for p.current.Kind == token.Dot && !p.done() {
		p.advance()
		ident, ok := p.eat(token.Ident)
		if !ok {
			return path
		}
		path = append(path, p.text(ident))
	}

	return path
}

// parseCall parses the argument list of a call to a named function, the name has
// already been consumed and p.current is the '('.
func (p *Parser) parseCall(name string, start int) syntax.Expr {
	p.advance() // '('

	call := &syntax.Call{Name: name}
	for p.current.Kind != token.RightParen && !p.done() {
		call.Args = append(call.Args, p.parseExpr())
		if p.current.Kind != token.Comma {
			break
		}
		p.advance()
	}

	p.eat(token.RightParen)
	call.Span = syntax.Span{Start: start, End: p.prevEnd}
	return call
}

// parseObject parses an object literal, fields may be separated by commas,
// newlines or nothing at all.
func (p *Parser) parseObject() *syntax.ObjectLit {
	start := p.current.Start
	object := &syntax.ObjectLit{}

	if _, ok := p.eat(token.LeftBrace); !ok {
		return object
	}

	for p.current.Kind != token.RightBrace && !p.done() {
		keyTok := p.current

		var key string
		switch keyTok.Kind {
		case token.String:
			key = string(p.src[keyTok.Start+1 : keyTok.End-1])
		case token.Ident:
			key = p.text(keyTok)
		default:
			p.errorf("expected an object key, got %s", keyTok.Kind)
			return object
		}

		if _, exists := object.Get(key); exists {
			p.errorf("duplicate key %q in object", key)
			return object
		}

		p.advance()
		if _, ok := p.eat(token.Colon); !ok {
			return object
		}

		field := syntax.Field{Key: key, Value: p.parseExpr()}
		if p.current.Kind == token.Question {
			field.Nullable = true
			p.advance()
		}
		field.Span = syntax.Span{Start: keyTok.Start, End: p.prevEnd}
		object.Fields = append(object.Fields, field)

		if p.current.Kind == token.Comma {
			p.advance()
		}
	}

	p.eat(token.RightBrace)
	object.Span = syntax.Span{Start: start, End: p.prevEnd}
	return object
}

// parseArray parses a bracketed list of expressions.
func (p *Parser) parseArray() *syntax.ArrayLit {
	start := p.current.Start
	p.advance() // '['

	array := &syntax.ArrayLit{}
	for p.current.Kind != token.RightBracket && !p.done() {
		array.Items = append(array.Items, p.parseExpr())
		if p.current.Kind != token.Comma {
			break
		}
		p.advance()
	}

	p.eat(token.RightBracket)
	array.Span = syntax.Span{Start: start, End: p.prevEnd}
	return array
}

func isWordStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isWordChar(b byte) bool {
	return isWordStart(b) || (b >= '0' && b <= '9')
}
