// Package scanner implements the lexical scanner for .api files.
package scanner

import (
	"bytes"
	"fmt"
	"unicode"
	"unicode/utf8"

	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/syntax/token"
)

const (
	bufferSize = 32       // Benchmarking suggests this as the best token buffer size
	eof        = rune(-1) // eof signifies we have reached the end of the input
	bom        = "\ufeff" // UTF-8 byte order mark, skipped if present at the start of the input
	separator  = "###"    // Endpoint block separator
)

// scanFn represents the state of the scanner as a function that returns the next state.
type scanFn func(*Scanner) scanFn

// Scanner is the .api file scanner.
type Scanner struct {
	handler   syntax.ErrorHandler // The error handler, if any
	tokens    chan token.Token    // Channel on which to emit scanned tokens
	name      string              // Name of the file
	src       []byte              // Raw source text
	start     int                 // The start position of the current token
	pos       int                 // Current scanner position in src (bytes, 0 indexed)
	line      int                 // Current line number (1 indexed)
	lineStart int                 // Offset at which the current line started
	width     int                 // Width of the last rune read from input, so we can backup
}

// New returns a new [Scanner] that reads from src.
func New(name string, src []byte, handler syntax.ErrorHandler) *Scanner {
	s := &Scanner{
		handler: handler,
		tokens:  make(chan token.Token, bufferSize),
		name:    name,
		src:     src,
		start:   0,
		pos:     0,
		line:    1,
		width:   0,
	}

	if bytes.HasPrefix(src, []byte(bom)) {
		s.pos = len(bom)
		s.start = s.pos
		s.lineStart = s.pos
	}

	// run terminates when the scanning state machine is finished and all the tokens
	// drained from s.tokens so no wg.Add needed here
	go s.run()
	return s
}

// Scan scans the input and returns the next token.
//
// Once the input is exhausted, Scan returns [token.EOF] forever.
func (s *Scanner) Scan() token.Token {
	return <-s.tokens
}

// next returns, and consumes, the next character in the input or [eof].
func (s *Scanner) next() rune {
	if s.pos >= len(s.src) {
		return eof
	}

	char, width := utf8.DecodeRune(s.src[s.pos:])
	if char == utf8.RuneError {
		s.errorf("invalid utf8 char: %U", char)
		// Advance to the end to prevent cascade errors
		s.pos = len(s.src)
		return eof
	}

	s.width = width
	s.pos += width
	if char == '\n' {
		s.line++
		s.lineStart = s.pos
	}

	return char
}

// peek returns, but does not consume, the next character in the input or [eof].
func (s *Scanner) peek() rune {
	if s.pos >= len(s.src) {
		return eof
	}

	_, width := utf8.DecodeRune(s.src[s.pos:])

	peekPos := s.pos + width
	if peekPos >= len(s.src) {
		return eof
	}

	peekChar, _ := utf8.DecodeRune(s.src[peekPos:])

	return peekChar
}

// char returns the character the scanner is currently sat on or [eof].
func (s *Scanner) char() rune {
	if s.pos >= len(s.src) {
		return eof
	}
	char, _ := utf8.DecodeRune(s.src[s.pos:])
	return char
}

// rest returns the rest of src, starting from the current position.
func (s *Scanner) rest() []byte {
	if s.pos >= len(s.src) {
		return nil
	}
	return s.src[s.pos:]
}

// atLineStart reports whether the scanner is sat on the first column of a line.
func (s *Scanner) atLineStart() bool {
	return s.pos == s.lineStart
}

// skip ignores any characters for which the predicate returns true, stopping at the
// first one that returns false such that after it returns, s.char returns the
// first 'false' char.
//
// The scanner start position is brought up to the current position before returning, effectively
// ignoring everything it's travelled over in the meantime.
func (s *Scanner) skip(predicate func(r rune) bool) {
	for s.char() != eof && predicate(s.char()) {
		s.next()
	}
	s.start = s.pos
}

// emit passes a token over the tokens channel, using the scanner's internal
// state to populate position information.
func (s *Scanner) emit(kind token.Kind) {
	s.tokens <- token.Token{
		Kind:  kind,
		Start: s.start,
		End:   s.pos,
	}
	s.start = s.pos
}

// emitTrimmed is like emit but excludes any trailing non line terminating whitespace
// from the token's range.
func (s *Scanner) emitTrimmed(kind token.Kind) {
	end := s.pos
	for end > s.start && isLineSpace(rune(s.src[end-1])) {
		end--
	}

	s.tokens <- token.Token{
		Kind:  kind,
		Start: s.start,
		End:   end,
	}
	s.start = s.pos
}

// run starts the state machine for the scanner, it runs with each [scanFn] returning the next
// state until one returns nil (typically an error or eof), at which point the tokens channel
// is closed as a signal to the receiver that no more tokens will be sent.
func (s *Scanner) run() {
	for state := scanStart; state != nil; {
		state = state(s)
	}
	s.tokens <- token.Token{Kind: token.EOF, Start: s.pos, End: s.pos}
	close(s.tokens)
}

// error calculates the position information and arranges for s.handler to be called
// with the information.
func (s *Scanner) error(msg string) {
	if s.handler == nil {
		// I guess just ignore the error?
		return
	}

	// Column is the number of bytes between the last newline and the current position
	// +1 because columns are 1 indexed
	startCol := 1 + s.start - s.lineStart
	endCol := 1 + s.pos - s.lineStart

	if startCol < 1 {
		// The token started on a previous line
		startCol = 1
	}

	position := syntax.Position{
		Name:     s.name,
		Offset:   s.start,
		Line:     s.line,
		StartCol: startCol,
		EndCol:   max(endCol, startCol),
	}

	s.handler(position, msg)
}

// errorf calls error with a formatted message.
func (s *Scanner) errorf(format string, a ...any) {
	s.error(fmt.Sprintf(format, a...))
}

// fail reports a syntax error, emits an error token and stops the state machine.
func (s *Scanner) fail(format string, a ...any) scanFn {
	s.errorf(format, a...)
	s.emit(token.Error)
	return nil
}

// scanStart is the initial state of the scanner.
func scanStart(s *Scanner) scanFn {
	s.skip(unicode.IsSpace)

	if s.atLineStart() && bytes.HasPrefix(s.rest(), []byte(separator)) {
		return scanSeparator
	}

	switch char := s.char(); char {
	case eof:
		return nil // Break the state machine
	case '#':
		return scanComment
	case '"':
		return scanString
	case '@':
		return scanAt
	case '=':
		switch s.peek() {
		case '=':
			return scanDouble(token.EqEq)
		case '>':
			return scanDouble(token.Arrow)
		default:
			return scanSingle(token.Eq)
		}
	case '!':
		if s.peek() == '=' {
			return scanDouble(token.NotEq)
		}
		return scanSingle(token.Bang)
	case '<':
		if s.peek() == '=' {
			return scanDouble(token.LeftArrow)
		}
		s.next()
		return s.fail("unexpected token %q, did you mean %q?", "<", "<=")
	case '&':
		if s.peek() == '&' {
			return scanDouble(token.AndAnd)
		}
		s.next()
		return s.fail("unexpected token %q, did you mean %q?", "&", "&&")
	case '|':
		if s.peek() == '|' {
			return scanDouble(token.OrOr)
		}
		s.next()
		return s.fail("unexpected token %q, did you mean %q?", "|", "||")
	case ':':
		return scanSingle(token.Colon)
	case ',':
		return scanSingle(token.Comma)
	case '.':
		return scanSingle(token.Dot)
	case '+':
		return scanSingle(token.Plus)
	case '-':
		return scanSingle(token.Minus)
	case '?':
		return scanSingle(token.Question)
	case '*':
		return scanSingle(token.Star)
	case '{':
		return scanSingle(token.LeftBrace)
	case '}':
		return scanSingle(token.RightBrace)
	case '[':
		return scanSingle(token.LeftBracket)
	case ']':
		return scanSingle(token.RightBracket)
	case '(':
		return scanSingle(token.LeftParen)
	case ')':
		return scanSingle(token.RightParen)
	default:
		switch {
		case isAlpha(char):
			return scanWord
		case isDigit(char):
			return scanNumber
		default:
			s.next()
			return s.fail("unexpected token %q", string(char))
		}
	}
}

// scanSingle returns a state that consumes a single character token of the given kind.
func scanSingle(kind token.Kind) scanFn {
	return func(s *Scanner) scanFn {
		s.next()
		s.emit(kind)
		return scanStart
	}
}

// scanDouble returns a state that consumes a two character token of the given kind.
func scanDouble(kind token.Kind) scanFn {
	return func(s *Scanner) scanFn {
		s.next()
		s.next()
		s.emit(kind)
		return scanStart
	}
}

// scanComment scans a '#' comment through to the end of the line.
func scanComment(s *Scanner) scanFn {
	s.next() // Consume the '#'

	// Ignore any (non line terminating) whitespace between the
	// '#' and the comment text
	s.skip(isLineSpace)

	// Now absorb any text until the the end of the line or eof
	for s.char() != '\n' && s.char() != eof {
		s.next()
	}

	s.emitTrimmed(token.Comment)
	return scanStart
}

// scanSeparator scans the '###' endpoint separator. By the time this is called
// we know the line starts with at least 3 '#'.
//
// Any further '#' characters are absorbed into the separator, the rest of the
// line holds optional annotations and is scanned as normal.
func scanSeparator(s *Scanner) scanFn {
	for s.char() == '#' {
		s.next()
	}

	s.emit(token.Separator)
	return scanStart
}

// scanString scans a double quoted string literal, strings may not contain
// double quotes or span multiple lines.
func scanString(s *Scanner) scanFn {
	s.next() // Consume the opening '"'

	for {
		switch s.char() {
		case '"':
			s.next()
			s.emit(token.String)
			return scanStart
		case '\n', eof:
			return s.fail("unterminated string literal")
		default:
			s.next()
		}
	}
}

// scanAt scans a '@' character and the identifier that must follow it.
func scanAt(s *Scanner) scanFn {
	s.next() // Consume the '@'
	s.emit(token.At)

	if !isAlpha(s.char()) {
		return s.fail("expected identifier after %q, got %q", "@", printable(s.char()))
	}

	for isIdent(s.char()) {
		s.next()
	}

	s.emit(token.Ident)
	return scanStart
}

// scanWord scans a bare word, which is either a keyword or an identifier.
func scanWord(s *Scanner) scanFn {
	for isIdent(s.char()) {
		s.next()
	}

	kind, _ := token.Keyword(string(s.src[s.start:s.pos]))
	s.emit(kind)

	if token.IsMethod(kind) {
		return scanRequestLine
	}

	return scanStart
}

// scanNumber scans a number literal.
func scanNumber(s *Scanner) scanFn {
	for isDigit(s.char()) {
		s.next()
	}

	if s.char() == '.' && isDigit(s.peek()) {
		s.next() // Consume the '.'
		for isDigit(s.char()) {
			s.next()
		}
	}

	if isAlpha(s.char()) {
		s.next()
		return s.fail("bad number literal")
	}

	s.emit(token.Number)
	return scanStart
}

// scanRequestLine scans the path following a HTTP method keyword. The path is
// everything up to the end of the line or a trailing comment.
func scanRequestLine(s *Scanner) scanFn {
	s.skip(isLineSpace)

	for !isLineEnd(s.char()) && !s.atTrailingComment() {
		s.next()
	}

	if s.pos == s.start {
		return s.fail("expected a request path after the HTTP method")
	}

	s.emitTrimmed(token.Text)

	if s.char() == '#' {
		// scanComment returns scanStart, we need to come back to headers
		scanComment(s)
	}

	return scanHeaders
}

// scanHeaders scans 0 or more `key: value` header lines following a request line.
//
// Blank lines and comment lines between headers are allowed, header scanning
// ends at the first line that isn't a header.
func scanHeaders(s *Scanner) scanFn {
	for {
		s.skip(unicode.IsSpace)

		if s.atLineStart() && bytes.HasPrefix(s.rest(), []byte(separator)) {
			return scanStart
		}

		if s.char() == '#' {
			scanComment(s)
			continue
		}

		if !s.atHeader() {
			return scanStart
		}

		for isHeaderKey(s.char()) {
			s.next()
		}
		s.emit(token.Header)

		s.skip(isLineSpace)
		s.next() // The ':', atHeader checked it's there
		s.emit(token.Colon)

		s.skip(isLineSpace)
		for !isLineEnd(s.char()) && !s.atTrailingComment() {
			s.next()
		}
		s.emitTrimmed(token.Text)

		if s.char() == '#' {
			scanComment(s)
		}
	}
}

// atHeader reports whether the scanner is sat at the start of a `key: value`
// header line, without consuming anything.
func (s *Scanner) atHeader() bool {
	if !isAlpha(s.char()) {
		return false
	}

	rest := s.rest()
	end := 0
	for end < len(rest) && isHeaderKey(rune(rest[end])) {
		end++
	}

	if _, keyword := token.Keyword(string(rest[:end])); keyword {
		return false
	}

	for end < len(rest) && isLineSpace(rune(rest[end])) {
		end++
	}

	return end < len(rest) && rest[end] == ':'
}

// atTrailingComment reports whether the scanner is sat on a '#' that starts
// a comment at the end of a line of free text, i.e. a '#' preceded by whitespace.
func (s *Scanner) atTrailingComment() bool {
	if s.char() != '#' || s.pos == 0 {
		return false
	}

	return isLineSpace(rune(s.src[s.pos-1]))
}

// printable returns a printable representation of r for error messages.
func printable(r rune) string {
	if r == eof {
		return "EOF"
	}
	return string(r)
}

// isLineSpace reports whether r is a non line terminating whitespace character,
// imagine [unicode.IsSpace] but without '\n' or '\r'.
func isLineSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

// isLineEnd reports whether r ends a line of text.
func isLineEnd(r rune) bool {
	return r == '\n' || r == '\r' || r == eof
}

// isAlpha reports whether r is an alpha character.
func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

// isIdent reports whether r is a valid identifier character.
func isIdent(r rune) bool {
	return isAlpha(r) || isDigit(r)
}

// isHeaderKey reports whether r is valid in a header name.
func isHeaderKey(r rune) bool {
	return isIdent(r) || r == '-'
}

// isDigit reports whether r is a valid ASCII digit.
func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
