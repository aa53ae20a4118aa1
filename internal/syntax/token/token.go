// Package token provides the set of lexical tokens for a .api file.
package token

import "fmt"

// Kind is the kind of a token.
type Kind int

//go:generate stringer -type Kind -linecomment
const (
	EOF          Kind = iota // EOF
	Error                    // Error
	Comment                  // Comment
	Separator                // Separator
	Ident                    // Ident
	String                   // String
	Number                   // Number
	Text                     // Text
	Header                   // Header
	At                       // At
	Eq                       // Eq
	EqEq                     // EqEq
	NotEq                    // NotEq
	Colon                    // Colon
	Comma                    // Comma
	Dot                      // Dot
	Plus                     // Plus
	Minus                    // Minus
	Bang                     // Bang
	AndAnd                   // AndAnd
	OrOr                     // OrOr
	Question                 // Question
	Star                     // Star
	LeftBrace                // LeftBrace
	RightBrace               // RightBrace
	LeftBracket              // LeftBracket
	RightBracket             // RightBracket
	LeftParen                // LeftParen
	RightParen               // RightParen
	Arrow                    // Arrow
	LeftArrow                // LeftArrow
	MethodGet                // MethodGet
	MethodPost               // MethodPost
	Mock                     // Mock
	OK                       // OK
	Err                      // Err
	Must                     // Must
	Set                      // Set
	This                     // This
	True                     // True
	False                    // False
	Null                     // Null
)

// Token is a lexical token in a .api file.
type Token struct {
	Kind  Kind // The kind of token this is
	Start int  // Byte offset from the start of the file to the start of this token
	End   int  // Byte offset from the start of the file to the end of this token
}

// String returns a string representation of a [Token].
func (t Token) String() string {
	return fmt.Sprintf("<Token::%s start=%d, end=%d>", t.Kind, t.Start, t.End)
}

// Keyword reports whether text is a reserved word of the language, returning it's
// [Kind] and true if it is. Otherwise [Ident] and false are returned.
//
// Keywords are case sensitive, "get" or "ok" are plain identifiers.
func Keyword(text string) (kind Kind, ok bool) {
	switch text {
	case "GET":
		return MethodGet, true
	case "POST":
		return MethodPost, true
	case "MOCK":
		return Mock, true
	case "OK":
		return OK, true
	case "ERR":
		return Err, true
	case "MUST":
		return Must, true
	case "SET":
		return Set, true
	case "this":
		return This, true
	case "true":
		return True, true
	case "false":
		return False, true
	case "null":
		return Null, true
	default:
		return Ident, false
	}
}

// IsMethod reports whether the given kind is a HTTP Method.
func IsMethod(kind Kind) bool {
	return kind == MethodGet || kind == MethodPost
}
