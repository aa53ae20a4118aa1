package token_test

import (
	"fmt"
	"testing"
	"testing/quick"

	"go.followtheprocess.codes/apidoc/internal/syntax/token"
	"go.followtheprocess.codes/test"
)

func TestString(t *testing.T) {
	// All we really care about is the format, let's let quick handle it!
	f := func(tok token.Token) bool {
		return tok.String() == fmt.Sprintf("<Token::%s start=%d, end=%d>", tok.Kind.String(), tok.Start, tok.End)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestKeyword(t *testing.T) {
	tests := []struct {
		text string     // Text input
		want token.Kind // Expected token Kind return
		ok   bool       // Expected ok return
	}{
		{text: "GET", want: token.MethodGet, ok: true},
		{text: "POST", want: token.MethodPost, ok: true},
		{text: "MOCK", want: token.Mock, ok: true},
		{text: "OK", want: token.OK, ok: true},
		{text: "ERR", want: token.Err, ok: true},
		{text: "MUST", want: token.Must, ok: true},
		{text: "SET", want: token.Set, ok: true},
		{text: "this", want: token.This, ok: true},
		{text: "true", want: token.True, ok: true},
		{text: "false", want: token.False, ok: true},
		{text: "null", want: token.Null, ok: true},
		{text: "PUT", want: token.Ident, ok: false},
		{text: "get", want: token.Ident, ok: false},
		{text: "ok", want: token.Ident, ok: false},
		{text: "str", want: token.Ident, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := token.Keyword(tt.text)
			test.Equal(t, ok, tt.ok)
			test.Equal(t, got, tt.want)
		})
	}
}

func TestIsMethod(t *testing.T) {
	test.True(t, token.IsMethod(token.MethodGet))
	test.True(t, token.IsMethod(token.MethodPost))
	test.False(t, token.IsMethod(token.Mock))
	test.False(t, token.IsMethod(token.Ident))
}
