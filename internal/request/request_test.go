package request_test

import (
	"errors"
	"strings"
	"testing"

	"go.followtheprocess.codes/apidoc/internal/eval"
	"go.followtheprocess.codes/apidoc/internal/mock"
	"go.followtheprocess.codes/apidoc/internal/request"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/syntax/parser"
	"go.followtheprocess.codes/test"
)

func TestURL(t *testing.T) {
	tests := []struct {
		vars map[string]any // Variable bindings
		name string         // Name of the test case
		path string         // Path as written on the request line
		want string         // Expected URL
	}{
		{
			name: "relative no base",
			path: "/login",
			want: "/login",
		},
		{
			name: "relative with base",
			path: "/login",
			vars: map[string]any{"BASEURL": "https://www.api.com/api/v1"},
			want: "https://www.api.com/api/v1/login",
		},
		{
			name: "base with trailing slash",
			path: "/login",
			vars: map[string]any{"BASEURL": "https://www.api.com/"},
			want: "https://www.api.com/login",
		},
		{
			name: "explicit base unbound",
			path: "@BASEURL/login",
			want: "/login",
		},
		{
			name: "explicit base bound",
			path: "@BASEURL/login",
			vars: map[string]any{"BASEURL": "https://www.api.com"},
			want: "https://www.api.com/login",
		},
		{
			name: "absolute ignores base",
			path: "https://other.com/login",
			vars: map[string]any{"BASEURL": "https://www.api.com"},
			want: "https://other.com/login",
		},
		{
			name: "interpolated",
			path: "/users/@userid/posts",
			vars: map[string]any{"userid": "U"},
			want: "/users/U/posts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := resolve(t, "@userid: str\n### a\nGET "+tt.path+"\n=>\n###\n")

			got, err := request.Build(&doc, &doc.Endpoints[0], lookup(tt.vars), request.Options{})
			test.Ok(t, err)
			test.Equal(t, got.URL, tt.want)
		})
	}
}

func TestUnboundPathVariable(t *testing.T) {
	doc := resolve(t, "@userid: str\n### a\nGET /users/@userid\n=>\n###\n")

	_, err := request.Build(&doc, &doc.Endpoints[0], lookup(nil), request.Options{})
	test.Err(t, err)

	var unbound eval.UnboundVariableError
	test.True(t, errors.As(err, &unbound))
	test.Equal(t, unbound.Name, "userid")
}

func TestHeaderElision(t *testing.T) {
	src := `
@HEADERS = { FROM: APP, TOKEN: @token }
@token: str
@trace: str

### a
GET /a
x-header: any
x-trace: @trace
=>
###
`
	doc := resolve(t, src)

	t.Run("unbound", func(t *testing.T) {
		got, err := request.Build(&doc, &doc.Endpoints[0], lookup(nil), request.Options{})
		test.Ok(t, err)

		_, ok := got.Header("TOKEN")
		test.False(t, ok, test.Context("TOKEN header should be elided, got %v", got.Headers))

		_, ok = got.Header("x-trace")
		test.False(t, ok, test.Context("x-trace header should be elided, got %v", got.Headers))

		test.EqualFunc(t, got.Headers, []request.Header{
			{Key: "FROM", Value: "APP"},
			{Key: "x-header", Value: "any"},
		}, equalHeaders)
	})

	t.Run("bound", func(t *testing.T) {
		got, err := request.Build(&doc, &doc.Endpoints[0], lookup(map[string]any{"token": "T", "trace": "abc"}), request.Options{})
		test.Ok(t, err)

		test.EqualFunc(t, got.Headers, []request.Header{
			{Key: "FROM", Value: "APP"},
			{Key: "TOKEN", Value: "T"},
			{Key: "x-header", Value: "any"},
			{Key: "x-trace", Value: "abc"},
		}, equalHeaders)
	})
}

func TestBody(t *testing.T) {
	src := `
@page = 1

### search
GET /search
{ "q": str, "page": @page }
=>
###

### create
POST /create
{ "name": str, "note": str?, "meta": { "source": "cli" } }
=>
###
`
	doc := resolve(t, src)
	vars := lookup(map[string]any{"page": 1.0})

	t.Run("get uses the query string", func(t *testing.T) {
		search, _ := doc.GetEndpoint("search")
		got, err := request.Build(&doc, search, vars, request.Options{Payload: map[string]any{"q": "go lang"}})
		test.Ok(t, err)

		test.Equal(t, got.URL, "/search?page=1&q=go+lang")
		test.Equal(t, got.Body, nil)
	})

	t.Run("post uses a json body", func(t *testing.T) {
		create, _ := doc.GetEndpoint("create")
		got, err := request.Build(&doc, create, vars, request.Options{Payload: map[string]any{"name": "bob"}})
		test.Ok(t, err)

		want := map[string]any{
			"name": "bob",
			"note": nil,
			"meta": map[string]any{"source": "cli"},
		}
		test.True(t, eval.Equal(got.Body, want), test.Context("got %v", got.Body))

		contentType, ok := got.Header("content-type")
		test.True(t, ok)
		test.Equal(t, contentType, "application/json")
	})

	t.Run("missing field", func(t *testing.T) {
		create, _ := doc.GetEndpoint("create")
		_, err := request.Build(&doc, create, vars, request.Options{})

		var missing request.MissingFieldError
		test.True(t, errors.As(err, &missing), test.Context("expected MissingFieldError, got %v", err))
		test.Equal(t, missing.Field, "name")
		test.Equal(t, missing.Endpoint, "create")
	})

	t.Run("mock fills typed fields", func(t *testing.T) {
		create, _ := doc.GetEndpoint("create")
		got, err := request.Build(&doc, create, vars, request.Options{Mock: mock.New(1)})
		test.Ok(t, err)

		name, ok := got.Body.(map[string]any)["name"].(string)
		test.True(t, ok)
		test.True(t, name != "")

		marker, ok := got.Header(request.MockHeader)
		test.True(t, ok)
		test.Equal(t, marker, "true")
	})
}

func TestBodyWithoutPayload(t *testing.T) {
	src := `
@page = 2

### list
GET /list
{ "page": @page }
=>
###

### signup
POST /signup
{ "name": str, "source": "cli" }
=>
###
`
	doc := resolve(t, src)
	vars := lookup(map[string]any{"page": 2.0})

	// An endpoint with no configured payload is looked up from an empty map
	payloads := map[string]map[string]any{}

	t.Run("fixed fields are kept", func(t *testing.T) {
		list, _ := doc.GetEndpoint("list")
		got, err := request.Build(&doc, list, vars, request.Options{Payload: payloads["list"]})
		test.Ok(t, err)

		test.Equal(t, got.URL, "/list?page=2")
	})

	t.Run("live run reports the missing field", func(t *testing.T) {
		signup, _ := doc.GetEndpoint("signup")
		got, err := request.Build(&doc, signup, vars, request.Options{Payload: payloads["signup"]})

		var missing request.MissingFieldError
		test.True(t, errors.As(err, &missing), test.Context("expected MissingFieldError, got %v with body %v", err, got.Body))
		test.Equal(t, missing.Field, "name")
	})

	t.Run("mock run generates typed fields", func(t *testing.T) {
		signup, _ := doc.GetEndpoint("signup")
		got, err := request.Build(&doc, signup, vars, request.Options{Mock: mock.New(1), Payload: map[string]any{}})
		test.Ok(t, err)

		body, ok := got.Body.(map[string]any)
		test.True(t, ok, test.Context("body should be an object, got %T", got.Body))

		name, ok := body["name"].(string)
		test.True(t, ok, test.Context("name should be generated, got %v", body["name"]))
		test.True(t, name != "")
		test.Equal(t, body["source"], any("cli"))
	})
}

func TestMockHeaderDisabled(t *testing.T) {
	doc := resolve(t, "@_SHOW_MOCK_HEADER = false\n### a\nGET /a\n=>\n###\n")

	got, err := request.Build(&doc, &doc.Endpoints[0], lookup(nil), request.Options{Mock: mock.New(1)})
	test.Ok(t, err)
	test.True(t, got.Mock)

	_, ok := got.Header(request.MockHeader)
	test.False(t, ok)
}

func TestMockRequest(t *testing.T) {
	src := `
@user = { "username": "testuser1" }

### login
POST /login
{ "username": str }
=>
MOCK @user => { "userid": 1 }
###
`
	doc := resolve(t, src)

	got, err := request.Build(&doc, &doc.Endpoints[0], lookup(nil), request.Options{Mock: mock.New(1)})
	test.Ok(t, err)
	test.True(t, eval.Equal(got.Body, map[string]any{"username": "testuser1"}), test.Context("got %v", got.Body))
}

func equalHeaders(a, b []request.Header) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lookup(vars map[string]any) eval.Lookup {
	return func(name string) (any, bool) {
		value, ok := vars[name]
		return value, ok
	}
}

func resolve(tb testing.TB, src string) spec.Document {
	tb.Helper()

	p, err := parser.New("test", strings.NewReader(src), func(pos syntax.Position, msg string) {
		tb.Fatalf("%s: %s", pos, msg)
	})
	test.Ok(tb, err)

	file, err := p.Parse()
	test.Ok(tb, err)

	doc, err := spec.ResolveFile(file)
	test.Ok(tb, err)
	test.Ok(tb, doc.Err())

	return doc
}
