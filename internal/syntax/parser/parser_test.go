package parser_test

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/syntax/parser"
	"go.followtheprocess.codes/test"
	"go.followtheprocess.codes/txtar"
	"go.uber.org/goleak"
)

var update = flag.Bool("update", false, "Update snapshots and testdata")

// TestValid is the primary parser test for valid syntax. It reads src api text from
// a txtar archive in testdata/valid, parses it to completion, renders the parsed result
// back to canonical source text then generates a pretty diff if it doesn't match.
//
// The canonical text is then parsed again and must render identically.
func TestValid(t *testing.T) {
	test.ColorEnabled(true) // Force colour in the diffs

	pattern := filepath.Join("testdata", "valid", "*.txtar")
	files, err := filepath.Glob(pattern)
	test.Ok(t, err)

	for _, file := range files {
		name := filepath.Base(file)
		t.Run(name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			archive, err := txtar.ParseFile(file)
			test.Ok(t, err)

			src, ok := archive.Read("src.api")
			test.True(t, ok, test.Context("archive %s missing src.api", name))

			want, ok := archive.Read("want.api")
			test.True(t, ok, test.Context("archive %s missing want.api", name))

			p, err := parser.New(name, strings.NewReader(src), testFailHandler(t))
			test.Ok(t, err)

			got, err := p.Parse()
			test.Ok(t, err, test.Context("unexpected parse error"))

			if *update {
				err := archive.Write("want.api", got.String())
				test.Ok(t, err)

				err = txtar.DumpFile(file, archive)
				test.Ok(t, err)

				return
			}

			test.Diff(t, got.String(), want)

			again, err := parser.New(name, strings.NewReader(got.String()), testFailHandler(t))
			test.Ok(t, err)

			reparsed, err := again.Parse()
			test.Ok(t, err, test.Context("canonical text failed to parse"))
			test.Diff(t, reparsed.String(), got.String())
		})
	}
}

// TestInvalid is the primary test for invalid syntax. It does much the same as TestValid
// but instead of failing tests if a syntax error is encountered, it fails if there are not any syntax errors.
//
// Additionally, the errors are compared against a reference.
func TestInvalid(t *testing.T) {
	test.ColorEnabled(true) // Force colour in the diffs

	pattern := filepath.Join("testdata", "invalid", "*.txtar")
	files, err := filepath.Glob(pattern)
	test.Ok(t, err)

	for _, file := range files {
		name := filepath.Base(file)
		t.Run(name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			archive, err := txtar.ParseFile(file)
			test.Ok(t, err)

			src, ok := archive.Read("src.api")
			test.True(t, ok, test.Context("archive %s missing src.api", name))

			want, ok := archive.Read("want.txt")
			test.True(t, ok, test.Context("archive %s missing want.txt", name))

			collector := &errorCollector{}

			p, err := parser.New(name, strings.NewReader(src), collector.handler())
			test.Ok(t, err)

			parsed, err := p.Parse()
			test.Err(t, err, test.Context("Parse() failed to return an error given invalid syntax"))
			test.True(t, errors.Is(err, parser.ErrParse), test.Context("error should wrap ErrParse"))
			test.True(t, reflect.DeepEqual(parsed, syntax.File{}), test.Context("file should be empty on error"))
			test.Equal(t, len(p.Diagnostics()), collector.len(), test.Context("every diagnostic should reach the handler"))

			got := collector.String()

			if *update {
				err := archive.Write("want.txt", got)
				test.Ok(t, err)

				err = txtar.DumpFile(file, archive)
				test.Ok(t, err)

				return
			}

			test.Diff(t, got, want)
		})
	}
}

func TestEndpointNames(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := `
###
GET /a
=>
###

### named
GET /b
=>
###

###
GET /c
=>
###
`
	p, err := parser.New("names", strings.NewReader(src), testFailHandler(t))
	test.Ok(t, err)

	file, err := p.Parse()
	test.Ok(t, err)

	names := make([]string, 0, len(file.Endpoints))
	for _, endpoint := range file.Endpoints {
		names = append(names, endpoint.Name)
	}

	test.EqualFunc(t, names, []string{"#1", "named", "#3"}, slices.Equal)
}

func TestEndpointRange(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := "@a = 1\n\n### SET [@a]\nGET /a\n=>\n###\n"

	p, err := parser.New("range", strings.NewReader(src), testFailHandler(t))
	test.Ok(t, err)

	file, err := p.Parse()
	test.Ok(t, err)
	test.Equal(t, len(file.Endpoints), 1)

	endpoint := file.Endpoints[0]
	test.Equal(t, endpoint.Start.Line, 3)
	test.Equal(t, endpoint.End.Line, 6)
	test.Equal(t, endpoint.Start.String(), "range:3:1-4")
}

func TestTemplates(t *testing.T) {
	tests := []struct {
		name  string   // Name of the test case
		path  string   // The request path
		want  string   // Canonical rendering
		parts int      // Number of template parts
		vars  []string // Interpolated variables
	}{
		{
			name:  "plain",
			path:  "/login",
			want:  "/login",
			parts: 1,
			vars:  nil,
		},
		{
			name:  "leading variable",
			path:  "@BASEURL/login",
			want:  "@BASEURL/login",
			parts: 2,
			vars:  []string{"BASEURL"},
		},
		{
			name:  "several",
			path:  "@BASEURL/user/@userid/posts",
			want:  "@BASEURL/user/@userid/posts",
			parts: 4,
			vars:  []string{"BASEURL", "userid"},
		},
		{
			name:  "email is not a variable",
			path:  "/invite?to=bob@example.com",
			want:  "/invite?to=bob@example.com",
			parts: 1,
			vars:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			src := fmt.Sprintf("@BASEURL = \"x\"\n@userid = 1\n###\nGET %s\n=>\n###\n", tt.path)
			p, err := parser.New(tt.name, strings.NewReader(src), testFailHandler(t))
			test.Ok(t, err)

			file, err := p.Parse()
			test.Ok(t, err)

			path := file.Endpoints[0].Path
			test.Equal(t, path.String(), tt.want)
			test.Equal(t, len(path.Parts), tt.parts)
			test.EqualFunc(t, path.Vars(), tt.vars, slices.Equal)
		})
	}
}

func TestImplicitDeclarations(t *testing.T) {
	defer goleak.VerifyNone(t)

	// @token is only ever declared by the SET list and @user by an assignment,
	// both may be referenced elsewhere
	src := `
### SET [@token]
GET /login
=> { "token": str }
OK {
    @token = this.token
    @user = this.name
}
###

### MUST [@token]
GET /me
Authorization: Bearer @token
=> { "name": str }
@OK: this.name == @user
###
`
	p, err := parser.New("implicit", strings.NewReader(src), testFailHandler(t))
	test.Ok(t, err)

	_, err = p.Parse()
	test.Ok(t, err)
}

func FuzzParser(f *testing.F) {
	// Get all the .api source from testdata for the corpus
	pattern := filepath.Join("testdata", "valid", "*.txtar")
	files, err := filepath.Glob(pattern)
	test.Ok(f, err)

	for _, file := range files {
		archive, err := txtar.ParseFile(file)
		test.Ok(f, err)

		src, ok := archive.Read("src.api")
		test.True(f, ok, test.Context("file %s does not contain 'src.api'", file))

		f.Add(src)
	}

	// Property: The parser never panics or loops indefinitely, fuzz by default
	// will catch both of these
	f.Fuzz(func(t *testing.T, src string) {
		// Note: no ErrorHandler installed, because if we let it report errors
		// it would kill the fuzz test straight away e.g. on the first invalid
		// utf-8 char
		p, err := parser.New("fuzz", strings.NewReader(src), nil)
		test.Ok(t, err)

		file, err := p.Parse()

		var zeroFile syntax.File

		// Property: If the parser returned an error, then file must be empty
		if err != nil {
			if !reflect.DeepEqual(file, zeroFile) {
				t.Fatalf("\nnon zero syntax.File returned when err != nil: %#v\n", file)
			}
			return
		}

		// Property: A successful parse renders to text that parses again
		again, err := parser.New("fuzz", strings.NewReader(file.String()), nil)
		test.Ok(t, err)

		_, err = again.Parse()
		test.Ok(t, err, test.Context("canonical text of %q failed to parse", src))
	})
}

// testFailHandler returns a [syntax.ErrorHandler] that handles scanning errors by failing
// the enclosing test.
func testFailHandler(tb testing.TB) syntax.ErrorHandler {
	tb.Helper()

	return func(pos syntax.Position, msg string) {
		tb.Fatalf("%s: %s", pos, msg)
	}
}

type errorCollector struct {
	errs []string
	mu   sync.Mutex
}

func (e *errorCollector) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	errsCopy := slices.Clone(e.errs)

	var s strings.Builder

	slices.Sort(errsCopy) // Deterministic

	for _, err := range errsCopy {
		s.WriteString(err)
	}

	return s.String()
}

func (e *errorCollector) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *errorCollector) handler() syntax.ErrorHandler {
	return func(pos syntax.Position, msg string) {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.errs = append(e.errs, fmt.Sprintf("%s: %s\n", pos, msg))
	}
}
