package openapi_test

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"go.followtheprocess.codes/apidoc/internal/openapi"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/test"
)

const document = `
@BASEURL = "https://www.api.com/api/v1"
@HEADERS = { FROM: APP, TOKEN: @token }
@BASERES = { "code": u8, "data": * }
@token: str
@id: u32

### login SET [@token]
POST @BASEURL/login
Content-Type: application/json
{
    "username": str
    "password": str
}
=> { "usertoken": str }
OK { @token = this.usertoken }
###

### user MUST [@token]
GET @BASEURL/users/@id
=> @profile
@profile = {
    "name": str
    "nickname": str?
    "scores": [f32]
}
###

### search MOCK
GET /search?sort=asc
{ "q": str, "page": u16? }
=> { "hits": [@profile] }
@profile = { "name": str }
###
`

func TestExport(t *testing.T) {
	doc := load(t, document)

	out, err := openapi.Export(t.Context(), &doc, openapi.Options{Version: "1.2.3"})
	test.Ok(t, err)

	test.Equal(t, out.OpenAPI, openapi.Version)
	test.Equal(t, out.Info.Title, "demo")
	test.Equal(t, out.Info.Version, "1.2.3")
	test.Equal(t, len(out.Servers), 1)
	test.Equal(t, out.Servers[0].URL, "https://www.api.com/api/v1")

	paths := out.Paths.InMatchingOrder()
	slices.Sort(paths)
	test.EqualFunc(t, paths, []string{"/login", "/search", "/users/{id}"}, slices.Equal)

	t.Run("login", func(t *testing.T) {
		op := out.Paths.Value("/login").Post
		test.True(t, op != nil, test.Context("POST /login missing"))

		test.Equal(t, op.OperationID, "login")
		test.EqualFunc(t, op.Extensions[openapi.ExtensionSet].([]string), []string{"token"}, slices.Equal)

		// Global headers become parameters, Content-Type may not be one
		test.True(t, op.Parameters.GetByInAndName(openapi3.ParameterInHeader, "From") != nil)
		test.True(t, op.Parameters.GetByInAndName(openapi3.ParameterInHeader, "Token") != nil)
		test.True(t, op.Parameters.GetByInAndName(openapi3.ParameterInHeader, "Content-Type") == nil)

		body := op.RequestBody.Value.Content.Get("application/json").Schema.Value
		test.EqualFunc(t, body.Required, []string{"username", "password"}, slices.Equal)

		response := op.Responses.Status(200).Value.Content.Get("application/json").Schema.Value
		test.True(t, response.Properties["code"] != nil)
		data := response.Properties["data"].Value
		test.True(t, data.Properties["usertoken"] != nil, test.Context("response should be wrapped in the base response slot"))
	})

	t.Run("user", func(t *testing.T) {
		op := out.Paths.Value("/users/{id}").Get
		test.True(t, op != nil, test.Context("GET /users/{id} missing"))

		test.EqualFunc(t, op.Extensions[openapi.ExtensionMust].([]string), []string{"token"}, slices.Equal)

		id := op.Parameters.GetByInAndName(openapi3.ParameterInPath, "id")
		test.True(t, id != nil)
		test.True(t, id.Required)
		test.Equal(t, id.Schema.Value.Format, "int64")
		test.Equal(t, *id.Schema.Value.Max, 4294967295.0)

		data := op.Responses.Status(200).Value.Content.Get("application/json").Schema.Value.Properties["data"]
		test.Equal(t, data.Ref, "#/components/schemas/profile")

		profile := data.Value
		test.EqualFunc(t, profile.Required, []string{"name", "scores"}, slices.Equal)
		test.True(t, profile.Properties["nickname"].Value.Nullable)
		test.Equal(t, profile.Properties["scores"].Value.Items.Value.Format, "float")
	})

	t.Run("search", func(t *testing.T) {
		op := out.Paths.Value("/search").Get
		test.True(t, op != nil, test.Context("GET /search missing"))

		test.Equal(t, op.Extensions[openapi.ExtensionMockOnly], any(true))
		test.True(t, op.RequestBody == nil, test.Context("GET payloads are query parameters"))

		q := op.Parameters.GetByInAndName(openapi3.ParameterInQuery, "q")
		test.True(t, q != nil)
		test.True(t, q.Required)

		page := op.Parameters.GetByInAndName(openapi3.ParameterInQuery, "page")
		test.True(t, page != nil)
		test.False(t, page.Required)

		// A different @profile to the one already exported, so it is inlined
		hits := op.Responses.Status(200).Value.Content.Get("application/json").Schema.Value.Properties["data"].Value.Properties["hits"]
		test.Equal(t, hits.Value.Items.Ref, "")
	})

	raw, err := json.Marshal(out)
	test.Ok(t, err)
	test.True(t, strings.Contains(string(raw), `"x-apidoc-set":["token"]`))
}

func TestExportFirstWins(t *testing.T) {
	doc := load(t, "### a\nGET /same\n=> { \"a\": str }\n###\n### b\nGET /same\n=> { \"b\": str }\n###\n")

	out, err := openapi.Export(t.Context(), &doc, openapi.Options{Title: "dupes"})
	test.Ok(t, err)

	test.Equal(t, out.Info.Title, "dupes")
	test.Equal(t, out.Paths.Value("/same").Get.OperationID, "a")
}

func TestExportSkipsBrokenEndpoints(t *testing.T) {
	doc := load(t, "### broken\nGET /broken\n=> { \"data\": * }\n###\n###\nGET /fine\n=>\n###\n")
	test.Err(t, doc.Err())

	out, err := openapi.Export(t.Context(), &doc, openapi.Options{})
	test.Ok(t, err)

	test.True(t, out.Paths.Value("/broken") == nil)
	test.Equal(t, out.Paths.Value("/fine").Get.OperationID, "endpoint_2")
}

func TestPath(t *testing.T) {
	tests := []struct {
		name string // Name of the test case
		path string // Endpoint path as written
		want string // Expected OpenAPI path
	}{
		{name: "plain", path: "/users", want: "/users"},
		{name: "base url", path: "@BASEURL/users", want: "/users"},
		{name: "variable", path: "/users/@id/posts/@post", want: "/users/{id}/posts/{post}"},
		{name: "absolute", path: "https://other.com/v2/health", want: "/v2/health"},
		{name: "query", path: "/search?q=@q", want: "/search"},
		{name: "no leading slash", path: "users", want: "/users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "@id: str\n@post: str\n@q: str\n### a\nGET " + tt.path + "\n=>\n###\n"
			doc := load(t, src)

			test.Equal(t, openapi.Path(doc.Endpoints[0].Path), tt.want)
		})
	}
}

func load(tb testing.TB, src string) spec.Document {
	tb.Helper()

	doc, err := spec.Load("demo.api", strings.NewReader(src), func(pos syntax.Position, msg string) {
		tb.Fatalf("%s: %s", pos, msg)
	})
	test.Ok(tb, err)

	return doc
}
