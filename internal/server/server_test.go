package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.followtheprocess.codes/apidoc/internal/mock"
	"go.followtheprocess.codes/apidoc/internal/request"
	"go.followtheprocess.codes/apidoc/internal/server"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/test"
)

const document = `
@BASEURL = "https://www.api.com/api/v1"
@BASERES = { "code": u8, "data": * }
@OK: @BASERES.code == 0
@id: u16
@token: str

### login SET [@token]
POST @BASEURL/login
=> { "usertoken": str, "age": u8 }
OK { @token = this.usertoken }
###

### user
GET /users/@id
=> { "id": u16, "name": str }
###

### external
GET https://other.com/health?verbose=true
=> { "up": bool }
###
`

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestAnswer(t *testing.T) {
	s := newServer(t, document)

	tests := []struct {
		name   string // Name of the test case
		method string // Request method
		path   string // Request path
		status int    // Expected status
	}{
		{name: "base url dropped", method: http.MethodPost, path: "/login", status: http.StatusOK},
		{name: "path variable", method: http.MethodGet, path: "/users/42", status: http.StatusOK},
		{name: "trailing slash", method: http.MethodGet, path: "/users/42/", status: http.StatusOK},
		{name: "absolute url", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "wrong method", method: http.MethodGet, path: "/login", status: http.StatusNotFound},
		{name: "no match", method: http.MethodGet, path: "/nope", status: http.StatusNotFound},
		{name: "variable is one segment", method: http.MethodGet, path: "/users/42/posts", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			s.Handler().ServeHTTP(recorder, httptest.NewRequest(tt.method, tt.path, nil))

			test.Equal(t, recorder.Code, tt.status)
		})
	}
}

func TestAnswerBody(t *testing.T) {
	s := newServer(t, document)

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/login", nil))
	test.Equal(t, recorder.Code, http.StatusOK)
	test.Equal(t, recorder.Header().Get(request.MockHeader), "true")

	var body struct {
		Data struct {
			Usertoken string `json:"usertoken"`
			Age       int    `json:"age"`
		} `json:"data"`
		Code int `json:"code"`
	}
	test.Ok(t, json.Unmarshal(recorder.Body.Bytes(), &body))

	test.Equal(t, body.Code, 0)
	test.True(t, body.Data.Usertoken != "", test.Context("usertoken should be generated"))
	test.True(t, body.Data.Age >= 0 && body.Data.Age <= 255)
}

func TestHealth(t *testing.T) {
	s := newServer(t, document)

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	test.Equal(t, recorder.Code, http.StatusOK)

	var body map[string]any
	test.Ok(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	test.Equal(t, body["status"], any("ok"))
	test.Equal(t, body["endpoints"], any(3.0))
}

func TestEndpointsListing(t *testing.T) {
	s := newServer(t, document)

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/_apidoc/endpoints", nil))
	test.Equal(t, recorder.Code, http.StatusOK)

	var listing []struct {
		Name   string `json:"name"`
		Method string `json:"method"`
		Path   string `json:"path"`
	}
	test.Ok(t, json.Unmarshal(recorder.Body.Bytes(), &listing))

	test.Equal(t, len(listing), 3)
	test.Equal(t, listing[0].Name, "login")
	test.Equal(t, listing[0].Path, "@BASEURL/login")
	test.Equal(t, listing[1].Method, "GET")
}

func TestReload(t *testing.T) {
	path := writeDocument(t, "### first\nGET /first\n=>\n###\n")

	s, err := server.New(path, load, server.WithGenerator(mock.New(1)))
	test.Ok(t, err)
	test.Equal(t, s.Document().Endpoints[0].Name, "first")

	test.Ok(t, os.WriteFile(path, []byte("### second\nGET /second\n=>\n###\n"), 0o600))
	test.Ok(t, s.Reload())
	test.Equal(t, s.Document().Endpoints[0].Name, "second")

	// A broken document keeps the previous one live
	test.Ok(t, os.WriteFile(path, []byte("### broken\nGET /broken\n"), 0o600))
	test.Err(t, s.Reload())
	test.Equal(t, s.Document().Endpoints[0].Name, "second")

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/second", nil))
	test.Equal(t, recorder.Code, http.StatusOK)
}

func TestWatch(t *testing.T) {
	path := writeDocument(t, "### first\nGET /first\n=>\n###\n")

	s, err := server.New(path, load)
	test.Ok(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, 10*time.Millisecond)
	}()

	// Give the watcher a moment to start
	time.Sleep(50 * time.Millisecond)
	test.Ok(t, os.WriteFile(path, []byte("### second\nGET /second\n=>\n###\n"), 0o600))

	deadline := time.Now().Add(5 * time.Second)
	for s.Document().Endpoints[0].Name != "second" {
		if time.Now().After(deadline) {
			t.Fatal("document was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	test.Ok(t, <-done)
}

func TestListenAndServe(t *testing.T) {
	s := newServer(t, document)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	cancel()
	test.Ok(t, <-done)
}

func load(path string) (*spec.Document, error) {
	doc, err := spec.LoadFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

func writeDocument(tb testing.TB, src string) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "demo.api")
	test.Ok(tb, os.WriteFile(path, []byte(src), 0o600))

	return path
}

func newServer(tb testing.TB, src string) *server.Server {
	tb.Helper()

	s, err := server.New(writeDocument(tb, src), load, server.WithGenerator(mock.New(1)))
	test.Ok(tb, err)

	return s
}
