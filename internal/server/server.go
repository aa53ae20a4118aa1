// Package server implements a mock HTTP server answering every endpoint of a
// document with generated responses.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.followtheprocess.codes/apidoc/internal/mock"
	"go.followtheprocess.codes/apidoc/internal/request"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/store"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/log"
)

// shutdownTimeout bounds how long in flight requests get to finish on shutdown.
const shutdownTimeout = 5 * time.Second

// Loader loads the document at path.
type Loader func(path string) (*spec.Document, error)

// Server is the mock server.
type Server struct {
	state     atomic.Pointer[state]
	generator *mock.Generator
	vars      *store.Store
	logger    *log.Logger
	engine    *gin.Engine
	load      Loader
	path      string
}

// state is a loaded document with its routing table, swapped as a whole on reload.
type state struct {
	doc    *spec.Document
	routes []route
}

// route matches requests to an endpoint.
type route struct {
	pattern  *regexp.Regexp
	endpoint *spec.Endpoint
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithGenerator sets the mock generator.
func WithGenerator(g *mock.Generator) Option {
	return func(s *Server) {
		s.generator = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets the variables available to mock generators.
func WithStore(vars *store.Store) Option {
	return func(s *Server) {
		s.vars = vars
	}
}

// New returns a [Server] for the document at path, which is loaded straight away.
func New(path string, load Loader, options ...Option) (*Server, error) {
	s := &Server{path: path, load: load}

	for _, option := range options {
		option(s)
	}

	if s.generator == nil {
		s.generator = mock.New(0)
	}

	if s.vars == nil {
		s.vars = store.New()
	}

	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}

	doc, err := load(path)
	if err != nil {
		return nil, err
	}
	s.swap(doc)

	engine := gin.New()
	engine.Use(gin.Recovery(), s.logRequests())
	engine.GET("/healthz", s.health)
	engine.GET("/_apidoc/endpoints", s.endpoints)
	engine.NoRoute(s.answer)
	s.engine = engine

	return s, nil
}

// Handler returns the server's [http.Handler].
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Document returns the document currently being served.
func (s *Server) Document() *spec.Document {
	return s.state.Load().doc
}

// Reload loads the document again, if it fails the previous one keeps being served.
func (s *Server) Reload() error {
	doc, err := s.load(s.path)
	if err != nil {
		s.logger.Warn("Reload failed, keeping the previous document", "path", s.path, "error", err)
		return err
	}

	s.swap(doc)
	s.logger.Info("Reloaded document", "path", s.path, "endpoints", len(doc.Endpoints))

	return nil
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	s.logger.Info("Serving mocks", "addr", addr, "document", s.path)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdown); err != nil {
			return fmt.Errorf("could not shut down cleanly: %w", err)
		}

		if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

// swap installs doc and its routes.
func (s *Server) swap(doc *spec.Document) {
	routes := make([]route, 0, len(doc.Endpoints))
	for i := range doc.Endpoints {
		endpoint := &doc.Endpoints[i]
		routes = append(routes, route{pattern: pattern(endpoint.Path), endpoint: endpoint})
	}

	s.state.Store(&state{doc: doc, routes: routes})
}

// match finds the endpoint for a request, first declared wins.
func (s *Server) match(method, path string) (*spec.Document, *spec.Endpoint) {
	current := s.state.Load()
	for _, route := range current.routes {
		if route.endpoint.Method == method && route.pattern.MatchString(path) {
			return current.doc, route.endpoint
		}
	}

	return current.doc, nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "endpoints": len(s.Document().Endpoints)})
}

func (s *Server) endpoints(c *gin.Context) {
	doc := s.Document()

	type summary struct {
		Range  spec.Range `json:"range"`
		Name   string     `json:"name"`
		Method string     `json:"method"`
		Path   string     `json:"path"`
	}

	summaries := make([]summary, 0, len(doc.Endpoints))
	for _, endpoint := range doc.Endpoints {
		summaries = append(summaries, summary{
			Name:   endpoint.Name,
			Method: endpoint.Method,
			Path:   endpoint.Path.String(),
			Range:  endpoint.Range,
		})
	}

	c.JSON(http.StatusOK, summaries)
}

// answer answers a request with a generated response for the matching endpoint.
func (s *Server) answer(c *gin.Context) {
	doc, endpoint := s.match(c.Request.Method, c.Request.URL.Path)
	if endpoint == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no endpoint matches %s %s", c.Request.Method, c.Request.URL.Path)})
		return
	}

	c.Set("apidoc.endpoint", endpoint.Name)

	if endpoint.Err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": endpoint.Err.Error()})
		return
	}

	vars := func(name string) (any, bool) {
		return s.vars.Lookup(name, endpoint.Name)
	}

	body, err := s.generator.Response(endpoint, vars)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if doc.ShowMockHeader {
		c.Header(request.MockHeader, "true")
	}

	c.JSON(http.StatusOK, body)
}

// logRequests logs every request at debug level.
func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.GetString("apidoc.endpoint")
		s.logger.Debug(
			"Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"endpoint", endpoint,
			"latency", time.Since(start),
		)
	}
}

// pattern builds the regular expression matching request paths for an endpoint
// path. A leading @BASEURL and the scheme and host of an absolute URL are
// dropped, variables match a single path segment and any query string is ignored.
func pattern(path *syntax.Template) *regexp.Regexp {
	parts := path.Parts
	if len(parts) > 0 && parts[0].Var == syntax.BaseURL {
		parts = parts[1:]
	}

	var expr strings.Builder
	expr.WriteString("^")

	for i, part := range parts {
		if part.Var != "" {
			expr.WriteString("[^/]+")
			continue
		}

		text := part.Text
		if i == 0 {
			if parsed, err := url.Parse(text); err == nil && parsed.Scheme != "" && parsed.Host != "" {
				text = parsed.Path
			}
			if !strings.HasPrefix(text, "/") {
				text = "/" + text
			}
		}

		if query := strings.IndexByte(text, '?'); query != -1 {
			expr.WriteString(regexp.QuoteMeta(text[:query]))
			break
		}

		expr.WriteString(regexp.QuoteMeta(text))
	}

	expr.WriteString("/?$")

	return regexp.MustCompile(expr.String())
}
