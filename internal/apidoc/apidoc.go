// Package apidoc implements the functionality exposed via the CLI.
package apidoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"time"

	"go.followtheprocess.codes/apidoc/internal/config"
	"go.followtheprocess.codes/apidoc/internal/mock"
	"go.followtheprocess.codes/apidoc/internal/openapi"
	"go.followtheprocess.codes/apidoc/internal/runner"
	"go.followtheprocess.codes/apidoc/internal/server"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/store"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/syntax/parser"
	"go.followtheprocess.codes/apidoc/internal/transport"
	"go.followtheprocess.codes/log"
	"go.followtheprocess.codes/msg"
	"gopkg.in/yaml.v3"
)

// App holds the state of the program.
type App struct {
	stdout io.Writer   // Normal program output is written here
	stderr io.Writer   // Logs, diagnostics and debug info
	logger *log.Logger // The logger, writes to stderr
}

// New returns a new instance of [App].
func New(stdout, stderr io.Writer, debug bool) App {
	level := log.LevelInfo
	if debug {
		level = log.LevelDebug
	}

	return App{
		stdout: stdout,
		stderr: stderr,
		logger: log.New(stderr, log.WithLevel(level)),
	}
}

// Check implements the `apidoc check` subcommand.
//
// Every file is checked, the returned error says how many were invalid.
func (a App) Check(files []string) error {
	invalid := 0
	for _, file := range files {
		doc, err := a.load(file)
		if err == nil {
			err = doc.Err()
		}

		if err != nil {
			// Syntax errors have already been shown by the handler
			if !errors.Is(err, parser.ErrParse) {
				fmt.Fprintln(a.stderr, err)
			}
			invalid++
			continue
		}

		msg.Fsuccess(a.stdout, "%s is valid", file)
	}

	if invalid != 0 {
		return fmt.Errorf("%d of %d file(s) are not valid", invalid, len(files))
	}

	return nil
}

// ShowOptions are the flags passed to the `apidoc show` subcommand.
type ShowOptions struct {
	JSON bool // Output the endpoints as JSON
}

// Show implements the `apidoc show` subcommand.
func (a App) Show(file string, options ShowOptions) error {
	doc, err := a.load(file)
	if err != nil {
		return err
	}

	if options.JSON {
		summaries := make([]summary, 0, len(doc.Endpoints))
		for _, endpoint := range doc.Endpoints {
			summaries = append(summaries, summarise(endpoint))
		}

		encoder := json.NewEncoder(a.stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summaries)
	}

	fmt.Fprintln(a.stdout, strings.TrimSpace(doc.String()))

	return nil
}

// RunOptions are the flags passed to the `apidoc run` subcommand.
type RunOptions struct {
	Config  string        // Path to the config file, defaults to apidoc.yaml beside the document
	Payload string        // JSON object supplying request fields
	Timeout time.Duration // Timeout for each request, overrides the config
	Seed    uint64        // Mock generator seed, overrides the config
	Mock    bool          // Answer every endpoint with a generated mock
	JSON    bool          // Output the full result as JSON
}

// Run implements the `apidoc run` subcommand.
func (a App) Run(ctx context.Context, file, name string, options RunOptions) error {
	doc, err := a.load(file)
	if err != nil {
		return err
	}

	cfg, err := a.config(file, options.Config)
	if err != nil {
		return err
	}

	timeout := cfg.Timeout
	if options.Timeout != 0 {
		timeout = options.Timeout
	}

	seed := cfg.Seed
	if options.Seed != 0 {
		seed = options.Seed
	}

	payloads := maps.Clone(cfg.Payloads)
	if payloads == nil {
		payloads = make(map[string]map[string]any)
	}

	if options.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(options.Payload), &payload); err != nil {
			return fmt.Errorf("--payload must be a JSON object: %w", err)
		}

		merged := maps.Clone(payloads[name])
		if merged == nil {
			merged = make(map[string]any, len(payload))
		}
		maps.Copy(merged, payload)
		payloads[name] = merged
	}

	session, err := runner.New(
		doc,
		runner.WithTransport(transport.NewHTTP(timeout)),
		runner.WithGenerator(mock.New(seed)),
		runner.WithLogger(a.logger.Prefixed("runner")),
		runner.WithMock(options.Mock || cfg.Mock),
		runner.WithPayloads(payloads),
	)
	if err != nil {
		return err
	}

	override(session.Store(), cfg)

	result, err := session.Run(ctx, name)
	if err != nil {
		return err
	}

	if options.JSON {
		encoder := json.NewEncoder(a.stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return err
		}
	} else {
		for _, dependency := range result.Dependencies {
			a.report(dependency, false)
		}
		a.report(result, true)
	}

	if !result.OK {
		if result.Err != nil {
			return fmt.Errorf("endpoint %s took the ERR path: %w", result.Endpoint, result.Err)
		}
		return fmt.Errorf("endpoint %s took the ERR path", result.Endpoint)
	}

	return nil
}

// ServeOptions are the flags passed to the `apidoc serve` subcommand.
type ServeOptions struct {
	Config  string // Path to the config file, defaults to apidoc.yaml beside the document
	Addr    string // Address to listen on, overrides the config
	Seed    uint64 // Mock generator seed, overrides the config
	NoWatch bool   // Don't reload the document when it changes
}

// Serve implements the `apidoc serve` subcommand, it blocks until ctx is cancelled.
func (a App) Serve(ctx context.Context, file string, options ServeOptions) error {
	cfg, err := a.config(file, options.Config)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if options.Addr != "" {
		addr = options.Addr
	}

	seed := cfg.Seed
	if options.Seed != 0 {
		seed = options.Seed
	}

	vars := store.New()
	override(vars, cfg)

	logger := a.logger.Prefixed("server")

	srv, err := server.New(
		file,
		a.loader(),
		server.WithGenerator(mock.New(seed)),
		server.WithLogger(logger),
		server.WithStore(vars),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watching := cfg.Server.Watch && !options.NoWatch
	errs := make(chan error, 1)
	if watching {
		go func() {
			errs <- srv.Watch(ctx, cfg.Server.Debounce)
		}()
	}

	msg.Fsuccess(a.stdout, "Serving %d endpoint(s) from %s on http://%s", len(srv.Document().Endpoints), file, addr)

	err = srv.ListenAndServe(ctx, addr)
	cancel()

	if watching {
		err = errors.Join(err, <-errs)
	}

	return err
}

// OpenAPIOptions are the flags passed to the `apidoc openapi` subcommand.
type OpenAPIOptions struct {
	Output  string // File to write to, stdout if empty
	Title   string // Title of the API
	Version string // Version of the API
	JSON    bool   // Output JSON rather than YAML
}

// OpenAPI implements the `apidoc openapi` subcommand.
func (a App) OpenAPI(ctx context.Context, file string, options OpenAPIOptions) error {
	doc, err := a.load(file)
	if err != nil {
		return err
	}

	if err := doc.Err(); err != nil {
		a.logger.Warn("Endpoints with schema errors are left out", "error", err)
	}

	description, err := openapi.Export(ctx, doc, openapi.Options{Title: options.Title, Version: options.Version})
	if err != nil {
		return err
	}

	out := a.stdout
	if options.Output != "" {
		f, err := os.Create(options.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if options.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(description)
	}

	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(description); err != nil {
		return err
	}

	return encoder.Close()
}

// load parses and resolves file, printing syntax errors to stderr.
func (a App) load(file string) (*spec.Document, error) {
	doc, err := spec.LoadFile(file, syntax.PrettyConsoleHandler(a.stderr))
	if err != nil {
		if errors.Is(err, parser.ErrParse) {
			return nil, fmt.Errorf("%w: %s is not valid .api syntax", err, file)
		}
		return nil, err
	}

	a.logger.Debug("Loaded document", "file", file, "endpoints", len(doc.Endpoints))

	return &doc, nil
}

// loader returns a [server.Loader] reporting syntax errors to stderr.
func (a App) loader() server.Loader {
	return a.load
}

// config loads the config file at path or, if path is empty, the optional one
// beside the document.
func (a App) config(file, path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	path = config.Beside(file)
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return config.Config{}, err
	}

	a.logger.Debug("Using config", "path", path)

	return cfg, nil
}

// report prints a single result.
func (a App) report(result runner.Result, primary bool) {
	outcome := "OK"
	if !result.OK {
		outcome = "ERR"
	}

	label := "Ran"
	if !primary {
		label = "Ran dependency"
	}

	source := "live"
	if result.Request.Mock {
		source = "mock"
	}

	fmt.Fprintf(a.stdout, "%s %s (%s %s) -> %d %s [%s]\n",
		label,
		result.Endpoint,
		result.Request.Method,
		result.Request.URL,
		result.Response.Status,
		outcome,
		source,
	)

	if len(result.Assigned) > 0 {
		fmt.Fprintf(a.stdout, "  assigned @%s\n", strings.Join(result.Assigned, ", @"))
	}

	if !primary || result.Response.Body == nil {
		return
	}

	body, err := json.MarshalIndent(result.Response.Body, "", "  ")
	if err != nil {
		fmt.Fprintln(a.stdout, result.Response.Body)
		return
	}

	fmt.Fprintln(a.stdout, string(body))
}

// override binds config supplied variables into vars, they win over the
// document's own declarations.
func override(vars *store.Store, cfg config.Config) {
	for name, value := range cfg.Vars {
		vars.Set(name, store.Global, value)
	}

	if cfg.BaseURL != "" {
		vars.Set(syntax.BaseURL, store.Global, cfg.BaseURL)
	}
}

// summary is the JSON form of an endpoint shown by `apidoc show --json`.
type summary struct {
	Error    string     `json:"error,omitempty"`
	Request  string     `json:"request,omitempty"`
	Response string     `json:"response,omitempty"`
	Name     string     `json:"name"`
	Method   string     `json:"method"`
	Path     string     `json:"path"`
	Set      []string   `json:"set,omitempty"`
	Must     []string   `json:"must,omitempty"`
	Range    spec.Range `json:"range"`
	MockOnly bool       `json:"mockOnly,omitempty"`
}

func summarise(endpoint spec.Endpoint) summary {
	s := summary{
		Name:     endpoint.Name,
		Method:   endpoint.Method,
		Path:     endpoint.Path.String(),
		Set:      endpoint.Set,
		Must:     endpoint.Must,
		Range:    endpoint.Range,
		MockOnly: endpoint.MockOnly,
	}

	if endpoint.Err != nil {
		s.Error = endpoint.Err.Error()
	}

	if endpoint.Request != nil {
		s.Request = endpoint.Request.String()
	}

	if endpoint.Wrapped != nil {
		s.Response = endpoint.Wrapped.String()
	}

	return s
}
