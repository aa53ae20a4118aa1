// Package cmd implements apidoc's CLI.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.followtheprocess.codes/apidoc/internal/apidoc"
	"go.followtheprocess.codes/apidoc/internal/tui"
	"go.followtheprocess.codes/cli"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build returns the root apidoc CLI command.
func Build() (*cli.Command, error) {
	return cli.New(
		"apidoc",
		cli.Short("Describe, run and mock HTTP APIs with .api files"),
		cli.Allow(cli.NoArgs()),
		cli.Version(version),
		cli.Commit(commit),
		cli.BuildDate(date),
		cli.Run(func(cmd *cli.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			return tui.Run(ctx, cmd.Stdout(), cmd.Stderr())
		}),
		cli.SubCommands(check, show, run, serve, exportOpenAPI),
	)
}

// check returns the check subcommand.
func check() (*cli.Command, error) {
	return cli.New(
		"check",
		cli.Short("Check .api files for syntax and schema errors"),
		cli.Allow(cli.MinArgs(1)),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := apidoc.New(cmd.Stdout(), cmd.Stderr(), false)
			return app.Check(args)
		}),
	)
}

// show returns the show subcommand.
func show() (*cli.Command, error) {
	var options apidoc.ShowOptions
	return cli.New(
		"show",
		cli.Short("Show the endpoints described in a .api file"),
		cli.RequiredArg("file", "Path of the .api file"),
		cli.Flag(&options.JSON, "json", 'j', false, "Output the endpoints as JSON"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := apidoc.New(cmd.Stdout(), cmd.Stderr(), false)
			return app.Show(cmd.Arg("file"), options)
		}),
	)
}

const runLong = `
Any endpoints registered to SET the variables the endpoint MUST have are run
first, recursively, until every requirement is bound.

Request fields declared with a type but no value are taken from the payload,
either '--payload' or the payloads section of the config file. In mock mode
they, and every response, are generated instead.
`

// run returns the run subcommand.
func run() (*cli.Command, error) {
	var (
		options apidoc.RunOptions
		verbose bool
	)
	return cli.New(
		"run",
		cli.Short("Run an endpoint from a .api file, resolving its dependencies"),
		cli.Long(runLong),
		cli.RequiredArg("file", ".api file containing the endpoint"),
		cli.RequiredArg("endpoint", "The name of the endpoint to run"),
		cli.Flag(&options.Mock, "mock", 'm', false, "Answer every endpoint with a generated mock"),
		cli.Flag(&options.Payload, "payload", 'p', "", "JSON object supplying request fields"),
		cli.Flag(&options.Config, "config", 'c', "", "Path to the config file, apidoc.yaml beside the document by default"),
		cli.Flag(&options.Timeout, "timeout", cli.NoShortHand, 0, "Timeout for each request"),
		cli.Flag(&options.Seed, "seed", cli.NoShortHand, 0, "Seed for generated mocks"),
		cli.Flag(&options.JSON, "json", 'j', false, "Output the full result as JSON"),
		cli.Flag(&verbose, "verbose", 'v', false, "Enable debug logging"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			app := apidoc.New(cmd.Stdout(), cmd.Stderr(), verbose)
			return app.Run(ctx, cmd.Arg("file"), cmd.Arg("endpoint"), options)
		}),
	)
}

// serve returns the serve subcommand.
func serve() (*cli.Command, error) {
	var (
		options apidoc.ServeOptions
		verbose bool
	)
	return cli.New(
		"serve",
		cli.Short("Serve generated mock responses for every endpoint in a .api file"),
		cli.RequiredArg("file", ".api file to serve"),
		cli.Flag(&options.Addr, "addr", 'a', "", "Address to listen on, overrides the config"),
		cli.Flag(&options.Config, "config", 'c', "", "Path to the config file, apidoc.yaml beside the document by default"),
		cli.Flag(&options.Seed, "seed", cli.NoShortHand, 0, "Seed for generated mocks"),
		cli.Flag(&options.NoWatch, "no-watch", cli.NoShortHand, false, "Don't reload the file when it changes"),
		cli.Flag(&verbose, "verbose", 'v', false, "Enable debug logging"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if !verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			app := apidoc.New(cmd.Stdout(), cmd.Stderr(), verbose)
			return app.Serve(ctx, cmd.Arg("file"), options)
		}),
	)
}

// exportOpenAPI returns the openapi subcommand.
func exportOpenAPI() (*cli.Command, error) {
	var options apidoc.OpenAPIOptions
	return cli.New(
		"openapi",
		cli.Short("Export a .api file as an OpenAPI 3 description"),
		cli.RequiredArg("file", ".api file to export"),
		cli.Flag(&options.Output, "output", 'o', "", "Name of a file to write to, stdout by default"),
		cli.Flag(&options.Title, "title", cli.NoShortHand, "", "Title of the API, the file name by default"),
		cli.Flag(&options.Version, "api-version", cli.NoShortHand, "", "Version of the API"),
		cli.Flag(&options.JSON, "json", 'j', false, "Output JSON rather than YAML"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			app := apidoc.New(cmd.Stdout(), cmd.Stderr(), false)
			return app.OpenAPI(ctx, cmd.Arg("file"), options)
		}),
	)
}

// signalContext returns a context cancelled on ctrl+c or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
