// Package tui implements the terminal user interface for picking a .api file and
// then an endpoint in it to run.
package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"go.followtheprocess.codes/apidoc/internal/apidoc"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/tui/components/filepicker"
	"go.followtheprocess.codes/apidoc/internal/tui/components/list"
)

// Run runs the TUI, this is what happens when users call `apidoc` with no arguments.
//
// Once an endpoint is picked the TUI closes and it is run as `apidoc run` would.
func Run(ctx context.Context, stdout, stderr io.Writer) error {
	picker := filepicker.New(".")

	tm, err := tea.NewProgram(&picker, tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}

	final, ok := tm.(filepicker.Model)
	if !ok {
		return fmt.Errorf("tui error, final model was not as expected: %T", tm)
	}

	file := final.Selected()
	if file == "" {
		return nil
	}

	doc, err := spec.LoadFile(file, syntax.PrettyConsoleHandler(stderr))
	if err != nil {
		return err
	}

	listModel := list.New("Endpoints in "+file, doc.Endpoints)

	tm, err = tea.NewProgram(&listModel, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}

	finalListModel, ok := tm.(list.Model)
	if !ok {
		return fmt.Errorf("tui error, list final model was not as expected: %T", tm)
	}

	name, mock := finalListModel.Selected()
	if name == "" {
		return nil
	}

	app := apidoc.New(stdout, stderr, false)

	return app.Run(ctx, file, name, apidoc.RunOptions{Mock: mock})
}
