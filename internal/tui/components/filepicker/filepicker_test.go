package filepicker_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.followtheprocess.codes/apidoc/internal/tui/components/filepicker"
	"go.followtheprocess.codes/test"
)

func TestQuit(t *testing.T) {
	tests := []struct {
		name string  // Name of the test case
		key  tea.Msg // Key pressed
	}{
		{name: "q", key: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}},
		{name: "ctrl+c", key: tea.KeyMsg{Type: tea.KeyCtrlC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var model tea.Model = filepicker.New(t.TempDir())

			model, cmd := model.Update(tt.key)
			test.True(t, cmd != nil, test.Context("quitting should return a command"))

			final, ok := model.(filepicker.Model)
			test.True(t, ok, test.Context("model was %T", model))
			test.Equal(t, final.Selected(), "")
			test.Equal(t, final.View(), "")
		})
	}
}

func TestView(t *testing.T) {
	var model tea.Model = filepicker.New(t.TempDir())
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	view := model.View()

	test.True(t, strings.Contains(view, "Pick a .api file"), test.Context("view:\n%s", view))
	test.True(t, strings.Contains(view, "quit"), test.Context("view:\n%s", view))
}
