package list_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/tui/components/list"
	"go.followtheprocess.codes/test"
)

const document = `
@token: str

### login SET [@token]
POST /login
=> { "token": str }
OK { @token = this.token }
###

### profile MUST [@token]
GET /profile
=> { "name": str }
###
`

func TestSelect(t *testing.T) {
	tests := []struct {
		name string    // Name of the test case
		keys []tea.Msg // Keys pressed in order
		want string    // Expected selected endpoint
		mock bool      // Whether a mock run was picked
	}{
		{
			name: "enter runs the first",
			keys: []tea.Msg{tea.KeyMsg{Type: tea.KeyEnter}},
			want: "login",
		},
		{
			name: "down then enter",
			keys: []tea.Msg{tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter}},
			want: "profile",
		},
		{
			name: "m runs as a mock",
			keys: []tea.Msg{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")}},
			want: "login",
			mock: true,
		},
		{
			name: "quit picks nothing",
			keys: []tea.Msg{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var model tea.Model = newModel(t)

			model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
			for _, key := range tt.keys {
				model, _ = model.Update(key)
			}

			final, ok := model.(list.Model)
			test.True(t, ok, test.Context("model was %T", model))

			name, mock := final.Selected()
			test.Equal(t, name, tt.want)
			test.Equal(t, mock, tt.mock)
		})
	}
}

func TestView(t *testing.T) {
	var model tea.Model = newModel(t)
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	view := model.View()

	test.True(t, strings.Contains(view, "Endpoints in demo.api"), test.Context("view:\n%s", view))
	test.True(t, strings.Contains(view, "login"), test.Context("view:\n%s", view))
	test.True(t, strings.Contains(view, "MUST @token"), test.Context("view:\n%s", view))
}

func newModel(tb testing.TB) list.Model {
	tb.Helper()

	doc, err := spec.Load("demo.api", strings.NewReader(document), func(pos syntax.Position, msg string) {
		tb.Fatalf("%s: %s", pos, msg)
	})
	test.Ok(tb, err)

	return list.New("Endpoints in demo.api", doc.Endpoints)
}
