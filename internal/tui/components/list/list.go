// Package list implements a bubbletea list component to pick endpoints.
package list

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/tui/theme"
)

// Model is the list tea Model.
type Model struct {
	l        list.Model // The base list bubble
	selected string     // The name of the selected endpoint
	mock     bool       // Whether the endpoint was picked to run as a mock
}

// item adapts an endpoint to a list item.
type item struct {
	endpoint spec.Endpoint
	styles   theme.Styles
}

// FilterValue implements [list.Item], endpoints are filtered by name.
func (i item) FilterValue() string {
	return i.endpoint.Name
}

// Title implements [list.DefaultItem].
func (i item) Title() string {
	title := theme.Method(i.endpoint.Method).Render(i.endpoint.Method) + " " + i.endpoint.Name
	if i.endpoint.MockOnly {
		title += " " + i.styles.Mock.Render("MOCK")
	}

	return title
}

// Description implements [list.DefaultItem].
func (i item) Description() string {
	if i.endpoint.Err != nil {
		return i.styles.Error.Render(i.endpoint.Err.Error())
	}

	description := i.endpoint.Path.String()
	if len(i.endpoint.Must) > 0 {
		description += "  MUST @" + strings.Join(i.endpoint.Must, ", @")
	}
	if len(i.endpoint.Set) > 0 {
		description += "  SET @" + strings.Join(i.endpoint.Set, ", @")
	}

	return description
}

var (
	runKey  = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run"))
	mockKey = key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "run as mock"))
)

// New returns a new [Model].
func New(title string, endpoints []spec.Endpoint) Model {
	styles := theme.Default()

	items := make([]list.Item, 0, len(endpoints))
	for _, endpoint := range endpoints {
		items = append(items, item{endpoint: endpoint, styles: styles})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(styles.Selected.GetForeground()).
		BorderForeground(styles.Selected.GetForeground())
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(styles.Description.GetForeground()).
		BorderForeground(styles.Selected.GetForeground())

	l := list.New(items, delegate, 0, 0)
	l.Title = title
	l.Styles.Title = styles.Title
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{runKey, mockKey}
	}

	return Model{
		l: l,
	}
}

// Init helps implement [tea.Model] for [Model].
func (m Model) Init() tea.Cmd {
	return nil
}

// Update updates the UI in response to messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Keys are text while filtering
		if m.l.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter", "m":
			if m.l.SelectedItem() != nil {
				m.selected = m.l.SelectedItem().FilterValue()
				m.mock = msg.String() == "m"
			}

			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.l.SetSize(msg.Width, msg.Height)
	}

	var cmd tea.Cmd

	m.l, cmd = m.l.Update(msg)

	return m, cmd
}

// View renders the UI to the user.
func (m Model) View() string {
	return m.l.View()
}

// Selected returns the name of the picked endpoint, empty if nothing was
// picked, and whether it should run as a mock.
func (m Model) Selected() (name string, mock bool) {
	return m.selected, m.mock
}
