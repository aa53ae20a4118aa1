// Package filepicker implements a bubbletea component to pick a .api file.
package filepicker

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.followtheprocess.codes/apidoc/internal/tui/theme"
)

// Extension is the extension of the files that may be picked.
const Extension = ".api"

const (
	warningTimeout = 2 * time.Second
	sizeColumn     = 7
)

// Model is the file picker tea Model.
type Model struct {
	picker   filepicker.Model // The bubbles filepicker doing the browsing
	help     help.Model       // Renders the key bindings
	keys     keys             // Bindings shown in the help bar
	styles   theme.Styles     // Styles for the header line
	warning  string           // Shown in place of the header until it expires
	selected string           // Path of the picked file
	done     bool             // Set once the picker has quit
}

// keys are the picker bindings plus quit, rendered by [help.Model].
type keys struct {
	filepicker.KeyMap
	Quit key.Binding
}

// ShortHelp implements [help.KeyMap].
func (k keys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Back, k.Open, k.Quit}
}

// FullHelp implements [help.KeyMap].
func (k keys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.GoToTop, k.GoToLast, k.Back, k.Open},
		{k.Select, k.Quit},
	}
}

// New returns a new [Model] browsing from dir.
func New(dir string) Model {
	styles := theme.Default()

	bindings := keys{
		KeyMap: filepicker.KeyMap{
			GoToTop:  key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
			GoToLast: key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
			Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("↓/j", "down")),
			Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑/k", "up")),
			PageUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
			PageDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdown", "page down")),
			Back:     key.NewBinding(key.WithKeys("h", "left", "backspace", "esc"), key.WithHelp("←/h", "parent")),
			Open:     key.NewBinding(key.WithKeys("l", "right", "enter"), key.WithHelp("→/enter", "open")),
			Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "pick")),
		},
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}

	picker := filepicker.New()
	picker.AllowedTypes = []string{Extension}
	picker.CurrentDirectory = dir
	picker.KeyMap = bindings.KeyMap
	picker.Styles.Cursor = styles.Selected
	picker.Styles.Selected = styles.Selected
	picker.Styles.Directory = styles.Directory
	picker.Styles.File = styles.File
	picker.Styles.DisabledFile = styles.Dimmed
	picker.Styles.FileSize = styles.Dimmed.Width(sizeColumn).Align(lipgloss.Right)

	helpModel := help.New()
	helpModel.Styles.ShortKey = styles.Description
	helpModel.Styles.ShortDesc = styles.Dimmed
	helpModel.Styles.FullKey = styles.Description
	helpModel.Styles.FullDesc = styles.Dimmed

	return Model{
		picker: picker,
		help:   helpModel,
		keys:   bindings,
		styles: styles,
	}
}

// Selected returns the path of the picked file, empty if the user quit without
// picking one.
func (m Model) Selected() string {
	return m.selected
}

// expired clears the warning.
type expired struct{}

// Init implements [tea.Model].
func (m Model) Init() tea.Cmd {
	return m.picker.Init()
}

// Update implements [tea.Model].
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.done = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		// Header line and help bar
		m.picker.SetHeight(max(msg.Height-3, 1))
		m.help.Width = msg.Width
	case expired:
		m.warning = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	return m.pick(msg, cmd)
}

// pick handles the user choosing an entry in the picker.
func (m Model) pick(msg tea.Msg, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.selected = path
		m.done = true
		return m, tea.Quit
	}

	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.warning = fmt.Sprintf("%s is not a %s file", path, Extension)
		expire := tea.Tick(warningTimeout, func(time.Time) tea.Msg { return expired{} })
		return m, tea.Batch(cmd, expire)
	}

	return m, cmd
}

// View implements [tea.Model].
func (m Model) View() string {
	if m.done {
		return ""
	}

	header := m.styles.Title.Render("Pick a " + Extension + " file")
	if m.warning != "" {
		header = m.styles.Error.Render(m.warning)
	}

	var s strings.Builder
	s.WriteString(header)
	s.WriteString("\n\n")
	s.WriteString(m.picker.View())
	s.WriteByte('\n')
	s.WriteString(m.help.View(m.keys))

	return s.String()
}
