// Package theme provides the lipgloss styles used throughout the apidoc TUI,
// built from the Catppuccin Macchiato palette.
//
// See https://catppuccin.com/palette/.
package theme

import "github.com/charmbracelet/lipgloss"

// The Catppuccin Macchiato colours the TUI uses.
const (
	mauve    = lipgloss.Color("#c6a0f6")
	red      = lipgloss.Color("#ed8796")
	peach    = lipgloss.Color("#f5a97f")
	yellow   = lipgloss.Color("#eed49f")
	green    = lipgloss.Color("#a6da95")
	sapphire = lipgloss.Color("#7dc4e4")
	blue     = lipgloss.Color("#8aadf4")
	text     = lipgloss.Color("#cad3f5")
	subtext  = lipgloss.Color("#a5adcb")
	overlay  = lipgloss.Color("#6e738d")
	base     = lipgloss.Color("#24273a")
)

// Styles are the styles for each role in the TUI.
type Styles struct {
	Title       lipgloss.Style // List and picker titles
	Selected    lipgloss.Style // The item under the cursor
	Description lipgloss.Style // Secondary text under an item
	Dimmed      lipgloss.Style // De-emphasised text e.g. help
	Error       lipgloss.Style // Errors, including endpoints with schema errors
	Mock        lipgloss.Style // The MOCK badge
	Directory   lipgloss.Style // Directories in the file picker
	File        lipgloss.Style // Files in the file picker
}

// Default returns the default styles.
func Default() Styles {
	return Styles{
		Title:       lipgloss.NewStyle().Foreground(base).Background(mauve).Padding(0, 1).Bold(true),
		Selected:    lipgloss.NewStyle().Foreground(mauve).Bold(true),
		Description: lipgloss.NewStyle().Foreground(subtext),
		Dimmed:      lipgloss.NewStyle().Foreground(overlay),
		Error:       lipgloss.NewStyle().Foreground(red),
		Mock:        lipgloss.NewStyle().Foreground(peach).Bold(true),
		Directory:   lipgloss.NewStyle().Foreground(blue),
		File:        lipgloss.NewStyle().Foreground(text),
	}
}

// Method returns the style for an HTTP method.
func Method(method string) lipgloss.Style {
	switch method {
	case "GET":
		return lipgloss.NewStyle().Foreground(green).Bold(true)
	case "POST":
		return lipgloss.NewStyle().Foreground(yellow).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(sapphire).Bold(true)
	}
}
