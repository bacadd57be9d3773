package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header  lipgloss.Style
	Header2 lipgloss.Style
	Key     lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	View    lipgloss.Style
	Table   lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
}

// NewStyles builds styles bound to a lipgloss renderer, so colour output
// follows that renderer's profile.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: r.NewStyle().Bold(true),
		Key:     r.NewStyle().Foreground(lipgloss.Color("8")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		View:    r.NewStyle().Foreground(lipgloss.Color("14")),
		Table:   r.NewStyle().Foreground(lipgloss.Color("10")),
		Added:   r.NewStyle().Foreground(lipgloss.Color("10")),
		Removed: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}
