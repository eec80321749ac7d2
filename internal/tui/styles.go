package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Cursor   lipgloss.Style
	Selected lipgloss.Style
	Dim      lipgloss.Style
	Bar      lipgloss.Style
	Trigger  lipgloss.Style
	Disabled lipgloss.Style
	Confirm  lipgloss.Style
	Alert    lipgloss.Style
	Error    lipgloss.Style
}

func newStyles() styles {
	return styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1),
		Header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Bold(true),
		Cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		Selected: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Dim:      lipgloss.NewStyle().Faint(true),
		Bar: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("241")).
			MarginTop(1),
		Trigger:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Disabled: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Confirm:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		Alert:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}
