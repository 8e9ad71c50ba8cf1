// Package ui provides the interactive terminal prompts: a device chooser
// for ambiguous candidate lists and a yes/no confirmation prompt. The
// model-building code never reads the terminal; it receives these prompts
// as injected capabilities.
package ui

import "github.com/charmbracelet/lipgloss"

// Semantic colors with adaptive light/dark terminal support.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#38BDF8"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#22C55E", Dark: "#4ADE80"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#EAB308", Dark: "#FACC15"}
	colorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// Styles contains the pre-built lipgloss styles for the prompts.
type Styles struct {
	Title        lipgloss.Style
	Cursor       lipgloss.Style
	Item         lipgloss.Style
	ItemSelected lipgloss.Style
	ItemDetail   lipgloss.Style
	Help         lipgloss.Style
	Success      lipgloss.Style
	Warning      lipgloss.Style
	Error        lipgloss.Style
	Button       lipgloss.Style
	ButtonActive lipgloss.Style
}

// DefaultStyles returns the default prompt styling.
func DefaultStyles() Styles {
	return Styles{
		Title:        lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Cursor:       lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		Item:         lipgloss.NewStyle(),
		ItemSelected: lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		ItemDetail:   lipgloss.NewStyle().Foreground(colorMuted),
		Help:         lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1),
		Success:      lipgloss.NewStyle().Foreground(colorSuccess),
		Warning:      lipgloss.NewStyle().Foreground(colorWarning),
		Error:        lipgloss.NewStyle().Foreground(colorError),
		Button:       lipgloss.NewStyle().Padding(0, 2),
		ButtonActive: lipgloss.NewStyle().Padding(0, 2).Foreground(colorAccent).Bold(true).Underline(true),
	}
}
