package tui

import "github.com/charmbracelet/lipgloss"

// StyleConfig holds all customizable style colors for the dashboard UI.
type StyleConfig struct {
	// Primary colors
	PrimaryBlue   lipgloss.Color
	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	BorderColor   lipgloss.Color
	SelectedColor lipgloss.Color

	// Accent colors for job outcomes
	SuccessColor lipgloss.Color
	FailureColor lipgloss.Color
	RunningColor lipgloss.Color
	NeutralColor lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryBlue:   lipgloss.Color("#8AB4F8"),
		TextPrimary:   lipgloss.Color("#E8EAED"),
		TextSecondary: lipgloss.Color("#9AA0A6"),
		BorderColor:   lipgloss.Color("#5F6368"),
		SelectedColor: lipgloss.Color("#303134"),
		SuccessColor:  lipgloss.Color("#34A853"),
		FailureColor:  lipgloss.Color("#EA4335"),
		RunningColor:  lipgloss.Color("#FBBC04"),
		NeutralColor:  lipgloss.Color("#A142F4"),
	}
}

// TitleStyle returns a title lipgloss style using this config
func (s *StyleConfig) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.PrimaryBlue).
		Bold(true).
		Padding(0, 1)
}

// HelpStyle returns a help text lipgloss style using this config
func (s *StyleConfig) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextSecondary).
		Padding(0, 1)
}

// ErrorStyle returns an error banner lipgloss style using this config
func (s *StyleConfig) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.FailureColor).
		Padding(0, 1)
}

// DividerStyle returns the style for the panel divider line
func (s *StyleConfig) DividerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.BorderColor)
}
