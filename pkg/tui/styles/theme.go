package styles

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette and base styles for the TUI.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	TextDim   lipgloss.Color

	Border       lipgloss.Style
	Title        lipgloss.Style
	TitleMuted   lipgloss.Style
	Badge        lipgloss.Style
	KeybindKey   lipgloss.Style
	PhaseDone    lipgloss.Style
	PhaseFailed  lipgloss.Style
	PhasePending lipgloss.Style
	PhaseActive  lipgloss.Style
}

func DefaultTheme() Theme {
	primary := lipgloss.Color("#2563EB")   // Blue
	secondary := lipgloss.Color("#06B6D4") // Cyan
	success := lipgloss.Color("#22C55E")
	warning := lipgloss.Color("#EAB308")
	errorC := lipgloss.Color("#EF4444")
	muted := lipgloss.Color("#6B7280")
	text := lipgloss.Color("#F9FAFB")
	textDim := lipgloss.Color("#9CA3AF")

	return Theme{
		Primary:   primary,
		Secondary: secondary,
		Success:   success,
		Warning:   warning,
		Error:     errorC,
		Muted:     muted,
		Text:      text,
		TextDim:   textDim,

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted),
		Title:      lipgloss.NewStyle().Bold(true).Foreground(text),
		TitleMuted: lipgloss.NewStyle().Foreground(textDim),
		Badge: lipgloss.NewStyle().
			Bold(true).
			Foreground(text).
			Background(primary).
			Padding(0, 1),
		KeybindKey:   lipgloss.NewStyle().Bold(true).Foreground(secondary),
		PhaseDone:    lipgloss.NewStyle().Foreground(success),
		PhaseFailed:  lipgloss.NewStyle().Foreground(errorC),
		PhasePending: lipgloss.NewStyle().Foreground(muted),
		PhaseActive:  lipgloss.NewStyle().Foreground(secondary),
	}
}
