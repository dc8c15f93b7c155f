package tui

import "github.com/charmbracelet/lipgloss"

var (
	racingRed = lipgloss.Color("#E10600")
	carbon    = lipgloss.Color("#38383F")
	amber     = lipgloss.Color("#FFB800")
	offWhite  = lipgloss.Color("#F2F2F2")
)

// Styles holds the lipgloss styles of the chat view.
type Styles struct {
	Header  lipgloss.Style
	User    lipgloss.Style
	AI      lipgloss.Style
	Error   lipgloss.Style
	Loading lipgloss.Style
	Prompt  lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(offWhite).Background(racingRed).Padding(0, 1),
		User:    lipgloss.NewStyle().Foreground(offWhite).Background(carbon).Padding(0, 1),
		AI:      lipgloss.NewStyle().Foreground(offWhite).BorderStyle(lipgloss.NormalBorder()).BorderLeft(true).BorderForeground(racingRed).PaddingLeft(1),
		Error:   lipgloss.NewStyle().Foreground(amber).BorderStyle(lipgloss.NormalBorder()).BorderLeft(true).BorderForeground(amber).PaddingLeft(1),
		Loading: lipgloss.NewStyle().Foreground(racingRed).Bold(true),
		Prompt:  lipgloss.NewStyle().Foreground(racingRed),
	}
}
