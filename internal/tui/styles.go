package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/metalagman/agency/internal/sdlc/roles"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	ClientStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	SystemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	ThinkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	OutcomeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	roleStyles = map[roles.ID]lipgloss.Style{
		roles.ProjectManager: lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		roles.Architect:      lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true),
		roles.Designer:       lipgloss.NewStyle().Foreground(lipgloss.Color("44")).Bold(true),
		roles.Developer:      lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true),
	}
)

// SpeakerStyle returns the header style for a transcript speaker.
func SpeakerStyle(speaker string) lipgloss.Style {
	switch speaker {
	case "Client":
		return ClientStyle
	case "System":
		return SystemStyle
	}
	if id, err := roles.Parse(speaker); err == nil {
		if s, ok := roleStyles[id]; ok {
			return s
		}
	}
	return TitleStyle
}
