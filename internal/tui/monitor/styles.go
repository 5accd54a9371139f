package monitor

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/rxsync/internal/db"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")
	syncColor    = lipgloss.Color("45")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	warningStyle   = lipgloss.NewStyle().Foreground(warningColor)
	syncingStyle   = lipgloss.NewStyle().Foreground(syncColor)

	// Direction badges
	pushBadge = lipgloss.NewStyle().Foreground(successColor)
	pullBadge = lipgloss.NewStyle().Foreground(syncColor)

	quarantineAlertStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(warningColor)
)

// formatDirectionBadge renders a history direction badge
func formatDirectionBadge(direction string) string {
	switch direction {
	case db.DirectionPush:
		return pushBadge.Render("[PUSH]")
	case db.DirectionPull:
		return pullBadge.Render("[PULL]")
	default:
		return subtleStyle.Render("[????]")
	}
}
