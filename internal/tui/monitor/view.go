package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/rxsync/internal/db"
	"github.com/marcus/rxsync/internal/models"
	"github.com/marcus/rxsync/internal/output"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.Err != nil {
		return m.renderError()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	header := m.renderStatus()
	footer := m.renderFooter()

	// Split what is left between the two panels
	availableHeight := m.Height - lipgloss.Height(header) - 1
	queueHeight := availableHeight / 2
	historyHeight := availableHeight - queueHeight

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.renderQueuePanel(queueHeight),
		m.renderHistoryPanel(historyHeight),
		footer,
	)
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder

	s.WriteString("rxsync monitor (resize for full view)\n\n")
	s.WriteString(m.statusLine())
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Queued: %d | Quarantined: %d\n", m.Pending, m.Quarantined))
	s.WriteString("\nq:quit s:sync r:refresh ?:help")

	return s.String()
}

// renderError renders an error message
func (m Model) renderError() string {
	return fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.Err)
}

// statusLine is the badge and message for the current status, with a
// spinner while a drain is running.
func (m Model) statusLine() string {
	line := output.StatusBadge(m.Status.State) + "  " + output.StatusMessage(m.Status)
	if m.Status.State == models.SyncSyncing {
		line = m.spinner.View() + " " + line
	}
	return line
}

// renderStatus renders the sync status header
func (m Model) renderStatus() string {
	var content strings.Builder
	content.WriteString(m.statusLine())
	if m.Status.LastError != "" && m.Status.State != models.SyncSynced {
		content.WriteString("\n")
		content.WriteString(errorStyle.Render(ansi.Truncate(m.Status.LastError, m.Width-6, "…")))
	}
	return panelStyle.Width(m.Width - 2).Render(content.String())
}

// renderQueuePanel renders the pending outbox entries (Panel 1)
func (m Model) renderQueuePanel(height int) string {
	var content strings.Builder
	title := fmt.Sprintf("OUTBOX (%d)", m.Pending)

	if len(m.Queue) == 0 {
		content.WriteString(subtleStyle.Render("Nothing queued"))
		return m.wrapPanel(title, content.String(), height, PanelQueue)
	}

	offset := m.ScrollOffset[PanelQueue]
	visible := m.visibleItems(len(m.Queue), offset, height-3)
	for i := offset; i < offset+visible; i++ {
		row := m.Queue[i]
		content.WriteString(output.FormatEntry(row.Entry, row.Attempts, row.LastError, m.Width-6))
		content.WriteString("\n")
	}

	return m.wrapPanel(title, content.String(), height, PanelQueue)
}

// renderHistoryPanel renders recent pushes and pulls (Panel 2)
func (m Model) renderHistoryPanel(height int) string {
	var content strings.Builder

	if len(m.History) == 0 {
		content.WriteString(subtleStyle.Render("No sync activity yet"))
		return m.wrapPanel("HISTORY", content.String(), height, PanelHistory)
	}

	offset := m.ScrollOffset[PanelHistory]
	visible := m.visibleItems(len(m.History), offset, height-3)
	for i := offset; i < offset+visible; i++ {
		content.WriteString(m.formatHistoryItem(m.History[i]))
		content.WriteString("\n")
	}

	return m.wrapPanel("HISTORY", content.String(), height, PanelHistory)
}

func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit  tab:switch  j/k:scroll  s:sync  r:refresh  ?:help")

	quarantineAlert := ""
	if m.Quarantined > 0 {
		quarantineAlert = quarantineAlertStyle.Render(fmt.Sprintf(" [%d QUARANTINED] ", m.Quarantined))
	}

	refresh := timestampStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(quarantineAlert) - lipgloss.Width(refresh) - 3
	if padding < 0 {
		padding = 0
	}

	return fmt.Sprintf(" %s%s%s %s", keys, strings.Repeat(" ", padding), quarantineAlert, refresh)
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	help := `
SYNC MONITOR - Key Bindings

NAVIGATION:
  Tab / Shift+Tab   Switch between panels
  1 / 2             Jump to panel
  j / k             Scroll active panel

ACTIONS:
  s                 Sync now
  r                 Force refresh
  q / Ctrl+C        Quit

Press ? to close help
`
	return helpStyle.Render(help)
}

// wrapPanel wraps content in a panel with title and border
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	titleStr := panelTitleStyle.Render(title)
	contentWidth := m.Width - 4

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	contentHeight := max(height-3, 1)

	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}

	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, titleStr, strings.Join(lines, "\n"))

	return style.Width(m.Width - 2).Render(inner)
}

// formatHistoryItem formats a single push or pull
func (m Model) formatHistoryItem(e db.SyncHistoryEntry) string {
	timestamp := timestampStyle.Render(e.Timestamp.Local().Format("15:04:05"))
	badge := formatDirectionBadge(e.Direction)
	keys := fmt.Sprintf("#%d", e.LocalKey)
	if e.RemoteKey != 0 {
		keys += fmt.Sprintf(" → R%d", e.RemoteKey)
	}
	line := fmt.Sprintf("%s %s %-6s %s %s", timestamp, badge, e.Action, titleStyle.Render(e.Entity), subtleStyle.Render(keys))
	if e.Seq != 0 {
		line += warningStyle.Render(fmt.Sprintf("  seq %d", e.Seq))
	}
	return line
}

// visibleItems calculates how many items can be shown given scroll offset and height
func (m Model) visibleItems(total, offset, height int) int {
	remaining := total - offset
	if remaining > height {
		return height
	}
	return max(remaining, 0)
}
