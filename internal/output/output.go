// Package output provides styled terminal output helpers (success, error,
// warning, sync status and record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/rxsync/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	stateStyles  = map[models.SyncState]lipgloss.Style{
		models.SyncOffline: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		models.SyncPending: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SyncSyncing: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.SyncSynced:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.SyncError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// OutputMode determines output format
type OutputMode int

const (
	ModeShort OutputMode = iota
	ModeLong
	ModeJSON
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeDatabaseError = "database_error"
	ErrCodeNotAuthorized = "not_authorized"
	ErrCodeRemoteError   = "remote_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{"error": map[string]string{"code": code, "message": message}})
	fmt.Println(string(data))
}

// StatusMessage returns the one-line description of a sync status.
func StatusMessage(s models.SyncStatus) string {
	switch s.State {
	case models.SyncSyncing:
		return fmt.Sprintf("Syncing (%d of %d)...", s.Processed, s.Total)
	case models.SyncPending:
		if s.Pending == 1 {
			return "1 change waiting to sync"
		}
		return fmt.Sprintf("%d changes waiting to sync", s.Pending)
	case models.SyncSynced:
		return "All changes synced"
	case models.SyncError:
		if s.Remaining > 0 {
			return fmt.Sprintf("Sync error! %d items remaining.", s.Remaining)
		}
		return "Sync error"
	case models.SyncOffline:
		if s.Pending > 0 {
			return fmt.Sprintf("You are offline (%d queued)", s.Pending)
		}
		return "You are offline"
	}
	return string(s.State)
}

// StatusBadge returns the state with a symbol, e.g. "✓ synced", "✗ error"
func StatusBadge(state models.SyncState) string {
	symbols := map[models.SyncState]string{
		models.SyncOffline: "○",
		models.SyncPending: "◎",
		models.SyncSyncing: "▶",
		models.SyncSynced:  "✓",
		models.SyncError:   "✗",
	}
	symbol, ok := symbols[state]
	if !ok {
		symbol = "?"
	}
	if style, ok := stateStyles[state]; ok {
		return style.Render(fmt.Sprintf("%s %s", symbol, state))
	}
	return fmt.Sprintf("%s %s", symbol, state)
}

// FormatStatus formats a sync status as badge, message and, for errors, the
// last error text.
func FormatStatus(s models.SyncStatus) string {
	line := StatusBadge(s.State) + "  " + StatusMessage(s)
	if s.LastError != "" && s.State != models.SyncSynced {
		line += "\n  " + subtleStyle.Render(s.LastError)
	}
	return line
}

// FormatKeys renders a record's keys. The remote key is shown first because
// that is the number the other devices know the record by.
func FormatKeys(localKey int64, remoteKey *int64) string {
	if remoteKey == nil {
		return keyStyle.Render(fmt.Sprintf("#%d", localKey)) + subtleStyle.Render(" (not synced)")
	}
	return keyStyle.Render(fmt.Sprintf("R%d", *remoteKey)) + subtleStyle.Render(fmt.Sprintf(" (local #%d)", localKey))
}

// FormatRecordShort formats a record on one line, truncated to width
// (0 means no limit).
func FormatRecordShort(entity string, localKey int64, remoteKey *int64, data map[string]any, width int) string {
	label := recordLabel(data)
	line := fmt.Sprintf("%s  %s  %s", titleStyle.Render(entity), FormatKeys(localKey, remoteKey), label)
	if width > 0 {
		line = ansi.Truncate(line, width, "…")
	}
	return line
}

// FormatRecordLong formats every field of a record, sorted by name.
func FormatRecordLong(entity string, localKey int64, remoteKey *int64, clientID string, data map[string]any, updated time.Time) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", entity, FormatKeys(localKey, remoteKey))))
	sb.WriteString("\n")
	sb.WriteString(subtleStyle.Render(fmt.Sprintf("client id: %s  updated: %s", clientID, FormatTimeAgo(updated))))
	sb.WriteString("\n")

	fields := make([]string, 0, len(data))
	for k := range data {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, k := range fields {
		v, err := json.Marshal(data[k])
		if err != nil {
			v = []byte(fmt.Sprint(data[k]))
		}
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
	}
	return sb.String()
}

// FormatEntry formats an outbox entry on one line.
func FormatEntry(e models.OutboxEntry, attempts int, lastError string, width int) string {
	line := fmt.Sprintf("%s  %-6s %s #%d  %s",
		keyStyle.Render(fmt.Sprintf("%6d", e.Seq)), e.Action, e.Entity, e.LocalKey,
		subtleStyle.Render(FormatTimeAgo(e.EnqueuedAt)))
	if attempts > 0 {
		line += "  " + errorStyle.Render(fmt.Sprintf("failed x%d: %s", attempts, lastError))
	}
	if width > 0 {
		line = ansi.Truncate(line, width, "…")
	}
	return line
}

// recordLabel picks the most human field of a record for one-line display.
func recordLabel(data map[string]any) string {
	for _, k := range []string{"name", "invoiceNumber", "username", "key", "lotNumber", "actionType", "date"} {
		if v, ok := data[k]; ok && v != nil && v != "" {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nQUARANTINE:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}
