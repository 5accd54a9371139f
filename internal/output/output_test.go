package output

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/rxsync/internal/models"
)

// TestFormatTimeAgoJustNow tests times less than a minute ago
func TestFormatTimeAgoJustNow(t *testing.T) {
	now := time.Now()
	tests := []time.Time{
		now,
		now.Add(-30 * time.Second),
		now.Add(-59 * time.Second),
	}

	for _, tm := range tests {
		result := FormatTimeAgo(tm)
		if result != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, result)
		}
	}
}

// TestFormatTimeAgoMinutes tests times 1-59 minutes ago
func TestFormatTimeAgoMinutes(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Minute, "1m ago"},
		{2 * time.Minute, "2m ago"},
		{30 * time.Minute, "30m ago"},
		{59 * time.Minute, "59m ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoHours tests times 1-23 hours ago
func TestFormatTimeAgoHours(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h ago"},
		{2 * time.Hour, "2h ago"},
		{12 * time.Hour, "12h ago"},
		{23 * time.Hour, "23h ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDays tests times 1-6 days ago
func TestFormatTimeAgoDays(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{24 * time.Hour, "1d ago"},
		{48 * time.Hour, "2d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDate tests times 7+ days ago (returns date)
func TestFormatTimeAgoDate(t *testing.T) {
	tm := time.Now().Add(-8 * 24 * time.Hour)
	result := FormatTimeAgo(tm)
	expected := tm.Format("2006-01-02")
	if result != expected {
		t.Errorf("FormatTimeAgo(-8d) = %q, want %q", result, expected)
	}
func TestFormatTimeAgoZero(t *testing.T) {
	if got := FormatTimeAgo(time.Time{}); got != "never" {
		t.Errorf("FormatTimeAgo(zero) = %q, want 'never'", got)
	}
}

func TestStatusMessage(t *testing.T) {
	tests := []struct {
		status models.SyncStatus
		want   string
	}{
		{models.SyncStatus{State: models.SyncSyncing, Processed: 3, Total: 10}, "Syncing (3 of 10)..."},
		{models.SyncStatus{State: models.SyncPending, Pending: 1}, "1 change waiting to sync"},
		{models.SyncStatus{State: models.SyncPending, Pending: 4}, "4 changes waiting to sync"},
		{models.SyncStatus{State: models.SyncSynced}, "All changes synced"},
		{models.SyncStatus{State: models.SyncError, Remaining: 2}, "Sync error! 2 items remaining."},
		{models.SyncStatus{State: models.SyncError}, "Sync error"},
		{models.SyncStatus{State: models.SyncOffline}, "You are offline"},
		{models.SyncStatus{State: models.SyncOffline, Pending: 5}, "You are offline (5 queued)"},
		{models.SyncStatus{State: "weird"}, "weird"},
	}
	for _, tc := range tests {
		if got := StatusMessage(tc.status); got != tc.want {
			t.Errorf("StatusMessage(%+v) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	got := ansi.Strip(FormatStatus(models.SyncStatus{State: models.SyncError, Remaining: 1, LastError: "remote rejected (409 constraint_violation)"}))
	if !strings.Contains(got, "✗ error") {
		t.Errorf("missing badge: %q", got)
	}
	if !strings.Contains(got, "409 constraint_violation") {
		t.Errorf("missing last error: %q", got)
	}

	got = ansi.Strip(FormatStatus(models.SyncStatus{State: models.SyncSynced, LastError: "old"}))
	if strings.Contains(got, "old") {
		t.Errorf("synced status should not show a stale error: %q", got)
	}
}

func TestStatusBadgeUnknown(t *testing.T) {
	if got := StatusBadge("mystery"); got != "? mystery" {
		t.Errorf("StatusBadge(unknown) = %q", got)
	}
}

func TestFormatKeys(t *testing.T) {
	if got := ansi.Strip(FormatKeys(3, nil)); got != "#3 (not synced)" {
		t.Errorf("FormatKeys unsynced = %q", got)
	}
	rk := int64(501)
	if got := ansi.Strip(FormatKeys(3, &rk)); got != "R501 (local #3)" {
		t.Errorf("FormatKeys synced = %q", got)
	}
}

func TestFormatRecordShortTruncates(t *testing.T) {
	data := map[string]any{"name": strings.Repeat("Paracetamol ", 20)}
	line := FormatRecordShort("drugs", 1, nil, data, 40)
	if w := ansi.StringWidth(line); w > 40 {
		t.Errorf("width = %d, want <= 40", w)
	}
	if !strings.HasSuffix(ansi.Strip(line), "…") {
		t.Errorf("truncated line should end with an ellipsis: %q", ansi.Strip(line))
	}

	full := ansi.Strip(FormatRecordShort("suppliers", 2, nil, map[string]any{"name": "Medico"}, 0))
	if !strings.Contains(full, "Medico") {
		t.Errorf("label missing: %q", full)
	}
}

func TestFormatRecordLongSortsFields(t *testing.T) {
	out := ansi.Strip(FormatRecordLong("drugs", 1, nil, "c-1", map[string]any{"salePrice": 15, "name": "Zinc"}, time.Now()))
	name := strings.Index(out, "name:")
	price := strings.Index(out, "salePrice:")
	if name < 0 || price < 0 || name > price {
		t.Errorf("fields not sorted:\n%s", out)
	}
	if !strings.Contains(out, "client id: c-1") {
		t.Errorf("client id missing:\n%s", out)
	}
}

func TestFormatEntry(t *testing.T) {
	e := models.OutboxEntry{Seq: 12, Entity: "drugs", Action: models.ActionUpdate, LocalKey: 4, EnqueuedAt: time.Now()}
	out := ansi.Strip(FormatEntry(e, 0, "", 0))
	if !strings.Contains(out, "update") || !strings.Contains(out, "drugs #4") {
		t.Errorf("FormatEntry = %q", out)
	}
	out = ansi.Strip(FormatEntry(e, 2, "remote rejected", 0))
	if !strings.Contains(out, "failed x2: remote rejected") {
		t.Errorf("FormatEntry with failure = %q", out)
	}
}

func TestSectionHeader(t *testing.T) {
	if got := SectionHeader("quarantine"); got != "\nQUARANTINE:\n" {
		t.Errorf("SectionHeader = %q", got)
	}
}
