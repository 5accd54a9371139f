package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Wednesday, 2026-02-18 12:00:00 UTC
var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func TestParseDay(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2026-03-01", "2026-03-01"},
		{"today", "2026-02-18"},
		{"tomorrow", "2026-02-19"},
		{"next-week", "2026-02-23"},
		{"next-month", "2026-03-01"},
		{"+0d", "2026-02-18"},
		{"+10d", "2026-02-28"},
		{"+2w", "2026-03-04"},
		{"+3m", "2026-05-18"},
		{"  TODAY ", "2026-02-18"},
	}
	for _, tt := range tests {
		got, err := ParseDay(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseDay(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got.Format(DayLayout) != tt.want {
			t.Errorf("ParseDay(%q) = %s, want %s", tt.input, got.Format(DayLayout), tt.want)
		}
		if got.Hour() != 0 || got.Minute() != 0 {
			t.Errorf("ParseDay(%q) = %v, want midnight", tt.input, got)
		}
	}
}

func TestParseDay_Errors(t *testing.T) {
	for _, input := range []string{"", "soon", "+5y", "+d", "+-3d", "2026-13-01"} {
		if _, err := ParseDay(input, testNow); err == nil {
			t.Errorf("ParseDay(%q): expected error", input)
		}
	}
}

func TestParseRecordDate(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"2027-03-31", "2027-03-31", true},
		{"2027-03", "2027-03-01", true},
		{"2027-03-31T10:00:00Z", "2027-03-31", true},
		{"2027-03-31T10:00:00.123+02:00", "2027-03-31", true},
		{"2027-03-31 10:00:00", "2027-03-31", true},
		{"31/03/2027", "", false},
		{20270331, "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRecordDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseRecordDate(%v) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.Format(DayLayout) != tt.want {
			t.Errorf("ParseRecordDate(%v) = %s, want %s", tt.in, got.Format(DayLayout), tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"90s": 90 * time.Second,
		"1h":  time.Hour,
		"7d":  7 * 24 * time.Hour,
		"0d":  0,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		if err != nil || got != want {
			t.Errorf("ParseDuration(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "d", "xd", "-2d", "week"} {
		if _, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q): expected error", in)
		}
	}
}
