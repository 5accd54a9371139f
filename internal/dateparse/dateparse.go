// Package dateparse parses the dates found in pharmacy records (batch expiry,
// invoice dates) and the relative date and duration inputs accepted by the
// CLI.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayLayout is the layout of date-only fields such as expiryDate.
const DayLayout = "2006-01-02"

// recordLayouts are the shapes a stored date may take, most specific first.
var recordLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DayLayout,
	"2006-01",
}

// ParseRecordDate parses a date stored in a record field. A month-only value
// ("2027-03") means the first day of that month.
func ParseRecordDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range recordLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDay parses a day input relative to now and returns midnight of that day
// in now's location.
//
// Supported formats:
//   - Exact dates: "2026-03-01"
//   - Relative days: "+7d"
//   - Relative weeks: "+2w"
//   - Relative months: "+1m"
//   - Keywords: "today", "tomorrow", "next-week", "next-month"
func ParseDay(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if t, err := time.ParseInLocation(DayLayout, input, now.Location()); err == nil {
		return t, nil
	}

	switch input {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "next-week":
		// Next Monday
		days := (int(time.Monday) - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days), nil
	case "next-month":
		return time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, today.Location()), nil
	}

	if !strings.HasPrefix(input, "+") || len(input) < 3 {
		return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
	}
	unit := input[len(input)-1]
	n, err := strconv.Atoi(input[1 : len(input)-1])
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
	}
	switch unit {
	case 'd':
		return today.AddDate(0, 0, n), nil
	case 'w':
		return today.AddDate(0, 0, n*7), nil
	case 'm':
		return today.AddDate(0, n, 0), nil
	}
	return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(unit), input)
}

// ParseDuration parses Go durations plus whole days ("7d").
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid duration: %s", s)
}
