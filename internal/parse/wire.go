package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wire layouts used by the clinic backend.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
	MonthLayout = "2006-01"
)

// Date parses a YYYY-MM-DD calendar date at midnight in loc.
func Date(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	// The backend sometimes sends full timestamps for date columns.
	if len(s) > len(DateLayout) && s[len(DateLayout)] == 'T' {
		s = s[:len(DateLayout)]
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return d, nil
}

// Clock parses HH:MM or HH:MM:SS and returns minutes since midnight.
// Seconds are dropped.
func Clock(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	// Rails time columns serialize as 2000-01-01T09:00:00.000Z.
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[i+1:]
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	if len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Month parses YYYY-MM and returns the first day of that month in loc.
func Month(raw string, loc *time.Location) (time.Time, error) {
	m, err := time.ParseInLocation(MonthLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: %w", raw, err)
	}
	return m, nil
}

// DateTime accepts RFC 3339 timestamps or a bare date, interpreted in loc.
func DateTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, loc); err == nil {
		return t, nil
	}
	return Date(s, loc)
}
