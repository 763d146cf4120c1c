package models

import (
	"fmt"
	"time"
)

// DayLayout is the wire format of calendar days.
const DayLayout = "2006-01-02"

// Day truncates t to its calendar date, expressed as midnight UTC. The date is
// taken in t's own location, so callers convert to the shop timezone first.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PreviousDay returns the calendar day before day.
func PreviousDay(day time.Time) time.Time {
	return Day(day).AddDate(0, 0, -1)
}

// ParseDay parses a YYYY-MM-DD string. Longer ISO timestamps are accepted and
// truncated to their date part.
func ParseDay(value string) (time.Time, error) {
	if len(value) > len(DayLayout) {
		value = value[:len(DayLayout)]
	}
	t, err := time.Parse(DayLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", value, err)
	}
	return t, nil
}

// FormatDay renders day as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return day.Format(DayLayout)
}
