package filter

import (
	"errors"
	"strings"
	"time"

	"github.com/rpattn/tradeboard/internal/domain"
)

var errUnparseableDate = errors.New("unrecognized date format")

// dateLayouts lists accepted date renderings, day-first forms before month-first ones.
var dateLayouts = []string{
	domain.DisplayDateLayout,
	domain.DisplayDateLayout + " 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"01-02-06",
	"1/2/06",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
}

// ParseDate parses a user or cell supplied date using the accepted layouts.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errUnparseableDate
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errUnparseableDate
}

// dateOf extracts a calendar date from a cell value.
func dateOf(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case string:
		ts, err := ParseDate(v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// inRange compares by calendar day so time-of-day components never exclude a row.
func inRange(value any, start, end *time.Time) bool {
	ts, ok := dateOf(value)
	if !ok {
		return false
	}
	day := civilDay(ts)
	if start != nil && day.Before(civilDay(*start)) {
		return false
	}
	if end != nil && day.After(civilDay(*end)) {
		return false
	}
	return true
}
