// Package report aggregates finished and in-flight activities into the
// read-only views used by supervisors: process TPU analysis, the overview,
// per-work-order production, machine efficiency, head problems and the live
// floor.
package report

import (
	"fmt"
	"time"
)

// Range is a half-open time window [From, To).
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Duration returns the length of the range.
func (r Range) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// Day returns the calendar day containing now, in now's location.
func Day(now time.Time) Range {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Range{From: from, To: from.AddDate(0, 0, 1)}
}

// LastDays returns the n calendar days ending with today.
func LastDays(now time.Time, n int) Range {
	d := Day(now)
	return Range{From: d.From.AddDate(0, 0, -(n - 1)), To: d.To}
}

// Month returns the calendar month containing now.
func Month(now time.Time) Range {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Range{From: from, To: from.AddDate(0, 1, 0)}
}

// dateLayouts are accepted for explicit from/to bounds.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// ParseRange resolves a named period (today, week, month) or explicit
// from/to bounds. Explicit bounds win over the period. A date-only "to" is
// inclusive of that whole day. An empty request means the current month.
func ParseRange(period, from, to string, now time.Time) (Range, error) {
	if from != "" || to != "" {
		r := Day(now)
		if from != "" {
			t, err := parseTime(from, now.Location())
			if err != nil {
				return Range{}, fmt.Errorf("report: invalid from %q", from)
			}
			r.From = t
		}
		if to != "" {
			t, err := parseTime(to, now.Location())
			if err != nil {
				return Range{}, fmt.Errorf("report: invalid to %q", to)
			}
			if len(to) == len("2006-01-02") {
				t = t.AddDate(0, 0, 1)
			}
			r.To = t
		}
		if !r.From.Before(r.To) {
			return Range{}, fmt.Errorf("report: from must be before to")
		}
		return r, nil
	}
	switch period {
	case "today", "day":
		return Day(now), nil
	case "week":
		return LastDays(now, 7), nil
	case "month", "":
		return Month(now), nil
	default:
		return Range{}, fmt.Errorf("report: unknown period %q (today, week, month)", period)
	}
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
