// Package timewindow resolves the optional day/week/month query filters used
// by listing and aggregation endpoints into a single UTC time range.
package timewindow

import (
	"strconv"
	"strings"
	"time"
)

const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Kind names which filter produced a window.
type Kind string

const (
	KindDay   Kind = "day"
	KindWeek  Kind = "week"
	KindMonth Kind = "month"
)

// Filter carries the raw query values. Any of them may be empty.
type Filter struct {
	Day   string
	Week  string
	Month string
}

// Window is the half-open range [Start, End).
type Window struct {
	Kind  Kind
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && t.Before(w.End)
}

// Resolve picks at most one window. A valid day wins over a valid ISO week,
// which wins over a valid month. Values that fail to parse are ignored and
// the next filter is considered; with nothing usable it returns nil.
func Resolve(f Filter) *Window {
	if w, ok := ParseDay(f.Day); ok {
		return &w
	}
	if w, ok := ParseWeek(f.Week); ok {
		return &w
	}
	if w, ok := ParseMonth(f.Month); ok {
		return &w
	}
	return nil
}

// ParseDay accepts YYYY-MM-DD.
func ParseDay(value string) (Window, bool) {
	day, err := time.ParseInLocation(DayLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return Window{}, false
	}
	return Window{Kind: KindDay, Start: day, End: day.AddDate(0, 0, 1)}, true
}

// ParseWeek accepts the ISO form YYYY-Www (Monday start), e.g. 2025-W09.
func ParseWeek(value string) (Window, bool) {
	year, rest, found := strings.Cut(strings.ToUpper(strings.TrimSpace(value)), "-W")
	if !found || len(year) != 4 || len(rest) != 2 {
		return Window{}, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Window{}, false
	}
	wk, err := strconv.Atoi(rest)
	if err != nil || wk < 1 || wk > 53 {
		return Window{}, false
	}
	start := isoWeekStart(y, wk)
	if gotYear, gotWeek := start.ISOWeek(); gotYear != y || gotWeek != wk {
		// week 53 in a 52-week year
		return Window{}, false
	}
	return Window{Kind: KindWeek, Start: start, End: start.AddDate(0, 0, 7)}, true
}

// ParseMonth accepts YYYY-MM.
func ParseMonth(value string) (Window, bool) {
	month, err := time.ParseInLocation(MonthLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return Window{}, false
	}
	return Window{Kind: KindMonth, Start: month, End: month.AddDate(0, 1, 0)}, true
}

// isoWeekStart returns the Monday of the given ISO week. January 4th always
// falls in week 1.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7)
}
