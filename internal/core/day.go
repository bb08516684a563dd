package core

import (
	"fmt"
	"time"
)

// DayLayout is the canonical calendar-day key format.
const DayLayout = "2006-01-02"

// Day is a calendar day with no time of day and no location attached.
// Two Days are equal exactly when their keys are equal, so Day is safe to
// use as a map key for per-day grouping.
type Day struct {
	year  int
	month time.Month
	day   int
}

// NewDay normalizes overflowing fields the way time.Date does.
func NewDay(year int, month time.Month, day int) Day {
	t := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}
}

// DayOf returns the calendar day of t as seen from loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Day{year: y, month: m, day: d}
}

// ParseDay parses a strict YYYY-MM-DD key. Dates that do not exist in the
// calendar (2024-02-30) are rejected.
func ParseDay(s string) (Day, error) {
	if len(s) != len(DayLayout) {
		return Day{}, fmt.Errorf("invalid day %q", s)
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}, nil
}

func (d Day) Year() int          { return d.year }
func (d Day) Month() time.Month  { return d.month }
func (d Day) DayOfMonth() int    { return d.day }
func (d Day) IsZero() bool       { return d == Day{} }
func (d Day) MonthKey() MonthKey { return MonthKey{Year: d.year, Month: d.month} }

// String returns the canonical key.
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// AddDays moves by whole calendar days. The arithmetic runs at noon UTC so
// DST transitions in any location cannot skip or repeat a day.
func (d Day) AddDays(n int) Day {
	t := time.Date(d.year, d.month, d.day, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}
}

// Compare returns -1, 0 or +1.
func (d Day) Compare(o Day) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func (d Day) Before(o Day) bool { return d.Compare(o) < 0 }
func (d Day) After(o Day) bool  { return d.Compare(o) > 0 }

// Start returns local midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
}

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

func (m MonthKey) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// Compare returns -1, 0 or +1.
func (m MonthKey) Compare(o MonthKey) int {
	if m.Year != o.Year {
		return cmpInt(m.Year, o.Year)
	}
	return cmpInt(int(m.Month), int(o.Month))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
