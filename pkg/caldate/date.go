// Package caldate provides a calendar-day date type with no time-of-day or
// timezone component, plus the date-window helpers the reconciler CLI uses
// to scope clone/pull/push/diff operations.
package caldate

import (
	"encoding/json"
	"fmt"
	"time"
)

// readLayout is permissive on read (accepts "2025-7-1").
const readLayout = "2006-1-2"

// Layout is the canonical ISO-8601 form used whenever a Date is written out.
const Layout = "2006-01-02"

// Date represents a date with day-level granularity: no time-of-day, no
// timezone. Two Dates are equal iff they name the same calendar day.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date, rolling over out-of-range months/days the
// way time.Date does (e.g. New(2024, 1, 32) is 2024-02-01).
func New(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	y, m, d := t.Date()
	return Date{y, m, d}
}

func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Today returns the current calendar date in UTC.
func Today() Date { return New(time.Now().UTC().Date()) }

// Before reports whether d names a day strictly before x.
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

// After reports whether d names a day strictly after x.
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date { return New(d.y, d.m, d.d+n) }

// DiffDays returns the number of days between d and x (positive if d is
// after x).
func (d Date) DiffDays(x Date) int {
	return int(d.time().Sub(x.time()).Hours() / 24)
}

// EpochDay returns the number of days since the Unix epoch, usable as a
// bucketing key for date-windowed spatial indexes.
func (d Date) EpochDay() int64 { return d.time().Unix() / 86400 }

// Year, Month and Day expose the calendar components.
func (d Date) Year() int         { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int          { return d.d }
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// String renders d in ISO-8601 form.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.time().Format(Layout)
}

// Parse parses a Date, accepting single-digit month/day components.
func Parse(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(readLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want %s): %w", s, readLayout, err)
	}
	return New(t.Date()), nil
}

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// StartOfMonth and EndOfMonth support the month/year convenience windows.
func (d Date) StartOfMonth() Date { return New(d.y, d.m, 1) }
func (d Date) EndOfMonth() Date   { return New(d.y, d.m+1, 0) }
func (d Date) StartOfYear() Date  { return New(d.y, time.January, 1) }
func (d Date) EndOfYear() Date    { return New(d.y, time.December, 31) }
