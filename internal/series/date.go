package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date without time-of-day or timezone.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate normalises y/m/d (overflowing days roll over like time.Date).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf takes the calendar fields of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"2006年01月02日",
	"2006年1月2日",
}

// ParseDate accepts the date spellings the upstream providers use.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognised date %q", raw)
}

// DateFromEpoch interprets n as unix seconds, or milliseconds when it is too large to be seconds.
func DateFromEpoch(n int64) Date {
	if n > 1e11 || n < -1e11 {
		return DateOf(time.UnixMilli(n).UTC())
	}
	return DateOf(time.Unix(n, 0).UTC())
}

// ParseDateOrEpoch also accepts an all-digit epoch value.
func ParseDateOrEpoch(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if len(s) > 8 {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return DateFromEpoch(n), nil
		}
	}
	return ParseDate(s)
}

func (d Date) Year() int { return d.year }

func (d Date) Month() time.Month { return d.month }

func (d Date) Day() int { return d.day }

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// AddDays moves d by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	return d.Time().Compare(o.Time())
}

// IsBusinessDay reports whether d is Monday through Friday. Holidays are not considered.
func (d Date) IsBusinessDay() bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}
