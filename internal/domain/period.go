package domain

import (
	"errors"
	"time"
)

// DateLayout is the calendar-date wire format used by files and flags.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Period is an inclusive calendar-date range.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalises both bounds to calendar dates and rejects inverted ranges.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: Day(start), End: Day(end)}
	if p.End.Before(p.Start) {
		return Period{}, errors.New("period end precedes start")
	}
	return p, nil
}

// TrailingPeriod covers the given number of days ending on (and including) the day of now.
func TrailingPeriod(now time.Time, days int) Period {
	end := Day(now)
	if days < 1 {
		days = 1
	}
	return Period{Start: end.AddDate(0, 0, -(days - 1)), End: end}
}

// Contains reports whether the calendar date of t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}
