package contract

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day (due dates, payment dates, posting dates)
// =============================================================================

// Date is a calendar day in the operator's local calendar.
// The time-of-day part is always zero and the location is UTC so that two
// Dates built from the same day compare Equal.
type Date struct {
	Time time.Time
}

const (
	// ISODate is the storage layout (sortable).
	ISODate = "2006-01-02"
	// DisplayDate is the day-month-year layout operators read and type.
	DisplayDate = "02/01/2006"
)

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts both ISO (2006-01-02) and display (02/01/2006) layouts.
func ParseDate(s string) (Date, error) {
	for _, layout := range []string{ISODate, DisplayDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or DD/MM/YYYY)", s)
}

func (d Date) IsZero() bool       { return d.Time.IsZero() }
func (d Date) String() string     { return d.Time.Format(ISODate) }
func (d Date) Display() string    { return d.Time.Format(DisplayDate) }
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

// AddMonths keeps the day of month, clamping to the last day of shorter
// months (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Time.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

// Ptr returns a pointer to a copy of d.
func (d Date) Ptr() *Date { return &d }

// =============================================================================
// CLOCK - today's date provider
// =============================================================================

// Clock supplies the current time. Tests use FixedClock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Today returns the calendar day of clock's current time.
func Today(clock Clock) Date {
	return DateOf(clock.Now())
}
