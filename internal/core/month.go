package core

import (
	"fmt"
	"time"
)

// Month identifies one calendar month for budgeting, canonically written as
// the first-of-month date YYYY-MM-01. The zero value is not a valid month.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses the canonical YYYY-MM-01 form. Any other day of month is
// rejected; callers normalize with MonthOf before reaching this boundary.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Month{}, ErrInvalidMonth
	}
	if t.Day() != 1 {
		return Month{}, ErrInvalidMonth
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf truncates an instant to its UTC calendar month.
func MonthOf(t time.Time) Month {
	u := t.UTC()
	return Month{Year: u.Year(), Month: u.Month()}
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Start returns the first instant of the month in UTC.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the exclusive upper bound: the first instant of the next month.
func (m Month) End() time.Time {
	return m.Next().Start()
}

func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Days returns the number of calendar days in the month.
func (m Month) Days() int {
	return int(m.End().Sub(m.Start()).Hours() / 24)
}

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// Contains reports whether t falls within [Start, End) in UTC.
func (m Month) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(m.Start()) && u.Before(m.End())
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d-01", m.Year, int(m.Month))
}
