package inventory

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day (coverage math never needs finer granularity)
// =============================================================================

// Date is a calendar day in UTC. All coverage comparisons are day-inclusive.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

var (
	// MinDate stands in for a missing start when comparing periods.
	MinDate = NewDate(1, time.January, 1)
	// MaxDate stands in for an open end when comparing periods.
	MaxDate = NewDate(9999, time.December, 31)
)

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day (in t's own location).
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day according to clock.
func Today(clock Clock) Date {
	if clock == nil {
		clock = SystemClock{}
	}
	return DateOf(clock.Now())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{Time: t}, nil
}

// MustParseDate is for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DatePtr returns a pointer to a copy of d.
func DatePtr(d Date) *Date { return &d }

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.Time.AddDate(n, 0, 0)} }
func (d Date) Year() int            { return d.Time.Year() }
func (d Date) Month() time.Month    { return d.Time.Month() }
func (d Date) IsZero() bool         { return d.Time.IsZero() }
func (d Date) String() string       { return d.Time.Format(dateLayout) }

// DaysBetween returns whole days from -> to (negative when to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SameDate reports whether two optional dates hold the same value.
func SameDate(a, b *Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
