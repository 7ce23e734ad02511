// Package calendar maps instants to civil days in the group's fixed timezone.
package calendar

import (
	"fmt"
	"time"
)

// Calendar answers "what day is it" for one timezone. Days are returned as
// 00:00 UTC of the civil date so they compare and store without zone drift.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New builds a calendar for the named IANA zone.
func New(zone string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewWithClock is New with an injectable clock.
func NewWithClock(loc *time.Location, now func() time.Time) *Calendar {
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}
}

// Location returns the operating timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Now returns the current instant.
func (c *Calendar) Now() time.Time { return c.now() }

// LocalNow returns the current instant in the operating timezone.
func (c *Calendar) LocalNow() time.Time { return c.now().In(c.loc) }

// DateOf truncates t to its civil day in the operating timezone.
func (c *Calendar) DateOf(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is DateOf(Now()).
func (c *Calendar) Today() time.Time { return c.DateOf(c.now()) }

// Yesterday is the day before Today.
func (c *Calendar) Yesterday() time.Time { return AddDays(c.Today(), -1) }

// Tomorrow is the day after Today.
func (c *Calendar) Tomorrow() time.Time { return AddDays(c.Today(), 1) }

// IsPast reports whether day is strictly before today.
func (c *Calendar) IsPast(day time.Time) bool {
	return Normalize(day).Before(c.Today())
}

// IsToday reports whether day is today.
func (c *Calendar) IsToday(day time.Time) bool {
	return Normalize(day).Equal(c.Today())
}

// AddDays shifts a civil day.
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// Normalize drops the time-of-day of an already civil date (as returned by a DATE
// column or ParseDate) without converting zones.
func Normalize(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
