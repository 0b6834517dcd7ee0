// Package timeutil provides the clock used to decide calendar days.
// Every "today" in the service is computed in one configured location.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "Asia/Almaty"

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Used as a fallback when the tz database is not available in the image.
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// LoadLocation resolves a timezone name, falling back to AlmatyTZ for the default name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTimezone {
			return AlmatyTZ, nil
		}
		return nil, fmt.Errorf("timeutil: unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Clock supplies the current instant and the location calendar days are taken in.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// SystemClock reads the wall clock.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a clock for loc (UTC if nil).
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's location.
func (c SystemClock) Location() *time.Location {
	return c.loc
}

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

// NewFixedClock returns a clock frozen at now.
func NewFixedClock(now time.Time, loc *time.Location) *FixedClock {
	if loc == nil {
		loc = time.UTC
	}
	return &FixedClock{now: now, loc: loc}
}

// Now returns the frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.In(c.loc)
}

// Location returns the clock's location.
func (c *FixedClock) Location() *time.Location {
	return c.loc
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StartOfDay returns 00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns Monday 00:00 of t's week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)), loc)
}
