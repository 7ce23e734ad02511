// Package storetest builds an entity store on a throwaway SQLite file for tests.
package storetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bookworms/internal/calendar"
	"bookworms/internal/repository/sqlite"
	"bookworms/internal/store"
)

// Clock is a settable test clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts the clock at now.
func NewClock(now time.Time) *Clock { return &Clock{now: now} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// AddDays moves the clock by n days.
func (c *Clock) AddDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

// Day returns the civil date d days from the clock's current day (UTC calendar).
func (c *Clock) Day(d int) time.Time {
	return calendar.AddDays(calendar.Normalize(c.Now()), d)
}

// Open returns a store backed by a fresh SQLite database in t.TempDir.
// The calendar runs in UTC on the given clock.
func Open(t testing.TB, clock *Clock) *store.EntityStore {
	t.Helper()
	b, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "bookworms.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(b.Close)
	return store.New(b, calendar.NewWithClock(time.UTC, clock.Now))
}
