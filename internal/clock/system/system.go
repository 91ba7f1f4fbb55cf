// Package system provides wall-clock and frozen crawler.Clock implementations.
package system

import (
	"sync"
	"time"
)

// Clock reads the wall clock in UTC.
type Clock struct{}

// New creates a wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Frozen always reports the same instant until advanced.
type Frozen struct {
	mu sync.Mutex
	at time.Time
}

// NewFrozen pins the clock at t (converted to UTC).
func NewFrozen(t time.Time) *Frozen {
	return &Frozen{at: t.UTC()}
}

// Now returns the pinned instant.
func (f *Frozen) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at
}

// Advance moves the pinned instant forward by d.
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	f.at = f.at.Add(d)
	f.mu.Unlock()
}
