// Package system provides a real clock implementation.
package system

import "time"

// Clock provides wall-clock time for control numbers, feed cutoffs and
// tracking timestamps. Tests substitute a fixed clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
