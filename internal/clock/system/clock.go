// Package system provides clocks for stamping runs.
package system

import "time"

// StampLayout formats run timestamps in filenames and object keys.
const StampLayout = "20060102T150405Z"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. Useful for reproducible runs.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant in UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}

// Stamp renders t with StampLayout.
func Stamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}
