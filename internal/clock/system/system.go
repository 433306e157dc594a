// Package system provides the wall clock used outside of tests.
package system

import (
	"time"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
)

// Clock implements checker.Clock using time.Now.
type Clock struct{}

var _ checker.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
