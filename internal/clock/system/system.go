// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/vinematch/vinematch/internal/wescrape"
)

var _ wescrape.Clock = Clock{}

// Clock reports the current time in UTC, so output directories and
// persisted timestamps never depend on the host timezone.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
