// Package system provides the wall clock used to stamp stored documents.
package system

import (
	"time"

	"github.com/JakeFAU/search-indexer/internal/indexer"
)

var _ indexer.Clock = Clock{}

// Clock implements indexer.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
