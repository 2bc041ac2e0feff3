package engine

import "time"

// Clock supplies activity timestamps.
//
// Timestamps are informational only; nothing orders or deduplicates by them.
// Tests inject a deterministic implementation so activity traces are stable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
