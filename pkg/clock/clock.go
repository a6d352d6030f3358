// Package clock provides the wall clock used outside of tests
package clock

import "time"

// SystemClock reads time from the standard library. Now is always UTC so published
// timestamps compare equal across hosts.
type SystemClock struct{}

// After returns a channel that sends the current time after d
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
