package timeutil

import "time"

// SystemClock is the production clock; every reading is UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
