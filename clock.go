package sia

import "time"

// Clock tells the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock, with Go's monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
