package reachability

import "time"

// Clock supplies the ledger's timestamps. Implementations must be
// non-decreasing within a process lifetime.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now. The returned values carry Go's monotonic
// clock reading, so Sub between them is unaffected by wall clock changes.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }
