package trigger

import "time"

// Clock abstracts wall-clock access so evaluators (and the poll loop above
// them) can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns the host real-time clock.
func SystemClock() Clock { return realClock{} }
