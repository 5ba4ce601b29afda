package domain

import "time"

// Clock abstracts the time source so deadline checks and default resolution
// times are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the ambient system clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
