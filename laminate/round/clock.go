package round

import "time"

// Clock supplies the two timestamps stamped into every round header.
type Clock interface {
	// Now is the wall clock.
	Now() time.Time
	// Elapsed is a monotonic reading, only meaningful within one process.
	Elapsed() time.Duration
}

var processStart = time.Now()

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Elapsed() time.Duration { return time.Since(processStart) }

// SystemClock is the default Clock.
var SystemClock Clock = systemClock{}

// FixedClock always reports the same instant. Useful for reproducible output.
type FixedClock struct {
	At     time.Time
	Offset time.Duration
}

func (c FixedClock) Now() time.Time { return c.At }

func (c FixedClock) Elapsed() time.Duration { return c.Offset }
