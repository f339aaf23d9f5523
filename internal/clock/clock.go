// Package clock abstracts wall time and timers so that timer-driven
// behaviour (keepalive, reconnect, periodic refresh, render ticks) can be
// driven deterministically in tests.
package clock

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// Scheduler provides the current time and one-shot callbacks.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Wall is the production Scheduler backed by the runtime timer heap.
// Callbacks run on their own goroutine.
type Wall struct{}

// Now returns the current wall time.
func (Wall) Now() time.Time {
	return time.Now()
}

// AfterFunc calls f in its own goroutine after d.
func (Wall) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
