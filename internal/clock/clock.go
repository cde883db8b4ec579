// Package clock abstracts the time operations used for reconnect scheduling
// so tests can drive them deterministically.
package clock

import "time"

// Clock is the subset of the time package the hub depends on. Production
// code uses Real(); tests use NewFake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f in its own goroutine (real) or
	// synchronously from Advance (fake). The returned Timer cancels the
	// pending call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled call.
type Timer interface {
	// Stop prevents the call from running. It returns false if the call
	// already ran or was already stopped.
	Stop() bool
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
