// Package clock provides the monotonic time source and cancellable
// one-shot/periodic callback scheduling the room engine depends on.
//
// The room actor schedules its timers and measures question time only
// through the Clock interface, never time.After, time.NewTimer, or
// time.Now, so that tests can substitute a virtual clock and drive
// timer-based state transitions deterministically. (The participant
// registry's LastSeen stamps use time.Now.)
package clock

import (
	"sync"
	"time"
)

// Cancel stops a scheduled callback. It is idempotent and safe to call
// from multiple goroutines; calling it after the callback has already run
// is a no-op. It guarantees the callback will not run after Cancel returns
// true, but makes no guarantee if the callback had already started.
type Cancel func() (stopped bool)

// Clock is the scheduling contract the room actor depends on.
type Clock interface {
	// Now returns the current time. Backed by a monotonic source in
	// production; a virtual clock in tests.
	Now() time.Time

	// After schedules f to run once after d elapses, returning a handle
	// that cancels the callback if it hasn't fired yet.
	After(d time.Duration, f func()) Cancel

	// Every schedules f to run every d until cancelled. The first call
	// happens after one interval, not immediately.
	Every(d time.Duration, f func()) Cancel
}

// Real is a Clock backed by the standard library's wall/monotonic clock.
type Real struct{}

// NewReal returns the production Clock.
func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration, f func()) Cancel {
	t := time.AfterFunc(d, f)
	return func() (stopped bool) {
		return t.Stop()
	}
}

func (Real) Every(d time.Duration, f func()) Cancel {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				f()
			case <-done:
				return
			}
		}
	}()

	return func() (stopped bool) {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
		return true
	}
}
