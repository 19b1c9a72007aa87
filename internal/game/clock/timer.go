// Package clock provides the shared timing primitives that drive countdowns,
// matchmaking timeouts, and periodic race broadcasts.
package clock

import (
	"sync"
	"time"
)

// GameTimer fires a callback after a configurable duration unless stopped.
// It is safe for concurrent use.
type GameTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewGameTimer creates and starts a timer that calls onFire after duration.
// onFire is called in a separate goroutine.
//
// Precondition: duration > 0; onFire must not be nil.
// Postcondition: Returns a running GameTimer; onFire will be called unless Stop is called first.
func NewGameTimer(duration time.Duration, onFire func()) *GameTimer {
	gt := &GameTimer{}
	gt.timer = time.AfterFunc(duration, func() {
		gt.mu.Lock()
		stopped := gt.stopped
		gt.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return gt
}

// Reset cancels the current timer and starts a new one with the provided duration and callback.
//
// Precondition: duration > 0; onFire must not be nil.
// Postcondition: onFire will be called after duration from now unless Stop is called first.
func (gt *GameTimer) Reset(duration time.Duration, onFire func()) {
	gt.mu.Lock()
	gt.stopped = false
	gt.timer.Stop()
	gt.mu.Unlock()

	newTimer := time.AfterFunc(duration, func() {
		gt.mu.Lock()
		s := gt.stopped
		gt.mu.Unlock()
		if !s {
			onFire()
		}
	})

	gt.mu.Lock()
	gt.timer = newTimer
	gt.mu.Unlock()
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onFire will not be called after Stop returns.
func (gt *GameTimer) Stop() {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	gt.stopped = true
	gt.timer.Stop()
}
