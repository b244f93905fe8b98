// Package clock abstracts time for the door controller so that every timer
// can be driven deterministically in tests.
package clock

import "time"

// minSyncedYear is the first year treated as a synchronized wall clock.
// Devices boot at the epoch until network time arrives.
const minSyncedYear = 2020

// Clock is the time source used by the controller, click gate and relays.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a single-shot timer returned by Clock.AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// WallClockHour returns the local hour of day, or ok=false while the wall
// clock has not been synchronized.
func WallClockHour(c Clock) (hour int, ok bool) {
	now := c.Now()
	if now.Year() < minSyncedYear {
		return 0, false
	}
	return now.Hour(), true
}

// Real is the system clock.
type Real struct{}

var _ Clock = Real{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
