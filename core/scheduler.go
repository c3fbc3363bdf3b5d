package core

import "time"

// TimerScheduler runs callbacks on their own goroutine via time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(after time.Duration, fn func()) func() bool {
	t := time.AfterFunc(after, fn)
	return t.Stop
}
