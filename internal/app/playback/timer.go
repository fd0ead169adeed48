package playback

import (
	"context"
	"time"
)

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func (c *Controller) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(c.ctx)

	// Use manual wall clock calculation to avoid monotonic clock drift issues
	fn := func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(c.config.TimerResolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}

	go fn()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
// This ensures that time differences are calculated using wall clock time,
// which keeps timers aligned with the engine after the host sleeps.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
