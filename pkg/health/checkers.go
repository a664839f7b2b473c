package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags a goroutine leak: the probe fails once the live
// goroutine count climbs above max.
func GoroutineCountCheck(max int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, max)
		}
		return nil
	}
}

// GCMaxPauseCheck flags memory pressure: the probe fails when any recorded
// stop-the-world GC pause exceeded max.
func GCMaxPauseCheck(max time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > max {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, max)
			}
		}
		return nil
	}
}
