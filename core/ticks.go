package core

import "time"

// processStart carries a monotonic clock reading, so GetTicks is immune to
// wall-clock adjustments.
var processStart = time.Now()

// GetTicks returns the number of milliseconds elapsed since the process
// started. The counter never decreases and has no side effects.
func GetTicks() uint64 {
	return uint64(time.Since(processStart).Milliseconds())
}

// TicksSince returns the milliseconds elapsed since an earlier GetTicks reading.
func TicksSince(start uint64) uint64 {
	now := GetTicks()
	if now < start {
		return 0
	}
	return now - start
}
