// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time sources a probe reads.
//
// Every production function that calls time.Now or time.NewTicker
// should accept a Clock (or be a method on a struct with a Clock
// field) instead of calling the time package directly.
type Clock interface {
	// Now returns the current wall-clock time. Used for log fields and
	// file headers, never for record timestamps.
	Now() time.Time

	// BootTime returns the time elapsed since boot on a monotonic
	// clock that includes time spent suspended (CLOCK_BOOTTIME on
	// Linux).
	BootTime() time.Duration

	// NewTicker returns a Ticker that delivers ticks on its C channel
	// at the specified interval. Panics if d <= 0. Equivalent to
	// time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C. Call Stop when the
// Ticker is no longer needed to release resources.
//
// The C channel has capacity 1, matching time.Ticker. If the consumer
// falls behind, ticks are dropped rather than queued.
type Ticker struct {
	// C delivers ticks. Buffered with capacity 1.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. No more ticks will be sent on C after
// Stop returns. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// BootTimeNanos returns c.BootTime() as unsigned nanoseconds, the unit
// trace packets carry.
func BootTimeNanos(c Clock) uint64 {
	return uint64(c.BootTime().Nanoseconds())
}
