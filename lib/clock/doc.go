// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for probes.
//
// Probes stamp every record they forward with the time it was
// acquired, measured on the boot-time clock: a monotonic clock that
// keeps counting across suspend and matches the timestamps other trace
// sources on the machine use. Production code takes a Clock field and
// is given Real(); tests give it Fake() and move time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10*time.Second)
//	source := statsd.New(statsd.Options{Clock: c, ...})
//	c.Advance(time.Millisecond)
//
// Periodic work such as trace file flushing takes its ticks from
// Clock.NewTicker, so a test drives it with Advance and uses
// WaitForTickers to know the ticker exists before advancing.
//
// Nothing in the probes calls time.Now, time.NewTicker, or
// clock_gettime directly.
package clock
