// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock whose wall time starts at wall and whose
// boot time starts at sinceBoot. Time stands still until Advance is
// called. Tickers register pending waiters that fire when the clock
// advances past their deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(wall time.Time, sinceBoot time.Duration) *FakeClock {
	clock := &FakeClock{
		wall:      wall,
		sinceBoot: sinceBoot,
	}
	clock.tickersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for testing.
type FakeClock struct {
	mu             sync.Mutex
	wall           time.Time
	sinceBoot      time.Duration
	tickers        []*fakeTicker
	tickersChanged *sync.Cond
}

// fakeTicker is a pending ticker. Deadlines are measured on the boot
// clock so they are unaffected by wall-time origin.
type fakeTicker struct {
	deadline time.Duration
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

// Now returns the current fake wall time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

// BootTime returns the current fake time since boot.
func (c *FakeClock) BootTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinceBoot
}

// NewTicker returns a Ticker that delivers a tick each time Advance
// crosses a multiple of d. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	ticker := &fakeTicker{
		deadline: c.sinceBoot + d,
		interval: d,
		channel:  channel,
	}
	c.tickers = append(c.tickers, ticker)
	c.tickersChanged.Broadcast()

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.stopped = true
		},
	}
}

// Advance moves both clocks forward by d and fires every ticker whose
// deadline falls within the new time, in deadline order. A ticker
// whose deadline is crossed more than once fires once per interval;
// ticks that overflow the channel buffer are dropped, matching
// time.Ticker. Panics if d is negative: neither clock may run
// backwards.
func (c *FakeClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: negative Advance")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = c.wall.Add(d)
	c.sinceBoot += d

	for {
		var due []*fakeTicker
		for _, ticker := range c.tickers {
			if !ticker.stopped && ticker.deadline <= c.sinceBoot {
				due = append(due, ticker)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline < due[j].deadline
		})
		for _, ticker := range due {
			select {
			case ticker.channel <- c.wall:
			default:
			}
			ticker.deadline += ticker.interval
		}
	}

	live := c.tickers[:0]
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			live = append(live, ticker)
		}
	}
	c.tickers = live
}

// WaitForTickers blocks until at least n tickers are active. This
// closes the race between a goroutine creating its ticker and the
// test advancing the clock.
//
//	go periodicWork(ctx, fakeClock)
//	fakeClock.WaitForTickers(1)
//	fakeClock.Advance(period)
func (c *FakeClock) WaitForTickers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeTickersLocked() < n {
		c.tickersChanged.Wait()
	}
}

// activeTickersLocked counts tickers that have not been stopped. Must
// be called with c.mu held.
func (c *FakeClock) activeTickersLocked() int {
	count := 0
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			count++
		}
	}
	return count
}
