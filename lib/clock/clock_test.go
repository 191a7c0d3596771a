// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start, 10*time.Second)

	if got := BootTimeNanos(c); got != uint64(10*time.Second) {
		t.Fatalf("BootTimeNanos = %d, want %d", got, uint64(10*time.Second))
	}

	c.Advance(1500 * time.Millisecond)

	if got := c.Now(); !got.Equal(start.Add(1500 * time.Millisecond)) {
		t.Errorf("Now = %v, want %v", got, start.Add(1500*time.Millisecond))
	}
	if got := c.BootTime(); got != 11500*time.Millisecond {
		t.Errorf("BootTime = %v, want 11.5s", got)
	}
}

func TestFakeAdvanceNegativePanics(t *testing.T) {
	t.Parallel()
	c := Fake(time.Time{}, 0)
	defer func() {
		if recover() == nil {
			t.Error("Advance(-1) did not panic")
		}
	}()
	c.Advance(-1)
}

func TestRealBootTimeMonotonic(t *testing.T) {
	t.Parallel()
	c := Real()

	first := c.BootTime()
	second := c.BootTime()
	if first <= 0 {
		t.Fatalf("BootTime = %v, want positive", first)
	}
	if second < first {
		t.Errorf("BootTime went backwards: %v then %v", first, second)
	}
}

func TestFakeTickerFiresOncePerInterval(t *testing.T) {
	t.Parallel()
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	ticker := c.NewTicker(10 * time.Second)
	defer ticker.Stop()

	c.Advance(9 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired before its interval elapsed")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire at its interval")
	}

	// Three intervals at once: the channel holds one tick, the rest
	// are dropped.
	c.Advance(30 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after a multi-interval Advance")
	}
	select {
	case <-ticker.C:
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	t.Parallel()
	c := Fake(time.Time{}, 0)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Error("stopped ticker fired")
	default:
	}
}

func TestFakeWaitForTickers(t *testing.T) {
	t.Parallel()
	c := Fake(time.Time{}, 0)

	created := make(chan *Ticker)
	go func() { created <- c.NewTicker(time.Second) }()

	c.WaitForTickers(1)
	c.Advance(time.Second)
	ticker := <-created
	select {
	case <-ticker.C:
	default:
		t.Error("ticker registered before WaitForTickers returned did not fire")
	}
}

func TestFakeNewTickerNonPositivePanics(t *testing.T) {
	t.Parallel()
	c := Fake(time.Time{}, 0)
	defer func() {
		if recover() == nil {
			t.Error("NewTicker(0) did not panic")
		}
	}()
	c.NewTicker(0)
}

func TestRealTickerTicks(t *testing.T) {
	t.Parallel()
	ticker := Real().NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("real ticker did not tick")
	}
}
