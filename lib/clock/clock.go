// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Production code takes a Clock instead of calling time.Now, time.After,
// time.NewTicker, or time.Sleep directly: components hold a Clock field,
// wired to Real() in mains and to a Fake in tests. The fake advances
// only when told to, which makes freshness windows, heartbeat intervals,
// and backoff sleeps deterministic to test.
//
// Goroutines under test register their timers asynchronously; call
// [FakeClock.WaitForTimers] before [FakeClock.Advance] to avoid racing
// the registration:
//
//	fake := clock.Fake(start)
//	go agent.Run(ctx) // sleeps on the fake clock
//	fake.WaitForTimers(1)
//	fake.Advance(time.Minute)
package clock

import "time"

// Clock abstracts the time operations foreman uses. Real() is backed by
// the time package; Fake() stands still until advanced.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Call Stop to release it; Stop
// does not close C.
type Ticker struct {
	// C delivers ticks. Buffered with capacity 1; ticks are dropped,
	// not queued, when the consumer falls behind.
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No tick is delivered after Stop returns.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (systemClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }
