// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Time moves only
// through Advance. Safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests. After, NewTicker, and
// Sleep register waiters; Advance moves time forward and fires every
// waiter whose deadline has been reached, in deadline order.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	waiters    []*waiter
	registered *sync.Cond
}

// waiter is one pending After, Sleep, or Ticker registration.
type waiter struct {
	deadline time.Time
	ch       chan time.Time

	// period is non-zero for tickers; the waiter is rescheduled at
	// deadline+period each time it fires.
	period time.Duration

	// stopped marks a ticker turned off with Stop. Stopped waiters
	// never fire and are dropped on the next Advance.
	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot waiter due at now+d. If d <= 0 the
// returned channel already holds the current time.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &waiter{deadline: c.now.Add(d), ch: ch})
	c.registered.Broadcast()
	return ch
}

// NewTicker registers a repeating waiter with the given period.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{deadline: c.now.Add(d), ch: ch, period: d}
	c.waiters = append(c.waiters, w)
	c.registered.Broadcast()

	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks until the clock is advanced past now+d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires all due waiters in
// deadline order. Tickers that span several periods fire once per
// period; ticks that overflow the 1-slot channel buffer are dropped,
// matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, w := range due {
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

// takeDue removes due waiters from the pending list, reschedules
// tickers for their next period, and returns what should fire.
func (c *FakeClock) takeDue(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*waiter
	for _, w := range c.waiters {
		switch {
		case w.stopped:
			// Dropped.
		case !w.deadline.After(target):
			due = append(due, w)
		default:
			keep = append(keep, w)
		}
	}
	for _, w := range due {
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
			keep = append(keep, w)
		}
	}
	c.waiters = keep
	return due
}

// WaitForTimers blocks until at least n waiters are registered and not
// stopped. Call this before Advance when the registration happens in
// another goroutine.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of registered, unstopped waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	active := 0
	for _, w := range c.waiters {
		if !w.stopped {
			active++
		}
	}
	return active
}
