// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. It is safe for
// concurrent use.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a Clock that moves only when Advance is called.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order, with ties broken by registration order, and observe Now equal
// to their deadline. A callback must not call Advance.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	sequence uint64
	pending  []*fakeTimer
	changed  *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	sequence uint64

	// Exactly one of channel and callback is set.
	channel  chan time.Time
	callback func()

	// period is non-zero for tickers.
	period time.Duration
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&fakeTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &fakeTimer{deadline: c.now.Add(d), callback: f}
	c.addLocked(timer)
	c.mu.Unlock()

	return &Timer{stop: func() bool { return c.cancel(timer) }}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	channel := make(chan time.Time, 1)
	timer := &fakeTimer{deadline: c.now.Add(d), channel: channel, period: d}
	c.addLocked(timer)
	c.mu.Unlock()

	return &Ticker{C: channel, stop: func() { c.cancel(timer) }}
}

// Advance moves the clock forward by d, firing every timer whose
// deadline falls within the window. The clock steps to each deadline
// as that timer fires, so a callback that arms a timer still inside the
// window sees it fire in the same call and Now reports the deadline.
// Tickers fire once per elapsed period; ticks that find the channel
// full are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		timer, ok := c.popDue(target)
		if !ok {
			break
		}
		if timer.callback != nil {
			timer.callback()
			continue
		}
		select {
		case timer.channel <- timer.deadline:
		default:
		}
	}

	c.mu.Lock()
	if target.After(c.now) {
		c.now = target
	}
	c.mu.Unlock()
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers that have not fired or
// been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) addLocked(timer *fakeTimer) {
	c.sequence++
	timer.sequence = c.sequence
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) cancel(timer *fakeTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := slices.Index(c.pending, timer)
	if index < 0 {
		return false
	}
	c.pending = slices.Delete(c.pending, index, index+1)
	c.changed.Broadcast()
	return true
}

// popDue removes and returns the earliest timer due at or before
// target and moves the clock to its deadline. Tickers are rescheduled
// rather than removed.
func (c *FakeClock) popDue(target time.Time) (*fakeTimer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	earliest := -1
	for index, timer := range c.pending {
		if timer.deadline.After(target) {
			continue
		}
		if earliest < 0 || timer.deadline.Before(c.pending[earliest].deadline) ||
			(timer.deadline.Equal(c.pending[earliest].deadline) && timer.sequence < c.pending[earliest].sequence) {
			earliest = index
		}
	}
	if earliest < 0 {
		return nil, false
	}

	timer := c.pending[earliest]
	if timer.deadline.After(c.now) {
		c.now = timer.deadline
	}
	if timer.period > 0 {
		fired := *timer
		timer.deadline = timer.deadline.Add(timer.period)
		return &fired, true
	}
	c.pending = slices.Delete(c.pending, earliest, earliest+1)
	c.changed.Broadcast()
	return timer, true
}
