// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that protocol
// timers (late-join resync, repeat full sync to new joiners, transform
// rate limiting, signaling polls) run deterministically under test.
//
// Production code injects [Real]. Tests inject [Fake] and drive time
// explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	coordinator := coordinator.New(session, delegate, coordinator.Options{Clock: fake})
//	fake.WaitForTimers(1)              // the resync timer is armed
//	fake.Advance(1200 * time.Millisecond) // fire it
//
// [FakeClock.WaitForTimers] blocks until the code under test has
// registered the expected number of timers, which removes the race
// between a goroutine arming a timer and the test advancing past it.
package clock
