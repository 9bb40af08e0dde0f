// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/message"
)

// transformLimiter caps live transform sends per instance. Each
// instance gets its own single-token bucket so one busy model never
// starves another. Reservations are made against the injected clock.
type transformLimiter struct {
	limit    rate.Limit
	clock    clock.Clock
	limiters map[message.InstanceID]*rate.Limiter
}

// newTransformLimiter returns a limiter allowing hz sends per second
// per instance. A negative hz allows everything.
func newTransformLimiter(hz float64, clk clock.Clock) *transformLimiter {
	limit := rate.Limit(hz)
	if hz < 0 {
		limit = rate.Inf
	}
	return &transformLimiter{
		limit:    limit,
		clock:    clk,
		limiters: make(map[message.InstanceID]*rate.Limiter),
	}
}

// allow reports whether a transform for id may be sent now.
func (l *transformLimiter) allow(id message.InstanceID) bool {
	if l.limit == rate.Inf {
		return true
	}
	limiter, ok := l.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(l.limit, 1)
		l.limiters[id] = limiter
	}
	return limiter.AllowN(l.clock.Now(), 1)
}

// forget resets the bucket for id, so the next live update after a
// final send or removal goes out immediately.
func (l *transformLimiter) forget(id message.InstanceID) {
	delete(l.limiters, id)
}

func (l *transformLimiter) clear() {
	clear(l.limiters)
}
