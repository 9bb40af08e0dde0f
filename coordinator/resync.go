// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/transport"
)

// beginLateJoin sends the first RequestSync and schedules the resends.
func (c *Coordinator) beginLateJoin() {
	c.cancelResync()
	c.resyncActive = true
	if err := c.sendRequestSync(); err != nil {
		c.logger.Warn("sending sync request failed", "error", err)
	}
	c.scheduleResync(0)
}

// scheduleResync arms the timer for the step-th resend. The chain ends
// after the last configured delay; a host still unseeded then adopts
// whatever it holds.
func (c *Coordinator) scheduleResync(step int) {
	if step >= len(c.options.ResyncDelays) {
		c.resyncActive = false
		c.resyncTimer = nil
		if c.host && !c.seeded {
			c.adoptLocalState("no member answered")
		}
		return
	}
	generation := c.resyncGeneration
	c.resyncTimer = c.clock.AfterFunc(c.options.ResyncDelays[step], func() {
		c.post(func() { c.resyncFired(generation, step) })
	})
}

func (c *Coordinator) resyncFired(generation uint64, step int) {
	if generation != c.resyncGeneration || c.state != StateJoined {
		return
	}
	if c.lateJoinSatisfied() {
		c.cancelResync()
		return
	}
	c.logger.Info("no state received, repeating sync request", "attempt", step+2)
	if err := c.sendRequestSync(); err != nil {
		c.logger.Warn("sending sync request failed", "error", err)
	}
	c.scheduleResync(step + 1)
}

// cancelResync stops the chain. Fires already queued in the inbox are
// discarded by the generation check.
func (c *Coordinator) cancelResync() {
	c.resyncGeneration++
	if c.resyncTimer != nil {
		c.resyncTimer.Stop()
		c.resyncTimer = nil
	}
	c.resyncActive = false
}

// lateJoinSatisfied reports whether the chain can stop. A host only
// stops for a full sync.
func (c *Coordinator) lateJoinSatisfied() bool {
	if c.host {
		return c.seeded
	}
	return c.receivedState
}

// adoptLocalState seeds this participant from what it already holds.
// A host that had members waiting shares the result with them.
func (c *Coordinator) adoptLocalState(reason string) {
	c.seeded = true
	c.cancelResync()
	c.settleEdits()
	if len(c.members) == 0 {
		c.logger.Debug("adopting local state", "reason", reason)
		return
	}
	c.logger.Warn("adopting local state", "reason", reason, "members", len(c.members))
	if c.host {
		if err := c.sendFullSync(); err != nil {
			c.logger.Warn("sharing adopted state failed", "error", err)
		}
	}
}

// shareSeededState brings the members other than the one that seeded
// this host up to date, since they went without a welcome.
func (c *Coordinator) shareSeededState(from participant.ID) {
	var others []participant.ID
	for _, id := range c.memberIDs() {
		if id != from {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return
	}
	if err := c.sendFullSync(others...); err != nil {
		c.logger.Warn("sharing seeded state failed", "error", err)
	}
}

func (c *Coordinator) sendRequestSync() error {
	return c.send(transport.Reliable, message.RequestSync{ParticipantID: c.local})
}
