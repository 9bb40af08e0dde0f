// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// welcome brings new members up to date: the anchor first, so the
// models that follow can be placed, then the full state and our
// handshake. The full sync is repeated once after JoinerRepeatDelay in
// case the joiner processed the models before the anchor arrived. An
// unseeded host only introduces itself; its own sync request is what
// brings it state, which it then shares.
func (c *Coordinator) welcome(added []participant.ID) {
	if !c.seeded {
		c.logger.Info("new members while holding no state", "members", added)
		if err := c.sendHandshake(added...); err != nil {
			c.logger.Warn("sending handshake to new members failed", "error", err)
		}
		return
	}
	c.logger.Info("welcoming new members", "members", added)

	if anchor, ok := c.currentAnchor(); ok {
		if err := c.shareAnchor(anchor, added); err != nil {
			c.logger.Warn("sharing anchor with new members failed", "error", err)
		}
	}
	if err := c.sendFullSync(added...); err != nil {
		c.logger.Warn("sending full sync to new members failed", "error", err)
	}
	if err := c.sendHandshake(added...); err != nil {
		c.logger.Warn("sending handshake to new members failed", "error", err)
	}

	if c.options.JoinerRepeatDelay > 0 {
		c.scheduleFollowup(added)
	}
}

// scheduleFollowup arms the one repeat of the joiner full sync.
func (c *Coordinator) scheduleFollowup(added []participant.ID) {
	recipients := append([]participant.ID(nil), added...)
	var timer *clock.Timer
	timer = c.clock.AfterFunc(c.options.JoinerRepeatDelay, func() {
		c.post(func() { c.followupFired(timer, recipients) })
	})
	c.followups[timer] = struct{}{}
}

func (c *Coordinator) followupFired(timer *clock.Timer, recipients []participant.ID) {
	if _, pending := c.followups[timer]; !pending {
		return
	}
	delete(c.followups, timer)
	if c.state != StateJoined || !c.host || !c.seeded {
		return
	}

	// Only members still present; a joiner that left in the meantime
	// would make the targeted send fail.
	present := recipients[:0]
	for _, id := range recipients {
		if _, member := c.members[id]; member {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return
	}
	c.logger.Debug("repeating full sync to new members", "members", present)
	if err := c.sendFullSync(present...); err != nil {
		c.logger.Warn("repeating full sync failed", "error", err)
	}
}

// cancelFollowups stops every pending repeat. Fires already queued are
// discarded because their timers are no longer in the set.
func (c *Coordinator) cancelFollowups() {
	for timer := range c.followups {
		timer.Stop()
	}
	clear(c.followups)
}
