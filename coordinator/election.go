// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"slices"

	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/transport"
)

// handleMembership replaces the member set with the transport's full
// list, recomputes the host from scratch, and lets the host bring new
// members up to date.
func (c *Coordinator) handleMembership(members []transport.Member) {
	if c.state == StateInvalidated {
		return
	}

	previous := participant.NewSet(c.memberIDs()...)
	next := make(participant.Set, len(members))
	clear(c.members)
	for _, member := range members {
		if member.ID == c.local {
			continue
		}
		c.members[member.ID] = member
		next[member.ID] = struct{}{}
	}
	added, removed := previous.Diff(next)

	for _, id := range removed {
		c.registry.Forget(id)
		delete(c.anchorDelivered, id)
	}

	wasHost := c.host
	c.recomputeHost()
	if c.host != wasHost {
		c.logger.Info("host role changed", "host", c.host, "members", len(c.members))
	}
	if len(added) > 0 || len(removed) > 0 {
		c.logger.Debug("membership changed", "added", added, "removed", removed)
	}

	if c.state != StateJoined {
		return
	}
	c.settleEdits()
	if c.host {
		switch {
		case c.seeded:
		case len(c.members) == 0:
			c.adoptLocalState("every other member left")
		case !c.resyncActive:
			c.beginLateJoin()
		}
		if len(added) > 0 {
			c.welcome(added)
		}
		return
	}
	if len(added) > 0 {
		if err := c.sendHandshake(added...); err != nil {
			c.logger.Warn("sending handshake to new members failed", "error", err)
		}
	}
	// A participant that learns it is not host while it holds no
	// state runs the late-join protocol, even if it joined believing
	// it was alone.
	empty := !c.receivedState && c.store.Len() == 0
	if (!c.seeded || empty) && !c.resyncActive {
		c.beginLateJoin()
	}
}

// recomputeHost derives the role from the current member set. Never
// patched incrementally.
func (c *Coordinator) recomputeHost() {
	c.host = participant.IsHost(c.local, c.memberIDs())
}

func (c *Coordinator) memberIDs() []participant.ID {
	ids := make([]participant.ID, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Coordinator) sortedMembers() []transport.Member {
	members := make([]transport.Member, 0, len(c.members))
	for _, id := range c.memberIDs() {
		members = append(members, c.members[id])
	}
	return members
}
