// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"

	"github.com/bureau-foundation/sharedscene/transport"
)

// handleEvent drives the state machine from transport notifications.
func (c *Coordinator) handleEvent(event transport.Event) {
	switch event.Type {
	case transport.EventState:
		switch event.State {
		case transport.StateWaiting:
			c.enterWaiting()
		case transport.StateJoined:
			c.enterJoined()
		case transport.StateInvalidated:
			c.enterInvalidated(event.Err)
		}
	case transport.EventMembership:
		c.handleMembership(event.Members)
	}
}

func (c *Coordinator) enterWaiting() {
	if c.state == StateInvalidated {
		return
	}
	c.logger.Debug("session waiting")
	c.state = StateWaiting
	c.receivedState = false
	c.cancelResync()
}

// enterJoined applies what arrived early, requests state unless that
// already seeded us, and announces our capabilities to everyone. A
// participant joined with no other members founds the session.
func (c *Coordinator) enterJoined() {
	if c.state == StateInvalidated || c.state == StateJoined {
		return
	}
	c.state = StateJoined
	c.recomputeHost()
	c.logger.Info("session joined", "host", c.host, "members", len(c.members))

	c.replayEarly()
	switch {
	case c.seeded:
	case len(c.members) == 0:
		c.adoptLocalState("no other members")
	default:
		c.beginLateJoin()
	}
	if err := c.sendHandshake(); err != nil {
		c.logger.Warn("sending handshake failed", "error", err)
	}

	if !c.joinedClosed {
		c.joinedClosed = true
		close(c.joined)
	}
}

// enterInvalidated marks the session ended. Run performs the teardown
// once the current closure returns.
func (c *Coordinator) enterInvalidated(cause error) {
	if c.state == StateInvalidated {
		return
	}
	if cause != nil {
		c.logger.Warn("session invalidated", "error", cause)
	} else {
		c.logger.Info("session ended")
	}
	c.state = StateInvalidated
}

// teardown stops every timer and pump, waits for the pumps to exit,
// and only then clears session state.
func (c *Coordinator) teardown(stopPumps context.CancelFunc) {
	c.cancelResync()
	c.cancelFollowups()
	stopPumps()
	c.pumps.Wait()

	c.store.Clear()
	c.registry.Clear()
	c.limiter.clear()
	clear(c.members)
	clear(c.anchorDelivered)
	c.early = nil
	c.anchor = nil
	c.host = false
	c.receivedState = false
	c.handshakeSent = false
	c.seeded = false
	c.pending.clear()
}

// Leave ends participation in the session and tears the coordinator
// down. Run returns nil afterwards.
func (c *Coordinator) Leave(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.state == StateInvalidated {
			return nil
		}
		err := c.session.Leave()
		c.enterInvalidated(nil)
		return err
	})
}
