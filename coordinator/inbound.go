// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"errors"

	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/codec"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/transport"
)

// dispatch decodes one inbound datagram, applies it to the session
// state and forwards the effect to the delegate. Undecodable datagrams
// are logged and dropped; references to unknown instances are no-ops.
func (c *Coordinator) dispatch(channel transport.Channel, delivery transport.Delivery) {
	if delivery.From == c.local {
		return
	}
	switch c.state {
	case StateInvalidated:
		return
	case StateIdle, StateWaiting:
		c.holdEarly(channel, delivery)
		return
	}

	decoded, err := message.Decode(delivery.Data)
	if err != nil {
		c.logDecodeFailure(channel, delivery, err)
		return
	}

	switch m := decoded.(type) {
	case message.AddModel:
		c.stateReceived(false)
		c.pending.remoteAdd(m.InstanceID)
		if !c.store.ApplyAdd(m) {
			return
		}
		model, _ := c.store.Get(m.InstanceID)
		c.delegate.ApplyAdd(model)

	case message.RemoveModel:
		c.pending.remoteRemove(m.InstanceID)
		if c.store.ApplyRemove(m) {
			c.limiter.forget(m.InstanceID)
			c.delegate.ApplyRemove(m.InstanceID)
		}

	case message.ModelTransform:
		if c.store.ApplyTransform(m) {
			c.delegate.ApplyTransform(m.InstanceID, m.NewTransform)
		}

	case message.SelectModel:
		if _, exists := c.store.Get(m.EntityID); !exists {
			return
		}
		by := m.ParticipantID
		if by.IsZero() {
			by = delivery.From
		}
		c.delegate.ApplySelection(m.EntityID, by)

	case message.OwnershipChange:
		if c.store.ApplyOwnership(m) {
			c.delegate.ApplyOwnership(m.EntityID, m.NewOwner)
		}

	case message.SyncAllModels:
		c.applyFullSync(delivery.From, m)

	case message.RequestSync:
		c.answerSyncRequest(delivery.From)

	case message.Anchor:
		c.receiveAnchor(delivery.From, m)

	case message.ProtocolHandshake:
		c.receiveHandshake(delivery.From, m)
	}
}

type earlyDelivery struct {
	channel  transport.Channel
	delivery transport.Delivery
}

func (c *Coordinator) holdEarly(channel transport.Channel, delivery transport.Delivery) {
	if len(c.early) >= maxEarlyDeliveries {
		c.logger.Warn("dropping datagram received before join", "from", delivery.From, "channel", channel)
		return
	}
	c.early = append(c.early, earlyDelivery{channel: channel, delivery: delivery})
}

// replayEarly dispatches everything held before the join.
func (c *Coordinator) replayEarly() {
	early := c.early
	c.early = nil
	for _, held := range early {
		c.dispatch(held.channel, held.delivery)
	}
}

// stateReceived records inbound state. Any state satisfies a
// non-host's late join; a host's needs a full sync.
func (c *Coordinator) stateReceived(full bool) {
	c.receivedState = true
	if c.resyncActive && (full || !c.host) {
		c.cancelResync()
	}
}

// answerSyncRequest shares the seeded state. The host broadcasts it to
// everyone. A non-host answers only a requester that is host, which
// asks when it joined holding nothing.
func (c *Coordinator) answerSyncRequest(from participant.ID) {
	if !c.seeded {
		c.logger.Debug("ignoring sync request, no state to share", "from", from)
		return
	}
	if c.host {
		c.logger.Debug("answering sync request", "from", from)
		if err := c.sendFullSync(); err != nil {
			c.logger.Warn("answering sync request failed", "from", from, "error", err)
		}
		return
	}
	if participant.ElectHost(c.local, append(c.memberIDs(), from)) != from {
		return
	}
	c.logger.Info("sharing state with a host that has none", "host", from)
	if err := c.sendFullSync(from); err != nil {
		c.logger.Warn("answering host sync request failed", "host", from, "error", err)
	}
}

// receiveHandshake records the sender's capabilities before the
// delegate hears about them. A host re-shares anchor data with a peer
// that has just started advertising world-map support.
func (c *Coordinator) receiveHandshake(from participant.ID, handshake message.ProtocolHandshake) {
	if handshake.SenderID != from {
		c.logger.Debug("handshake sender differs from transport sender",
			"from", from,
			"sender_id", handshake.SenderID,
		)
	}
	capabilities := capability.FromHandshake(handshake)
	hadWorldMap := c.registry.Supports(from, capability.WorldMap)
	if c.registry.Record(from, capabilities) {
		c.logger.Debug("peer capabilities recorded",
			"from", from,
			"platform", capabilities.Platform,
			"protocol_version", capabilities.ProtocolVersion,
			"world_map", capabilities.SupportsWorldAnchor,
			"unreliable_transforms", capabilities.SupportsUnreliableTransforms,
		)
	}
	if capabilities.ProtocolVersion != c.options.Capabilities.ProtocolVersion {
		c.logger.Info("peer speaks a different protocol version",
			"from", from,
			"peer_version", capabilities.ProtocolVersion,
			"local_version", c.options.Capabilities.ProtocolVersion,
		)
	}
	c.delegate.PeerCapabilities(from, capabilities)

	if !c.host || hadWorldMap || !capabilities.SupportsWorldAnchor {
		return
	}
	if _, member := c.members[from]; !member {
		return
	}
	anchor, ok := c.currentAnchor()
	if !ok || len(anchor.AnchorData) == 0 {
		return
	}
	if err := c.shareAnchor(anchor, []participant.ID{from}); err != nil {
		c.logger.Warn("re-sharing anchor failed", "to", from, "error", err)
	}
}

func (c *Coordinator) logDecodeFailure(channel transport.Channel, delivery transport.Delivery, err error) {
	if errors.Is(err, message.ErrUnknownKind) {
		c.logger.Debug("dropping message of unknown kind",
			"from", delivery.From,
			"channel", channel,
			"error", err,
		)
		return
	}
	diagnostic, diagnoseErr := codec.Diagnose(delivery.Data)
	if diagnoseErr != nil {
		diagnostic = ""
	}
	c.logger.Warn("dropping undecodable message",
		"from", delivery.From,
		"channel", channel,
		"bytes", len(delivery.Data),
		"diagnostic", diagnostic,
		"error", err,
	)
}
