// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/transport"
)

// send encodes m and hands it to the transport. A failed send is
// logged and abandoned; the error is returned for the caller to
// report, never retried.
func (c *Coordinator) send(channel transport.Channel, m message.Message, recipients ...participant.ID) error {
	data, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.Kind(), err)
	}
	if err := c.session.Send(channel, data, recipients...); err != nil {
		c.logger.Warn("send abandoned",
			"kind", m.Kind(),
			"channel", channel,
			"error", err,
		)
		return fmt.Errorf("sending %s: %w", m.Kind(), err)
	}
	return nil
}

// requireJoined gates local operations on the session state.
func (c *Coordinator) requireJoined() error {
	switch c.state {
	case StateJoined:
		return nil
	case StateInvalidated:
		return ErrInvalidated
	default:
		return ErrNotJoined
	}
}

func (c *Coordinator) requireInstance(id message.InstanceID) error {
	if _, exists := c.store.Get(id); !exists {
		return fmt.Errorf("%s: %w", id, ErrUnknownInstance)
	}
	return nil
}

// AddModel places a new model with a fresh instance ID and broadcasts
// it. The model starts unowned.
func (c *Coordinator) AddModel(ctx context.Context, modelType string, transform message.UniversalTransform) (message.InstanceID, error) {
	id := message.NewInstanceID()
	return id, c.AddModelWithID(ctx, id, modelType, transform)
}

// AddModelWithID places a model under a caller-chosen instance ID.
// Adding an ID that is already present changes nothing and sends
// nothing.
func (c *Coordinator) AddModelWithID(ctx context.Context, id message.InstanceID, modelType string, transform message.UniversalTransform) error {
	if id == "" {
		return errors.New("instance ID is empty")
	}
	return c.do(ctx, func() error {
		if err := c.requireJoined(); err != nil {
			return err
		}
		add := message.AddModel{ModelType: modelType, InstanceID: id, InitialTransform: transform}
		if !c.store.ApplyAdd(add) {
			return nil
		}
		if c.trackingEdits() {
			c.pending.added(id)
		}
		return c.send(transport.Reliable, add)
	})
}

// RemoveModel deletes a model everywhere.
func (c *Coordinator) RemoveModel(ctx context.Context, id message.InstanceID) error {
	return c.do(ctx, func() error {
		if err := c.requireJoined(); err != nil {
			return err
		}
		if err := c.requireInstance(id); err != nil {
			return err
		}
		remove := message.RemoveModel{InstanceID: id}
		c.store.ApplyRemove(remove)
		c.limiter.forget(id)
		if c.trackingEdits() {
			c.pending.removed(id)
		}
		return c.send(transport.Reliable, remove)
	})
}

// UpdateTransform records a live transform and sends it on the
// unreliable channel, at most TransformRateHz times per second per
// instance. Sends over the limit are suppressed, not errors: the local
// state still changes and sent is false. The value is mirrored on the
// reliable channel when configured or when some member has not
// advertised unreliable transform support.
func (c *Coordinator) UpdateTransform(ctx context.Context, id message.InstanceID, transform message.UniversalTransform) (sent bool, err error) {
	err = c.do(ctx, func() error {
		if err := c.requireJoined(); err != nil {
			return err
		}
		if err := c.requireInstance(id); err != nil {
			return err
		}
		update := message.ModelTransform{InstanceID: id, NewTransform: transform}
		c.store.ApplyTransform(update)
		if !c.limiter.allow(id) {
			return nil
		}
		sent = true
		if c.mirrorTransforms() {
			return errors.Join(
				c.send(transport.Unreliable, update),
				c.send(transport.Reliable, update),
			)
		}
		return c.send(transport.Unreliable, update)
	})
	return sent, err
}

// FinishTransform records the final transform of a manipulation and
// sends it on both channels regardless of the rate limit, so the last
// authored value always arrives.
func (c *Coordinator) FinishTransform(ctx context.Context, id message.InstanceID, transform message.UniversalTransform) error {
	return c.do(ctx, func() error {
		if err := c.requireJoined(); err != nil {
			return err
		}
		if err := c.requireInstance(id); err != nil {
			return err
		}
		update := message.ModelTransform{InstanceID: id, NewTransform: transform}
		c.store.ApplyTransform(update)
		c.limiter.forget(id)
		return errors.Join(
			c.send(transport.Unreliable, update),
			c.send(transport.Reliable, update),
		)
	})
}

func (c *Coordinator) mirrorTransforms() bool {
	return c.options.MirrorTransforms ||
		!c.registry.AllSupport(c.memberIDs(), capability.UnreliableTransforms)
}

// SelectModel tells the session that this participant selected a
// model. Advisory only; no state changes.
func (c *Coordinator) SelectModel(ctx context.Context, id message.InstanceID) error {
	return c.do(ctx, func() error {
		if err := c.requireJoined(); err != nil {
			return err
		}
		if err := c.requireInstance(id); err != nil {
			return err
		}
		return c.send(transport.Reliable, message.SelectModel{EntityID: id, ParticipantID: c.local})
	})
}

// ClaimOwnership makes this participant the owner of a model. Claims
// are optimistic: the last claim each participant processes wins
// there.
func (c *Coordinator) ClaimOwnership(ctx context.Context, id message.InstanceID) error {
	owner := c.local
	return c.setOwner(ctx, id, &owner)
}

// ReleaseOwnership marks a model unowned.
func (c *Coordinator) ReleaseOwnership(ctx context.Context, id message.InstanceID) error {
	return c.setOwner(ctx, id, nil)
}

// BeginManipulation claims ownership as a gesture on the model starts.
func (c *Coordinator) BeginManipulation(ctx context.Context, id message.InstanceID) error {
	return c.ClaimOwnership(ctx, id)
}

// HandOff re-claims a model for this participant when it takes over a
// manipulation from another participant.
func (c *Coordinator) HandOff(ctx context.Context, id message.InstanceID) error {
	return c.ClaimOwnership(ctx, id)
}

func (c *Coordinator) setOwner(ctx context.Context, id message.InstanceID, owner *participant.ID) error {
	return c.do(ctx, func() error {
		if err := c.requireJoined(); err != nil {
			return err
		}
		if err := c.requireInstance(id); err != nil {
			return err
		}
		change := message.OwnershipChange{EntityID: id, NewOwner: owner}
		c.store.ApplyOwnership(change)
		return c.send(transport.Reliable, change)
	})
}

// BroadcastAnchor adopts anchor as the reference every transform is
// expressed against and shares it with all members. World-map data is
// only sent to members that advertised support for it.
func (c *Coordinator) BroadcastAnchor(ctx context.Context, anchor message.Anchor) error {
	if anchor.AnchorID == "" {
		return errors.New("anchor ID is empty")
	}
	return c.do(ctx, func() error {
		if err := c.requireJoined(); err != nil {
			return err
		}
		stored := anchor
		stored.AnchorData = append([]byte(nil), anchor.AnchorData...)
		c.anchor = &stored
		c.store.SetReferenceAnchor(anchor.AnchorID)
		return c.shareAnchor(stored, c.memberIDs())
	})
}

// fullSync builds the full-state message from the delegate when it
// enumerates models, otherwise from the session state.
func (c *Coordinator) fullSync() message.SyncAllModels {
	sync := c.store.FullSync()
	if enumerator, ok := c.delegate.(ModelEnumerator); ok {
		sync.Models = enumerator.CurrentModels()
	}
	if sync.ReferenceAnchorID == "" {
		if anchor, ok := c.currentAnchor(); ok {
			sync.ReferenceAnchorID = anchor.AnchorID
		}
	}
	return sync
}

func (c *Coordinator) sendFullSync(recipients ...participant.ID) error {
	return c.send(transport.Reliable, c.fullSync(), recipients...)
}

func (c *Coordinator) sendHandshake(recipients ...participant.ID) error {
	err := c.send(transport.Reliable, c.options.Capabilities.Handshake(c.local), recipients...)
	if err == nil && len(recipients) == 0 {
		c.handshakeSent = true
	}
	return err
}

