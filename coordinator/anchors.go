// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/sharedscene/lib/anchorpack"
	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/transport"
)

// shareAnchor sends anchor to recipients. Members that advertised
// world-map support receive the packed data unless the same data was
// already delivered to them; everyone else receives the anchor ID and
// type only.
func (c *Coordinator) shareAnchor(anchor message.Anchor, recipients []participant.ID) error {
	if len(recipients) == 0 {
		return nil
	}

	var withData, withoutData []participant.ID
	var digest anchorpack.Digest
	if len(anchor.AnchorData) > 0 {
		digest = anchorpack.Sum(anchor.AnchorData)
	}
	for _, id := range recipients {
		if len(anchor.AnchorData) == 0 ||
			!c.registry.Supports(id, capability.WorldMap) ||
			c.anchorDelivered[id] == digest {
			withoutData = append(withoutData, id)
			continue
		}
		withData = append(withData, id)
	}

	var errs []error
	if len(withData) > 0 {
		packed, err := anchorpack.Pack(anchor.AnchorData, c.options.AnchorCompression)
		if err != nil {
			return fmt.Errorf("packing anchor %s: %w", anchor.AnchorID, err)
		}
		full := anchor
		full.AnchorData = packed
		if err := c.send(transport.Reliable, full, withData...); err != nil {
			errs = append(errs, err)
		} else {
			for _, id := range withData {
				c.anchorDelivered[id] = digest
			}
			c.logger.Debug("anchor data shared",
				"anchor", anchor.AnchorID,
				"digest", digest,
				"bytes", len(packed),
				"recipients", len(withData),
			)
		}
	}
	if len(withoutData) > 0 {
		bare := anchor
		bare.AnchorData = nil
		if err := c.send(transport.Reliable, bare, withoutData...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// currentAnchor returns the anchor to re-share with new members: the
// delegate's when it provides one, otherwise the last anchor seen.
func (c *Coordinator) currentAnchor() (message.Anchor, bool) {
	if provider, ok := c.delegate.(AnchorProvider); ok {
		if anchor, ok := provider.CurrentAnchor(); ok && anchor.AnchorID != "" {
			return anchor, true
		}
	}
	if c.anchor != nil {
		return *c.anchor, true
	}
	return message.Anchor{}, false
}

// receiveAnchor adopts a remote anchor and forwards it with its data
// unpacked. Data that fails to unpack is dropped and the anchor is
// forwarded without it.
func (c *Coordinator) receiveAnchor(from participant.ID, anchor message.Anchor) {
	if len(anchor.AnchorData) > 0 {
		data, err := anchorpack.Unpack(anchor.AnchorData)
		if err != nil {
			c.logger.Warn("dropping undecodable anchor data",
				"from", from,
				"anchor", anchor.AnchorID,
				"error", err,
			)
			data = nil
		}
		anchor.AnchorData = data
	}

	c.store.SetReferenceAnchor(anchor.AnchorID)
	stored := anchor
	if len(stored.AnchorData) == 0 && c.anchor != nil && c.anchor.AnchorID == anchor.AnchorID {
		// An ID-only re-share of the anchor we already hold.
		stored.AnchorData = c.anchor.AnchorData
	}
	if len(stored.AnchorData) > 0 {
		// The sender holds this data; never echo it back.
		c.anchorDelivered[from] = anchorpack.Sum(stored.AnchorData)
	}
	c.anchor = &stored
	c.delegate.ApplyAnchor(anchor)
}
