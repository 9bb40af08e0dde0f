// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/lib/sessionstate"
)

// Delegate applies remote changes to the rendered scene. Every method
// is called on the coordinator's actor goroutine after the session
// state has been updated, so a method must return promptly and must
// not call Coordinator methods synchronously (they would wait on the
// goroutine that is running the callback).
//
// Only changes that took effect are forwarded: a duplicate add or an
// update for an unknown instance never reaches the delegate.
type Delegate interface {
	ApplyAdd(model sessionstate.ModelInstance)
	ApplyRemove(id message.InstanceID)
	ApplyTransform(id message.InstanceID, transform message.UniversalTransform)
	ApplySelection(id message.InstanceID, by participant.ID)
	ApplyOwnership(id message.InstanceID, owner *participant.ID)

	// ApplyAnchor receives a remote anchor with AnchorData unpacked.
	ApplyAnchor(anchor message.Anchor)

	// ApplyFullSync receives the complete replacement state.
	ApplyFullSync(models []sessionstate.ModelInstance, referenceAnchorID string)

	// PeerCapabilities is called after a handshake is recorded.
	PeerCapabilities(id participant.ID, capabilities capability.Set)
}

// ModelEnumerator is implemented by delegates that own the
// authoritative model list. When present, a host builds full syncs
// from CurrentModels instead of the session state.
type ModelEnumerator interface {
	CurrentModels() []message.ModelRecord
}

// AnchorProvider is implemented by delegates that can supply the
// current spatial anchor, including world-map data, for re-sharing
// with new members.
type AnchorProvider interface {
	CurrentAnchor() (message.Anchor, bool)
}

// NopDelegate ignores every callback. Embed it to implement only the
// callbacks of interest.
type NopDelegate struct{}

func (NopDelegate) ApplyAdd(sessionstate.ModelInstance)                          {}
func (NopDelegate) ApplyRemove(message.InstanceID)                               {}
func (NopDelegate) ApplyTransform(message.InstanceID, message.UniversalTransform) {}
func (NopDelegate) ApplySelection(message.InstanceID, participant.ID)            {}
func (NopDelegate) ApplyOwnership(message.InstanceID, *participant.ID)           {}
func (NopDelegate) ApplyAnchor(message.Anchor)                                   {}
func (NopDelegate) ApplyFullSync([]sessionstate.ModelInstance, string)           {}
func (NopDelegate) PeerCapabilities(participant.ID, capability.Set)              {}
