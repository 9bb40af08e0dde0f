// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability tracks the features each session participant
// negotiated in its protocol handshake.
//
// The registry is populated only from received handshakes. A
// participant that has not sent one is assumed to support baseline
// messaging and nothing else, so every Supports check against it is
// false. Capabilities are advisory: they gate optional behavior such
// as world-map exchange, never whether messages are sent at all.
package capability

import (
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Set is the capability advertisement of one participant.
type Set struct {
	ProtocolVersion              int
	AppName                      string
	Platform                     string
	SupportsModelSync            bool
	SupportsWorldAnchor          bool
	SupportsUnreliableTransforms bool
}

// FromHandshake extracts the capability set from a handshake.
func FromHandshake(handshake message.ProtocolHandshake) Set {
	return Set{
		ProtocolVersion:              handshake.ProtocolVersion,
		AppName:                      handshake.AppName,
		Platform:                     handshake.Platform,
		SupportsModelSync:            handshake.SupportsModelSync,
		SupportsWorldAnchor:          handshake.SupportsARWorldMap,
		SupportsUnreliableTransforms: handshake.SupportsUnreliableTransforms,
	}
}

// Handshake builds the handshake advertising s on behalf of sender.
func (s Set) Handshake(sender participant.ID) message.ProtocolHandshake {
	return message.ProtocolHandshake{
		ProtocolVersion:              s.ProtocolVersion,
		AppName:                      s.AppName,
		Platform:                     s.Platform,
		SenderID:                     sender,
		SupportsModelSync:            s.SupportsModelSync,
		SupportsARWorldMap:           s.SupportsWorldAnchor,
		SupportsUnreliableTransforms: s.SupportsUnreliableTransforms,
	}
}

// Predicate selects participants by capability.
type Predicate func(Set) bool

// WorldMap selects participants that accept world-map anchor data.
func WorldMap(s Set) bool { return s.SupportsWorldAnchor }

// UnreliableTransforms selects participants that read transforms from
// the unreliable channel.
func UnreliableTransforms(s Set) bool { return s.SupportsUnreliableTransforms }

// Platform returns a predicate matching participants on platform.
func Platform(platform string) Predicate {
	return func(s Set) bool { return s.Platform == platform }
}

// Registry maps participants to their last advertised capabilities.
// Not safe for concurrent use; owned by the coordinator's actor.
type Registry struct {
	local   participant.ID
	entries map[participant.ID]Set
}

// NewRegistry returns an empty registry. Handshakes recorded for local
// are stored but excluded from remote queries.
func NewRegistry(local participant.ID) *Registry {
	return &Registry{
		local:   local,
		entries: make(map[participant.ID]Set),
	}
}

// Record stores capabilities for id, replacing any earlier handshake.
// Returns true if this is the first handshake from id or the set
// changed.
func (r *Registry) Record(id participant.ID, capabilities Set) bool {
	previous, known := r.entries[id]
	r.entries[id] = capabilities
	return !known || previous != capabilities
}

// CapabilitiesOf returns the recorded capabilities of id.
func (r *Registry) CapabilitiesOf(id participant.ID) (Set, bool) {
	capabilities, ok := r.entries[id]
	return capabilities, ok
}

// Supports reports whether id has advertised a capability matching
// predicate. Unknown participants support nothing.
func (r *Registry) Supports(id participant.ID, predicate Predicate) bool {
	capabilities, ok := r.entries[id]
	return ok && predicate(capabilities)
}

// RemotesSupport reports whether any remote participant with a
// recorded handshake matches predicate.
func (r *Registry) RemotesSupport(predicate Predicate) bool {
	for id, capabilities := range r.entries {
		if id == r.local {
			continue
		}
		if predicate(capabilities) {
			return true
		}
	}
	return false
}

// AllSupport reports whether every participant in ids has advertised a
// capability matching predicate. An empty ids is vacuously true.
func (r *Registry) AllSupport(ids []participant.ID, predicate Predicate) bool {
	for _, id := range ids {
		if !r.Supports(id, predicate) {
			return false
		}
	}
	return true
}

// Forget drops the entry for a participant that left.
func (r *Registry) Forget(id participant.ID) {
	delete(r.entries, id)
}

// Clear drops every entry. Called on session teardown.
func (r *Registry) Clear() {
	clear(r.entries)
}

// Len returns the number of recorded participants.
func (r *Registry) Len() int {
	return len(r.entries)
}
