// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Sentinel errors returned by Session implementations.
var (
	// ErrChannelUnavailable means the requested channel has no usable
	// handle to a recipient at send time: not yet open, already
	// closed, or not negotiated. The send is abandoned.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrSessionClosed means the session has been left or invalidated.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotJoined means Send was called before Join.
	ErrNotJoined = errors.New("session not joined")

	// ErrDatagramTooLarge means a datagram exceeds what the channel
	// can carry in one message.
	ErrDatagramTooLarge = errors.New("datagram too large for channel")
)

// Channel selects a delivery path.
type Channel uint8

const (
	// Reliable delivers every datagram, in order per sender.
	Reliable Channel = iota

	// Unreliable may drop or reorder datagrams. Used for live
	// transforms where only the latest value matters.
	Unreliable
)

func (c Channel) String() string {
	switch c {
	case Reliable:
		return "reliable"
	case Unreliable:
		return "unreliable"
	default:
		return "unknown"
	}
}

// State is the lifecycle of a group session as reported by the
// transport.
type State uint8

const (
	// StateWaiting: the session object exists but the local
	// participant has not joined.
	StateWaiting State = iota + 1

	// StateJoined: the local participant is a member and may send.
	StateJoined

	// StateInvalidated: the session ended or failed. Terminal.
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateJoined:
		return "joined"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Member is a remote participant currently reachable in the session.
type Member struct {
	ID participant.ID

	// Near is true when the participant is co-located (same physical
	// space) and false when remote.
	Near bool
}

// EventType distinguishes session-state events from membership events.
type EventType uint8

const (
	EventState EventType = iota + 1
	EventMembership
)

// Event is a transport notification.
type Event struct {
	Type EventType

	// State is set for EventState.
	State State

	// Err is set for an EventState with StateInvalidated caused by a
	// failure rather than a requested leave.
	Err error

	// Members is set for EventMembership: every remote participant
	// currently active, in ascending ID order. Consumers recompute
	// from the full list rather than applying deltas.
	Members []Member
}

// Delivery is an inbound datagram.
type Delivery struct {
	From participant.ID
	Data []byte
}

// Session is a message-oriented group channel with no server. The
// coordinator consumes it; implementations are [MemorySession] for
// in-process tests and [WebRTCSession] for real peers.
//
// The first event on Events is StateWaiting. Join moves the session to
// StateJoined; Leave or a transport failure moves it to
// StateInvalidated. A membership event listing the participants that
// were already present precedes StateJoined, so a joiner never mistakes
// itself for the only member. Inbound and Events channels are never
// closed; consumers stop reading when they are done with the session.
type Session interface {
	// LocalParticipant returns the ID of this participant.
	LocalParticipant() participant.ID

	// Join makes the local participant a member.
	Join(ctx context.Context) error

	// Leave ends participation. Idempotent.
	Leave() error

	// Send delivers data on channel to recipients, or to every
	// active member when recipients is empty. Sends are
	// fire-and-forget: a nil error means the datagram was handed to
	// the channel, not that it arrived. Returns
	// ErrChannelUnavailable (possibly joined with per-recipient
	// context) when some recipient has no usable handle.
	Send(channel Channel, data []byte, recipients ...participant.ID) error

	// Inbound returns the stream of datagrams arriving on channel.
	Inbound(channel Channel) <-chan Delivery

	// Events returns session-state and membership notifications.
	Events() <-chan Event
}
