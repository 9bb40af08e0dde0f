// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Signaler abstracts the mechanism for exchanging WebRTC session
// descriptions between participants, and for discovering who else is
// in the session. The shared-directory implementation serves peers on
// one host or a shared filesystem; tests use in-process maps.
//
// The signaling model is vanilla ICE: all ICE candidates are gathered
// before the SDP is published, so connection establishment requires
// exactly one signaling round-trip (offer then answer).
type Signaler interface {
	// Announce records id as present in the session. Calling it again
	// refreshes the presence record.
	Announce(ctx context.Context, id participant.ID) error

	// Withdraw removes id's presence record. Idempotent.
	Withdraw(ctx context.Context, id participant.ID) error

	// Participants returns every participant whose presence record is
	// current, in ascending order. The caller's own ID is included if
	// it is announced.
	Participants(ctx context.Context) ([]participant.ID, error)

	// PublishOffer publishes a complete SDP offer from offerer to
	// target, replacing any earlier offer for the same pair.
	PublishOffer(ctx context.Context, offerer, target participant.ID, sdp string) error

	// PublishAnswer publishes a complete SDP answer to the offer from
	// offerer, sent by answerer.
	PublishAnswer(ctx context.Context, offerer, answerer participant.ID, sdp string) error

	// PollOffers returns offers directed at local that are newer than
	// the last poll saw.
	PollOffers(ctx context.Context, local participant.ID) ([]SignalMessage, error)

	// PollAnswers returns answers to offers originated by local that
	// are newer than the last poll saw.
	PollAnswers(ctx context.Context, local participant.ID) ([]SignalMessage, error)
}

// SignalMessage represents a signaling message (offer or answer).
type SignalMessage struct {
	// Peer is the other party. For received offers, this is the
	// offerer. For received answers, this is the answerer.
	Peer participant.ID

	// SDP is the complete Session Description Protocol string with all
	// ICE candidates embedded.
	SDP string

	// Timestamp is when the signal was published. Pollers use it to
	// skip signals they have already processed.
	Timestamp time.Time
}

// seenFilter tracks the newest timestamp processed per signal key so
// that a replaced offer or answer is delivered once.
type seenFilter map[string]time.Time

// fresh reports whether a signal with this key and timestamp has not
// been delivered yet, and records it if so.
func (f seenFilter) fresh(key string, timestamp time.Time) bool {
	if last, ok := f[key]; ok && !timestamp.After(last) {
		return false
	}
	f[key] = timestamp
	return true
}

// signalKey identifies the offer/answer slot for one ordered pair.
func signalKey(offerer, target participant.ID) string {
	return string(offerer) + "|" + string(target)
}
