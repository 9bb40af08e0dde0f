// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler for tests. Presence, offers
// and answers live in internal maps. Two WebRTCSession instances
// sharing the same MemorySignaler can establish PeerConnections
// without any external signaling.
type MemorySignaler struct {
	mu       sync.Mutex
	present  map[participant.ID]struct{}
	offers   map[string]memorySignal // key: signalKey(offerer, target)
	answers  map[string]memorySignal // key: signalKey(offerer, target)
	seen     seenFilter              // key: store + consumer + signal key
	lastTime time.Time
}

type memorySignal struct {
	offerer participant.ID
	target  participant.ID
	message SignalMessage
}

// NewMemorySignaler creates a new in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		present: make(map[participant.ID]struct{}),
		offers:  make(map[string]memorySignal),
		answers: make(map[string]memorySignal),
		seen:    make(seenFilter),
	}
}

func (s *MemorySignaler) Announce(_ context.Context, id participant.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present[id] = struct{}{}
	return nil
}

func (s *MemorySignaler) Withdraw(_ context.Context, id participant.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.present, id)
	return nil
}

func (s *MemorySignaler) Participants(context.Context) ([]participant.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]participant.ID, 0, len(s.present))
	for id := range s.present {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemorySignaler) PublishOffer(_ context.Context, offerer, target participant.ID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[signalKey(offerer, target)] = memorySignal{
		offerer: offerer,
		target:  target,
		message: SignalMessage{Peer: offerer, SDP: sdp, Timestamp: s.nextTimestampLocked()},
	}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offerer, answerer participant.ID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[signalKey(offerer, answerer)] = memorySignal{
		offerer: offerer,
		target:  answerer,
		message: SignalMessage{Peer: answerer, SDP: sdp, Timestamp: s.nextTimestampLocked()},
	}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, local participant.ID) ([]SignalMessage, error) {
	return s.poll("offers", local, s.offers, func(signal memorySignal) bool { return signal.target == local }), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, local participant.ID) ([]SignalMessage, error) {
	return s.poll("answers", local, s.answers, func(signal memorySignal) bool { return signal.offerer == local }), nil
}

func (s *MemorySignaler) poll(label string, local participant.ID, store map[string]memorySignal, match func(memorySignal) bool) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage
	for key, signal := range store {
		if !match(signal) {
			continue
		}
		if !s.seen.fresh(label+":"+string(local)+":"+key, signal.message.Timestamp) {
			continue
		}
		messages = append(messages, signal.message)
	}
	return messages
}

// nextTimestampLocked returns a wall-clock timestamp strictly after the
// previous one, so two publishes within the clock's resolution are
// still distinguishable. Caller must hold s.mu.
func (s *MemorySignaler) nextTimestampLocked() time.Time {
	now := time.Now().UTC()
	if !now.After(s.lastTime) {
		now = s.lastTime.Add(time.Nanosecond)
	}
	s.lastTime = now
	return now
}
