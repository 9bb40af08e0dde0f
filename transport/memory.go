// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Compile-time interface check.
var _ Session = (*MemorySession)(nil)

// memoryQueueSize is the per-channel inbound buffer of a MemorySession.
const memoryQueueSize = 1024

// Datagram is one send as observed by a MemoryHub tap or drop filter.
type Datagram struct {
	From    participant.ID
	To      participant.ID
	Channel Channel
	Data    []byte
}

// MemoryHub connects MemorySessions in one process. It stands in for
// the group channel in tests: every joined session can reach every
// other, membership changes are reported to all members, and a drop
// filter can simulate loss on either channel.
type MemoryHub struct {
	mu       sync.Mutex
	sessions map[participant.ID]*MemorySession
	drop     func(Datagram) bool
	tap      func(Datagram)

	// rosterAfterJoin reports StateJoined to a joiner before its
	// roster, as a transport still discovering peers would.
	rosterAfterJoin bool

	// rosterVersion numbers membership announcements so a session
	// discards one that reaches it after a newer one.
	rosterVersion uint64
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{sessions: make(map[participant.ID]*MemorySession)}
}

// SetDropFilter installs a function deciding which datagrams are lost.
// Dropped datagrams are still passed to the tap. Nil disables loss.
func (h *MemoryHub) SetDropFilter(drop func(Datagram) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop = drop
}

// SetTap installs a function called for every datagram sent through
// the hub, before the drop filter applies. The tap runs on the
// sender's goroutine and must not block.
func (h *MemoryHub) SetTap(tap func(Datagram)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tap = tap
}

// SetRosterAfterJoin makes subsequent joins report StateJoined before
// the joiner's first membership event, breaking the ordering Session
// otherwise guarantees. It lets tests exercise a consumer's handling of
// a transport that learns its peers late.
func (h *MemoryHub) SetRosterAfterJoin(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rosterAfterJoin = enabled
}

// NewSession creates a session for id in StateWaiting.
func (h *MemoryHub) NewSession(id participant.ID) *MemorySession {
	session := &MemorySession{
		hub:        h,
		local:      id,
		reliable:   make(chan Delivery, memoryQueueSize),
		unreliable: make(chan Delivery, memoryQueueSize),
		events:     make(chan Event, 64),
		closed:     make(chan struct{}),
		available:  map[Channel]bool{Reliable: true, Unreliable: true},
	}
	session.events <- Event{Type: EventState, State: StateWaiting}
	return session
}

// Invalidate ends every joined session as a transport failure would.
func (h *MemoryHub) Invalidate(cause error) {
	h.mu.Lock()
	sessions := make([]*MemorySession, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mu.Unlock()

	for _, session := range sessions {
		session.invalidate(cause)
	}
}

// membersExcludingLocked returns the joined sessions other than id, sorted.
// Caller must hold h.mu.
func (h *MemoryHub) membersExcludingLocked(id participant.ID) []Member {
	members := make([]Member, 0, len(h.sessions))
	for other := range h.sessions {
		if other != id {
			members = append(members, Member{ID: other, Near: true})
		}
	}
	slices.SortFunc(members, func(a, b Member) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return members
}

// announcement is one event waiting to be emitted. version is zero
// for state events.
type announcement struct {
	session *MemorySession
	version uint64
	event   Event
}

// rosterLocked builds every joined session's current member list.
// Caller must hold h.mu.
func (h *MemoryHub) rosterLocked() []announcement {
	h.rosterVersion++
	announcements := make([]announcement, 0, len(h.sessions))
	for id, session := range h.sessions {
		announcements = append(announcements, announcement{
			session: session,
			version: h.rosterVersion,
			event:   Event{Type: EventMembership, Members: h.membersExcludingLocked(id)},
		})
	}
	return announcements
}

// announce emits announcements in order. It must be called without
// h.mu held: emit can wait for a consumer that is itself blocked
// sending through the hub.
func announce(announcements ...announcement) {
	for _, pending := range announcements {
		pending.session.announce(pending.version, pending.event)
	}
}

// MemorySession is an in-process Session attached to a MemoryHub.
type MemorySession struct {
	hub   *MemoryHub
	local participant.ID

	reliable   chan Delivery
	unreliable chan Delivery
	events     chan Event

	mu        sync.Mutex
	joined    bool
	left      bool
	available map[Channel]bool

	closed    chan struct{}
	closeOnce sync.Once

	// announceMu orders announcements to this session; rosterVersion
	// is the newest membership event it has emitted.
	announceMu    sync.Mutex
	rosterVersion uint64
}

func (s *MemorySession) LocalParticipant() participant.ID { return s.local }

// Join adds the session to the hub and announces the new membership to
// every member. The joiner's own membership event precedes its
// StateJoined event.
func (s *MemorySession) Join(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.joined {
		s.mu.Unlock()
		return nil
	}
	s.joined = true
	s.mu.Unlock()

	s.hub.mu.Lock()
	if _, exists := s.hub.sessions[s.local]; exists {
		s.hub.mu.Unlock()
		return fmt.Errorf("participant %s already joined this hub", s.local)
	}
	s.hub.sessions[s.local] = s
	roster := s.hub.rosterLocked()
	rosterAfterJoin := s.hub.rosterAfterJoin
	s.hub.mu.Unlock()

	joined := announcement{session: s, event: Event{Type: EventState, State: StateJoined}}
	if rosterAfterJoin {
		announce(append([]announcement{joined}, roster...)...)
		return nil
	}
	// The joiner learns the roster before it is told it has joined.
	announce(append(roster, joined)...)
	return nil
}

// Leave removes the session from the hub and reports StateInvalidated.
func (s *MemorySession) Leave() error {
	s.finish(nil)
	return nil
}

func (s *MemorySession) invalidate(cause error) {
	s.finish(cause)
}

func (s *MemorySession) finish(cause error) {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return
	}
	s.left = true
	wasJoined := s.joined
	s.mu.Unlock()

	if wasJoined {
		s.hub.mu.Lock()
		if current, ok := s.hub.sessions[s.local]; ok && current == s {
			delete(s.hub.sessions, s.local)
		}
		roster := s.hub.rosterLocked()
		s.hub.mu.Unlock()
		announce(roster...)
	}

	s.emit(Event{Type: EventState, State: StateInvalidated, Err: cause})
	s.closeOnce.Do(func() { close(s.closed) })
}

// SetChannelAvailable simulates a channel handle that is missing (false)
// or present (true). Sends on a missing channel fail with
// ErrChannelUnavailable.
func (s *MemorySession) SetChannelAvailable(channel Channel, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available[channel] = available
}

func (s *MemorySession) Send(channel Channel, data []byte, recipients ...participant.ID) error {
	s.mu.Lock()
	joined, left, available := s.joined, s.left, s.available[channel]
	s.mu.Unlock()

	switch {
	case left:
		return ErrSessionClosed
	case !joined:
		return ErrNotJoined
	case !available:
		return fmt.Errorf("%s: %w", channel, ErrChannelUnavailable)
	}

	s.hub.mu.Lock()
	drop, tap := s.hub.drop, s.hub.tap
	var targets []*MemorySession
	var errs []error
	if len(recipients) == 0 {
		for id, session := range s.hub.sessions {
			if id != s.local {
				targets = append(targets, session)
			}
		}
	} else {
		for _, id := range recipients {
			session, ok := s.hub.sessions[id]
			if !ok || id == s.local {
				errs = append(errs, fmt.Errorf("%s to %s: %w", channel, id, ErrChannelUnavailable))
				continue
			}
			targets = append(targets, session)
		}
	}
	s.hub.mu.Unlock()

	for _, target := range targets {
		datagram := Datagram{From: s.local, To: target.local, Channel: channel, Data: slices.Clone(data)}
		if tap != nil {
			tap(datagram)
		}
		if drop != nil && drop(datagram) {
			continue
		}
		target.deliver(channel, Delivery{From: s.local, Data: datagram.Data})
	}
	return errors.Join(errs...)
}

// deliver enqueues an inbound datagram. Unreliable datagrams are dropped
// when the queue is full; reliable ones wait for room unless the
// recipient has left.
func (s *MemorySession) deliver(channel Channel, delivery Delivery) {
	if channel == Unreliable {
		select {
		case s.unreliable <- delivery:
		default:
		}
		return
	}
	select {
	case s.reliable <- delivery:
	case <-s.closed:
	}
}

func (s *MemorySession) Inbound(channel Channel) <-chan Delivery {
	if channel == Unreliable {
		return s.unreliable
	}
	return s.reliable
}

func (s *MemorySession) Events() <-chan Event { return s.events }

// announce emits event unless it is a membership event older than one
// already emitted.
func (s *MemorySession) announce(version uint64, event Event) {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	if version != 0 {
		if version < s.rosterVersion {
			return
		}
		s.rosterVersion = version
	}
	s.emit(event)
}

// emit queues an event. Events beyond the buffer are dropped once the
// session is closed; until then emit waits for the consumer.
func (s *MemorySession) emit(event Event) {
	select {
	case s.events <- event:
		return
	default:
	}
	select {
	case s.events <- event:
	case <-s.closed:
	}
}
