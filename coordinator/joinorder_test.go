// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/transport"
)

// scriptedSend is one datagram handed to a scriptedSession.
type scriptedSend struct {
	message    message.Message
	recipients []participant.ID
}

// scriptedSession is a transport.Session whose events and deliveries
// the test feeds straight into the coordinator, so their relative order
// is exactly the one the test chooses.
type scriptedSession struct {
	local participant.ID
	sent  []scriptedSend
}

func (s *scriptedSession) LocalParticipant() participant.ID { return s.local }
func (s *scriptedSession) Join(context.Context) error       { return nil }
func (s *scriptedSession) Leave() error                     { return nil }

func (s *scriptedSession) Send(_ transport.Channel, data []byte, recipients ...participant.ID) error {
	decoded, err := message.Decode(data)
	if err != nil {
		return err
	}
	s.sent = append(s.sent, scriptedSend{message: decoded, recipients: recipients})
	return nil
}

func (s *scriptedSession) Inbound(transport.Channel) <-chan transport.Delivery { return nil }
func (s *scriptedSession) Events() <-chan transport.Event                  { return nil }

// take returns and forgets the sends of kind.
func (s *scriptedSession) take(kind message.Kind) []scriptedSend {
	var matched, rest []scriptedSend
	for _, send := range s.sent {
		if send.message.Kind() == kind {
			matched = append(matched, send)
		} else {
			rest = append(rest, send)
		}
	}
	s.sent = rest
	return matched
}

// scripted drives a coordinator by hand. Nothing runs Run: the test
// goroutine plays the actor, and timer fires queue on the inbox until
// drained.
type scripted struct {
	t           *testing.T
	coordinator *Coordinator
	session     *scriptedSession
	delegate    *recordingDelegate
	clock       *clock.FakeClock
}

func newScripted(t *testing.T, local participant.ID) *scripted {
	t.Helper()
	session := &scriptedSession{local: local}
	delegate := newRecordingDelegate()
	fake := clock.Fake(testEpoch)
	coordinator, err := New(session, delegate, Options{
		Capabilities: fullCapabilities(),
		Clock:        fake,
		Logger:       discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	coordinator.handleEvent(transport.Event{Type: transport.EventState, State: transport.StateWaiting})
	return &scripted{t: t, coordinator: coordinator, session: session, delegate: delegate, clock: fake}
}

func (s *scripted) joined() {
	s.coordinator.handleEvent(transport.Event{Type: transport.EventState, State: transport.StateJoined})
}

func (s *scripted) members(ids ...participant.ID) {
	members := make([]transport.Member, len(ids))
	for i, id := range ids {
		members[i] = transport.Member{ID: id}
	}
	s.coordinator.handleEvent(transport.Event{Type: transport.EventMembership, Members: members})
}

func (s *scripted) deliver(from participant.ID, m message.Message) {
	s.t.Helper()
	data, err := message.Encode(m)
	if err != nil {
		s.t.Fatalf("Encode(%s): %v", m.Kind(), err)
	}
	s.coordinator.dispatch(transport.Reliable, transport.Delivery{From: from, Data: data})
}

// advance moves the clock and runs the timer fires it queued.
func (s *scripted) advance(d time.Duration) {
	s.clock.Advance(d)
	for {
		select {
		case fn := <-s.coordinator.inbox:
			fn()
		default:
			return
		}
	}
}

func (s *scripted) requireSent(kind message.Kind, count int) []scriptedSend {
	s.t.Helper()
	sent := s.session.take(kind)
	if len(sent) != count {
		s.t.Fatalf("sent %d %s, want %d", len(sent), kind, count)
	}
	return sent
}

func syncOf(ids ...message.InstanceID) message.SyncAllModels {
	sync := message.SyncAllModels{Models: []message.ModelRecord{}}
	for _, id := range ids {
		sync.Models = append(sync.Models, message.ModelRecord{
			ModelType:  "chair",
			InstanceID: id,
			Transform:  message.IdentityTransform(""),
		})
	}
	return sync
}

func TestEarlyWelcomeSatisfiesLateJoin(t *testing.T) {
	s := newScripted(t, p2)
	s.members(p1)
	// The host's welcome overtakes the join event.
	s.deliver(p1, syncOf("chair-1"))
	s.joined()

	s.requireSent(message.KindRequestSync, 0)
	if s.coordinator.resyncActive {
		t.Error("late-join chain armed although the welcome had arrived")
	}
	if got := s.coordinator.store.Len(); got != 1 {
		t.Errorf("store holds %d models, want 1", got)
	}
	s.advance(10 * time.Second)
	s.requireSent(message.KindRequestSync, 0)
}

func TestJoinedBeforeRosterStartsLateJoinOnMembership(t *testing.T) {
	s := newScripted(t, p2)
	s.joined()
	s.requireSent(message.KindRequestSync, 0)
	if !s.coordinator.host {
		t.Fatal("alone after join but not host")
	}

	// The transport reports the existing host only now.
	s.members(p1)
	if s.coordinator.host {
		t.Fatal("still host with a smaller member present")
	}
	s.requireSent(message.KindRequestSync, 1)
	if handshakes := s.requireSent(message.KindProtocolHandshake, 2); len(handshakes[1].recipients) != 1 || handshakes[1].recipients[0] != p1 {
		t.Errorf("handshake to new member addressed to %v, want [%s]", handshakes[1].recipients, p1)
	}

	s.deliver(p1, syncOf("chair-1"))
	if s.coordinator.resyncActive {
		t.Error("late-join chain still armed after the full sync")
	}
	s.advance(10 * time.Second)
	s.requireSent(message.KindRequestSync, 0)
}

func TestUnseededHostRequestsInsteadOfWelcoming(t *testing.T) {
	s := newScripted(t, p1)
	s.members(p2)
	s.joined()
	if !s.coordinator.host {
		t.Fatal("smallest participant is not host")
	}
	s.requireSent(message.KindRequestSync, 1)
	s.requireSent(message.KindSyncAllModels, 0)

	// A further joiner is introduced to but not handed the empty scene.
	s.members(p2, p3)
	s.requireSent(message.KindSyncAllModels, 0)

	// A request from another participant goes unanswered while this
	// host has nothing to share.
	s.deliver(p3, message.RequestSync{ParticipantID: p3})
	s.requireSent(message.KindSyncAllModels, 0)

	s.deliver(p2, syncOf("chair-1"))
	if !s.coordinator.seeded {
		t.Fatal("full sync did not seed the host")
	}
	shared := s.requireSent(message.KindSyncAllModels, 1)
	if recipients := shared[0].recipients; len(recipients) != 1 || recipients[0] != p3 {
		t.Errorf("seeded state shared with %v, want [%s]", recipients, p3)
	}
	if models := shared[0].message.(message.SyncAllModels).Models; len(models) != 1 {
		t.Errorf("shared %d models, want 1", len(models))
	}

	s.deliver(p3, message.RequestSync{ParticipantID: p3})
	if broadcast := s.requireSent(message.KindSyncAllModels, 1); len(broadcast[0].recipients) != 0 {
		t.Errorf("answer addressed to %v, want a broadcast", broadcast[0].recipients)
	}
	s.advance(10 * time.Second)
	s.requireSent(message.KindRequestSync, 0)
}

func TestUnseededHostAdoptsLocalStateWhenNobodyAnswers(t *testing.T) {
	s := newScripted(t, p1)
	s.members(p2)
	s.joined()
	s.requireSent(message.KindRequestSync, 1)

	s.advance(DefaultResyncDelays[0])
	s.requireSent(message.KindRequestSync, 1)
	s.advance(DefaultResyncDelays[1])
	s.requireSent(message.KindRequestSync, 1)

	if !s.coordinator.seeded {
		t.Fatal("host still unseeded after the schedule ended")
	}
	s.requireSent(message.KindSyncAllModels, 1)
}

func TestSeededMemberAnswersOnlyTheHost(t *testing.T) {
	s := newScripted(t, p2)
	s.joined()
	s.deliver(p3, message.AddModel{ModelType: "chair", InstanceID: "chair-1", InitialTransform: message.IdentityTransform("")})
	s.members(p1, p3)
	s.session.take(message.KindRequestSync)

	s.deliver(p3, message.RequestSync{ParticipantID: p3})
	s.requireSent(message.KindSyncAllModels, 0)

	s.deliver(p1, message.RequestSync{ParticipantID: p1})
	answer := s.requireSent(message.KindSyncAllModels, 1)
	if recipients := answer[0].recipients; len(recipients) != 1 || recipients[0] != p1 {
		t.Errorf("answer addressed to %v, want [%s]", recipients, p1)
	}
	if models := answer[0].message.(message.SyncAllModels).Models; len(models) != 1 {
		t.Errorf("answer carries %d models, want 1", len(models))
	}
}
