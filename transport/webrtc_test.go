// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/lib/testutil"
)

// webrtcTimeout bounds ICE and DTLS setup over loopback.
const webrtcTimeout = 30 * time.Second

func newTestWebRTCSession(t *testing.T, signaler Signaler, id participant.ID) *WebRTCSession {
	t.Helper()
	session, err := NewWebRTCSession(WebRTCConfig{
		Local:        id,
		Signaler:     signaler,
		PollInterval: 50 * time.Millisecond,
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewWebRTCSession(%s): %v", id, err)
	}
	t.Cleanup(func() { session.Leave() })
	return session
}

// awaitMembers reads events until a membership event lists exactly
// want.
func awaitMembers(t *testing.T, session *WebRTCSession, want ...participant.ID) {
	t.Helper()
	deadline := time.Now().Add(webrtcTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("%s: membership never became %v", session.LocalParticipant(), want)
		}
		event := testutil.RequireReceive(t, session.Events(), remaining, "%s membership", session.LocalParticipant())
		if event.Type != EventMembership || len(event.Members) != len(want) {
			continue
		}
		match := true
		for i, member := range event.Members {
			if member.ID != want[i] {
				match = false
			}
		}
		if match {
			return
		}
	}
}

// awaitJoined reads events until StateJoined and returns the member
// IDs of the last membership event before it.
func awaitJoined(t *testing.T, session *WebRTCSession, timeout time.Duration) []participant.ID {
	t.Helper()
	var members []participant.ID
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("%s: never reported joined", session.LocalParticipant())
		}
		event := testutil.RequireReceive(t, session.Events(), remaining, "%s joined", session.LocalParticipant())
		switch {
		case event.Type == EventMembership:
			members = members[:0]
			for _, member := range event.Members {
				members = append(members, member.ID)
			}
		case event.State == StateJoined:
			return members
		}
	}
}

// TestWebRTCSession_MeshDelivery connects two sessions through a
// MemorySignaler over loopback and exchanges datagrams on both
// channels, including a reliable datagram large enough to fragment.
func TestWebRTCSession_MeshDelivery(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := newTestWebRTCSession(t, signaler, "alpha")
	beta := newTestWebRTCSession(t, signaler, "beta")

	ctx := context.Background()
	if err := alpha.Join(ctx); err != nil {
		t.Fatalf("alpha Join: %v", err)
	}
	if err := beta.Join(ctx); err != nil {
		t.Fatalf("beta Join: %v", err)
	}

	awaitMembers(t, alpha, "beta")
	awaitMembers(t, beta, "alpha")

	large := bytes.Repeat([]byte("world-map "), 10_000)
	if err := alpha.Send(Reliable, large); err != nil {
		t.Fatalf("reliable Send: %v", err)
	}
	delivery := testutil.RequireReceive(t, beta.Inbound(Reliable), webrtcTimeout, "large reliable datagram")
	if delivery.From != "alpha" || !bytes.Equal(delivery.Data, large) {
		t.Fatalf("reliable delivery from %s, %d bytes; want alpha, %d bytes", delivery.From, len(delivery.Data), len(large))
	}

	if err := beta.Send(Reliable, []byte("reply"), "alpha"); err != nil {
		t.Fatalf("targeted Send: %v", err)
	}
	delivery = testutil.RequireReceive(t, alpha.Inbound(Reliable), webrtcTimeout, "reply")
	if string(delivery.Data) != "reply" {
		t.Errorf("reply = %q", delivery.Data)
	}

	// Unreliable delivery may drop on a loaded machine; retry until
	// one arrives.
	deadline := time.Now().Add(webrtcTimeout)
	for {
		if err := alpha.Send(Unreliable, []byte("pose")); err != nil {
			t.Fatalf("unreliable Send: %v", err)
		}
		select {
		case delivery := <-beta.Inbound(Unreliable):
			if string(delivery.Data) != "pose" {
				t.Fatalf("unreliable delivery = %q", delivery.Data)
			}
			return
		case <-time.After(100 * time.Millisecond): //nolint:realclock retry pacing
		}
		if time.Now().After(deadline) {
			t.Fatal("no unreliable datagram arrived")
		}
	}
}

func TestWebRTCSession_LeaveRemovesMember(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := newTestWebRTCSession(t, signaler, "alpha")
	beta := newTestWebRTCSession(t, signaler, "beta")

	ctx := context.Background()
	alpha.Join(ctx)
	beta.Join(ctx)
	awaitMembers(t, alpha, "beta")

	if err := beta.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	awaitMembers(t, alpha)

	if err := beta.Send(Reliable, []byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send after Leave = %v, want ErrSessionClosed", err)
	}
	if err := alpha.Send(Reliable, []byte("x"), "beta"); !errors.Is(err, ErrChannelUnavailable) {
		t.Errorf("Send to departed peer = %v, want ErrChannelUnavailable", err)
	}
}

func TestWebRTCSession_UnreliableSizeLimit(t *testing.T) {
	session := newTestWebRTCSession(t, NewMemorySignaler(), "alpha")
	err := session.Send(Unreliable, make([]byte, maxMessageSize+1))
	if !errors.Is(err, ErrDatagramTooLarge) {
		t.Fatalf("Send = %v, want ErrDatagramTooLarge", err)
	}
	if err := session.Send(Reliable, []byte("x")); !errors.Is(err, ErrNotJoined) {
		t.Errorf("Send before Join = %v, want ErrNotJoined", err)
	}
}

func TestNewWebRTCSession_Validation(t *testing.T) {
	if _, err := NewWebRTCSession(WebRTCConfig{Signaler: NewMemorySignaler()}); err == nil {
		t.Error("expected error for empty local ID")
	}
	if _, err := NewWebRTCSession(WebRTCConfig{Local: "alpha"}); err == nil {
		t.Error("expected error for nil signaler")
	}
}

func TestWebRTCSession_JoinedAfterPresentPeersConnect(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := newTestWebRTCSession(t, signaler, "alpha")
	beta := newTestWebRTCSession(t, signaler, "beta")

	ctx := context.Background()
	if err := alpha.Join(ctx); err != nil {
		t.Fatalf("alpha Join: %v", err)
	}
	if members := awaitJoined(t, alpha, webrtcTimeout); len(members) != 0 {
		t.Fatalf("alpha joined an empty session with members %v", members)
	}

	if err := beta.Join(ctx); err != nil {
		t.Fatalf("beta Join: %v", err)
	}
	members := awaitJoined(t, beta, webrtcTimeout)
	if len(members) != 1 || members[0] != "alpha" {
		t.Fatalf("beta roster at join = %v, want [alpha]", members)
	}
}

func TestWebRTCSession_JoinTimesOutWithoutPresentPeer(t *testing.T) {
	signaler := NewMemorySignaler()
	ctx := context.Background()
	// A presence record nobody answers for. It sorts first, so the
	// joiner waits for an offer that never comes.
	if err := signaler.Announce(ctx, "aaa-absent"); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	session, err := NewWebRTCSession(WebRTCConfig{
		Local:       "beta",
		Signaler:    signaler,
		JoinTimeout: 5 * time.Second,
		Clock:       fake,
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewWebRTCSession: %v", err)
	}
	t.Cleanup(func() { session.Leave() })
	testutil.RequireReceive(t, session.Events(), webrtcTimeout, "waiting event")

	if err := session.Join(ctx); err != nil {
		t.Fatalf("Join: %v", err)
	}
	testutil.RequireNoReceive(t, session.Events(), 200*time.Millisecond, "event before the join timeout")

	fake.Advance(5 * time.Second)
	if members := awaitJoined(t, session, webrtcTimeout); len(members) != 0 {
		t.Errorf("roster after timeout = %v, want empty", members)
	}
}

func TestWebRTCSession_JoinedWhenPresentPeerWithdraws(t *testing.T) {
	signaler := NewMemorySignaler()
	ctx := context.Background()
	if err := signaler.Announce(ctx, "aaa-leaving"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	session := newTestWebRTCSession(t, signaler, "beta")
	if err := session.Join(ctx); err != nil {
		t.Fatalf("Join: %v", err)
	}
	testutil.RequireNoReceive(t, session.Events(), 200*time.Millisecond, "event while a present peer is pending")

	if err := signaler.Withdraw(ctx, "aaa-leaving"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if members := awaitJoined(t, session, webrtcTimeout); len(members) != 0 {
		t.Errorf("roster after withdrawal = %v, want empty", members)
	}
}
