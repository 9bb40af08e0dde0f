// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/lib/sessionstate"
	"github.com/bureau-foundation/sharedscene/lib/testutil"
	"github.com/bureau-foundation/sharedscene/transport"
)

const (
	testTimeout = 5 * time.Second
	quietWindow = 100 * time.Millisecond
)

// Fixed IDs so host election is predictable: p1 < p2 < p3 < p4.
const (
	p1 participant.ID = "11111111-1111-4111-8111-111111111111"
	p2 participant.ID = "22222222-2222-4222-8222-222222222222"
	p3 participant.ID = "33333333-3333-4333-8333-333333333333"
	p4 participant.ID = "44444444-4444-4444-8444-444444444444"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fullCapabilities advertises every optional feature.
func fullCapabilities() capability.Set {
	return capability.Set{
		AppName:                      "sharedscene-test",
		Platform:                     "test",
		SupportsModelSync:            true,
		SupportsWorldAnchor:          true,
		SupportsUnreliableTransforms: true,
	}
}

// call is one recorded Delegate callback.
type call struct {
	method          string
	id              message.InstanceID
	model           sessionstate.ModelInstance
	transform       message.UniversalTransform
	by              participant.ID
	owner           *participant.ID
	anchor          message.Anchor
	models          []sessionstate.ModelInstance
	referenceAnchor string
	capabilities    capability.Set
}

// recordingDelegate turns every callback into a value on calls.
type recordingDelegate struct {
	calls chan call
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{calls: make(chan call, 4096)}
}

func (d *recordingDelegate) record(c call) {
	select {
	case d.calls <- c:
	default:
		panic("recordingDelegate: calls buffer full")
	}
}

func (d *recordingDelegate) ApplyAdd(model sessionstate.ModelInstance) {
	d.record(call{method: "add", id: model.InstanceID, model: model})
}

func (d *recordingDelegate) ApplyRemove(id message.InstanceID) {
	d.record(call{method: "remove", id: id})
}

func (d *recordingDelegate) ApplyTransform(id message.InstanceID, transform message.UniversalTransform) {
	d.record(call{method: "transform", id: id, transform: transform})
}

func (d *recordingDelegate) ApplySelection(id message.InstanceID, by participant.ID) {
	d.record(call{method: "select", id: id, by: by})
}

func (d *recordingDelegate) ApplyOwnership(id message.InstanceID, owner *participant.ID) {
	d.record(call{method: "ownership", id: id, owner: owner})
}

func (d *recordingDelegate) ApplyAnchor(anchor message.Anchor) {
	d.record(call{method: "anchor", anchor: anchor})
}

func (d *recordingDelegate) ApplyFullSync(models []sessionstate.ModelInstance, referenceAnchorID string) {
	d.record(call{method: "full_sync", models: models, referenceAnchor: referenceAnchorID})
}

func (d *recordingDelegate) PeerCapabilities(id participant.ID, capabilities capability.Set) {
	d.record(call{method: "capabilities", by: id, capabilities: capabilities})
}

// sent is one datagram observed on the hub, decoded.
type sent struct {
	transport.Datagram
	message message.Message
}

// tapHub decodes every datagram the hub carries, dropped ones
// included, onto the returned channel.
func tapHub(hub *transport.MemoryHub) <-chan sent {
	observed := make(chan sent, 8192)
	hub.SetTap(func(datagram transport.Datagram) {
		decoded, err := message.Decode(datagram.Data)
		if err != nil {
			return
		}
		select {
		case observed <- sent{Datagram: datagram, message: decoded}:
		default:
		}
	})
	return observed
}

// kindMatch selects datagrams of kind, optionally restricted by sender
// and recipient (zero values match anything).
func kindMatch(kind message.Kind, from, to participant.ID) func(sent) bool {
	return func(s sent) bool {
		return s.message.Kind() == kind &&
			(from.IsZero() || s.From == from) &&
			(to.IsZero() || s.To == to)
	}
}

// expectSent reads observed datagrams until one matches.
func expectSent(t *testing.T, observed <-chan sent, match func(sent) bool, description string) sent {
	t.Helper()
	deadline := time.After(testTimeout) //nolint:realclock test hang prevention
	for {
		select {
		case s := <-observed:
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", description)
		}
	}
}

// expectNoneSent fails if a matching datagram is observed within the
// quiet window. Non-matching datagrams are discarded.
func expectNoneSent(t *testing.T, observed <-chan sent, match func(sent) bool, description string) {
	t.Helper()
	window := time.After(quietWindow) //nolint:realclock bounded negative check
	for {
		select {
		case s := <-observed:
			if match(s) {
				t.Fatalf("unexpected %s: %s from %s to %s", description, s.message.Kind(), s.From, s.To)
			}
		case <-window:
			return
		}
	}
}

// peer is one running coordinator on a MemoryHub.
type peer struct {
	id          participant.ID
	session     *transport.MemorySession
	coordinator *Coordinator
	delegate    *recordingDelegate
	result      chan error
}

// startPeer creates and runs a coordinator for id without joining.
func startPeer(t *testing.T, hub *transport.MemoryHub, fake *clock.FakeClock, id participant.ID, configure func(*Options)) *peer {
	t.Helper()
	options := Options{
		Capabilities: fullCapabilities(),
		Clock:        fake,
		Logger:       discardLogger(),
	}
	if configure != nil {
		configure(&options)
	}

	session := hub.NewSession(id)
	delegate := newRecordingDelegate()
	coordinator, err := New(session, delegate, options)
	if err != nil {
		t.Fatalf("New(%s): %v", id, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &peer{
		id:          id,
		session:     session,
		coordinator: coordinator,
		delegate:    delegate,
		result:      make(chan error, 1),
	}
	go func() { p.result <- coordinator.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, coordinator.Done(), testTimeout, "coordinator %s stopping", id)
	})
	return p
}

// joinPeer starts a coordinator for id and waits until it has joined.
func joinPeer(t *testing.T, hub *transport.MemoryHub, fake *clock.FakeClock, id participant.ID, configure func(*Options)) *peer {
	t.Helper()
	p := startPeer(t, hub, fake, id, configure)
	if err := p.session.Join(context.Background()); err != nil {
		t.Fatalf("Join(%s): %v", id, err)
	}
	testutil.RequireClosed(t, p.coordinator.Joined(), testTimeout, "%s joining", id)
	return p
}

// nextCall reads delegate callbacks until one with method arrives.
func (p *peer) nextCall(t *testing.T, method string) call {
	t.Helper()
	deadline := time.After(testTimeout) //nolint:realclock test hang prevention
	for {
		select {
		case c := <-p.delegate.calls:
			if c.method == method {
				return c
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for delegate %s", p.id, method)
		}
	}
}

// awaitCapabilities waits until p has recorded a handshake from each
// of ids, in any order.
func (p *peer) awaitCapabilities(t *testing.T, ids ...participant.ID) {
	t.Helper()
	pending := participant.NewSet(ids...)
	for len(pending) > 0 {
		delete(pending, p.nextCall(t, "capabilities").by)
	}
}

func (p *peer) snapshot(t *testing.T) []sessionstate.ModelInstance {
	t.Helper()
	snapshot, err := p.coordinator.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("%s: Snapshot: %v", p.id, err)
	}
	return snapshot
}

func (p *peer) isHost(t *testing.T) bool {
	t.Helper()
	host, err := p.coordinator.IsHost(context.Background())
	if err != nil {
		t.Fatalf("%s: IsHost: %v", p.id, err)
	}
	return host
}

// rawPeer joins a bare MemorySession with no coordinator, for
// injecting hand-built datagrams.
func rawPeer(t *testing.T, hub *transport.MemoryHub, id participant.ID) *transport.MemorySession {
	t.Helper()
	session := hub.NewSession(id)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case <-session.Events():
			case <-session.Inbound(transport.Reliable):
			case <-session.Inbound(transport.Unreliable):
			case <-ctx.Done():
				return
			}
		}
	}()
	t.Cleanup(func() {
		session.Leave()
		cancel()
	})
	if err := session.Join(context.Background()); err != nil {
		t.Fatalf("Join(%s): %v", id, err)
	}
	return session
}

func sendRaw(t *testing.T, session *transport.MemorySession, m message.Message, recipients ...participant.ID) {
	t.Helper()
	data, err := message.Encode(m)
	if err != nil {
		t.Fatalf("Encode(%s): %v", m.Kind(), err)
	}
	if err := session.Send(transport.Reliable, data, recipients...); err != nil {
		t.Fatalf("Send(%s): %v", m.Kind(), err)
	}
}

func transformAt(x float32) message.UniversalTransform {
	transform := message.IdentityTransform("")
	transform.Position = message.Vector3{x, 0, 0}
	return transform
}
