// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Compile-time interface check.
var _ Session = (*WebRTCSession)(nil)

// DefaultPollInterval is how often a WebRTCSession refreshes presence
// and polls for signaling offers and answers.
const DefaultPollInterval = time.Second

// DefaultJoinTimeout bounds how long Join waits for the participants
// already present to connect before reporting StateJoined without them.
const DefaultJoinTimeout = 10 * time.Second

// iceGatherTimeout is the maximum time to wait for ICE candidate gathering
// to complete before publishing the SDP.
const iceGatherTimeout = 15 * time.Second

// Data channel labels. The offerer creates both; the answerer adopts
// them by label from OnDataChannel.
const (
	reliableLabel   = "reliable"
	unreliableLabel = "unreliable"
)

// WebRTCConfig configures a WebRTCSession.
type WebRTCConfig struct {
	// Local is this participant's ID.
	Local participant.ID

	// Signaler exchanges presence and SDP with the other participants.
	Signaler Signaler

	// ICE lists STUN/TURN servers. Empty gathers host candidates only.
	ICE ICEConfig

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// JoinTimeout defaults to DefaultJoinTimeout.
	JoinTimeout time.Duration

	// Clock drives the signaling poller. Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// WebRTCSession is a full-mesh Session over pion/webrtc. Each pair of
// participants shares one PeerConnection carrying two data channels:
// "reliable" (ordered, retransmitted) and "unreliable" (unordered, no
// retransmits).
//
// Exactly one side of each pair dials: the participant whose ID is
// lexicographically smaller publishes the offer, and the other answers.
// Offers from a participant with a larger ID are ignored. A remote
// participant is reported as a member once both data channels are open,
// and removed when its PeerConnection fails or closes or its presence
// record disappears. WebRTC peers are reported as remote (Near false).
//
// StateJoined waits until every participant present at Join has
// connected or withdrawn, or JoinTimeout passes.
//
// Reliable datagrams of any size up to maxReassembledSize are framed
// and fragmented. Unreliable datagrams must fit one data channel
// message.
type WebRTCSession struct {
	local        participant.ID
	signaler     Signaler
	iceConfig    ICEConfig
	pollInterval time.Duration
	joinTimeout  time.Duration
	clock        clock.Clock
	logger       *slog.Logger

	reliable   chan Delivery
	unreliable chan Delivery
	events     chan Event

	// peers maps remote participant → peerState.
	mu     sync.Mutex
	peers  map[participant.ID]*peerState
	joined bool
	left   bool

	// joinPending holds the participants present at Join that have
	// neither connected nor withdrawn. StateJoined is reported once it
	// is empty.
	joinPending  participant.Set
	joinReported bool
	joinTimer    *clock.Timer

	// rosterVersion numbers membership events; announceMu and
	// announcedVersion let announce discard one overtaken by a newer.
	rosterVersion    uint64
	announceMu       sync.Mutex
	announcedVersion uint64

	cancel     context.CancelFunc
	pollerDone chan struct{}

	// sendMu keeps the fragments of one reliable datagram contiguous
	// when Send is called concurrently.
	sendMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

// peerState tracks the PeerConnection to a single remote participant.
// Protected by WebRTCSession.mu.
type peerState struct {
	id         participant.ID
	connection *webrtc.PeerConnection
	offerer    bool

	reliable   *webrtc.DataChannel
	unreliable *webrtc.DataChannel

	// awaitingAnswer is true for an outbound connection whose offer
	// has been published and whose answer has not been applied.
	awaitingAnswer bool

	// active is true once both channels are open and the peer has
	// been reported in a membership event.
	active bool

	// reassembly is only touched from the reliable channel's
	// OnMessage callback, which pion calls serially.
	reassembly reassembler
}

// NewWebRTCSession creates a session in StateWaiting. Nothing touches
// the network until Join.
func NewWebRTCSession(config WebRTCConfig) (*WebRTCSession, error) {
	if config.Local.IsZero() {
		return nil, errors.New("webrtc session requires a local participant ID")
	}
	if config.Signaler == nil {
		return nil, errors.New("webrtc session requires a signaler")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = DefaultJoinTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	session := &WebRTCSession{
		local:        config.Local,
		signaler:     config.Signaler,
		iceConfig:    config.ICE,
		pollInterval: config.PollInterval,
		joinTimeout:  config.JoinTimeout,
		clock:        config.Clock,
		logger:       config.Logger.With("participant", config.Local),
		reliable:     make(chan Delivery, memoryQueueSize),
		unreliable:   make(chan Delivery, memoryQueueSize),
		events:       make(chan Event, 64),
		peers:        make(map[participant.ID]*peerState),
		pollerDone:   make(chan struct{}),
		closed:       make(chan struct{}),
	}
	session.events <- Event{Type: EventState, State: StateWaiting}
	return session, nil
}

func (s *WebRTCSession) LocalParticipant() participant.ID { return s.local }

// Join announces presence and starts the signaling poller. It notes
// who is already present; StateJoined follows once each of them has
// connected and been reported as a member, has withdrawn, or
// JoinTimeout has passed.
func (s *WebRTCSession) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.joined {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.signaler.Announce(ctx, s.local); err != nil {
		return fmt.Errorf("announcing presence: %w", err)
	}
	present, err := s.signaler.Participants(ctx)
	if err != nil {
		return fmt.Errorf("listing participants: %w", err)
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
	s.joinPending = make(participant.Set, len(present))
	for _, id := range present {
		if id != s.local {
			s.joinPending[id] = struct{}{}
		}
	}
	waiting := len(s.joinPending)
	if waiting > 0 {
		s.joinTimer = s.clock.AfterFunc(s.joinTimeout, s.joinTimedOut)
	}
	pollerContext, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.joined = true
	go s.signalingPoller(pollerContext)
	s.mu.Unlock()

	s.logger.Info("presence announced", "present", waiting)
	s.settleJoin()
	return nil
}

// settleJoin reports StateJoined, preceded by the current roster, once
// no participant present at Join is still pending.
func (s *WebRTCSession) settleJoin() {
	s.mu.Lock()
	if !s.joined || s.left || s.joinReported {
		s.mu.Unlock()
		return
	}
	for id := range s.joinPending {
		if peer, ok := s.peers[id]; ok && peer.active {
			delete(s.joinPending, id)
		}
	}
	if len(s.joinPending) > 0 {
		s.mu.Unlock()
		return
	}
	s.joinReported = true
	timer := s.joinTimer
	s.joinTimer = nil
	members, version := s.rosterLocked()
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	s.announce(version, members, Event{Type: EventState, State: StateJoined})
}

// joinTimedOut gives up on the participants that have not connected.
// They become members later if their connections open.
func (s *WebRTCSession) joinTimedOut() {
	s.mu.Lock()
	if s.joinReported || s.left {
		s.mu.Unlock()
		return
	}
	waiting := s.joinPending.Sorted()
	clear(s.joinPending)
	s.mu.Unlock()

	s.logger.Warn("reporting joined before every present participant connected", "unconnected", waiting)
	s.settleJoin()
}

// Leave withdraws presence, closes every PeerConnection, and reports
// StateInvalidated. Idempotent.
func (s *WebRTCSession) Leave() error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return nil
	}
	s.left = true
	wasJoined := s.joined
	cancel := s.cancel
	joinTimer := s.joinTimer
	s.joinTimer = nil
	peers := make([]*peerState, 0, len(s.peers))
	for id, peer := range s.peers {
		peers = append(peers, peer)
		delete(s.peers, id)
	}
	s.mu.Unlock()

	if joinTimer != nil {
		joinTimer.Stop()
	}

	var errs []error
	if wasJoined {
		cancel()
		<-s.pollerDone

		withdrawContext, cancelWithdraw := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.signaler.Withdraw(withdrawContext, s.local); err != nil {
			errs = append(errs, fmt.Errorf("withdrawing presence: %w", err))
		}
		cancelWithdraw()
	}

	for _, peer := range peers {
		if err := peer.connection.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing connection to %s: %w", peer.id, err))
		}
	}

	s.emit(Event{Type: EventState, State: StateInvalidated})
	s.closeOnce.Do(func() { close(s.closed) })
	return errors.Join(errs...)
}

func (s *WebRTCSession) Send(channel Channel, data []byte, recipients ...participant.ID) error {
	if channel == Unreliable && len(data) > maxMessageSize {
		return fmt.Errorf("%d bytes: %w", len(data), ErrDatagramTooLarge)
	}

	s.mu.Lock()
	switch {
	case s.left:
		s.mu.Unlock()
		return ErrSessionClosed
	case !s.joined:
		s.mu.Unlock()
		return ErrNotJoined
	}

	type target struct {
		id      participant.ID
		channel *webrtc.DataChannel
	}
	var targets []target
	var errs []error
	pick := func(peer *peerState) *webrtc.DataChannel {
		if channel == Unreliable {
			return peer.unreliable
		}
		return peer.reliable
	}
	if len(recipients) == 0 {
		for id, peer := range s.peers {
			if peer.active {
				targets = append(targets, target{id: id, channel: pick(peer)})
			}
		}
	} else {
		for _, id := range recipients {
			peer, ok := s.peers[id]
			if !ok || !peer.active {
				errs = append(errs, fmt.Errorf("%s to %s: %w", channel, id, ErrChannelUnavailable))
				continue
			}
			targets = append(targets, target{id: id, channel: pick(peer)})
		}
	}
	s.mu.Unlock()

	frames := [][]byte{data}
	if channel == Reliable {
		frames = fragment(data)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for _, target := range targets {
		if target.channel == nil || target.channel.ReadyState() != webrtc.DataChannelStateOpen {
			errs = append(errs, fmt.Errorf("%s to %s: %w", channel, target.id, ErrChannelUnavailable))
			continue
		}
		for _, frame := range frames {
			if err := target.channel.Send(frame); err != nil {
				errs = append(errs, fmt.Errorf("%s to %s: %w: %v", channel, target.id, ErrChannelUnavailable, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (s *WebRTCSession) Inbound(channel Channel) <-chan Delivery {
	if channel == Unreliable {
		return s.unreliable
	}
	return s.reliable
}

func (s *WebRTCSession) Events() <-chan Event { return s.events }

// signalingPoller refreshes presence, dials new peers, answers offers
// and applies answers until ctx is cancelled.
func (s *WebRTCSession) signalingPoller(ctx context.Context) {
	defer close(s.pollerDone)

	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var dials sync.WaitGroup
	defer dials.Wait()

	for {
		s.pollOnce(ctx, &dials)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *WebRTCSession) pollOnce(ctx context.Context, dials *sync.WaitGroup) {
	if err := s.signaler.Announce(ctx, s.local); err != nil && ctx.Err() == nil {
		s.logger.Warn("refreshing presence failed", "error", err)
	}

	present, err := s.signaler.Participants(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("listing participants failed", "error", err)
		}
		return
	}
	s.reconcilePresence(ctx, present, dials)

	offers, err := s.signaler.PollOffers(ctx, s.local)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("polling for SDP offers failed", "error", err)
		}
	}
	for _, offer := range offers {
		if offer.Peer >= s.local {
			// We are the canonical offerer for this pair.
			s.logger.Debug("ignoring offer from larger participant", "peer", offer.Peer)
			continue
		}
		dials.Add(1)
		go func() {
			defer dials.Done()
			if err := s.answerOffer(ctx, offer); err != nil && ctx.Err() == nil {
				s.logger.Error("answering WebRTC offer failed", "peer", offer.Peer, "error", err)
			}
		}()
	}

	answers, err := s.signaler.PollAnswers(ctx, s.local)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("polling for SDP answers failed", "error", err)
		}
	}
	for _, answer := range answers {
		s.applyAnswer(answer)
	}
}

// reconcilePresence dials present participants this side is
// responsible for and drops connections to participants that left.
func (s *WebRTCSession) reconcilePresence(ctx context.Context, present []participant.ID, dials *sync.WaitGroup) {
	presentSet := participant.NewSet(present...)

	s.mu.Lock()
	var departed []*peerState
	for id, peer := range s.peers {
		if !presentSet.Has(id) {
			departed = append(departed, peer)
		}
	}
	for id := range s.joinPending {
		if !presentSet.Has(id) {
			delete(s.joinPending, id)
		}
	}
	var dialTargets []participant.ID
	for _, id := range present {
		if id == s.local || id < s.local {
			continue
		}
		if _, exists := s.peers[id]; !exists {
			dialTargets = append(dialTargets, id)
		}
	}
	s.mu.Unlock()

	for _, peer := range departed {
		s.logger.Info("participant presence withdrawn", "peer", peer.id)
		s.dropPeer(peer)
	}
	s.settleJoin()

	for _, id := range dialTargets {
		peer, err := s.registerPeer(id, true)
		if err != nil {
			s.logger.Error("creating PeerConnection failed", "peer", id, "error", err)
			continue
		}
		dials.Add(1)
		go func() {
			defer dials.Done()
			if err := s.offer(ctx, peer); err != nil {
				if ctx.Err() == nil {
					s.logger.Error("publishing WebRTC offer failed", "peer", id, "error", err)
				}
				s.dropPeer(peer)
			}
		}()
	}
}

// registerPeer creates a PeerConnection for id and stores it, replacing
// any existing entry.
func (s *WebRTCSession) registerPeer(id participant.ID, offerer bool) (*peerState, error) {
	connection, err := s.newPeerConnection()
	if err != nil {
		return nil, err
	}
	peer := &peerState{id: id, connection: connection, offerer: offerer}

	connection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.handleConnectionState(peer, state)
	})
	connection.OnDataChannel(func(channel *webrtc.DataChannel) {
		s.adoptChannel(peer, channel)
	})

	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		connection.Close()
		return nil, ErrSessionClosed
	}
	previous := s.peers[id]
	s.peers[id] = peer
	s.mu.Unlock()

	if previous != nil {
		s.retirePeer(previous)
	}
	return peer, nil
}

// offer creates both data channels, gathers candidates and publishes
// the SDP offer. The answer is applied later by applyAnswer.
func (s *WebRTCSession) offer(ctx context.Context, peer *peerState) error {
	ordered := true
	reliable, err := peer.connection.CreateDataChannel(reliableLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("creating reliable data channel: %w", err)
	}
	unordered := false
	var noRetransmits uint16
	unreliable, err := peer.connection.CreateDataChannel(unreliableLabel, &webrtc.DataChannelInit{
		Ordered:        &unordered,
		MaxRetransmits: &noRetransmits,
	})
	if err != nil {
		return fmt.Errorf("creating unreliable data channel: %w", err)
	}
	s.adoptChannel(peer, reliable)
	s.adoptChannel(peer, unreliable)

	offer, err := peer.connection.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	sdp, err := s.gather(ctx, peer.connection, offer)
	if err != nil {
		return err
	}

	s.mu.Lock()
	peer.awaitingAnswer = true
	s.mu.Unlock()

	if err := s.signaler.PublishOffer(ctx, s.local, peer.id, sdp); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}
	s.logger.Info("WebRTC offer published", "peer", peer.id)
	return nil
}

// applyAnswer sets the remote description on the pending outbound
// connection the answer belongs to.
func (s *WebRTCSession) applyAnswer(answer SignalMessage) {
	s.mu.Lock()
	peer, ok := s.peers[answer.Peer]
	if !ok || !peer.offerer || !peer.awaitingAnswer {
		s.mu.Unlock()
		s.logger.Debug("ignoring unsolicited SDP answer", "peer", answer.Peer)
		return
	}
	peer.awaitingAnswer = false
	s.mu.Unlock()

	err := peer.connection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	})
	if err != nil {
		s.logger.Error("setting remote description failed", "peer", answer.Peer, "error", err)
		s.dropPeer(peer)
		return
	}
	s.logger.Info("WebRTC answer applied", "peer", answer.Peer)
}

// answerOffer replaces any connection to the offerer with a new one
// built from its offer, and publishes the answer.
func (s *WebRTCSession) answerOffer(ctx context.Context, offer SignalMessage) error {
	peer, err := s.registerPeer(offer.Peer, false)
	if err != nil {
		return fmt.Errorf("creating PeerConnection: %w", err)
	}

	err = peer.connection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	})
	if err != nil {
		s.dropPeer(peer)
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := peer.connection.CreateAnswer(nil)
	if err != nil {
		s.dropPeer(peer)
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	sdp, err := s.gather(ctx, peer.connection, answer)
	if err != nil {
		s.dropPeer(peer)
		return err
	}

	if err := s.signaler.PublishAnswer(ctx, offer.Peer, s.local, sdp); err != nil {
		s.dropPeer(peer)
		return fmt.Errorf("publishing SDP answer: %w", err)
	}
	s.logger.Info("WebRTC offer answered", "peer", offer.Peer)
	return nil
}

// gather sets the local description and waits for ICE gathering to
// complete (vanilla ICE), returning the SDP with all candidates.
func (s *WebRTCSession) gather(ctx context.Context, connection *webrtc.PeerConnection, description webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(connection)
	if err := connection.SetLocalDescription(description); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-s.clock.After(iceGatherTimeout):
		return "", fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return connection.LocalDescription().SDP, nil
}

// adoptChannel attaches a data channel to its peer by label and wires
// its callbacks.
func (s *WebRTCSession) adoptChannel(peer *peerState, channel *webrtc.DataChannel) {
	label := channel.Label()
	s.mu.Lock()
	switch label {
	case reliableLabel:
		peer.reliable = channel
	case unreliableLabel:
		peer.unreliable = channel
	default:
		s.mu.Unlock()
		s.logger.Warn("closing data channel with unknown label", "peer", peer.id, "label", label)
		channel.Close()
		return
	}
	s.mu.Unlock()

	channel.OnOpen(func() {
		s.logger.Debug("data channel opened", "peer", peer.id, "label", label)
		s.maybeActivate(peer)
	})
	channel.OnClose(func() {
		s.logger.Debug("data channel closed", "peer", peer.id, "label", label)
	})
	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		if label == unreliableLabel {
			s.deliverUnreliable(Delivery{From: peer.id, Data: message.Data})
			return
		}
		datagram, complete, err := peer.reassembly.push(message.Data)
		if err != nil {
			s.logger.Warn("dropping malformed reliable frame", "peer", peer.id, "error", err)
			return
		}
		if complete {
			s.deliverReliable(Delivery{From: peer.id, Data: datagram})
		}
	})
}

// maybeActivate reports the peer as a member once both channels are
// open.
func (s *WebRTCSession) maybeActivate(peer *peerState) {
	s.mu.Lock()
	if peer.active || s.peers[peer.id] != peer {
		s.mu.Unlock()
		return
	}
	if peer.reliable == nil || peer.unreliable == nil ||
		peer.reliable.ReadyState() != webrtc.DataChannelStateOpen ||
		peer.unreliable.ReadyState() != webrtc.DataChannelStateOpen {
		s.mu.Unlock()
		return
	}
	peer.active = true
	members, version := s.rosterLocked()
	reported := s.joinReported
	s.mu.Unlock()

	s.logger.Info("participant connected", "peer", peer.id)
	if reported {
		s.announce(version, members)
		return
	}
	s.settleJoin()
}

func (s *WebRTCSession) handleConnectionState(peer *peerState, state webrtc.PeerConnectionState) {
	s.logger.Debug("peer connection state change", "peer", peer.id, "state", state.String())
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		// Closing from inside a pion callback can wait on pion's own
		// handler goroutines.
		go s.dropPeer(peer)
	}
}

// dropPeer removes peer if it is still current, closes its connection,
// and reports the new membership if it had been active.
func (s *WebRTCSession) dropPeer(peer *peerState) {
	s.mu.Lock()
	current, ok := s.peers[peer.id]
	if !ok || current != peer {
		s.mu.Unlock()
		return
	}
	delete(s.peers, peer.id)
	wasActive := peer.active
	members, version := s.rosterLocked()
	report := wasActive && !s.left && s.joinReported
	s.mu.Unlock()

	peer.connection.Close()
	if wasActive {
		s.logger.Info("participant disconnected", "peer", peer.id)
	}
	if report {
		s.announce(version, members)
	}
}

// retirePeer closes a connection that has already been replaced in the
// peers map. A replaced active peer counts as a departure until the
// new connection opens.
func (s *WebRTCSession) retirePeer(peer *peerState) {
	peer.connection.Close()
	s.mu.Lock()
	report := peer.active && s.joinReported
	members, version := s.rosterLocked()
	s.mu.Unlock()
	if report {
		s.announce(version, members)
	}
}

// rosterLocked returns active peers in ascending ID order and a new
// roster version. Caller must hold s.mu.
func (s *WebRTCSession) rosterLocked() ([]Member, uint64) {
	s.rosterVersion++
	return s.membersLocked(), s.rosterVersion
}

// announce emits a membership event, unless a newer one has already
// been emitted, and then the events that must follow it.
func (s *WebRTCSession) announce(version uint64, members []Member, then ...Event) {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	if version >= s.announcedVersion {
		s.announcedVersion = version
		s.emit(Event{Type: EventMembership, Members: members})
	}
	for _, event := range then {
		s.emit(event)
	}
}

// membersLocked returns active peers in ascending ID order. Caller must
// hold s.mu.
func (s *WebRTCSession) membersLocked() []Member {
	ids := make([]participant.ID, 0, len(s.peers))
	for id, peer := range s.peers {
		if peer.active {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	members := make([]Member, len(ids))
	for i, id := range ids {
		members[i] = Member{ID: id}
	}
	return members
}

func (s *WebRTCSession) deliverReliable(delivery Delivery) {
	select {
	case s.reliable <- delivery:
	case <-s.closed:
	}
}

func (s *WebRTCSession) deliverUnreliable(delivery Delivery) {
	select {
	case s.unreliable <- delivery:
	default:
	}
}

// emit queues an event, waiting for room until the session closes.
func (s *WebRTCSession) emit(event Event) {
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

// newPeerConnection creates a pion PeerConnection with the configured
// ICE servers. Loopback candidates are included so that participants on
// one machine (and tests) can connect.
func (s *WebRTCSession) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	connection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceConfig.Servers})
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	return connection, nil
}
