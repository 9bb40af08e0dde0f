// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the serverless group channel that
// participants in a shared scene use to reach each other.
//
// [Session] is the interface the coordinator consumes: join and leave,
// send a datagram on the [Reliable] or [Unreliable] channel to every
// member or to named recipients, and read inbound datagrams and
// session events. Events report the session state (waiting, joined,
// invalidated) and, on every membership change, the full sorted list
// of active remote members with their near (co-located) flag.
//
// [WebRTCSession] is the network implementation. It forms a full mesh
// of pion/webrtc PeerConnections, one per remote participant, each
// carrying an ordered "reliable" data channel and an unordered,
// zero-retransmit "unreliable" one. When two participants discover
// each other, a deterministic rule picks who dials: the participant
// whose ID is lexicographically smaller publishes the offer. Reliable
// datagrams larger than one data channel message are fragmented with
// a one-byte frame header and reassembled on receipt.
//
// Signaling is abstracted behind the [Signaler] interface, which
// publishes presence records and exchanges SDP offers and answers in
// vanilla ICE mode (all candidates gathered before signaling).
// [DirectorySignaler] stores them as CBOR files in a shared directory
// so processes on one machine, or on machines sharing a mount, can
// find each other without a server. [MemorySignaler] provides an
// in-process implementation for tests. [ICEConfig] holds STUN/TURN
// servers.
//
// [MemoryHub] and [MemorySession] implement Session in process for
// tests, with a drop filter to simulate loss and a tap to observe
// every datagram sent.
package transport
