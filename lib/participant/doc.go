// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package participant defines participant identity and the host
// election rule.
//
// An [ID] is an opaque string, unique within a session and ordered
// lexicographically. Election is a pure function of the current
// membership: the host is the participant with the smallest ID among
// all active participants, local included. Nothing stores the result;
// callers recompute it on every membership change so a missed leave or
// join event cannot leave a stale host behind.
//
// The same ordering decides which side of a WebRTC pair sends the
// offer in package transport, so the host is also the participant that
// dials everyone else.
package participant
