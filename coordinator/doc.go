// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator keeps one participant's placed models consistent
// with every other participant in a shared scene.
//
// A [Coordinator] consumes a [transport.Session] and drives a small
// state machine from its events: idle, waiting, joined, invalidated.
// While joined it:
//
//   - elects the host on every membership change: the participant
//     with the lexicographically smallest ID, recomputed from scratch
//   - broadcasts local edits (add, remove, transform, select,
//     ownership, anchor) and applies remote ones to a
//     [sessionstate.Store] before forwarding them to the [Delegate]
//   - rate-limits live transforms per instance on the unreliable
//     channel and always delivers the final transform of a gesture on
//     both channels
//   - runs the late-join protocol: a non-host sends RequestSync on
//     join and repeats it on a short schedule until state arrives
//   - as host, answers RequestSync with a broadcast full sync and
//     sends new members the anchor, the full state and a handshake,
//     then repeats the full sync once
//
// Ownership is optimistic and last-writer-wins in each participant's
// processing order. There is no lock protocol.
//
// All session state is owned by the goroutine running [Coordinator.Run].
// Transport pumps, timers and public methods post closures to a single
// FIFO inbox, so state is never touched concurrently and every public
// method observes the effect of everything queued before it. Timers
// come from an injected [clock.Clock]; tests drive them with
// [clock.Fake].
package coordinator
