// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstate holds the in-memory view of every placed model
// in a session: instance, model type, transform, and owner, plus the
// reference anchor all transforms are expressed against.
//
// Mutations are keyed by instance ID and idempotent. Adding an ID that
// already exists is a no-op, because a local add and a rebroadcast
// full sync can race to insert the same model. Updating or removing an
// unknown ID is also a no-op: the model may have been removed
// concurrently by another participant. Each Apply method reports
// whether it changed anything so callers can skip forwarding no-ops.
//
// [Store.ReplaceAll] is the only destructive operation. It clears the
// store and repopulates it from a full sync.
//
// A Store is not safe for concurrent use. The coordinator owns it on
// its actor goroutine; other goroutines read [Store.Snapshot] copies
// obtained through the coordinator.
package sessionstate
