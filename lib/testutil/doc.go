// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for sharedscene
// packages.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// timeout safety valve pattern (select with a wall-clock fallback) so
// that individual tests do not need direct time.After calls. Tests of
// timer-driven behavior use the fake clock from lib/clock; these
// helpers only bound how long a test waits for goroutines that are
// already running.
//
// [UniqueID] generates monotonically increasing identifiers for tests
// that need distinguishable participant or instance IDs.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no sharedscene-internal dependencies.
package testutil
