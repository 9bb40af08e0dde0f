// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import "errors"

var (
	// ErrUnknownInstance is returned by local operations naming an
	// instance that is not in the session state.
	ErrUnknownInstance = errors.New("unknown model instance")

	// ErrNotJoined is returned by local operations attempted before
	// the session reports StateJoined.
	ErrNotJoined = errors.New("session not joined")

	// ErrInvalidated is returned by every operation once the session
	// has been torn down.
	ErrInvalidated = errors.New("session invalidated")
)
