// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/anchorpack"
	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/message"
)

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultTransformRateHz   = 30
	DefaultJoinerRepeatDelay = 600 * time.Millisecond
)

// DefaultResyncDelays is the late-join resync schedule: each entry is
// the wait after the previous RequestSync.
var DefaultResyncDelays = []time.Duration{1200 * time.Millisecond, 1800 * time.Millisecond}

// Options configures a Coordinator.
type Options struct {
	// Capabilities is what this participant advertises in its
	// handshake. ProtocolVersion defaults to message.ProtocolVersion.
	Capabilities capability.Set

	// TransformRateHz caps live transform sends per instance. Zero
	// selects DefaultTransformRateHz; negative disables limiting.
	TransformRateHz float64

	// MirrorTransforms sends every live transform on the reliable
	// channel as well as the unreliable one.
	MirrorTransforms bool

	// ResyncDelays overrides DefaultResyncDelays. An empty non-nil
	// slice disables late-join resends.
	ResyncDelays []time.Duration

	// JoinerRepeatDelay is how long the host waits before repeating
	// the full sync to new members. Zero selects
	// DefaultJoinerRepeatDelay; negative disables the repeat.
	JoinerRepeatDelay time.Duration

	// AnchorCompression packs anchor data before it is sent.
	AnchorCompression anchorpack.Compression

	// Clock drives every protocol timer and the transform limiter.
	// Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Capabilities.ProtocolVersion == 0 {
		o.Capabilities.ProtocolVersion = message.ProtocolVersion
	}
	if o.TransformRateHz == 0 {
		o.TransformRateHz = DefaultTransformRateHz
	}
	if o.ResyncDelays == nil {
		o.ResyncDelays = DefaultResyncDelays
	}
	if o.JoinerRepeatDelay == 0 {
		o.JoinerRepeatDelay = DefaultJoinerRepeatDelay
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
