// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/lib/sessionstate"
)

// console serializes writes from the shell and the delegate, which run
// on different goroutines.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// sceneDelegate prints every remote change. The peer has no renderer,
// so the session state held by the coordinator is the whole scene.
type sceneDelegate struct {
	out    *console
	logger *slog.Logger
}

func newSceneDelegate(out *console, logger *slog.Logger) *sceneDelegate {
	return &sceneDelegate{out: out, logger: logger}
}

func (d *sceneDelegate) ApplyAdd(model sessionstate.ModelInstance) {
	d.out.printf("added %s %s at %s\n", model.ModelType, model.InstanceID, formatVector(model.Transform.Position))
}

func (d *sceneDelegate) ApplyRemove(id message.InstanceID) {
	d.out.printf("removed %s\n", id)
}

// Live transforms arrive at up to the sender's rate limit, so they go
// to the debug log instead of the console.
func (d *sceneDelegate) ApplyTransform(id message.InstanceID, transform message.UniversalTransform) {
	d.logger.Debug("remote transform", "instance", id, "position", formatVector(transform.Position))
}

func (d *sceneDelegate) ApplySelection(id message.InstanceID, by participant.ID) {
	d.out.printf("%s selected %s\n", by, id)
}

func (d *sceneDelegate) ApplyOwnership(id message.InstanceID, owner *participant.ID) {
	if owner == nil {
		d.out.printf("%s released\n", id)
		return
	}
	d.out.printf("%s now owned by %s\n", id, *owner)
}

func (d *sceneDelegate) ApplyAnchor(anchor message.Anchor) {
	d.out.printf("anchor %s (%s, %d bytes of data)\n", anchor.AnchorID, anchor.AnchorType, len(anchor.AnchorData))
}

func (d *sceneDelegate) ApplyFullSync(models []sessionstate.ModelInstance, referenceAnchorID string) {
	d.out.printf("scene replaced: %d models, reference anchor %q\n", len(models), referenceAnchorID)
}

func (d *sceneDelegate) PeerCapabilities(id participant.ID, capabilities capability.Set) {
	d.logger.Info("peer capabilities",
		"peer", id,
		"app", capabilities.AppName,
		"platform", capabilities.Platform,
		"protocol_version", capabilities.ProtocolVersion,
		"world_map", capabilities.SupportsWorldAnchor,
		"unreliable_transforms", capabilities.SupportsUnreliableTransforms,
	)
}

func formatVector(v message.Vector3) string {
	return fmt.Sprintf("(%g, %g, %g)", v[0], v[1], v[2])
}
