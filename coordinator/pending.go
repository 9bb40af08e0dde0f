// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/lib/sessionstate"
	"github.com/bureau-foundation/sharedscene/transport"
)

// pendingEdits are the adds and removes this participant authored that
// no full sync has reflected yet. A full sync its sender built before
// the edit reached it would otherwise undo the edit here.
type pendingEdits struct {
	adds    map[message.InstanceID]struct{}
	removes map[message.InstanceID]struct{}
}

func newPendingEdits() pendingEdits {
	return pendingEdits{
		adds:    make(map[message.InstanceID]struct{}),
		removes: make(map[message.InstanceID]struct{}),
	}
}

func (p pendingEdits) added(id message.InstanceID) {
	delete(p.removes, id)
	p.adds[id] = struct{}{}
}

func (p pendingEdits) removed(id message.InstanceID) {
	delete(p.adds, id)
	p.removes[id] = struct{}{}
}

// remoteAdd and remoteRemove settle an entry another participant has
// since superseded.
func (p pendingEdits) remoteAdd(id message.InstanceID)    { delete(p.removes, id) }
func (p pendingEdits) remoteRemove(id message.InstanceID) { delete(p.adds, id) }

func (p pendingEdits) clear() {
	clear(p.adds)
	clear(p.removes)
}

func (p pendingEdits) empty() bool {
	return len(p.adds) == 0 && len(p.removes) == 0
}

// trackingEdits reports whether local edits can still be contradicted
// by a full sync. A seeded host is the source of every full sync, so
// it has nothing to guard.
func (c *Coordinator) trackingEdits() bool {
	return !c.host || !c.seeded
}

// settleEdits drops the pending set once this participant becomes the
// seeded host.
func (c *Coordinator) settleEdits() {
	if !c.trackingEdits() {
		c.pending.clear()
	}
}

// applyFullSync replaces the store with sync, keeping the local edits
// the sync does not reflect yet and re-sending them so the sender
// converges. Edits the sync does reflect are acknowledged.
func (c *Coordinator) applyFullSync(from participant.ID, sync message.SyncAllModels) {
	inSync := make(map[message.InstanceID]struct{}, len(sync.Models))
	for _, record := range sync.Models {
		inSync[record.InstanceID] = struct{}{}
	}

	var kept []sessionstate.ModelInstance
	for id := range c.pending.adds {
		if _, reflected := inSync[id]; reflected {
			delete(c.pending.adds, id)
			continue
		}
		if model, exists := c.store.Get(id); exists {
			kept = append(kept, model)
		} else {
			delete(c.pending.adds, id)
		}
	}
	var stillRemoved []message.InstanceID
	for id := range c.pending.removes {
		if _, present := inSync[id]; !present {
			delete(c.pending.removes, id)
			continue
		}
		stillRemoved = append(stillRemoved, id)
	}

	c.store.ReplaceAll(sync)
	for _, model := range kept {
		c.store.Restore(model)
	}
	for _, id := range stillRemoved {
		c.store.ApplyRemove(message.RemoveModel{InstanceID: id})
		c.limiter.forget(id)
	}
	if len(kept) > 0 || len(stillRemoved) > 0 {
		c.logger.Debug("full sync predates local edits",
			"from", from,
			"kept_adds", len(kept),
			"kept_removes", len(stillRemoved),
		)
	}
	c.delegate.ApplyFullSync(c.store.Snapshot(), c.store.ReferenceAnchor())

	for _, model := range kept {
		add := message.AddModel{ModelType: model.ModelType, InstanceID: model.InstanceID, InitialTransform: model.Transform}
		if err := c.send(transport.Reliable, add); err != nil {
			c.logger.Warn("re-sending local add failed", "instance", model.InstanceID, "error", err)
		}
	}
	for _, id := range stillRemoved {
		if err := c.send(transport.Reliable, message.RemoveModel{InstanceID: id}); err != nil {
			c.logger.Warn("re-sending local remove failed", "instance", id, "error", err)
		}
	}

	wasSeeded := c.seeded
	c.seeded = true
	c.stateReceived(true)
	c.settleEdits()
	if c.host && !wasSeeded {
		c.shareSeededState(from)
	}
}
