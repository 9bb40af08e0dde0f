// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstate

import (
	"testing"

	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
)

func transformAt(x float32, anchor string) message.UniversalTransform {
	transform := message.IdentityTransform(anchor)
	transform.Position = message.Vector3{x, 0, 0}
	return transform
}

func owner(id participant.ID) *participant.ID { return &id }

func TestApplyAddIdempotent(t *testing.T) {
	store := New()
	add := message.AddModel{ModelType: "chair", InstanceID: "x", InitialTransform: transformAt(1, "")}

	if !store.ApplyAdd(add) {
		t.Fatal("first ApplyAdd reported no change")
	}
	if store.ApplyAdd(add) {
		t.Fatal("second ApplyAdd reported a change")
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}
	model, _ := store.Get("x")
	if model.Owner != nil {
		t.Errorf("Owner = %v, want nil", *model.Owner)
	}
}

func TestApplyAddDuplicateKeepsExistingTransform(t *testing.T) {
	store := New()
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "x", InitialTransform: transformAt(1, "")})
	store.ApplyTransform(message.ModelTransform{InstanceID: "x", NewTransform: transformAt(5, "")})

	store.ApplyAdd(message.AddModel{ModelType: "lamp", InstanceID: "x", InitialTransform: transformAt(9, "")})

	model, _ := store.Get("x")
	if model.Transform.Position[0] != 5 {
		t.Errorf("duplicate add changed transform: x = %v, want 5", model.Transform.Position[0])
	}
	if model.ModelType != "chair" {
		t.Errorf("duplicate add changed model type to %q", model.ModelType)
	}
}

func TestUnknownInstanceIsNoOp(t *testing.T) {
	store := New()
	if store.ApplyTransform(message.ModelTransform{InstanceID: "ghost"}) {
		t.Error("ApplyTransform on unknown instance reported a change")
	}
	if store.ApplyOwnership(message.OwnershipChange{EntityID: "ghost", NewOwner: owner("a")}) {
		t.Error("ApplyOwnership on unknown instance reported a change")
	}
	if store.ApplyRemove(message.RemoveModel{InstanceID: "ghost"}) {
		t.Error("ApplyRemove on unknown instance reported a change")
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
}

func TestApplyOwnershipAndRelease(t *testing.T) {
	store := New()
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "x"})

	store.ApplyOwnership(message.OwnershipChange{EntityID: "x", NewOwner: owner("p1")})
	model, _ := store.Get("x")
	if model.Owner == nil || *model.Owner != "p1" {
		t.Fatalf("Owner = %v, want p1", model.Owner)
	}

	// Last writer wins.
	store.ApplyOwnership(message.OwnershipChange{EntityID: "x", NewOwner: owner("p2")})
	model, _ = store.Get("x")
	if *model.Owner != "p2" {
		t.Fatalf("Owner = %v, want p2", *model.Owner)
	}

	store.ApplyOwnership(message.OwnershipChange{EntityID: "x"})
	model, _ = store.Get("x")
	if model.Owner != nil {
		t.Fatalf("Owner after release = %v, want nil", *model.Owner)
	}
}

func TestReplaceAllIsDestructive(t *testing.T) {
	store := New()
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "A", InitialTransform: transformAt(1, "anchor")})
	store.ApplyAdd(message.AddModel{ModelType: "table", InstanceID: "C", InitialTransform: transformAt(3, "anchor")})
	store.ApplyOwnership(message.OwnershipChange{EntityID: "A", NewOwner: owner("p1")})

	store.ReplaceAll(message.SyncAllModels{
		Models: []message.ModelRecord{
			{ModelType: "chair", InstanceID: "A", Transform: transformAt(1, "anchor")},
			{ModelType: "lamp", InstanceID: "B", Transform: transformAt(2, "anchor"), OwnerID: owner("p2")},
		},
		ReferenceAnchorID: "anchor",
	})

	snapshot := store.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snapshot))
	}
	if snapshot[0].InstanceID != "A" || snapshot[1].InstanceID != "B" {
		t.Fatalf("snapshot IDs = %s, %s; want A, B", snapshot[0].InstanceID, snapshot[1].InstanceID)
	}
	if _, exists := store.Get("C"); exists {
		t.Error("C survived ReplaceAll")
	}
	// A's owner is overwritten from the payload even though the rest
	// of the record is unchanged.
	if snapshot[0].Owner != nil {
		t.Errorf("A owner = %v, want nil from sync payload", *snapshot[0].Owner)
	}
	if snapshot[1].Owner == nil || *snapshot[1].Owner != "p2" {
		t.Errorf("B owner = %v, want p2", snapshot[1].Owner)
	}
	if store.ReferenceAnchor() != "anchor" {
		t.Errorf("ReferenceAnchor = %q, want anchor", store.ReferenceAnchor())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := New()
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "x"})
	store.ApplyOwnership(message.OwnershipChange{EntityID: "x", NewOwner: owner("p1")})

	snapshot := store.Snapshot()
	*snapshot[0].Owner = "mutated"
	snapshot[0].Transform.Position[0] = 42

	model, _ := store.Get("x")
	if *model.Owner != "p1" || model.Transform.Position[0] != 0 {
		t.Errorf("mutating snapshot leaked into store: %+v", model)
	}
}

func TestStaleAnchorTracking(t *testing.T) {
	store := New()
	store.SetReferenceAnchor("anchor-1")
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "x", InitialTransform: transformAt(1, "anchor-1")})
	store.ApplyAdd(message.AddModel{ModelType: "lamp", InstanceID: "y", InitialTransform: transformAt(1, "anchor-0")})

	if model, _ := store.Get("x"); model.Stale {
		t.Error("x tagged with the current anchor is stale")
	}
	if model, _ := store.Get("y"); !model.Stale {
		t.Error("y tagged with an old anchor is not stale")
	}

	store.SetReferenceAnchor("anchor-0")
	if model, _ := store.Get("x"); !model.Stale {
		t.Error("x not stale after anchor change")
	}
	if model, _ := store.Get("y"); model.Stale {
		t.Error("y still stale after anchor matches")
	}

	store.ApplyTransform(message.ModelTransform{InstanceID: "x", NewTransform: transformAt(2, "anchor-0")})
	if model, _ := store.Get("x"); model.Stale {
		t.Error("x still stale after re-anchored transform")
	}
}

func TestFullSyncMirrorsStore(t *testing.T) {
	store := New()
	store.SetReferenceAnchor("anchor")
	store.ApplyAdd(message.AddModel{ModelType: "lamp", InstanceID: "b", InitialTransform: transformAt(2, "anchor")})
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "a", InitialTransform: transformAt(1, "anchor")})
	store.ApplyOwnership(message.OwnershipChange{EntityID: "b", NewOwner: owner("p9")})

	sync := store.FullSync()
	if sync.ReferenceAnchorID != "anchor" {
		t.Errorf("ReferenceAnchorID = %q", sync.ReferenceAnchorID)
	}
	if len(sync.Models) != 2 || sync.Models[0].InstanceID != "a" || sync.Models[1].InstanceID != "b" {
		t.Fatalf("Models = %+v", sync.Models)
	}
	if sync.Models[1].OwnerID == nil || *sync.Models[1].OwnerID != "p9" {
		t.Errorf("b owner = %v, want p9", sync.Models[1].OwnerID)
	}

	replica := New()
	replica.ReplaceAll(sync)
	if replica.Len() != store.Len() || replica.ReferenceAnchor() != store.ReferenceAnchor() {
		t.Errorf("replica differs: len %d anchor %q", replica.Len(), replica.ReferenceAnchor())
	}
}

func TestClear(t *testing.T) {
	store := New()
	store.SetReferenceAnchor("anchor")
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "x"})
	store.Clear()
	if store.Len() != 0 || store.ReferenceAnchor() != "" {
		t.Errorf("Clear left len %d anchor %q", store.Len(), store.ReferenceAnchor())
	}
}

func TestRestoreAfterReplaceAll(t *testing.T) {
	store := New()
	store.ApplyAdd(message.AddModel{ModelType: "chair", InstanceID: "x", InitialTransform: transformAt(1, "anchor-1")})
	store.ApplyOwnership(message.OwnershipChange{EntityID: "x", NewOwner: owner("p2")})
	kept, _ := store.Get("x")

	store.ReplaceAll(message.SyncAllModels{ReferenceAnchorID: "anchor-2"})
	store.Restore(kept)

	model, exists := store.Get("x")
	if !exists {
		t.Fatal("restored instance missing")
	}
	if model.Owner == nil || *model.Owner != "p2" {
		t.Errorf("Owner = %v, want p2", model.Owner)
	}
	if model.Transform != transformAt(1, "anchor-1") {
		t.Errorf("Transform = %+v, want the preserved one", model.Transform)
	}
	if !model.Stale {
		t.Error("restored instance tagged with an old anchor is not stale")
	}

	*kept.Owner = "mutated"
	if model, _ := store.Get("x"); *model.Owner != "p2" {
		t.Error("Restore aliased the caller's owner")
	}
}
