// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstate

import (
	"slices"
	"strings"

	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// ModelInstance is one placed model.
type ModelInstance struct {
	InstanceID message.InstanceID
	ModelType  string
	Transform  message.UniversalTransform

	// Owner is the participant currently allowed to author the
	// transform. Nil means unowned.
	Owner *participant.ID

	// Stale is set when the transform's reference anchor differs from
	// the store's current anchor. The transform is kept but is not
	// meaningful until re-expressed against the current anchor.
	Stale bool
}

// Record converts the instance to its full-sync form.
func (m ModelInstance) Record() message.ModelRecord {
	return message.ModelRecord{
		ModelType:  m.ModelType,
		InstanceID: m.InstanceID,
		Transform:  m.Transform,
		OwnerID:    cloneOwner(m.Owner),
	}
}

func (m ModelInstance) clone() ModelInstance {
	m.Owner = cloneOwner(m.Owner)
	return m
}

func cloneOwner(owner *participant.ID) *participant.ID {
	if owner == nil {
		return nil
	}
	copied := *owner
	return &copied
}

// Store maps instance IDs to model instances.
type Store struct {
	models            map[message.InstanceID]*ModelInstance
	referenceAnchorID string
}

// New returns an empty store.
func New() *Store {
	return &Store{models: make(map[message.InstanceID]*ModelInstance)}
}

// ApplyAdd inserts the model unowned. Returns false if the instance ID
// is already present, in which case the existing entry is untouched.
func (s *Store) ApplyAdd(add message.AddModel) bool {
	if _, exists := s.models[add.InstanceID]; exists {
		return false
	}
	s.models[add.InstanceID] = &ModelInstance{
		InstanceID: add.InstanceID,
		ModelType:  add.ModelType,
		Transform:  add.InitialTransform,
		Stale:      s.isStale(add.InitialTransform),
	}
	return true
}

// ApplyRemove erases the instance. Returns false if it was not present.
func (s *Store) ApplyRemove(remove message.RemoveModel) bool {
	if _, exists := s.models[remove.InstanceID]; !exists {
		return false
	}
	delete(s.models, remove.InstanceID)
	return true
}

// ApplyTransform replaces the transform of an existing instance.
// Returns false if the instance is unknown.
func (s *Store) ApplyTransform(update message.ModelTransform) bool {
	model, exists := s.models[update.InstanceID]
	if !exists {
		return false
	}
	model.Transform = update.NewTransform
	model.Stale = s.isStale(update.NewTransform)
	return true
}

// ApplyOwnership sets the owner of an existing instance. Returns false
// if the instance is unknown.
func (s *Store) ApplyOwnership(change message.OwnershipChange) bool {
	model, exists := s.models[change.EntityID]
	if !exists {
		return false
	}
	model.Owner = cloneOwner(change.NewOwner)
	return true
}

// ReplaceAll discards every instance and repopulates the store from a
// full sync, adopting its reference anchor. Duplicate instance IDs
// within the sync keep the last record.
func (s *Store) ReplaceAll(sync message.SyncAllModels) {
	clear(s.models)
	s.referenceAnchorID = sync.ReferenceAnchorID
	for _, record := range sync.Models {
		s.models[record.InstanceID] = &ModelInstance{
			InstanceID: record.InstanceID,
			ModelType:  record.ModelType,
			Transform:  record.Transform,
			Owner:      cloneOwner(record.OwnerID),
			Stale:      s.isStale(record.Transform),
		}
	}
}

// Restore puts a copy of model back into the store as it was,
// owner included, replacing any entry with the same instance ID.
func (s *Store) Restore(model ModelInstance) {
	restored := model.clone()
	restored.Stale = s.isStale(restored.Transform)
	s.models[restored.InstanceID] = &restored
}

// SetReferenceAnchor changes the anchor every transform must be
// expressed against and recomputes staleness.
func (s *Store) SetReferenceAnchor(anchorID string) {
	s.referenceAnchorID = anchorID
	for _, model := range s.models {
		model.Stale = s.isStale(model.Transform)
	}
}

// ReferenceAnchor returns the current reference anchor ID.
func (s *Store) ReferenceAnchor() string {
	return s.referenceAnchorID
}

// Get returns a copy of the instance.
func (s *Store) Get(id message.InstanceID) (ModelInstance, bool) {
	model, exists := s.models[id]
	if !exists {
		return ModelInstance{}, false
	}
	return model.clone(), true
}

// Len returns the number of instances.
func (s *Store) Len() int {
	return len(s.models)
}

// Snapshot returns copies of every instance sorted by instance ID.
func (s *Store) Snapshot() []ModelInstance {
	snapshot := make([]ModelInstance, 0, len(s.models))
	for _, model := range s.models {
		snapshot = append(snapshot, model.clone())
	}
	slices.SortFunc(snapshot, func(a, b ModelInstance) int {
		return strings.Compare(string(a.InstanceID), string(b.InstanceID))
	})
	return snapshot
}

// FullSync builds the full-sync payload describing the whole store.
func (s *Store) FullSync() message.SyncAllModels {
	snapshot := s.Snapshot()
	records := make([]message.ModelRecord, 0, len(snapshot))
	for _, model := range snapshot {
		records = append(records, model.Record())
	}
	return message.SyncAllModels{
		Models:            records,
		ReferenceAnchorID: s.referenceAnchorID,
	}
}

// Clear discards every instance and the reference anchor.
func (s *Store) Clear() {
	clear(s.models)
	s.referenceAnchorID = ""
}

// isStale reports whether transform is tagged with an anchor other
// than the current one. With no current anchor nothing is stale.
func (s *Store) isStale(transform message.UniversalTransform) bool {
	if s.referenceAnchorID == "" || transform.ReferenceAnchorID == "" {
		return false
	}
	return transform.ReferenceAnchorID != s.referenceAnchorID
}
