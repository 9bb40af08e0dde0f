// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"github.com/google/uuid"

	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Message is implemented by every payload in the catalog.
type Message interface {
	Kind() Kind
}

// InstanceID identifies one placed model for the lifetime of the
// session. The creator assigns it; every participant uses the same
// value.
type InstanceID string

// NewInstanceID returns a random instance ID.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

func (id InstanceID) String() string { return string(id) }

// Vector3 is an x, y, z triple.
type Vector3 [3]float32

// Quaternion is a rotation in x, y, z, w order.
type Quaternion [4]float32

// IdentityRotation is the no-rotation quaternion.
var IdentityRotation = Quaternion{0, 0, 0, 1}

// UniversalTransform places a model relative to the reference anchor
// named by ReferenceAnchorID.
type UniversalTransform struct {
	Position          Vector3    `cbor:"position"`
	Rotation          Quaternion `cbor:"rotation"`
	Scale             Vector3    `cbor:"scale"`
	ReferenceAnchorID string     `cbor:"reference_anchor_id"`
}

// IdentityTransform returns a transform at the anchor origin with no
// rotation and unit scale.
func IdentityTransform(referenceAnchorID string) UniversalTransform {
	return UniversalTransform{
		Rotation:          IdentityRotation,
		Scale:             Vector3{1, 1, 1},
		ReferenceAnchorID: referenceAnchorID,
	}
}

// AddModel announces a newly placed model.
type AddModel struct {
	ModelType        string             `cbor:"model_type"`
	InstanceID       InstanceID         `cbor:"instance_id"`
	InitialTransform UniversalTransform `cbor:"initial_transform"`
}

// RemoveModel announces a deleted model.
type RemoveModel struct {
	InstanceID InstanceID `cbor:"instance_id"`
}

// ModelTransform carries a new transform for an existing model. Sent
// on the unreliable channel during manipulation.
type ModelTransform struct {
	InstanceID   InstanceID         `cbor:"instance_id"`
	NewTransform UniversalTransform `cbor:"new_transform"`
}

// SelectModel is an advisory highlight: ParticipantID has selected
// EntityID.
type SelectModel struct {
	EntityID      InstanceID     `cbor:"entity_id"`
	ParticipantID participant.ID `cbor:"participant_id"`
}

// OwnershipChange sets the participant allowed to author EntityID's
// transform. A nil NewOwner releases the entity.
type OwnershipChange struct {
	EntityID InstanceID      `cbor:"entity_id"`
	NewOwner *participant.ID `cbor:"new_owner,omitempty"`
}

// ModelRecord is one model inside a full sync.
type ModelRecord struct {
	ModelType  string             `cbor:"model_type"`
	InstanceID InstanceID         `cbor:"instance_id"`
	Transform  UniversalTransform `cbor:"transform"`
	OwnerID    *participant.ID    `cbor:"owner_id,omitempty"`
}

// SyncAllModels is the complete session state. Receivers replace their
// store with it.
type SyncAllModels struct {
	Models            []ModelRecord `cbor:"models"`
	ReferenceAnchorID string        `cbor:"reference_anchor_id"`
}

// RequestSync asks the host for a SyncAllModels.
type RequestSync struct {
	ParticipantID participant.ID `cbor:"participant_id"`
}

// AnchorType distinguishes a shared world anchor from a full world map.
type AnchorType string

const (
	AnchorTypeWorldAnchor AnchorType = "world_anchor"
	AnchorTypeWorldMap    AnchorType = "world_map"
)

// Anchor shares the reference anchor. AnchorData carries the opaque
// anchor or world-map blob when the recipient can use it.
type Anchor struct {
	AnchorID   string     `cbor:"anchor_id"`
	AnchorType AnchorType `cbor:"anchor_type"`
	AnchorData []byte     `cbor:"anchor_data,omitempty"`
}

// ProtocolHandshake advertises the sender's capabilities.
type ProtocolHandshake struct {
	ProtocolVersion              int            `cbor:"protocol_version"`
	AppName                      string         `cbor:"app_name"`
	Platform                     string         `cbor:"platform"`
	SenderID                     participant.ID `cbor:"sender_id"`
	SupportsModelSync            bool           `cbor:"supports_model_sync"`
	SupportsARWorldMap           bool           `cbor:"supports_ar_world_map"`
	SupportsUnreliableTransforms bool           `cbor:"supports_unreliable_transforms"`
}

func (AddModel) Kind() Kind          { return KindAddModel }
func (RemoveModel) Kind() Kind       { return KindRemoveModel }
func (ModelTransform) Kind() Kind    { return KindModelTransform }
func (SelectModel) Kind() Kind       { return KindSelectModel }
func (OwnershipChange) Kind() Kind   { return KindOwnershipChange }
func (SyncAllModels) Kind() Kind     { return KindSyncAllModels }
func (RequestSync) Kind() Kind       { return KindRequestSync }
func (Anchor) Kind() Kind            { return KindAnchor }
func (ProtocolHandshake) Kind() Kind { return KindProtocolHandshake }
