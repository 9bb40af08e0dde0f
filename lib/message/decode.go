// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/sharedscene/lib/codec"
)

// ErrUnknownKind is returned by Decode for a structurally valid
// envelope whose kind this build does not recognize.
var ErrUnknownKind = errors.New("unknown message kind")

// Encode wraps m in an envelope tagged with m.Kind().
func Encode(m Message) ([]byte, error) {
	return codec.Encode(string(m.Kind()), m)
}

// Decode parses a datagram into its concrete payload type.
func Decode(data []byte) (Message, error) {
	envelope, err := codec.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	var decoded Message
	switch Kind(envelope.Kind) {
	case KindAddModel:
		decoded, err = decodeAs[AddModel](envelope.Payload)
	case KindRemoveModel:
		decoded, err = decodeAs[RemoveModel](envelope.Payload)
	case KindModelTransform:
		decoded, err = decodeAs[ModelTransform](envelope.Payload)
	case KindSelectModel:
		decoded, err = decodeAs[SelectModel](envelope.Payload)
	case KindOwnershipChange:
		decoded, err = decodeAs[OwnershipChange](envelope.Payload)
	case KindSyncAllModels:
		decoded, err = decodeAs[SyncAllModels](envelope.Payload)
	case KindRequestSync:
		decoded, err = decodeAs[RequestSync](envelope.Payload)
	case KindAnchor:
		decoded, err = decodeAs[Anchor](envelope.Payload)
	case KindProtocolHandshake:
		decoded, err = decodeAs[ProtocolHandshake](envelope.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, envelope.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", envelope.Kind, err)
	}
	if err := validate(decoded); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", envelope.Kind, err)
	}
	return decoded, nil
}

func decodeAs[T Message](payload []byte) (Message, error) {
	value, err := codec.DecodePayload[T](payload)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// validate rejects payloads without the identifiers receivers key on.
func validate(m Message) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: missing %s", codec.ErrMalformed, field)
	}
	switch payload := m.(type) {
	case AddModel:
		if payload.InstanceID == "" {
			return missing("instance_id")
		}
	case RemoveModel:
		if payload.InstanceID == "" {
			return missing("instance_id")
		}
	case ModelTransform:
		if payload.InstanceID == "" {
			return missing("instance_id")
		}
	case SelectModel:
		if payload.EntityID == "" {
			return missing("entity_id")
		}
	case OwnershipChange:
		if payload.EntityID == "" {
			return missing("entity_id")
		}
	case SyncAllModels:
		for index, record := range payload.Models {
			if record.InstanceID == "" {
				return missing(fmt.Sprintf("models[%d].instance_id", index))
			}
		}
	case Anchor:
		if payload.AnchorID == "" {
			return missing("anchor_id")
		}
		if payload.AnchorType != AnchorTypeWorldAnchor && payload.AnchorType != AnchorTypeWorldMap {
			return fmt.Errorf("%w: anchor_type %q", codec.ErrMalformed, payload.AnchorType)
		}
	case ProtocolHandshake:
		if payload.SenderID == "" {
			return missing("sender_id")
		}
	}
	return nil
}
