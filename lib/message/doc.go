// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package message is the catalog of payloads exchanged between session
// participants.
//
// Each payload type implements [Message] and reports its [Kind], which
// becomes the envelope tag on the wire. [Encode] wraps a message in a
// [codec.Envelope]; [Decode] reads the tag and decodes the payload into
// the matching concrete type, returned by value:
//
//	switch payload := decoded.(type) {
//	case message.AddModel:
//	case message.SyncAllModels:
//	}
//
// [Decode] rejects kinds this build does not know with [ErrUnknownKind]
// and payloads missing their identifying fields with
// [codec.ErrMalformed]. Both are local decode errors.
//
// Transforms ([UniversalTransform]) are expressed relative to a shared
// reference anchor named by ReferenceAnchorID. Rotation is a unit
// quaternion in x, y, z, w order.
package message
