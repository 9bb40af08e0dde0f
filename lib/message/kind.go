// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

// Kind is the envelope tag identifying a payload type. Values are
// protocol constants; renaming one breaks interoperability with
// deployed peers.
type Kind string

const (
	KindAddModel          Kind = "add_model"
	KindRemoveModel       Kind = "remove_model"
	KindModelTransform    Kind = "model_transform"
	KindSelectModel       Kind = "select_model"
	KindOwnershipChange   Kind = "ownership_change"
	KindSyncAllModels     Kind = "sync_all_models"
	KindRequestSync       Kind = "request_sync"
	KindAnchor            Kind = "anchor"
	KindProtocolHandshake Kind = "protocol_handshake"
)

// Kinds lists every kind this build can decode.
var Kinds = []Kind{
	KindAddModel,
	KindRemoveModel,
	KindModelTransform,
	KindSelectModel,
	KindOwnershipChange,
	KindSyncAllModels,
	KindRequestSync,
	KindAnchor,
	KindProtocolHandshake,
}

func (k Kind) String() string { return string(k) }

// ProtocolVersion is the handshake protocol version of this build.
const ProtocolVersion = 1
