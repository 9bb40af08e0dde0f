// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides sharedscene's wire encoding: a CBOR
// configuration shared by every package, and the tagged envelope that
// carries every peer-to-peer message.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer and float encoding, no indefinite-length
// items. Same logical message always produces identical bytes, which
// keeps anchor digests and test fixtures stable.
//
// # Envelope
//
// Every datagram on a session channel is one [Envelope]: a text kind
// tag followed by the payload as an opaque CBOR byte string. Receivers
// read the tag first and only then decode the payload into the type
// the tag implies:
//
//	data, err := codec.Encode("add_model", payload)
//	envelope, err := codec.DecodeEnvelope(data)
//	payload, err := codec.DecodePayload[message.AddModel](envelope.Payload)
//
// Because the payload stays opaque until dispatch, an envelope whose
// kind this build does not know still decodes structurally; rejecting
// the kind is the catalog's decision, not the codec's.
//
// Every decode failure wraps [ErrMalformed]. Decode errors are local:
// callers log and drop the datagram, they never answer the sender.
//
// # Struct Tag Rules
//
// Wire types carry `cbor` tags with short snake_case keys. Unknown keys
// are ignored on decode so that a newer peer can add optional fields
// without breaking older peers in the same session.
package codec
