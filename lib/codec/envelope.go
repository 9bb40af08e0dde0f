// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every decode error: truncated bytes,
// corrupt CBOR, an envelope without a kind, or a payload that does not
// match the requested type.
var ErrMalformed = errors.New("malformed datagram")

// Envelope is the outer structure of every datagram. Kind selects the
// payload type; Payload is the CBOR encoding of that type, kept opaque
// until the receiver has dispatched on Kind.
type Envelope struct {
	Kind    string `cbor:"kind"`
	Payload []byte `cbor:"payload"`
}

// Encode serializes payload and wraps it in an envelope tagged with
// kind. The kind must be non-empty.
func Encode(kind string, payload any) ([]byte, error) {
	if kind == "" {
		return nil, errors.New("encoding envelope: empty kind")
	}
	inner, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	data, err := encMode.Marshal(Envelope{Kind: kind, Payload: inner})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", kind, err)
	}
	return data, nil
}

// DecodeEnvelope parses the outer structure of a datagram without
// touching the payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}
	var envelope Envelope
	if err := decMode.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if envelope.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: envelope has no kind", ErrMalformed)
	}
	return envelope, nil
}

// DecodePayload decodes an envelope payload into T.
func DecodePayload[T any](payload []byte) (T, error) {
	var value T
	if len(payload) == 0 {
		return value, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := decMode.Unmarshal(payload, &value); err != nil {
		return value, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return value, nil
}
