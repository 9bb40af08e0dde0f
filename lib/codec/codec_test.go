// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type samplePayload struct {
	Name     string     `cbor:"name"`
	Position [3]float32 `cbor:"position"`
	Owner    *string    `cbor:"owner,omitempty"`
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	owner := "participant-a"
	original := samplePayload{
		Name:     "chair",
		Position: [3]float32{0.5, -1.25, 3},
		Owner:    &owner,
	}

	data, err := Encode("sample", original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	envelope, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if envelope.Kind != "sample" {
		t.Fatalf("Kind = %q, want %q", envelope.Kind, "sample")
	}

	decoded, err := DecodePayload[samplePayload](envelope.Payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Name != original.Name || decoded.Position != original.Position {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if decoded.Owner == nil || *decoded.Owner != owner {
		t.Errorf("Owner = %v, want %q", decoded.Owner, owner)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	payload := samplePayload{Name: "lamp", Position: [3]float32{1, 2, 3}}

	first, err := Encode("sample", payload)
	if err != nil {
		t.Fatalf("first Encode: %v", err)
	}
	second, err := Encode("sample", payload)
	if err != nil {
		t.Fatalf("second Encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncodeRejectsEmptyKind(t *testing.T) {
	if _, err := Encode("", samplePayload{}); err == nil {
		t.Fatal("Encode with empty kind should fail")
	}
}

func TestDecodeEnvelopeUnknownKindIsStructurallyValid(t *testing.T) {
	data, err := Encode("from_the_future", map[string]any{"extra": 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	envelope, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope should accept unknown kinds: %v", err)
	}
	if envelope.Kind != "from_the_future" {
		t.Errorf("Kind = %q", envelope.Kind)
	}
}

func TestDecodeEnvelopeFailures(t *testing.T) {
	valid, err := Encode("sample", samplePayload{Name: "table"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	noKind, err := Marshal(Envelope{Payload: []byte{0xa0}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xFF, 0xFE, 0xFD}},
		{"truncated", valid[:len(valid)-3]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x01)},
		{"missing kind", noKind},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeEnvelope(test.data)
			if err == nil {
				t.Fatal("DecodeEnvelope succeeded, want error")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error %v does not wrap ErrMalformed", err)
			}
		})
	}
}

func TestDecodePayloadTypeMismatch(t *testing.T) {
	data, err := Encode("sample", "just a string")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	envelope, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	_, err = DecodePayload[samplePayload](envelope.Payload)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("DecodePayload error = %v, want ErrMalformed", err)
	}
}

func TestDecodePayloadIgnoresUnknownFields(t *testing.T) {
	type newer struct {
		Name  string `cbor:"name"`
		Extra int    `cbor:"extra"`
	}
	data, err := Marshal(newer{Name: "sofa", Extra: 9})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := DecodePayload[samplePayload](data)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Name != "sofa" {
		t.Errorf("Name = %q, want %q", decoded.Name, "sofa")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Encode("sample", samplePayload{Name: "desk"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"kind"`) || !strings.Contains(notation, `"sample"`) {
		t.Errorf("notation %q missing envelope fields", notation)
	}
}

func BenchmarkEncode(b *testing.B) {
	payload := samplePayload{Name: "chair", Position: [3]float32{1, 2, 3}}
	b.ReportAllocs()
	for b.Loop() {
		Encode("sample", payload)
	}
}
