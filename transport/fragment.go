// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

// Reliable data channel messages carry a one-byte frame header so that
// datagrams larger than one SCTP message (anchor world maps, large full
// syncs) can be split. The reliable channel is ordered, so fragments
// of one datagram arrive contiguously and in sequence.
const (
	frameWhole byte = 0x00 // complete datagram
	frameMore  byte = 0x01 // fragment, more follow
	frameLast  byte = 0x02 // final fragment
)

// maxMessageSize is the largest data channel message this package
// sends. 16 KiB is the size every WebRTC implementation accepts without
// relying on the max-message-size SDP attribute.
const maxMessageSize = 16 * 1024

// maxReassembledSize bounds a reassembled reliable datagram.
const maxReassembledSize = 80 << 20

var errMalformedFrame = errors.New("malformed data channel frame")

// fragment splits data into framed messages of at most maxMessageSize
// bytes each.
func fragment(data []byte) [][]byte {
	const chunk = maxMessageSize - 1
	if len(data) <= chunk {
		return [][]byte{append([]byte{frameWhole}, data...)}
	}

	frames := make([][]byte, 0, (len(data)+chunk-1)/chunk)
	for offset := 0; offset < len(data); offset += chunk {
		end := min(offset+chunk, len(data))
		flag := frameMore
		if end == len(data) {
			flag = frameLast
		}
		frame := make([]byte, 0, 1+end-offset)
		frame = append(frame, flag)
		frame = append(frame, data[offset:end]...)
		frames = append(frames, frame)
	}
	return frames
}

// reassembler rebuilds datagrams from one peer's reliable frames. Not
// safe for concurrent use; pion delivers a channel's messages serially.
type reassembler struct {
	buffer  []byte
	pending bool
}

// push consumes one frame. It returns the datagram and true when the
// frame completes one. A malformed frame or an oversized datagram
// discards any partial state and returns an error.
func (r *reassembler) push(frame []byte) ([]byte, bool, error) {
	if len(frame) == 0 {
		r.reset()
		return nil, false, fmt.Errorf("%w: empty", errMalformedFrame)
	}
	flag, body := frame[0], frame[1:]

	switch flag {
	case frameWhole:
		if r.pending {
			r.reset()
			return nil, false, fmt.Errorf("%w: whole datagram inside a fragmented one", errMalformedFrame)
		}
		return body, true, nil

	case frameMore, frameLast:
		if len(r.buffer)+len(body) > maxReassembledSize {
			r.reset()
			return nil, false, fmt.Errorf("%w: reassembled datagram exceeds %d bytes", errMalformedFrame, maxReassembledSize)
		}
		r.buffer = append(r.buffer, body...)
		r.pending = true
		if flag == frameMore {
			return nil, false, nil
		}
		datagram := r.buffer
		r.buffer = nil
		r.pending = false
		return datagram, true, nil

	default:
		r.reset()
		return nil, false, fmt.Errorf("%w: unknown flag 0x%02x", errMalformedFrame, flag)
	}
}

func (r *reassembler) reset() {
	r.buffer = nil
	r.pending = false
}
