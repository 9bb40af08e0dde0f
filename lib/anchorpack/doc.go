// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package anchorpack frames the opaque spatial-anchor blobs carried in
// anchor messages.
//
// World maps run from tens of kilobytes to several megabytes and are
// re-shared every time a participant joins, so they are compressed
// before they go on the reliable channel and identified by a BLAKE3
// digest so the host can skip re-sending a blob a participant already
// holds.
//
// A packed blob is a 5-byte header followed by the body:
//
//	offset 0: compression tag (1 byte)
//	offset 1: uncompressed length, uint32 big-endian
//	offset 5: body (compressed unless the tag is CompressionNone)
//
// [Pack] falls back to CompressionNone when the chosen algorithm does
// not shrink the data. [Unpack] verifies the uncompressed length.
package anchorpack
