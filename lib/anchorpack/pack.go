// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package anchorpack

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression identifies the algorithm used for a packed blob. Values
// are protocol constants stored in the blob header.
type Compression uint8

const (
	// CompressionNone stores the blob as-is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level: better ratio for
	// the feature-point clouds in world maps.
	CompressionZstd Compression = 2
)

const headerSize = 5

// maxUncompressedSize bounds the length Unpack will allocate for.
const maxUncompressedSize = 64 << 20

var errIncompressible = errors.New("data is incompressible")

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as used in configuration.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown anchor compression %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("anchorpack: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxUncompressedSize))
	if err != nil {
		panic("anchorpack: zstd decoder initialization failed: " + err.Error())
	}
}

// Pack frames data with the requested compression. An empty input
// packs to nil.
func Pack(data []byte, compression Compression) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) > maxUncompressedSize {
		return nil, fmt.Errorf("anchor data is %d bytes, limit %d", len(data), maxUncompressedSize)
	}

	body, used, err := compress(data, compression)
	if err != nil {
		return nil, err
	}

	packed := make([]byte, headerSize+len(body))
	packed[0] = byte(used)
	binary.BigEndian.PutUint32(packed[1:headerSize], uint32(len(data)))
	copy(packed[headerSize:], body)
	return packed, nil
}

func compress(data []byte, compression Compression) ([]byte, Compression, error) {
	var body []byte
	var err error
	switch compression {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		body, err = compressLZ4(data)
	case CompressionZstd:
		body, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported anchor compression %s", compression)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return body, compression, nil
}

// Unpack reverses Pack. A nil input unpacks to nil.
func Unpack(packed []byte) ([]byte, error) {
	if len(packed) == 0 {
		return nil, nil
	}
	if len(packed) < headerSize {
		return nil, fmt.Errorf("packed anchor data is %d bytes, shorter than its header", len(packed))
	}

	compression := Compression(packed[0])
	size := int(binary.BigEndian.Uint32(packed[1:headerSize]))
	if size > maxUncompressedSize {
		return nil, fmt.Errorf("packed anchor data declares %d bytes, limit %d", size, maxUncompressedSize)
	}
	body := packed[headerSize:]

	switch compression {
	case CompressionNone:
		if len(body) != size {
			return nil, fmt.Errorf("uncompressed anchor data is %d bytes, header says %d", len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		return decompressLZ4(body, size)
	case CompressionZstd:
		return decompressZstd(body, size)
	default:
		return nil, fmt.Errorf("unsupported anchor compression %s", compression)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(body []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(body, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, header says %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(body []byte, size int) ([]byte, error) {
	decompressed, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(decompressed) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, header says %d", len(decompressed), size)
	}
	return decompressed, nil
}

// Digest is the BLAKE3-256 hash of an uncompressed anchor blob.
type Digest [32]byte

// Sum returns the digest of data.
func Sum(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// String returns the hex encoding of the digest, for logs.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
