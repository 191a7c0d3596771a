// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// formatVersion is the only version this package reads or writes.
	formatVersion = 1

	// headerSize: magic (4) + version (1) + reserved (3) + session (16)
	// + created (8).
	headerSize = 32

	// chunkHeaderSize: tag (1) + reserved (3) + compressed size (4)
	// + uncompressed size (4) + packet count (4) + hash (32).
	chunkHeaderSize = 48

	// maxChunkSize bounds the sizes a reader accepts from a chunk
	// header before allocating.
	maxChunkSize = 64 << 20
)

var magic = [4]byte{'B', 'T', 'R', 'C'}

var (
	// ErrBadMagic is returned when a file does not start with the trace
	// file signature.
	ErrBadMagic = errors.New("tracefile: not a trace file")

	// ErrChecksumMismatch is returned when a chunk's data does not hash
	// to the value recorded in its header.
	ErrChecksumMismatch = errors.New("tracefile: chunk checksum mismatch")
)

// Header identifies one trace session.
type Header struct {
	Version uint8
	Session ulid.ULID
	Created time.Time
}

func (h Header) marshal() [headerSize]byte {
	var buffer [headerSize]byte
	copy(buffer[0:4], magic[:])
	buffer[4] = h.Version
	copy(buffer[8:24], h.Session[:])
	binary.LittleEndian.PutUint64(buffer[24:32], uint64(h.Created.UnixNano()))
	return buffer
}

func parseHeader(buffer []byte) (Header, error) {
	if len(buffer) < headerSize || [4]byte(buffer[0:4]) != magic {
		return Header{}, ErrBadMagic
	}
	header := Header{Version: buffer[4]}
	if header.Version != formatVersion {
		return Header{}, fmt.Errorf("tracefile: unsupported version %d", header.Version)
	}
	copy(header.Session[:], buffer[8:24])
	header.Created = time.Unix(0, int64(binary.LittleEndian.Uint64(buffer[24:32]))).UTC()
	return header, nil
}

// ChunkInfo describes one stored chunk.
type ChunkInfo struct {
	Compression      Compression
	CompressedSize   uint32
	UncompressedSize uint32
	PacketCount      uint32
	Hash             Hash
}

func (c ChunkInfo) marshal() [chunkHeaderSize]byte {
	var buffer [chunkHeaderSize]byte
	buffer[0] = uint8(c.Compression)
	binary.LittleEndian.PutUint32(buffer[4:8], c.CompressedSize)
	binary.LittleEndian.PutUint32(buffer[8:12], c.UncompressedSize)
	binary.LittleEndian.PutUint32(buffer[12:16], c.PacketCount)
	copy(buffer[16:48], c.Hash[:])
	return buffer
}

func parseChunkInfo(buffer []byte) (ChunkInfo, error) {
	info := ChunkInfo{
		Compression:      Compression(buffer[0]),
		CompressedSize:   binary.LittleEndian.Uint32(buffer[4:8]),
		UncompressedSize: binary.LittleEndian.Uint32(buffer[8:12]),
		PacketCount:      binary.LittleEndian.Uint32(buffer[12:16]),
	}
	copy(info.Hash[:], buffer[16:48])
	if info.CompressedSize > maxChunkSize || info.UncompressedSize > maxChunkSize {
		return ChunkInfo{}, fmt.Errorf("tracefile: chunk sizes %d/%d exceed limit %d",
			info.CompressedSize, info.UncompressedSize, maxChunkSize)
	}
	return info, nil
}
