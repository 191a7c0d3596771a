// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracefile

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/probes/lib/codec"
	"github.com/bureau-foundation/probes/lib/tracing"
)

// Chunk is one decoded chunk.
type Chunk struct {
	Info ChunkInfo

	// Data is the verified, uncompressed CBOR encoding of Packets.
	Data []byte

	Packets []tracing.TracePacket
}

// Reader reads a trace file sequentially.
type Reader struct {
	source io.Reader
	header Header
}

// NewReader reads and validates the file header.
func NewReader(source io.Reader) (*Reader, error) {
	var buffer [headerSize]byte
	if _, err := io.ReadFull(source, buffer[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, fmt.Errorf("reading trace file header: %w", err)
	}
	header, err := parseHeader(buffer[:])
	if err != nil {
		return nil, err
	}
	return &Reader{source: source, header: header}, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	return r.header
}

// Next reads, decompresses, and verifies the next chunk. It returns
// io.EOF after the last complete chunk; a chunk cut short returns
// io.ErrUnexpectedEOF.
func (r *Reader) Next() (Chunk, error) {
	var buffer [chunkHeaderSize]byte
	if _, err := io.ReadFull(r.source, buffer[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("reading chunk header: %w", err)
	}
	info, err := parseChunkInfo(buffer[:])
	if err != nil {
		return Chunk{}, err
	}

	stored := make([]byte, info.CompressedSize)
	if _, err := io.ReadFull(r.source, stored); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Chunk{}, fmt.Errorf("reading chunk data: %w", err)
	}

	data, err := decompressChunk(stored, info.Compression, int(info.UncompressedSize))
	if err != nil {
		return Chunk{}, err
	}
	if hashChunk(data) != info.Hash {
		return Chunk{}, fmt.Errorf("%w: header %s", ErrChecksumMismatch, info.Hash)
	}

	var packets []tracing.TracePacket
	if err := codec.Unmarshal(data, &packets); err != nil {
		return Chunk{}, fmt.Errorf("decoding chunk packets: %w", err)
	}
	if len(packets) != int(info.PacketCount) {
		return Chunk{}, fmt.Errorf("tracefile: chunk holds %d packets, header says %d", len(packets), info.PacketCount)
	}
	return Chunk{Info: info, Data: data, Packets: packets}, nil
}

// ReadAll returns every packet in the file, in write order.
func ReadAll(source io.Reader) (Header, []tracing.TracePacket, error) {
	reader, err := NewReader(source)
	if err != nil {
		return Header{}, nil, err
	}
	var packets []tracing.TracePacket
	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return reader.Header(), packets, nil
		}
		if err != nil {
			return reader.Header(), packets, err
		}
		packets = append(packets, chunk.Packets...)
	}
}
