// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracefile

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/probes/lib/clock"
	"github.com/bureau-foundation/probes/lib/codec"
	"github.com/bureau-foundation/probes/lib/tracing"
)

// DefaultChunkSize is the pending payload size at which a Writer seals
// a chunk without waiting for Flush.
const DefaultChunkSize = 256 * 1024

// WriterOptions configures a Writer. The zero value writes uncompressed
// chunks of DefaultChunkSize under a fresh session id.
type WriterOptions struct {
	Compression Compression

	// ChunkSize is the payload byte threshold for sealing a chunk.
	// Zero selects DefaultChunkSize.
	ChunkSize int

	// Session identifies the trace. Zero generates a new ULID.
	Session ulid.ULID

	// Created is recorded in the header. Zero reads Clock.
	Created time.Time

	// Clock supplies Created when it is zero. Nil uses clock.Real.
	Clock clock.Clock

	Logger *slog.Logger
}

// Writer is a [tracing.TraceWriter] that appends chunks to an
// io.Writer. It is not safe for concurrent use; a probe drives it from
// its task runner goroutine.
//
// Write failures are sticky: after the first error, packets are
// discarded and Close returns the error.
type Writer struct {
	destination io.Writer
	options     WriterOptions
	logger      *slog.Logger
	header      Header

	pending      []tracing.TracePacket
	pendingBytes int

	chunks  int
	packets int
	err     error
}

var _ tracing.TraceWriter = (*Writer)(nil)

// NewWriter writes the file header to destination and returns a Writer
// for the session.
func NewWriter(destination io.Writer, options WriterOptions) (*Writer, error) {
	if options.ChunkSize <= 0 {
		options.ChunkSize = DefaultChunkSize
	}
	if options.ChunkSize > maxChunkSize {
		return nil, fmt.Errorf("tracefile: chunk size %d exceeds limit %d", options.ChunkSize, maxChunkSize)
	}
	if options.Session == (ulid.ULID{}) {
		options.Session = ulid.Make()
	}
	if options.Created.IsZero() {
		writerClock := options.Clock
		if writerClock == nil {
			writerClock = clock.Real()
		}
		options.Created = writerClock.Now()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	header := Header{Version: formatVersion, Session: options.Session, Created: options.Created}
	encoded := header.marshal()
	if _, err := destination.Write(encoded[:]); err != nil {
		return nil, fmt.Errorf("writing trace file header: %w", err)
	}

	return &Writer{
		destination: destination,
		options:     options,
		logger:      logger.With("component", "tracefile", "session", options.Session.String()),
		header:      header,
	}, nil
}

// Header returns the header written for this session.
func (w *Writer) Header() Header {
	return w.header
}

func (w *Writer) NewTracePacket() tracing.Packet {
	return tracing.NewPacketBuilder(w.commit)
}

func (w *Writer) commit(packet tracing.TracePacket) {
	if w.err != nil {
		return
	}
	w.pending = append(w.pending, packet)
	w.pendingBytes += len(packet.Payload)
	if w.pendingBytes >= w.options.ChunkSize {
		w.seal()
	}
}

// Flush seals pending packets into a chunk, syncs the destination when
// it is an *os.File, and then calls callback. The callback runs even
// after a write failure so a flush requester is never left waiting.
func (w *Writer) Flush(callback func()) {
	w.seal()
	if file, ok := w.destination.(*os.File); ok && w.err == nil {
		if err := file.Sync(); err != nil {
			w.fail(fmt.Errorf("syncing trace file: %w", err))
		}
	}
	if callback != nil {
		callback()
	}
}

// Close seals pending packets and returns the first write error. It
// does not close the destination.
func (w *Writer) Close() error {
	w.seal()
	return w.err
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	return w.err
}

// Chunks returns the number of chunks written.
func (w *Writer) Chunks() int {
	return w.chunks
}

// Packets returns the number of packets written in sealed chunks.
func (w *Writer) Packets() int {
	return w.packets
}

func (w *Writer) seal() {
	if w.err != nil || len(w.pending) == 0 {
		return
	}
	packets := w.pending
	w.pending = nil
	w.pendingBytes = 0

	data, err := codec.Marshal(packets)
	if err != nil {
		w.fail(fmt.Errorf("encoding chunk: %w", err))
		return
	}
	stored, compression, err := compressChunk(data, w.options.Compression)
	if err != nil {
		w.fail(fmt.Errorf("compressing chunk: %w", err))
		return
	}
	if err := checkChunkSizes(len(stored), len(data), len(packets)); err != nil {
		w.fail(err)
		return
	}

	info := ChunkInfo{
		Compression:      compression,
		CompressedSize:   uint32(len(stored)),
		UncompressedSize: uint32(len(data)),
		PacketCount:      uint32(len(packets)),
		Hash:             hashChunk(data),
	}
	header := info.marshal()
	if _, err := w.destination.Write(header[:]); err != nil {
		w.fail(fmt.Errorf("writing chunk header: %w", err))
		return
	}
	if _, err := w.destination.Write(stored); err != nil {
		w.fail(fmt.Errorf("writing chunk data: %w", err))
		return
	}

	w.chunks++
	w.packets += len(packets)
	w.logger.Debug("sealed chunk",
		"packets", len(packets),
		"uncompressed", len(data),
		"stored", len(stored),
		"compression", compression.String(),
	)
}

// checkChunkSizes rejects a chunk whose sizes a Reader would refuse.
// The limit is below math.MaxUint32, so passing it also guarantees the
// header fields do not truncate. A single packet larger than the limit
// is enough to trip it regardless of ChunkSize.
func checkChunkSizes(compressed, uncompressed, packets int) error {
	if compressed > maxChunkSize || uncompressed > maxChunkSize {
		return fmt.Errorf("tracefile: chunk sizes %d/%d exceed limit %d", compressed, uncompressed, maxChunkSize)
	}
	if uint64(packets) > math.MaxUint32 {
		return fmt.Errorf("tracefile: chunk packet count %d exceeds limit %d", packets, uint64(math.MaxUint32))
	}
	return nil
}

func (w *Writer) fail(err error) {
	w.err = err
	w.pending = nil
	w.pendingBytes = 0
	w.logger.Error("trace file write failed, discarding further packets", "error", err)
}
