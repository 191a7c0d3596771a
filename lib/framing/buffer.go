// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// HeaderSize is the size in bytes of the length prefix: the native
// word size, matching a size_t on the peer.
const HeaderSize = bits.UintSize / 8

// minCapacity is the smallest backing store allocated on first use.
// Large enough that a typical pipe read (a few KB) never grows the
// store more than once.
const minCapacity = 8 * 1024

// shrinkFactor is how many times larger than its working set the
// backing store may be before a rewind or compaction reallocates it
// smaller.
const shrinkFactor = 4

// ErrStaleMessage is the panic value when a Message is resolved after
// the buffer compacted or grew underneath it.
var ErrStaleMessage = errors.New("framing: message view used after buffer was compacted")

// ProtocolViolationError is the panic value raised by ReadMessage when
// a length prefix cannot be combined with the header size without
// overflowing. The peer is trusted and local, so this is treated as a
// broken invariant rather than a recoverable condition.
type ProtocolViolationError struct {
	Length uint64
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("framing: length prefix %d overflows with %d-byte header", e.Length, HeaderSize)
}

// Message is a view of one extracted frame body. The zero Message is
// the "insufficient data" result.
type Message struct {
	offset     int
	length     int
	generation uint64
	valid      bool
}

// Valid reports whether a complete frame was extracted.
func (m Message) Valid() bool { return m.valid }

// Len returns the payload length. Zero for heartbeats and for invalid
// messages.
func (m Message) Len() int { return m.length }

// Empty reports whether this is a valid zero-length frame. The peer
// sends these as heartbeats; they carry nothing worth forwarding.
func (m Message) Empty() bool { return m.valid && m.length == 0 }

// Buffer is an append-only byte accumulator with a read cursor. The
// consumed prefix is reclaimed on Append, and a store left oversized by
// an earlier large frame is given back, so the backing store stays
// proportional to the bytes not yet extracted rather than to the bytes
// ever seen or the largest frame seen.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	data       []byte
	read       int
	write      int
	generation uint64
}

// NewBuffer returns an empty Buffer. The backing store is allocated
// lazily on the first Append.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append copies data to the tail of the buffer. Unconsumed bytes are
// never discarded.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}

	if b.read == b.write && b.read != 0 {
		// Everything was consumed: rewind without copying.
		b.read, b.write = 0, 0
		b.generation++
		if b.oversized(len(data)) {
			b.resize(len(data))
		}
	}

	if b.write+len(data) > len(b.data) {
		b.makeRoom(len(data))
	}

	b.write += copy(b.data[b.write:], data)
}

// makeRoom ensures at least n bytes are free after the write cursor.
// The unconsumed tail is moved to the front when the consumed prefix
// is at least as large as the tail, which bounds the copy cost by the
// bytes consumed since the previous compaction. A compaction into a
// store that is oversized for the tail reallocates it smaller instead.
// Otherwise the store doubles.
func (b *Buffer) makeRoom(n int) {
	unconsumed := b.write - b.read

	if b.read > 0 && b.read >= unconsumed && unconsumed+n <= len(b.data) {
		if b.oversized(n) {
			b.resize(n)
			return
		}
		copy(b.data, b.data[b.read:b.write])
		b.read, b.write = 0, unconsumed
		b.generation++
		return
	}

	b.reallocate(max(2*len(b.data), unconsumed+n, minCapacity))
}

// oversized reports whether the store is more than shrinkFactor times
// the space needed for the unconsumed bytes plus n more.
func (b *Buffer) oversized(n int) bool {
	return len(b.data) > shrinkFactor*max(minCapacity, b.write-b.read+n)
}

// resize reallocates the store to twice the space needed for the
// unconsumed bytes plus n more, leaving headroom before the next
// growth.
func (b *Buffer) resize(n int) {
	b.reallocate(max(2*(b.write-b.read+n), minCapacity))
}

// reallocate moves the unconsumed bytes to the front of a new store of
// the given capacity.
func (b *Buffer) reallocate(capacity int) {
	unconsumed := b.write - b.read
	store := make([]byte, capacity)
	copy(store, b.data[b.read:b.write])
	b.data = store
	b.read, b.write = 0, unconsumed
	b.generation++
}

// ReadMessage extracts the next complete frame. When fewer bytes than
// a full header plus body are buffered, it returns the zero Message
// and leaves the read position untouched, so the caller can Append
// more and try again.
//
// Panics with *ProtocolViolationError if the length prefix overflows
// when added to HeaderSize.
func (b *Buffer) ReadMessage() Message {
	available := b.write - b.read
	if available < HeaderSize {
		return Message{}
	}

	length := decodeLength(b.data[b.read : b.read+HeaderSize])
	total := uint(HeaderSize) + length
	if total < length {
		panic(&ProtocolViolationError{Length: uint64(length)})
	}
	if total > uint(available) {
		return Message{}
	}

	message := Message{
		offset:     b.read + HeaderSize,
		length:     int(length),
		generation: b.generation,
		valid:      true,
	}
	b.read += int(total)
	return message
}

// Bytes resolves a Message to its payload. The returned slice aliases
// the buffer and is only valid until the next Append; callers that
// keep the payload must copy it. Returns nil for an invalid Message.
//
// Panics with ErrStaleMessage if the buffer compacted or grew since
// the Message was extracted.
func (b *Buffer) Bytes(message Message) []byte {
	if !message.valid {
		return nil
	}
	if message.generation != b.generation {
		panic(ErrStaleMessage)
	}
	end := message.offset + message.length
	return b.data[message.offset:end:end]
}

// Buffered returns the number of appended bytes not yet consumed by
// ReadMessage.
func (b *Buffer) Buffered() int {
	return b.write - b.read
}

// Cap returns the size of the backing store.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// AppendFrame appends payload to dst as a single frame and returns the
// extended slice.
func AppendFrame(dst, payload []byte) []byte {
	var header [HeaderSize]byte
	encodeLength(header[:], uint(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

func decodeLength(header []byte) uint {
	if HeaderSize == 8 {
		return uint(binary.NativeEndian.Uint64(header))
	}
	return uint(binary.NativeEndian.Uint32(header))
}

func encodeLength(header []byte, length uint) {
	if HeaderSize == 8 {
		binary.NativeEndian.PutUint64(header, uint64(length))
		return
	}
	binary.NativeEndian.PutUint32(header, uint32(length))
}
