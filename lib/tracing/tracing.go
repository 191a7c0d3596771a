// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracing

// TraceWriter accepts packets from a single probe. Writers are used
// from the probe's task runner goroutine only.
type TraceWriter interface {
	// NewTracePacket returns an empty packet. The previous packet must
	// have been finalized.
	NewTracePacket() Packet

	// Flush commits all finalized packets and then calls callback (if
	// non-nil).
	Flush(callback func())
}

// Packet is an outbound record under construction.
type Packet interface {
	// SetTimestamp sets the acquisition time in boot-time nanoseconds.
	SetTimestamp(nanoseconds uint64)

	// SetPayload copies payload into the packet. The caller may reuse
	// the slice afterwards.
	SetPayload(payload []byte)

	// Finalize hands the packet to its writer. The packet must not be
	// touched afterwards.
	Finalize()
}

// TracePacket is the finished form of a Packet, as writers store it.
type TracePacket struct {
	Timestamp uint64 `cbor:"1,keyasint"`
	Payload   []byte `cbor:"2,keyasint"`
}

// PacketBuilder is a Packet that builds a TracePacket and passes it to
// a commit function on Finalize. Writers embed it to avoid repeating
// the field plumbing.
type PacketBuilder struct {
	packet    TracePacket
	commit    func(TracePacket)
	finalized bool
}

// NewPacketBuilder returns a builder that calls commit once, on
// Finalize.
func NewPacketBuilder(commit func(TracePacket)) *PacketBuilder {
	return &PacketBuilder{commit: commit}
}

func (b *PacketBuilder) SetTimestamp(nanoseconds uint64) {
	b.packet.Timestamp = nanoseconds
}

func (b *PacketBuilder) SetPayload(payload []byte) {
	b.packet.Payload = append([]byte(nil), payload...)
}

// Finalize commits the packet. Panics on a second call: a packet
// finalized twice would be written twice.
func (b *PacketBuilder) Finalize() {
	if b.finalized {
		panic("tracing: packet finalized twice")
	}
	b.finalized = true
	b.commit(b.packet)
}
