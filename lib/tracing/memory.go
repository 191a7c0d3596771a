// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracing

// MemoryWriter is a TraceWriter that keeps finalized packets in
// memory, in finalization order.
type MemoryWriter struct {
	packets []TracePacket
	flushes int
}

var _ TraceWriter = (*MemoryWriter)(nil)

// NewMemoryWriter returns an empty writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (w *MemoryWriter) NewTracePacket() Packet {
	return NewPacketBuilder(func(packet TracePacket) {
		w.packets = append(w.packets, packet)
	})
}

// Flush has nothing to commit; it counts the request and runs
// callback immediately.
func (w *MemoryWriter) Flush(callback func()) {
	w.flushes++
	if callback != nil {
		callback()
	}
}

// Packets returns the finalized packets.
func (w *MemoryWriter) Packets() []TracePacket {
	return w.packets
}

// Flushes returns how many times Flush was called.
func (w *MemoryWriter) Flushes() int {
	return w.flushes
}
