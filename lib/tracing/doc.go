// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracing defines the sink probes write trace packets into.
//
// A probe asks its TraceWriter for a new Packet, fills in the
// timestamp and payload, and calls Finalize. Finalized packets belong
// to the writer; the probe keeps nothing. Flush asks the writer to
// push everything finalized so far to durable storage and then run a
// callback, which is how a tracing session knows a probe's data has
// landed.
//
// MemoryWriter keeps packets in memory for tests. The tracefile
// package provides the on-disk writer used by the probe binary.
package tracing
