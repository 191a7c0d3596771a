// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracefile stores trace packets in a compact chunked file.
//
// A trace file is a fixed header followed by zero or more chunks:
//
//	header: "BTRC" | version (1) | reserved (3) | session ULID (16) | created unix nanos (8, LE)
//	chunk:  tag (1) | reserved (3) | compressed size (4) | uncompressed size (4)
//	        | packet count (4) | BLAKE3 hash (32) | data (compressed size bytes)
//
// Each chunk's uncompressed data is a CBOR array of
// [tracing.TracePacket] values. The hash is a BLAKE3 keyed hash of the
// uncompressed bytes, so a chunk verifies the same regardless of the
// compression used to store it. All multi-byte integers are
// little-endian; the file format is portable even though the statsd
// wire protocol is not.
//
// [Writer] implements [tracing.TraceWriter] so a probe can write
// straight into a file. [Reader] walks the chunks back, verifying every
// hash.
package tracefile
