// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package framing accumulates bytes from a stream and extracts complete
// length-prefixed messages from them.
//
// The wire format is a sequence of frames, each a native-width,
// native-endian unsigned length followed by that many payload bytes:
//
//	[length: HeaderSize bytes][payload: length bytes]
//
// There is no magic number and no version field. Both ends are assumed
// to run on the same machine with the same word size, so a frame is
// exactly what a C size_t followed by its body looks like in memory.
//
// [Buffer] hands out [Message] views rather than slices. A view is an
// offset and length into the buffer's backing store plus the
// generation the store had when the view was produced. Compaction and
// growth bump the generation, so resolving a view that outlived its
// backing store panics instead of silently returning bytes from a
// later frame.
package framing
