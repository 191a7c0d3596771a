// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package subprocess spawns a helper process that a probe talks to
// over pipes.
//
// The probe writes a one-shot handshake to the child's stdin and then
// reads the child's stdout without ever blocking: the read end of the
// stdout pipe is nonblocking, and Output.Read returns an error
// satisfying IsWouldBlock when no data is available. The child's
// stderr is passed through so operators see its diagnostics.
//
// Handshake delivery is cooperative. Spawn only queues the input;
// Process.Pump performs one nonblocking write of whatever remains and
// closes stdin once everything is written. Callers that pump once and
// move on accept that an input larger than the pipe buffer may be left
// partially delivered.
package subprocess
