// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by the
// probe's on-disk formats.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same packets always produce identical bytes, which keeps trace file
// chunk hashes stable across runs.
//
// For buffer-oriented operations (trace chunks):
//
//	data, err := codec.Marshal(packets)
//	err = codec.Unmarshal(data, &packets)
//
// Diagnose renders CBOR in RFC 8949 diagnostic notation for the dump
// command.
//
// Types only ever written as CBOR use integer keys
// (`cbor:"1,keyasint"`) so packets stay compact; the keys are part of
// the file format and must not be renumbered.
package codec
