// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracefile

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash is a BLAKE3 digest of a chunk's uncompressed data.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// chunkDomainKey keys chunk hashes so they never collide with BLAKE3
// hashes of the same bytes computed elsewhere. Changing it invalidates
// every existing trace file.
var chunkDomainKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '.', 't', 'r', 'a', 'c', 'e', '.',
	'c', 'h', 'u', 'n', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashChunk returns the chunk-domain keyed hash of data.
func hashChunk(data []byte) Hash {
	hasher, err := blake3.NewKeyed(chunkDomainKey[:])
	if err != nil {
		// Only possible for a key that is not 32 bytes.
		panic("tracefile: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
