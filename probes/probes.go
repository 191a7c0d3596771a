// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package probes

import (
	"fmt"
	"strings"
)

// Flags describe optional capabilities of a data source.
type Flags uint32

const (
	// HandlesIncrementalState marks a source that accepts
	// ClearIncrementalState requests.
	HandlesIncrementalState Flags = 1 << iota
)

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	if f&HandlesIncrementalState != 0 {
		names = append(names, "handles_incremental_state")
		f &^= HandlesIncrementalState
	}
	if f != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(f)))
	}
	return strings.Join(names, "|")
}

// Descriptor names a data source type.
type Descriptor struct {
	// Name is the identifier a trace config uses to enable the source.
	Name  string
	Flags Flags
}

// Has reports whether all bits of flag are set.
func (d Descriptor) Has(flag Flags) bool {
	return d.Flags&flag == flag
}

// SessionID identifies the tracing session a data source instance
// belongs to.
type SessionID uint64

// FlushRequestID correlates a flush request with its acknowledgement.
type FlushRequestID uint64

// DataSource is one running instance of a data source.
type DataSource interface {
	Descriptor() Descriptor

	// Start begins acquisition. An error means the source is disabled
	// for the rest of the session; the host logs it and carries on.
	Start() error

	// Flush commits everything acquired so far and then calls
	// callback.
	Flush(id FlushRequestID, callback func())

	// ClearIncrementalState drops any state that later packets are
	// encoded relative to.
	ClearIncrementalState()

	// Close stops acquisition and releases resources. Idempotent.
	Close() error
}
