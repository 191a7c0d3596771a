// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package probes defines what every data source in the probe binary
// shares: its descriptor and the lifecycle the host drives.
//
// A host creates a data source for one tracing session, calls Start,
// forwards flush and incremental-state requests while the session
// runs, and calls Close when the session ends. All calls happen on the
// host's task runner goroutine.
package probes
