// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statsd builds the subscription a statsd data-subscribe
// process expects as its handshake.
//
// The daemon reads one ShellSubscription protobuf message, framed the
// same way as its output (see lib/framing), then streams the matching
// atoms. Only the encoder lives here; this package has no dependency
// on the generated statsd protos, it writes the handful of fields it
// needs with protowire.
package statsd
