// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statsd is the statsd exec data source.
//
// It runs "cmd stats data-subscribe", writes the subscription to the
// child's stdin as a single length-prefixed frame, and forwards every
// frame the child writes back as a timestamped trace packet.
//
// The source lives entirely on one task runner goroutine. A readiness
// watch on the child's stdout starts a drain: one nonblocking read per
// task, reposted while reads keep returning data, so a chatty daemon
// cannot monopolize the runner. A readInProgress flag keeps readiness
// signals that arrive mid-drain from starting a second drain. EOF
// tears the source down; Close does the same and revokes the liveness
// token captured by any drain task still queued.
//
// Timestamps are taken on receipt with the boot-time clock. statsd
// does not stamp the atoms it streams, so receipt time is the best
// available.
package statsd
