// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskrunner defines the cooperative scheduler probes run on
// and provides a poll(2)-based implementation.
//
// A TaskRunner executes every task and every file descriptor callback
// on a single goroutine, one at a time. Code running on it needs no
// locks, but must never block: a callback that waits stalls every
// other probe sharing the runner. Long work is split into bounded
// steps, each re-posted with PostTask so other work can interleave.
//
// File descriptor watches are level-triggered. A watch callback fires
// on every loop iteration in which its descriptor is readable (or hung
// up), until the owner drains it or removes the watch.
//
// The taskrunnertest subpackage provides ManualRunner, which runs
// nothing until a test asks it to.
package taskrunner
