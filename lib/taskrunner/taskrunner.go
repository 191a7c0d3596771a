// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package taskrunner

// TaskRunner schedules work onto a single cooperative goroutine.
type TaskRunner interface {
	// PostTask queues task to run on the runner goroutine after every
	// task already queued. Safe to call from any goroutine.
	PostTask(task func())

	// AddFileDescriptorWatch arranges for callback to run on the
	// runner goroutine whenever fd is readable. fd must not already be
	// watched.
	AddFileDescriptorWatch(fd int, callback func())

	// RemoveFileDescriptorWatch stops watching fd. A callback already
	// selected for dispatch in the current iteration is dropped.
	RemoveFileDescriptorWatch(fd int)
}
