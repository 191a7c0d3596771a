// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskrunnertest provides a deterministic TaskRunner for
// tests. Nothing runs until the test calls RunNext, RunUntilIdle, or
// Signal, so each step of a cooperative state machine can be observed
// in isolation.
package taskrunnertest

import (
	"fmt"

	"github.com/bureau-foundation/probes/lib/taskrunner"
)

// ManualRunner queues posted tasks and records watches without
// executing anything on its own. Not safe for concurrent use.
type ManualRunner struct {
	tasks   []func()
	watches map[int]func()

	addCalls    map[int]int
	removeCalls map[int]int
}

var _ taskrunner.TaskRunner = (*ManualRunner)(nil)

// New returns an empty ManualRunner.
func New() *ManualRunner {
	return &ManualRunner{
		watches:     make(map[int]func()),
		addCalls:    make(map[int]int),
		removeCalls: make(map[int]int),
	}
}

// PostTask queues task.
func (r *ManualRunner) PostTask(task func()) {
	r.tasks = append(r.tasks, task)
}

// AddFileDescriptorWatch records callback for fd. Panics if fd is
// already watched, matching the real runner.
func (r *ManualRunner) AddFileDescriptorWatch(fd int, callback func()) {
	if _, exists := r.watches[fd]; exists {
		panic(fmt.Sprintf("taskrunnertest: fd %d already watched", fd))
	}
	r.watches[fd] = callback
	r.addCalls[fd]++
}

// RemoveFileDescriptorWatch forgets the watch on fd.
func (r *ManualRunner) RemoveFileDescriptorWatch(fd int) {
	delete(r.watches, fd)
	r.removeCalls[fd]++
}

// RunNext runs the oldest queued task. Returns false if the queue was
// empty.
func (r *ManualRunner) RunNext() bool {
	if len(r.tasks) == 0 {
		return false
	}
	task := r.tasks[0]
	r.tasks[0] = nil
	r.tasks = r.tasks[1:]
	task()
	return true
}

// RunUntilIdle runs tasks, including ones posted by the tasks it runs,
// until the queue is empty. Returns the number of tasks run. Panics
// after limit tasks so a runaway self-rescheduling loop fails the test
// instead of hanging it.
func (r *ManualRunner) RunUntilIdle(limit int) int {
	count := 0
	for r.RunNext() {
		count++
		if count >= limit {
			panic(fmt.Sprintf("taskrunnertest: queue not idle after %d tasks", limit))
		}
	}
	return count
}

// Signal invokes the watch callback for fd as if it became readable.
// Returns false if fd is not watched.
func (r *ManualRunner) Signal(fd int) bool {
	callback, ok := r.watches[fd]
	if !ok {
		return false
	}
	callback()
	return true
}

// Pending returns the number of queued tasks.
func (r *ManualRunner) Pending() int {
	return len(r.tasks)
}

// Watched reports whether fd currently has a watch.
func (r *ManualRunner) Watched(fd int) bool {
	_, ok := r.watches[fd]
	return ok
}

// AddCalls returns how many times AddFileDescriptorWatch was called
// for fd.
func (r *ManualRunner) AddCalls(fd int) int {
	return r.addCalls[fd]
}

// RemoveCalls returns how many times RemoveFileDescriptorWatch was
// called for fd.
func (r *ManualRunner) RemoveCalls(fd int) int {
	return r.removeCalls[fd]
}
