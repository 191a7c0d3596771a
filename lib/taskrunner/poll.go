// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package taskrunner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sys/unix"
)

// PollRunner is a TaskRunner driven by poll(2). Run executes the loop
// on the calling goroutine; PostTask and the watch methods may be
// called from anywhere and wake the loop through a self-pipe.
type PollRunner struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []func()
	watches map[int]func()

	// wakeRead and wakeWrite are the ends of the self-pipe. Writing a
	// byte interrupts a blocked poll so newly posted work is seen.
	wakeRead  int
	wakeWrite int
}

var _ TaskRunner = (*PollRunner)(nil)

// NewPollRunner creates a runner. Call Close after Run returns to
// release the self-pipe.
func NewPollRunner(logger *slog.Logger) (*PollRunner, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("creating wakeup pipe: %w", err)
	}
	return &PollRunner{
		logger:    logger.With("component", "taskrunner"),
		watches:   make(map[int]func()),
		wakeRead:  fds[0],
		wakeWrite: fds[1],
	}, nil
}

// PostTask queues task and wakes the loop.
func (r *PollRunner) PostTask(task func()) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	r.wake()
}

// AddFileDescriptorWatch registers callback for readability of fd.
// Panics if fd is already watched.
func (r *PollRunner) AddFileDescriptorWatch(fd int, callback func()) {
	r.mu.Lock()
	if _, exists := r.watches[fd]; exists {
		r.mu.Unlock()
		panic(fmt.Sprintf("taskrunner: fd %d already watched", fd))
	}
	r.watches[fd] = callback
	r.mu.Unlock()
	r.wake()
}

// RemoveFileDescriptorWatch unregisters fd. No-op if fd is not
// watched.
func (r *PollRunner) RemoveFileDescriptorWatch(fd int) {
	r.mu.Lock()
	delete(r.watches, fd)
	r.mu.Unlock()
}

// Run executes tasks and watch callbacks until ctx is cancelled. Each
// iteration first runs the tasks queued before it started, then polls
// the watched descriptors (without blocking if more tasks arrived) and
// dispatches the ready ones in descriptor order.
func (r *PollRunner) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.wake)
	defer stop()

	for ctx.Err() == nil {
		r.runQueuedTasks()

		pollDescriptors, pending := r.pollSet()
		timeout := -1
		if pending {
			timeout = 0
		}

		count, err := unix.Poll(pollDescriptors, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if count == 0 {
			continue
		}

		for _, descriptor := range pollDescriptors {
			if descriptor.Revents == 0 {
				continue
			}
			fd := int(descriptor.Fd)
			if fd == r.wakeRead {
				r.drainWakeups()
				continue
			}
			if ctx.Err() != nil {
				break
			}
			// Re-check under the lock: an earlier callback in this
			// iteration may have removed the watch.
			r.mu.Lock()
			callback := r.watches[fd]
			r.mu.Unlock()
			if callback != nil {
				callback()
			}
		}
	}
	return nil
}

// Close releases the wakeup pipe. Must not be called while Run is
// executing.
func (r *PollRunner) Close() error {
	readErr := unix.Close(r.wakeRead)
	writeErr := unix.Close(r.wakeWrite)
	if readErr != nil {
		return fmt.Errorf("closing wakeup pipe: %w", readErr)
	}
	if writeErr != nil {
		return fmt.Errorf("closing wakeup pipe: %w", writeErr)
	}
	return nil
}

func (r *PollRunner) runQueuedTasks() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

// pollSet snapshots the watched descriptors, always including the
// wakeup pipe first. pending reports whether tasks are already queued.
func (r *PollRunner) pollSet() (descriptors []unix.PollFd, pending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	descriptors = make([]unix.PollFd, 0, len(r.watches)+1)
	descriptors = append(descriptors, unix.PollFd{Fd: int32(r.wakeRead), Events: unix.POLLIN})
	fds := make([]int, 0, len(r.watches))
	for fd := range r.watches {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	for _, fd := range fds {
		descriptors = append(descriptors, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	return descriptors, len(r.tasks) > 0
}

// wake interrupts a blocked poll. EAGAIN means the pipe is full, and a
// full pipe already guarantees a wakeup.
func (r *PollRunner) wake() {
	_, err := unix.Write(r.wakeWrite, []byte{0})
	if err != nil && err != unix.EAGAIN {
		r.logger.Warn("waking task runner failed", "error", err)
	}
}

func (r *PollRunner) drainWakeups() {
	var scratch [64]byte
	for {
		count, err := unix.Read(r.wakeRead, scratch[:])
		if err != nil || count == 0 {
			return
		}
	}
}
