// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subprocess

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Lifecycle is the state of a spawned process.
type Lifecycle int

const (
	NotStarted Lifecycle = iota
	Running
	Terminated
)

func (l Lifecycle) String() string {
	switch l {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Command describes a process to spawn.
type Command struct {
	// Path is the executable. It must contain a slash: it is not
	// searched for in PATH, and Spawn rejects a bare name with a
	// SetupError.
	Path string

	// Args are the arguments after argv[0].
	Args []string

	// Input is written to the child's stdin by Process.Pump. Stdin is
	// closed once all of it has been written; an empty Input closes
	// stdin immediately.
	Input []byte

	// Stderr receives the child's stderr. Nil inherits the probe's
	// own stderr.
	Stderr io.Writer
}

// Output is the nonblocking read end of the child's stdout.
type Output interface {
	// Fd returns the descriptor to register readiness watches on.
	Fd() int

	// Read performs one nonblocking read. It returns io.EOF once the
	// child has closed its stdout and an error satisfying IsWouldBlock
	// when no data is currently available.
	Read(p []byte) (int, error)
}

// Process is a running child.
type Process interface {
	Pid() int
	Output() Output

	// Pump makes one nonblocking attempt to write the remaining input
	// to the child's stdin. done reports whether all input has been
	// delivered and stdin closed.
	Pump() (done bool, err error)

	// Terminate kills the child and waits for it to exit. Safe to call
	// more than once and after the child has exited on its own.
	Terminate() error

	State() Lifecycle
}

// Spawner starts processes.
type Spawner interface {
	Spawn(command Command) (Process, error)
}

// SetupError reports that a process could not be started. Probes
// treat it as disabling the data source for the rest of the session.
type SetupError struct {
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Path, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsWouldBlock reports whether err means a nonblocking operation had
// nothing to do.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
