// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"golang.org/x/sys/unix"
)

// TestPipe is an OS pipe owned by a test.
type TestPipe struct {
	t     testing.TB
	Read  int
	Write int
}

// Pipe returns a new pipe. The read end is nonblocking when
// nonblockingRead is set. Both ends are closed when the test
// completes; use CloseWrite to deliver EOF earlier.
func Pipe(t testing.TB, nonblockingRead bool) *TestPipe {
	t.Helper()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	if nonblockingRead {
		if err := unix.SetNonblock(fds[0], true); err != nil {
			t.Fatalf("setting read end nonblocking: %v", err)
		}
	}
	pipe := &TestPipe{t: t, Read: fds[0], Write: fds[1]}
	t.Cleanup(func() {
		unix.Close(pipe.Read)
		pipe.CloseWrite()
	})
	return pipe
}

// WriteAll writes data to the write end, failing the test on a short
// or failed write.
func (p *TestPipe) WriteAll(data []byte) {
	p.t.Helper()
	for len(data) > 0 {
		written, err := unix.Write(p.Write, data)
		if err != nil {
			p.t.Fatalf("writing to pipe: %v", err)
		}
		data = data[written:]
	}
}

// CloseWrite closes the write end so readers see EOF. Safe to call
// more than once.
func (p *TestPipe) CloseWrite() {
	if p.Write < 0 {
		return
	}
	unix.Close(p.Write)
	p.Write = -1
}
