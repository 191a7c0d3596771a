// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package subprocesstest provides a scripted Spawner for testing code
// that drives a subprocess without starting one.
package subprocesstest

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/probes/lib/subprocess"
)

// Spawner records every Command it is asked to spawn and returns
// Process (or Err, when set).
type Spawner struct {
	Process *Process
	Err     error

	Commands []subprocess.Command
}

var _ subprocess.Spawner = (*Spawner)(nil)

// NewSpawner returns a Spawner that hands out a fresh Process whose
// output reports fd.
func NewSpawner(fd int) *Spawner {
	return &Spawner{Process: NewProcess(fd)}
}

func (s *Spawner) Spawn(command subprocess.Command) (subprocess.Process, error) {
	s.Commands = append(s.Commands, command)
	if s.Err != nil {
		return nil, &subprocess.SetupError{Path: command.Path, Err: s.Err}
	}
	s.Process.state = subprocess.Running
	s.Process.Input = command.Input
	return s.Process, nil
}

// Process is a scripted subprocess.Process. Reads are served from a
// queue filled by Feed, FeedError, and FeedEOF; an empty queue reads
// as EAGAIN.
type Process struct {
	// Input is the Command.Input the process was spawned with.
	Input []byte

	// PumpDone is returned by Pump.
	PumpDone bool

	PumpCalls      int
	TerminateCalls int
	ReadCalls      int

	state  subprocess.Lifecycle
	output *Output
}

// NewProcess returns a not-yet-started Process whose output reports fd.
func NewProcess(fd int) *Process {
	process := &Process{PumpDone: true}
	process.output = &Output{fd: fd, process: process}
	return process
}

func (p *Process) Pid() int { return 4242 }

func (p *Process) Output() subprocess.Output { return p.output }

func (p *Process) State() subprocess.Lifecycle { return p.state }

func (p *Process) Pump() (bool, error) {
	p.PumpCalls++
	return p.PumpDone, nil
}

func (p *Process) Terminate() error {
	p.TerminateCalls++
	p.state = subprocess.Terminated
	return nil
}

// Feed queues data to be returned by one Read.
func (p *Process) Feed(data []byte) {
	p.output.results = append(p.output.results, readResult{data: data})
}

// FeedError queues err to be returned by one Read.
func (p *Process) FeedError(err error) {
	p.output.results = append(p.output.results, readResult{err: err})
}

// FeedEOF queues an end-of-stream Read.
func (p *Process) FeedEOF() {
	p.FeedError(io.EOF)
}

// Queued returns the number of scripted reads not yet consumed.
func (p *Process) Queued() int {
	return len(p.output.results)
}

type readResult struct {
	data []byte
	err  error
}

// Output serves scripted reads. A queued chunk larger than the
// caller's buffer is split across reads, like a real pipe.
type Output struct {
	fd      int
	process *Process
	results []readResult
}

func (o *Output) Fd() int { return o.fd }

func (o *Output) Read(buffer []byte) (int, error) {
	o.process.ReadCalls++
	if len(o.results) == 0 {
		return 0, unix.EAGAIN
	}
	next := &o.results[0]
	if next.err != nil {
		err := next.err
		o.results = o.results[1:]
		return 0, err
	}
	count := copy(buffer, next.data)
	next.data = next.data[count:]
	if len(next.data) == 0 {
		o.results = o.results[1:]
	}
	return count, nil
}
