// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subprocess

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// ExecSpawner starts processes with os/exec, wiring stdin and stdout
// to pipes it creates itself so the parent ends can be nonblocking.
type ExecSpawner struct {
	Logger *slog.Logger
}

var _ Spawner = (*ExecSpawner)(nil)

// Spawn starts command. The returned Process owns both parent-side
// pipe ends; they are released by Terminate.
func (s *ExecSpawner) Spawn(command Command) (Process, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "subprocess", "path", command.Path)

	// exec.Command would search PATH for a name without a slash.
	if !strings.ContainsRune(command.Path, '/') {
		return nil, &SetupError{Path: command.Path, Err: fmt.Errorf("path %q has no directory component", command.Path)}
	}

	var stdout, stdin [2]int
	if err := unix.Pipe2(stdout[:], unix.O_CLOEXEC); err != nil {
		return nil, &SetupError{Path: command.Path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	if err := unix.Pipe2(stdin[:], unix.O_CLOEXEC); err != nil {
		unix.Close(stdout[0])
		unix.Close(stdout[1])
		return nil, &SetupError{Path: command.Path, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	closeAll := func() {
		for _, fd := range []int{stdout[0], stdout[1], stdin[0], stdin[1]} {
			unix.Close(fd)
		}
	}

	// Only the parent ends are nonblocking. The child sees ordinary
	// blocking pipes.
	if err := unix.SetNonblock(stdout[0], true); err != nil {
		closeAll()
		return nil, &SetupError{Path: command.Path, Err: fmt.Errorf("stdout nonblocking: %w", err)}
	}
	if err := unix.SetNonblock(stdin[1], true); err != nil {
		closeAll()
		return nil, &SetupError{Path: command.Path, Err: fmt.Errorf("stdin nonblocking: %w", err)}
	}

	childStdin := os.NewFile(uintptr(stdin[0]), "stdin")
	childStdout := os.NewFile(uintptr(stdout[1]), "stdout")

	//nolint:gosec // G204: the helper path comes from probe configuration
	cmd := exec.Command(command.Path, command.Args...)
	cmd.Stdin = childStdin
	cmd.Stdout = childStdout
	cmd.Stderr = command.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	startErr := cmd.Start()

	// The child holds its own copies now (or never will). Keeping ours
	// open would stop the stdout pipe from ever reporting EOF.
	childStdin.Close()
	childStdout.Close()

	if startErr != nil {
		unix.Close(stdout[0])
		unix.Close(stdin[1])
		logger.Error("failed to start subprocess", "error", startErr)
		return nil, &SetupError{Path: command.Path, Err: startErr}
	}

	process := &execProcess{
		logger:  logger.With("pid", cmd.Process.Pid),
		cmd:     cmd,
		output:  &pipeOutput{fd: stdout[0]},
		stdin:   stdin[1],
		pending: command.Input,
		state:   Running,
	}
	if len(process.pending) == 0 {
		process.closeStdin()
	}
	process.logger.Info("subprocess started", "input_bytes", len(command.Input))
	return process, nil
}

type execProcess struct {
	logger  *slog.Logger
	cmd     *exec.Cmd
	output  *pipeOutput
	stdin   int
	pending []byte
	state   Lifecycle
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Output() Output { return p.output }

func (p *execProcess) State() Lifecycle { return p.state }

func (p *execProcess) Pump() (bool, error) {
	if p.stdin < 0 {
		return true, nil
	}

	written, err := unix.Write(p.stdin, p.pending)
	if err != nil {
		if err == unix.EINTR || IsWouldBlock(err) {
			return false, nil
		}
		// EPIPE: the child closed stdin without reading everything.
		// Nothing more can be delivered.
		p.closeStdin()
		return false, fmt.Errorf("writing subprocess input: %w", err)
	}

	p.pending = p.pending[written:]
	if len(p.pending) > 0 {
		return false, nil
	}
	p.closeStdin()
	return true, nil
}

func (p *execProcess) Terminate() error {
	if p.state == Terminated {
		return nil
	}
	p.state = Terminated
	p.closeStdin()
	defer p.output.close()

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("killing subprocess failed", "error", err)
	}

	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("waiting for subprocess %d: %w", p.cmd.Process.Pid, err)
	}
	p.logger.Info("subprocess terminated", "exit", p.cmd.ProcessState.String())
	return nil
}

func (p *execProcess) closeStdin() {
	if p.stdin < 0 {
		return
	}
	unix.Close(p.stdin)
	p.stdin = -1
	p.pending = nil
}

// pipeOutput reads the parent end of the stdout pipe with raw
// syscalls. Wrapping the descriptor in an *os.File would hand it to
// the runtime poller, which turns EAGAIN into a parked goroutine.
type pipeOutput struct {
	fd int
}

func (o *pipeOutput) Fd() int { return o.fd }

func (o *pipeOutput) Read(p []byte) (int, error) {
	if o.fd < 0 {
		return 0, os.ErrClosed
	}
	for {
		count, err := unix.Read(o.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if count == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return count, nil
	}
}

func (o *pipeOutput) close() {
	if o.fd < 0 {
		return
	}
	unix.Close(o.fd)
	o.fd = -1
}
