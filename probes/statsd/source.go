// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statsd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/probes/lib/clock"
	"github.com/bureau-foundation/probes/lib/framing"
	"github.com/bureau-foundation/probes/lib/liveness"
	"github.com/bureau-foundation/probes/lib/subprocess"
	"github.com/bureau-foundation/probes/lib/taskrunner"
	"github.com/bureau-foundation/probes/lib/tracing"
	"github.com/bureau-foundation/probes/probes"
)

// Descriptor identifies the statsd data source.
var Descriptor = probes.Descriptor{
	Name:  "android.statsd",
	Flags: probes.HandlesIncrementalState,
}

const (
	// DefaultPath and DefaultArgs form the command used when Options
	// leaves Path empty.
	DefaultPath = "/system/bin/cmd"

	// readBufferSize bounds the bytes consumed per drain task.
	readBufferSize = 4098
)

// DefaultArgs are the arguments passed to DefaultPath.
var DefaultArgs = []string{"stats", "data-subscribe"}

// State is the lifecycle of a Source.
type State int

const (
	// Idle: not started, or started with an empty subscription.
	Idle State = iota
	// Started: the child is running and no drain is in progress.
	Started
	// Draining: a drain task is scheduled or running.
	Draining
	// Terminated: the child has been torn down. Final.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Started:
		return "started"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Stats counts what a Source has done.
type Stats struct {
	BytesRead  uint64
	ReadCycles uint64
	ReadErrors uint64

	// Frames counts complete frames, heartbeats included.
	Frames     uint64
	Heartbeats uint64
	Packets    uint64
}

// Options configures a Source. Runner, Writer, and Spawner are
// required.
type Options struct {
	Runner  taskrunner.TaskRunner
	Writer  tracing.TraceWriter
	Spawner subprocess.Spawner

	// Clock stamps packets. Nil uses clock.Real.
	Clock  clock.Clock
	Logger *slog.Logger

	// Path and Args name the statsd command. An empty Path selects
	// DefaultPath with DefaultArgs.
	Path string
	Args []string

	// Subscription is the encoded ShellSubscription. Empty leaves the
	// source idle.
	Subscription []byte

	Session probes.SessionID

	// OnEndOfStream, if set, runs once after the child closes its
	// output and the source has torn itself down.
	OnEndOfStream func()
}

// Source is the statsd data source. All methods must be called on the
// runner's goroutine.
type Source struct {
	runner        taskrunner.TaskRunner
	writer        tracing.TraceWriter
	spawner       subprocess.Spawner
	clock         clock.Clock
	logger        *slog.Logger
	path          string
	args          []string
	subscription  []byte
	onEndOfStream func()

	state State

	// readInProgress is the single-flight guard for drains. A plain
	// bool is enough because every access is on the runner goroutine.
	readInProgress bool

	lifetime liveness.Factory

	process    subprocess.Process
	fd         int
	watching   bool
	terminated bool

	buffer     *framing.Buffer
	readBuffer [readBufferSize]byte

	stats Stats
}

var _ probes.DataSource = (*Source)(nil)

// New returns an idle Source.
func New(options Options) *Source {
	if options.Runner == nil || options.Writer == nil || options.Spawner == nil {
		panic("statsd: New requires Runner, Writer, and Spawner")
	}
	sourceClock := options.Clock
	if sourceClock == nil {
		sourceClock = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	path, args := options.Path, options.Args
	if path == "" {
		path, args = DefaultPath, DefaultArgs
	}

	return &Source{
		runner:        options.Runner,
		writer:        options.Writer,
		spawner:       options.Spawner,
		clock:         sourceClock,
		logger:        logger.With("component", "statsd", "session", uint64(options.Session)),
		path:          path,
		args:          args,
		subscription:  options.Subscription,
		onEndOfStream: options.OnEndOfStream,
		fd:            -1,
		buffer:        framing.NewBuffer(),
	}
}

func (s *Source) Descriptor() probes.Descriptor {
	return Descriptor
}

// Start spawns statsd, hands it the subscription, and watches its
// output. With an empty subscription Start logs and returns nil
// without spawning anything. A spawn failure is returned as a
// *subprocess.SetupError and leaves the source Terminated.
func (s *Source) Start() error {
	if s.state != Idle {
		return fmt.Errorf("statsd: Start called in state %s", s.state)
	}
	if len(s.subscription) == 0 {
		s.logger.Info("empty statsd config, not connecting to statsd")
		return nil
	}

	process, err := s.spawner.Spawn(subprocess.Command{
		Path:  s.path,
		Args:  s.args,
		Input: framing.AppendFrame(nil, s.subscription),
	})
	if err != nil {
		s.state = Terminated
		s.logger.Error("starting statsd failed, source disabled", "error", err)
		return err
	}
	s.process = process
	s.state = Started
	s.logger.Info("statsd started", "pid", process.Pid(), "subscription_bytes", len(s.subscription))

	// One pump only. A subscription larger than the pipe buffer is not
	// fully delivered and statsd waits for the rest.
	done, err := process.Pump()
	switch {
	case err != nil:
		s.logger.Warn("writing statsd subscription failed", "error", err)
	case !done:
		s.logger.Warn("statsd subscription only partially written; it will not be retried")
	}

	s.fd = process.Output().Fd()
	token := s.lifetime.Token()
	s.runner.AddFileDescriptorWatch(s.fd, func() {
		if !token.Alive() {
			return
		}
		s.onReadable()
	})
	s.watching = true
	return nil
}

// onReadable starts a drain unless one is already running.
func (s *Source) onReadable() {
	if s.readInProgress {
		return
	}
	s.readInProgress = true
	s.state = Draining
	s.doRead()
}

// doRead is one drain cycle: a single nonblocking read, then every
// frame it completed is forwarded. While reads return data the cycle
// reposts itself; would-block and errors end the drain until the next
// readiness signal, EOF ends the source.
func (s *Source) doRead() {
	if !s.readInProgress {
		panic("statsd: drain cycle without a read in progress")
	}
	s.stats.ReadCycles++

	count, err := s.process.Output().Read(s.readBuffer[:])
	if errors.Is(err, io.EOF) {
		s.readInProgress = false
		s.logger.Info("statsd closed its output", "stats", s.stats)
		s.teardown()
		s.state = Terminated
		if s.onEndOfStream != nil {
			s.onEndOfStream()
		}
		return
	}
	if err != nil {
		if !subprocess.IsWouldBlock(err) {
			s.stats.ReadErrors++
			s.logger.Warn("reading statsd output failed", "error", err)
		}
		s.readInProgress = false
		s.state = Started
		return
	}

	s.stats.BytesRead += uint64(count)
	s.buffer.Append(s.readBuffer[:count])
	s.forwardMessages()

	token := s.lifetime.Token()
	s.runner.PostTask(func() {
		if !token.Alive() {
			return
		}
		s.doRead()
	})
}

// forwardMessages emits one packet per complete non-empty frame, in
// stream order.
func (s *Source) forwardMessages() {
	for {
		message := s.buffer.ReadMessage()
		if !message.Valid() {
			return
		}
		s.stats.Frames++
		if message.Empty() {
			s.stats.Heartbeats++
			continue
		}

		packet := s.writer.NewTracePacket()
		packet.SetTimestamp(clock.BootTimeNanos(s.clock))
		packet.SetPayload(s.buffer.Bytes(message))
		packet.Finalize()
		s.stats.Packets++
	}
}

// Flush forwards to the trace writer.
func (s *Source) Flush(id probes.FlushRequestID, callback func()) {
	s.logger.Debug("flush", "id", uint64(id), "packets", s.stats.Packets)
	s.writer.Flush(callback)
}

// ClearIncrementalState does nothing: packets are self-contained, and
// the partial frame held in the buffer must survive.
func (s *Source) ClearIncrementalState() {}

// Close revokes pending drain tasks and tears down the child. Safe to
// call more than once and after EOF.
func (s *Source) Close() error {
	s.lifetime.Revoke()
	s.readInProgress = false
	err := s.teardown()
	s.state = Terminated
	return err
}

// teardown removes the watch and terminates the child, each at most
// once over the source's lifetime.
func (s *Source) teardown() error {
	if s.watching {
		s.runner.RemoveFileDescriptorWatch(s.fd)
		s.watching = false
	}
	if s.process == nil || s.terminated {
		return nil
	}
	s.terminated = true
	if err := s.process.Terminate(); err != nil {
		s.logger.Warn("terminating statsd failed", "pid", s.process.Pid(), "error", err)
		return fmt.Errorf("terminating statsd: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	return s.state
}

// Stats returns a snapshot of the source's counters.
func (s *Source) Stats() Stats {
	return s.stats
}
