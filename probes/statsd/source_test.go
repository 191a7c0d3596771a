// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statsd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/probes/lib/clock"
	"github.com/bureau-foundation/probes/lib/framing"
	"github.com/bureau-foundation/probes/lib/subprocess"
	"github.com/bureau-foundation/probes/lib/subprocess/subprocesstest"
	"github.com/bureau-foundation/probes/lib/taskrunner/taskrunnertest"
	"github.com/bureau-foundation/probes/lib/tracing"
	"github.com/bureau-foundation/probes/probes"
)

const outputFd = 7

// runnerLimit bounds RunUntilIdle so a drain that never stops fails the
// test instead of hanging it.
const runnerLimit = 1000

var subscription = []byte{0x0a, 0x02, 0x08, 0x0a}

type harness struct {
	runner  *taskrunnertest.ManualRunner
	writer  *tracing.MemoryWriter
	spawner *subprocesstest.Spawner
	process *subprocesstest.Process
	clock   *clock.FakeClock
	source  *Source

	endOfStream int
}

func newHarness(t *testing.T, subscription []byte) *harness {
	t.Helper()
	h := &harness{
		runner:  taskrunnertest.New(),
		writer:  tracing.NewMemoryWriter(),
		spawner: subprocesstest.NewSpawner(outputFd),
		clock:   clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Second),
	}
	h.process = h.spawner.Process
	h.source = New(Options{
		Runner:        h.runner,
		Writer:        h.writer,
		Spawner:       h.spawner,
		Clock:         h.clock,
		Subscription:  subscription,
		OnEndOfStream: func() { h.endOfStream++ },
	})
	return h
}

func startedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, subscription)
	if err := h.source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}

// drain signals readiness and runs every task the drain posts.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	if !h.runner.Signal(outputFd) {
		t.Fatal("output fd is not watched")
	}
	h.runner.RunUntilIdle(runnerLimit)
}

func frame(payload string) []byte {
	return framing.AppendFrame(nil, []byte(payload))
}

func payloads(writer *tracing.MemoryWriter) []string {
	var result []string
	for _, packet := range writer.Packets() {
		result = append(result, string(packet.Payload))
	}
	return result
}

func assertPayloads(t *testing.T, writer *tracing.MemoryWriter, want ...string) {
	t.Helper()
	got := payloads(writer)
	if len(got) != len(want) {
		t.Fatalf("got %d packets %q, want %d %q", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("packet %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStartSpawnsWithFramedSubscription(t *testing.T) {
	h := startedHarness(t)

	if len(h.spawner.Commands) != 1 {
		t.Fatalf("spawned %d times, want 1", len(h.spawner.Commands))
	}
	command := h.spawner.Commands[0]
	if command.Path != DefaultPath {
		t.Errorf("path = %q, want %q", command.Path, DefaultPath)
	}
	if len(command.Args) != 2 || command.Args[0] != "stats" || command.Args[1] != "data-subscribe" {
		t.Errorf("args = %v", command.Args)
	}
	if !bytes.Equal(command.Input, framing.AppendFrame(nil, subscription)) {
		t.Errorf("input = %x, want framed subscription", command.Input)
	}
	if h.process.PumpCalls != 1 {
		t.Errorf("Pump called %d times, want 1", h.process.PumpCalls)
	}
	if !h.runner.Watched(outputFd) {
		t.Error("output fd not watched after Start")
	}
	if h.source.State() != Started {
		t.Errorf("state = %s, want started", h.source.State())
	}
	if h.process.ReadCalls != 0 {
		t.Errorf("Start read %d times before any readiness signal", h.process.ReadCalls)
	}
}

func TestIncompletePumpIsNotRetried(t *testing.T) {
	h := newHarness(t, subscription)
	h.process.PumpDone = false
	if err := h.source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.process.Feed(frame("atom"))
	h.drain(t)

	if h.process.PumpCalls != 1 {
		t.Errorf("Pump called %d times, want exactly 1", h.process.PumpCalls)
	}
	assertPayloads(t, h.writer, "atom")
}

func TestCustomCommand(t *testing.T) {
	h := &harness{runner: taskrunnertest.New(), writer: tracing.NewMemoryWriter(), spawner: subprocesstest.NewSpawner(outputFd)}
	source := New(Options{
		Runner:       h.runner,
		Writer:       h.writer,
		Spawner:      h.spawner,
		Path:         "/usr/bin/statsd-shell",
		Args:         []string{"subscribe"},
		Subscription: subscription,
	})
	if err := source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	command := h.spawner.Commands[0]
	if command.Path != "/usr/bin/statsd-shell" || len(command.Args) != 1 || command.Args[0] != "subscribe" {
		t.Errorf("command = %s %v", command.Path, command.Args)
	}
}

func TestEmptySubscriptionStaysIdle(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.source.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(h.spawner.Commands) != 0 {
		t.Error("empty subscription spawned statsd")
	}
	if h.runner.Watched(outputFd) {
		t.Error("empty subscription registered a watch")
	}
	if h.runner.Pending() != 0 {
		t.Errorf("empty subscription posted %d tasks", h.runner.Pending())
	}
	if h.source.State() != Idle {
		t.Errorf("state = %s, want idle", h.source.State())
	}

	// Closing an idle source touches nothing.
	if err := h.source.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.runner.RemoveCalls(outputFd) != 0 {
		t.Error("Close of an idle source removed a watch")
	}
}

func TestSpawnFailureDisablesSource(t *testing.T) {
	h := newHarness(t, subscription)
	h.spawner.Err = unix.ENOENT

	err := h.source.Start()
	var setupErr *subprocess.SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("Start error = %v, want *subprocess.SetupError", err)
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Errorf("Start error %v does not wrap ENOENT", err)
	}
	if h.source.State() != Terminated {
		t.Errorf("state = %s, want terminated", h.source.State())
	}
	if h.runner.Watched(outputFd) {
		t.Error("failed start registered a watch")
	}
	if err := h.source.Close(); err != nil {
		t.Errorf("Close after failed start: %v", err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	h := startedHarness(t)
	if err := h.source.Start(); err == nil {
		t.Error("second Start succeeded")
	}
	if len(h.spawner.Commands) != 1 {
		t.Errorf("spawned %d times, want 1", len(h.spawner.Commands))
	}
}

// A length-5 frame followed by a heartbeat in one read yields one
// packet with the 5-byte payload.
func TestFrameThenHeartbeatInOneRead(t *testing.T) {
	h := startedHarness(t)
	data := append(frame("hello"), frame("")...)
	h.process.Feed(data)
	h.drain(t)

	assertPayloads(t, h.writer, "hello")
	stats := h.source.Stats()
	if stats.Frames != 2 || stats.Heartbeats != 1 || stats.Packets != 1 {
		t.Errorf("stats = %+v, want 2 frames, 1 heartbeat, 1 packet", stats)
	}
	if stats.BytesRead != uint64(len(data)) {
		t.Errorf("BytesRead = %d, want %d", stats.BytesRead, len(data))
	}
}

// A frame declaring 100 bytes is held until all 100 arrive.
func TestPartialBodyWaitsForRemainder(t *testing.T) {
	h := startedHarness(t)
	body := bytes.Repeat([]byte{'x'}, 100)
	full := framing.AppendFrame(nil, body)
	split := framing.HeaderSize + 40

	h.process.Feed(full[:split])
	h.drain(t)
	if len(h.writer.Packets()) != 0 {
		t.Fatalf("packet emitted from a partial frame")
	}
	if h.source.State() != Started {
		t.Errorf("state = %s after would-block, want started", h.source.State())
	}

	h.process.Feed(full[split : split+30])
	h.drain(t)
	if len(h.writer.Packets()) != 0 {
		t.Fatalf("packet emitted with 70 of 100 bytes")
	}

	h.process.Feed(full[split+30:])
	h.drain(t)
	assertPayloads(t, h.writer, string(body))
}

// EOF mid-drain removes the watch and terminates the child exactly
// once, and schedules nothing further.
func TestEndOfStreamTearsDownOnce(t *testing.T) {
	h := startedHarness(t)
	h.process.Feed(frame("last"))
	h.process.FeedEOF()
	h.drain(t)

	assertPayloads(t, h.writer, "last")
	if h.runner.RemoveCalls(outputFd) != 1 {
		t.Errorf("watch removed %d times, want 1", h.runner.RemoveCalls(outputFd))
	}
	if h.process.TerminateCalls != 1 {
		t.Errorf("terminated %d times, want 1", h.process.TerminateCalls)
	}
	if h.runner.Pending() != 0 {
		t.Errorf("%d tasks pending after EOF", h.runner.Pending())
	}
	if h.source.State() != Terminated {
		t.Errorf("state = %s, want terminated", h.source.State())
	}
	if h.endOfStream != 1 {
		t.Errorf("OnEndOfStream ran %d times, want 1", h.endOfStream)
	}

	readsAtEOF := h.process.ReadCalls
	h.process.Feed(frame("after"))
	if h.runner.Signal(outputFd) {
		t.Error("watch still registered after EOF")
	}
	h.runner.RunUntilIdle(runnerLimit)
	if h.process.ReadCalls != readsAtEOF {
		t.Error("read after EOF")
	}

	// A later Close does not repeat the teardown.
	if err := h.source.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.runner.RemoveCalls(outputFd) != 1 || h.process.TerminateCalls != 1 {
		t.Errorf("Close after EOF repeated teardown: removes=%d terminates=%d",
			h.runner.RemoveCalls(outputFd), h.process.TerminateCalls)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := startedHarness(t)
	for range 3 {
		if err := h.source.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if h.runner.RemoveCalls(outputFd) != 1 {
		t.Errorf("watch removed %d times, want 1", h.runner.RemoveCalls(outputFd))
	}
	if h.process.TerminateCalls != 1 {
		t.Errorf("terminated %d times, want 1", h.process.TerminateCalls)
	}
	if h.source.State() != Terminated {
		t.Errorf("state = %s, want terminated", h.source.State())
	}
}

// Readiness signals during a drain do not start a second drain.
func TestSingleFlight(t *testing.T) {
	h := startedHarness(t)
	h.process.Feed(frame("one"))
	h.process.Feed(frame("two"))

	h.runner.Signal(outputFd)
	if h.process.ReadCalls != 1 {
		t.Fatalf("first signal made %d reads, want 1", h.process.ReadCalls)
	}
	if h.runner.Pending() != 1 {
		t.Fatalf("pending = %d after a successful read, want 1 repost", h.runner.Pending())
	}
	if h.source.State() != Draining {
		t.Errorf("state = %s, want draining", h.source.State())
	}

	for range 5 {
		h.runner.Signal(outputFd)
	}
	if h.process.ReadCalls != 1 {
		t.Errorf("signals during a drain made %d reads, want 1", h.process.ReadCalls)
	}
	if h.runner.Pending() != 1 {
		t.Errorf("signals during a drain queued %d tasks, want 1", h.runner.Pending())
	}

	h.runner.RunUntilIdle(runnerLimit)
	assertPayloads(t, h.writer, "one", "two")
	if h.source.State() != Started {
		t.Errorf("state = %s after drain, want started", h.source.State())
	}

	// The guard is released: the next signal drains again.
	h.process.Feed(frame("three"))
	h.drain(t)
	assertPayloads(t, h.writer, "one", "two", "three")
}

// Each drain task performs exactly one read.
func TestOneReadPerTask(t *testing.T) {
	h := startedHarness(t)
	h.process.Feed(frame("a"))
	h.process.Feed(frame("b"))
	h.process.Feed(frame("c"))

	h.runner.Signal(outputFd)
	reads := 1
	for h.runner.RunNext() {
		reads++
		if h.process.ReadCalls != reads {
			t.Fatalf("task %d made %d total reads, want %d", reads, h.process.ReadCalls, reads)
		}
	}
	// Three data reads plus the would-block read that ends the drain.
	if reads != 4 {
		t.Errorf("drain used %d reads, want 4", reads)
	}
	if h.source.Stats().ReadCycles != 4 {
		t.Errorf("ReadCycles = %d, want 4", h.source.Stats().ReadCycles)
	}
}

// A drain task queued before Close does nothing when it runs.
func TestCloseCancelsQueuedDrain(t *testing.T) {
	h := startedHarness(t)
	h.process.Feed(frame("first"))
	h.process.Feed(frame("second"))

	h.runner.Signal(outputFd)
	if h.runner.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", h.runner.Pending())
	}
	if err := h.source.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reads := h.process.ReadCalls
	h.runner.RunUntilIdle(runnerLimit)
	if h.process.ReadCalls != reads {
		t.Error("queued drain read after Close")
	}
	assertPayloads(t, h.writer, "first")
}

func TestReadErrorEndsDrain(t *testing.T) {
	h := startedHarness(t)
	h.process.Feed(frame("before"))
	h.process.FeedError(unix.EIO)
	h.process.Feed(frame("after"))

	h.drain(t)
	assertPayloads(t, h.writer, "before")
	if h.source.State() != Started {
		t.Errorf("state = %s after read error, want started", h.source.State())
	}
	if h.source.Stats().ReadErrors != 1 {
		t.Errorf("ReadErrors = %d, want 1", h.source.Stats().ReadErrors)
	}
	if !h.runner.Watched(outputFd) {
		t.Error("read error removed the watch")
	}
	if h.process.TerminateCalls != 0 {
		t.Error("read error terminated the child")
	}

	h.drain(t)
	assertPayloads(t, h.writer, "before", "after")
}

func TestWouldBlockIsNotAnError(t *testing.T) {
	h := startedHarness(t)
	h.drain(t)
	if h.source.Stats().ReadErrors != 0 {
		t.Errorf("ReadErrors = %d after EAGAIN, want 0", h.source.Stats().ReadErrors)
	}
	if h.source.State() != Started {
		t.Errorf("state = %s, want started", h.source.State())
	}
}

// Frames larger than one read, spread over many reads, arrive intact
// and in order.
func TestLargeFramesAcrossReads(t *testing.T) {
	h := startedHarness(t)
	var want []string
	var stream []byte
	for i := range 5 {
		payload := bytes.Repeat([]byte{byte('a' + i)}, 3*readBufferSize+i)
		want = append(want, string(payload))
		stream = framing.AppendFrame(stream, payload)
		stream = framing.AppendFrame(stream, nil)
	}
	h.process.Feed(stream)
	h.drain(t)

	assertPayloads(t, h.writer, want...)
	if h.source.Stats().Heartbeats != 5 {
		t.Errorf("Heartbeats = %d, want 5", h.source.Stats().Heartbeats)
	}
}

func TestPacketsCarryBootTime(t *testing.T) {
	h := startedHarness(t)
	h.process.Feed(frame("first"))
	h.runner.Signal(outputFd)
	h.clock.Advance(time.Millisecond)
	h.process.Feed(frame("second"))
	h.runner.RunUntilIdle(runnerLimit)

	packets := h.writer.Packets()
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if packets[0].Timestamp != uint64(5*time.Second) {
		t.Errorf("first timestamp = %d, want %d", packets[0].Timestamp, uint64(5*time.Second))
	}
	if packets[1].Timestamp != uint64(5*time.Second+time.Millisecond) {
		t.Errorf("second timestamp = %d", packets[1].Timestamp)
	}
}

func TestFlushForwardsToWriter(t *testing.T) {
	h := startedHarness(t)
	called := false
	h.source.Flush(probes.FlushRequestID(3), func() { called = true })
	if !called {
		t.Error("flush callback not run")
	}
	if h.writer.Flushes() != 1 {
		t.Errorf("writer flushed %d times, want 1", h.writer.Flushes())
	}
}

// ClearIncrementalState keeps a partially received frame.
func TestClearIncrementalStateKeepsBufferedTail(t *testing.T) {
	h := startedHarness(t)
	full := frame("split payload")
	h.process.Feed(full[:framing.HeaderSize+3])
	h.drain(t)

	h.source.ClearIncrementalState()

	h.process.Feed(full[framing.HeaderSize+3:])
	h.drain(t)
	assertPayloads(t, h.writer, "split payload")
}

func TestDescriptor(t *testing.T) {
	h := newHarness(t, nil)
	descriptor := h.source.Descriptor()
	if descriptor.Name != "android.statsd" {
		t.Errorf("name = %q", descriptor.Name)
	}
	if !descriptor.Has(probes.HandlesIncrementalState) {
		t.Error("descriptor should handle incremental state")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:       "idle",
		Started:    "started",
		Draining:   "draining",
		Terminated: "terminated",
		State(9):   "unknown(9)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
