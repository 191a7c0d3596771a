// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/bureau-foundation/probes/lib/clock"
	"github.com/bureau-foundation/probes/lib/config"
	"github.com/bureau-foundation/probes/lib/subprocess"
	"github.com/bureau-foundation/probes/lib/taskrunner"
	"github.com/bureau-foundation/probes/lib/tracefile"
	"github.com/bureau-foundation/probes/lib/version"
	"github.com/bureau-foundation/probes/probes"
	statsdsource "github.com/bureau-foundation/probes/probes/statsd"
)

const binaryName = "bureau-statsd-probe"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", binaryName, err)
		os.Exit(1)
	}
}

// flags holds command-line overrides for the config file.
type flags struct {
	configPath  string
	output      string
	compression string
	logLevel    string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var parsed flags
	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&parsed.configPath, "config", "", "probe config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&parsed.output, "output", "", "trace file to write (overrides output.path)")
	flagSet.StringVar(&parsed.compression, "compression", "", "chunk compression: none, lz4, or zstd (overrides output.compression)")
	flagSet.StringVar(&parsed.logLevel, "log-level", "", "debug, info, warn, or error (overrides logging.level)")

	if err := flagSet.Parse(args); err != nil {
		return flags{}, err
	}
	if flagSet.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	return parsed, nil
}

func run(args []string) error {
	// Handle --version before flag parsing to match other Bureau binaries.
	if len(args) > 0 && args[0] == "--version" {
		version.Print(binaryName)
		return nil
	}
	if len(args) > 0 && args[0] == "dump" {
		return runDump(args[1:], os.Stdout, os.Stderr)
	}

	parsed, err := parseFlags(args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := loadConfig(parsed)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runProbe(ctx, cfg, clock.Real(), logger)
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(parsed flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if parsed.configPath != "" {
		cfg, err = config.LoadFile(parsed.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if parsed.output != "" {
		cfg.Output.Path = parsed.output
	}
	if parsed.compression != "" {
		cfg.Output.Compression = parsed.compression
	}
	if parsed.logLevel != "" {
		cfg.Logging.Level = parsed.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the probe logger. The auto format writes text to a
// terminal and JSON otherwise, like the Bureau CLI.
func newLogger(logging config.LoggingConfig, stderr *os.File) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}

	useJSON := logging.Format == "json"
	if logging.Format == "auto" || logging.Format == "" {
		useJSON = !term.IsTerminal(int(stderr.Fd()))
	}
	if useJSON {
		return slog.New(slog.NewJSONHandler(stderr, options))
	}
	return slog.New(slog.NewTextHandler(stderr, options))
}

// runProbe runs the statsd source until statsd closes its output or ctx
// is cancelled, then flushes and closes the trace file.
func runProbe(ctx context.Context, cfg *config.Config, probeClock clock.Clock, logger *slog.Logger) error {
	compression, err := tracefile.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return err
	}
	flushPeriod, err := cfg.Output.FlushPeriod()
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	file, err := os.Create(cfg.Output.Path)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	defer file.Close()

	writer, err := tracefile.NewWriter(file, tracefile.WriterOptions{
		Compression: compression,
		ChunkSize:   cfg.Output.ChunkSize,
		Clock:       probeClock,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	logger = logger.With("session", writer.Header().Session.String())

	runner, err := taskrunner.NewPollRunner(logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	// A missing binary is left for Spawn to report, so it disables the
	// source like any other setup failure.
	binary, err := cfg.Statsd.BinaryPath()
	if err != nil {
		logger.Warn("statsd binary not found", "error", err)
		binary = cfg.Statsd.Binary
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	source := statsdsource.New(statsdsource.Options{
		Runner:        runner,
		Writer:        writer,
		Spawner:       &subprocess.ExecSpawner{Logger: logger},
		Clock:         probeClock,
		Logger:        logger,
		Path:          binary,
		Args:          cfg.Statsd.Args,
		Subscription:  cfg.Statsd.Subscription.Encode(),
		OnEndOfStream: cancel,
	})

	runner.PostTask(func() {
		if err := source.Start(); err != nil {
			// The source is disabled; finish with an empty trace.
			cancel()
		}
	})

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return runner.Run(groupCtx)
	})
	group.Go(func() error {
		periodicFlush(groupCtx, probeClock, runner, source, flushPeriod)
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	// The runner has stopped, so this goroutine is now the only one
	// touching the source and the writer.
	if err := source.Close(); err != nil {
		logger.Warn("closing statsd source", "error", err)
	}
	writer.Flush(nil)
	if err := writer.Close(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}

	stats := source.Stats()
	logger.Info("trace written",
		"path", cfg.Output.Path,
		"chunks", writer.Chunks(),
		"packets", writer.Packets(),
		"bytes_read", stats.BytesRead,
		"heartbeats", stats.Heartbeats,
	)
	return nil
}

// periodicFlush posts a flush of source to the runner every period
// until ctx is done. Request ids start at 1 and increase by one per
// tick.
func periodicFlush(ctx context.Context, probeClock clock.Clock, runner taskrunner.TaskRunner, source probes.DataSource, period time.Duration) {
	ticker := probeClock.NewTicker(period)
	defer ticker.Stop()

	var next probes.FlushRequestID
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next++
			id := next
			runner.PostTask(func() { source.Flush(id, nil) })
		}
	}
}
