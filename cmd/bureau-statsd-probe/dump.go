// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/probes/lib/codec"
	"github.com/bureau-foundation/probes/lib/tracefile"
	"github.com/bureau-foundation/probes/lib/tracing"
)

// runDump prints a trace file: its header, one line per chunk, and one
// line per packet. With --diagnose each packet line carries the CBOR
// diagnostic notation of the packet.
func runDump(args []string, stdout, stderr io.Writer) error {
	var diagnose bool
	flagSet := pflag.NewFlagSet(binaryName+" dump", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&diagnose, "diagnose", false, "print each packet in CBOR diagnostic notation")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: %s dump [--diagnose] PATH", binaryName)
	}

	file, err := os.Open(flagSet.Arg(0))
	if err != nil {
		return err
	}
	defer file.Close()

	return dumpTrace(file, stdout, diagnose)
}

func dumpTrace(source io.Reader, stdout io.Writer, diagnose bool) error {
	reader, err := tracefile.NewReader(source)
	if err != nil {
		return err
	}
	header := reader.Header()
	fmt.Fprintf(stdout, "session %s created %s\n", header.Session, header.Created.Format(time.RFC3339Nano))

	for index := 0; ; index++ {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chunk %d: %w", index, err)
		}

		info := chunk.Info
		fmt.Fprintf(stdout, "chunk %d: %d packets, %s %d/%d bytes, blake3 %s\n",
			index, info.PacketCount, info.Compression, info.CompressedSize, info.UncompressedSize, info.Hash)

		for _, packet := range chunk.Packets {
			if !diagnose {
				fmt.Fprintf(stdout, "  %d %d\n", packet.Timestamp, len(packet.Payload))
				continue
			}
			notation, err := diagnosePacket(packet)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "  %d %d %s\n", packet.Timestamp, len(packet.Payload), notation)
		}
	}
}

// diagnosePacket renders packet as a one-element CBOR array, the shape
// it has inside a chunk.
func diagnosePacket(packet tracing.TracePacket) (string, error) {
	encoded, err := codec.Marshal([]tracing.TracePacket{packet})
	if err != nil {
		return "", err
	}
	return codec.Diagnose(encoded)
}
