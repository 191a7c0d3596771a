// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-statsd-probe records statsd atoms into a trace file.
//
// It runs the statsd data source for a single session: statsd is
// spawned with the subscription from the config file, every atom it
// streams becomes a trace packet, and packets are written to a chunked
// trace file (see lib/tracefile). The probe exits when statsd closes
// its output or on SIGINT/SIGTERM, flushing the trace either way.
//
// A statsd that cannot be started disables the source rather than
// failing the probe: the trace file is still written, empty.
//
// The dump subcommand prints a trace file:
//
//	bureau-statsd-probe dump statsd.btrc
//	bureau-statsd-probe dump --diagnose statsd.btrc
package main
