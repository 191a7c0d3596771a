// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix && !linux

package clock

import "golang.org/x/sys/unix"

// Without CLOCK_BOOTTIME the monotonic clock is the closest match; it
// stops while the machine is suspended.
const bootClockID = unix.CLOCK_MONOTONIC
