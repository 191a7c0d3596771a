// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "golang.org/x/sys/unix"

const bootClockID = unix.CLOCK_BOOTTIME
