// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statsd

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultPullFrequencyMillis is the pull interval used when a pulled
// atom group leaves FrequencyMillis unset.
const DefaultPullFrequencyMillis = 5000

// ShellSubscription and nested message field numbers.
const (
	fieldShellPushed protowire.Number = 1
	fieldShellPulled protowire.Number = 2

	fieldMatcherAtomID protowire.Number = 1

	fieldPulledMatcher    protowire.Number = 1
	fieldPulledFreqMillis protowire.Number = 2
	fieldPulledPackages   protowire.Number = 3
)

// Subscription selects the atoms statsd should stream.
type Subscription struct {
	// Pushed atoms are reported by statsd as they occur.
	Pushed []int32 `yaml:"pushed" toml:"pushed"`

	// Pulled groups are polled by statsd on a schedule.
	Pulled []PulledAtom `yaml:"pulled" toml:"pulled"`
}

// PulledAtom is a group of pulled atoms sharing a schedule.
type PulledAtom struct {
	AtomIDs []int32 `yaml:"atom_ids" toml:"atom_ids"`

	// FrequencyMillis is the pull interval. Zero selects
	// DefaultPullFrequencyMillis.
	FrequencyMillis int64 `yaml:"frequency_millis" toml:"frequency_millis"`

	// Packages restricts pulls to atoms attributed to these packages.
	Packages []string `yaml:"packages" toml:"packages"`
}

// Empty reports whether the subscription selects no atoms. An empty
// subscription encodes to no bytes and the data source stays idle.
func (s Subscription) Empty() bool {
	if len(s.Pushed) > 0 {
		return false
	}
	for _, pulled := range s.Pulled {
		if len(pulled.AtomIDs) > 0 {
			return false
		}
	}
	return true
}

// Validate checks atom ids and frequencies.
func (s Subscription) Validate() error {
	for _, id := range s.Pushed {
		if id <= 0 {
			return fmt.Errorf("pushed atom id %d must be positive", id)
		}
	}
	for i, pulled := range s.Pulled {
		for _, id := range pulled.AtomIDs {
			if id <= 0 {
				return fmt.Errorf("pulled[%d]: atom id %d must be positive", i, id)
			}
		}
		if pulled.FrequencyMillis < 0 {
			return fmt.Errorf("pulled[%d]: frequency_millis %d must not be negative", i, pulled.FrequencyMillis)
		}
	}
	return nil
}

// Encode returns the ShellSubscription wire encoding. Each pulled atom
// id gets its own PulledAtomSubscription carrying the group's frequency
// and packages. An empty subscription encodes to nil.
func (s Subscription) Encode() []byte {
	var out []byte
	for _, id := range s.Pushed {
		out = protowire.AppendTag(out, fieldShellPushed, protowire.BytesType)
		out = protowire.AppendBytes(out, appendMatcher(nil, id))
	}
	for _, pulled := range s.Pulled {
		frequency := pulled.FrequencyMillis
		if frequency == 0 {
			frequency = DefaultPullFrequencyMillis
		}
		for _, id := range pulled.AtomIDs {
			var message []byte
			message = protowire.AppendTag(message, fieldPulledMatcher, protowire.BytesType)
			message = protowire.AppendBytes(message, appendMatcher(nil, id))
			message = protowire.AppendTag(message, fieldPulledFreqMillis, protowire.VarintType)
			message = protowire.AppendVarint(message, uint64(frequency))
			for _, name := range pulled.Packages {
				message = protowire.AppendTag(message, fieldPulledPackages, protowire.BytesType)
				message = protowire.AppendString(message, name)
			}

			out = protowire.AppendTag(out, fieldShellPulled, protowire.BytesType)
			out = protowire.AppendBytes(out, message)
		}
	}
	return out
}

// appendMatcher appends a SimpleAtomMatcher with the given atom id.
func appendMatcher(dst []byte, atomID int32) []byte {
	dst = protowire.AppendTag(dst, fieldMatcherAtomID, protowire.VarintType)
	// int32 fields are sign-extended to 64 bits on the wire.
	return protowire.AppendVarint(dst, uint64(int64(atomID)))
}
