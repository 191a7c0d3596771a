// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads probe configuration.
//
// Configuration is loaded from a single file specified by either the
// BUREAU_PROBES_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no discovery and no fallback search.
//
// The format follows the file extension: .yaml/.yml, .toml, or
// .json/.jsonc (comments and trailing commas allowed). All three map
// onto the same [Config] struct.
//
// The file may carry development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production defaults to JSON logs.
//
// ${HOME}, ${BUREAU_PROBES_ROOT}, and ${VAR:-default} patterns are
// expanded in path fields after loading.
package config
