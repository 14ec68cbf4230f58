// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for rdata client
// processes.
//
// Configuration is loaded from a single file specified by either the
// RDATA_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. YAML is the primary format; files named *.json or *.jsonc
// are accepted as JSON with comments and trailing commas.
//
// The file may contain development and production sections that
// override base values when [Config].Environment matches.
//
// Variable expansion is performed on the collector address and the
// storage paths after loading: ${HOME} and ${VAR:-default} patterns
// are expanded. No other environment variables override config values.
//
// Durations are written as Go duration strings ("500ms", "5s").
//
// This package depends on no other rdata packages.
package config
