// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for sharedscene peers.
//
// Configuration is loaded from a single file specified by either the
// SHAREDSCENE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. Values missing from the
// file keep their [Default].
//
// Files are YAML. Files ending in .json or .jsonc are accepted too:
// comments and trailing commas are stripped with tidwall/jsonc and the
// result is decoded by the same YAML decoder. Durations are written as
// Go duration strings ("1.2s", "600ms").
//
// Variable expansion is performed on the signal directory path after
// loading: ${HOME}, ${XDG_RUNTIME_DIR} and ${VAR:-default} patterns
// are expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Participant, Sync, Transport, Log
//   - [Default] -- returns a Config with working defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.SyncOptions] and [Config.ICEConfig] -- conversion to the
//     coordinator and transport types
package config
