// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the room manager's configuration.
//
// Configuration comes from a single file named by the ROOM_MANAGER_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery and no environment override of
// individual values. Files ending in .json or .jsonc are parsed as
// JSON with comments; anything else is YAML.
//
// ${HOME} and ${VAR:-default} patterns are expanded in
// access_token_file only.
//
// [Holder] keeps the current configuration behind an atomic pointer.
// Each command invocation takes one [Holder.Snapshot] and uses it to
// completion, so a reload never changes the administrator set or audit
// policy halfway through a command.
package config
