// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package governance implements the room manager's command semantics:
// creating rooms and spaces, promoting and demoting room
// administrators, upgrading rooms to a newer room version, and
// forgetting rooms.
//
// Each command is a linear pipeline:
//
//  1. Argument resolution ([ParseInvocation], [ResolveRoomArgument],
//     [ResolveUserAndRoomArguments]) turns a message body into
//     identifier strings. Mention pills contribute their matrix.to
//     target rather than their label.
//  2. Validation parses those strings into identifiers. Nothing has
//     touched the homeserver yet.
//  3. Caller-only authority ([Authority.RequireInstanceAdmin]) for
//     commands reserved to instance administrators.
//  4. A fresh state fetch ([StateAccessor]). Every failure to read a
//     room collapses to one "does not exist or I am not a member"
//     error.
//  5. Room guards ([CheckManagedRoom], [CheckUpgradable]) and the
//     room-admin guard ([CheckRoomAdmin]). Guards are pure and return
//     a [*GuardError] carrying a [Reason].
//  6. The mutation. Power level changes go through the [Mutator],
//     which serializes writes per room and skips writes that would not
//     change anything.
//  7. An audit record ([AuditLogger]) when the policy enables the
//     category. Audit failures never fail the command.
//
// Errors carry a [Kind] from a fixed taxonomy. [UserMessage] renders
// any error for the caller; remote failures are reported generically
// and their cause is left for the logs.
//
// The [Engine] holds no room state between commands. The only inputs
// besides the homeserver are the per-invocation [Policy] snapshot and
// the caller identity.
package governance
