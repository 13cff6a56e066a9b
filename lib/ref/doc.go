// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable value types for the Matrix
// identifiers the room manager handles: room IDs, user IDs, room
// aliases, and event types.
//
// Identifiers arrive as untrusted text (chat command arguments, sync
// responses) and are parsed into these types at the boundary. Code past
// the boundary never re-validates: a non-zero [RoomID] or [UserID] is
// structurally well-formed by construction.
//
// Room IDs in room version 12 and later are server-less ("!opaque");
// [ParseRoomID] accepts both that form and the legacy "!opaque:server"
// form. User IDs and aliases always carry a server name.
//
// JSON marshaling uses the canonical string form via
// encoding.TextMarshaler, so map keys and struct fields of these types
// round-trip through encoding/json with validation on decode.
package ref
