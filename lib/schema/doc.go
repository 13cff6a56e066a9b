// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the Matrix state event types and content
// structures the room manager reads and writes. Event type constants
// (MatrixEventType*) are Matrix event type strings; Go structs define
// the JSON content.
//
// [PowerLevels] is the typed m.room.power_levels content. It keeps
// fields it does not model, so read-modify-write cycles resend the
// full event. [CreateContent] and [TombstoneContent] carry the facts
// the governance guards check: room version, room kind, and whether a
// room has already been replaced.
//
// This package depends only on lib/ref.
package schema
