// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type. Constants
// for the event types the room manager reads and writes live in
// lib/schema.
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing. The type exists purely
// for compile-time safety, so a state key cannot be passed where an
// event type is expected.
type EventType string

// String returns the event type string (e.g., "m.room.power_levels").
func (t EventType) String() string { return string(t) }
