// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomReference is either a room ID or a room alias, as typed by a user
// naming a room in a chat command. Exactly one of the two is set.
type RoomReference struct {
	ID    RoomID
	Alias RoomAlias
}

// ParseRoomReference parses "!id" or "#alias:server" text. Anything
// else is rejected.
func ParseRoomReference(raw string) (RoomReference, error) {
	if raw == "" {
		return RoomReference{}, fmt.Errorf("empty room reference")
	}
	switch raw[0] {
	case '!':
		roomID, err := ParseRoomID(raw)
		if err != nil {
			return RoomReference{}, err
		}
		return RoomReference{ID: roomID}, nil
	case '#':
		alias, err := ParseRoomAlias(raw)
		if err != nil {
			return RoomReference{}, err
		}
		return RoomReference{Alias: alias}, nil
	default:
		return RoomReference{}, fmt.Errorf("room reference must start with '!' or '#': %q", raw)
	}
}

// IsAlias reports whether the reference names an alias that still needs
// directory resolution.
func (r RoomReference) IsAlias() bool { return !r.Alias.IsZero() }

// String returns whichever form the reference holds.
func (r RoomReference) String() string {
	if r.IsAlias() {
		return r.Alias.String()
	}
	return r.ID.String()
}
