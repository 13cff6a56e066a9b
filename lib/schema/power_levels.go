// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bureau-foundation/roommanager/lib/ref"
)

// PowerLevelAdmin is the level at or above which a user is treated as
// a room administrator.
const PowerLevelAdmin = 100

// PowerLevels is a typed representation of the Matrix
// m.room.power_levels state event content. It supports typed
// read-modify-write operations: unmarshal the content returned by
// GetStateEvent, modify it with SetUserLevel, then send the struct
// back with SendStateEvent.
//
// Pointer-to-int fields distinguish "not set" (nil, omitted from JSON)
// from "explicitly set to 0". Keys this struct does not model are kept
// verbatim and written back on marshal, so a read-modify-write never
// drops content another client put there.
//
// Older room versions allow levels encoded as numeric strings. Those
// are accepted on decode and written back as integers.
type PowerLevels struct {
	Users         map[string]int
	UsersDefault  *int
	Events        map[string]int
	EventsDefault *int
	StateDefault  *int
	Invite        *int
	Ban           *int
	Kick          *int
	Redact        *int
	Notifications map[string]int

	// extra holds every top-level key not listed above.
	extra map[string]json.RawMessage
}

const (
	keyUsers         = "users"
	keyUsersDefault  = "users_default"
	keyEvents        = "events"
	keyEventsDefault = "events_default"
	keyStateDefault  = "state_default"
	keyInvite        = "invite"
	keyBan           = "ban"
	keyKick          = "kick"
	keyRedact        = "redact"
	keyNotifications = "notifications"
)

// UserLevel returns the power level for a user. An explicit entry in
// Users wins; otherwise UsersDefault applies, and 0 when that is unset.
func (powerLevels *PowerLevels) UserLevel(userID ref.UserID) int {
	if level, ok := powerLevels.Users[userID.String()]; ok {
		return level
	}
	if powerLevels.UsersDefault != nil {
		return *powerLevels.UsersDefault
	}
	return 0
}

// IsAdmin reports whether the user's level reaches PowerLevelAdmin.
func (powerLevels *PowerLevels) IsAdmin(userID ref.UserID) bool {
	return powerLevels.UserLevel(userID) >= PowerLevelAdmin
}

// SetUserLevel sets the power level for a user. Initializes the Users
// map if nil.
func (powerLevels *PowerLevels) SetUserLevel(userID ref.UserID, level int) {
	if powerLevels.Users == nil {
		powerLevels.Users = make(map[string]int)
	}
	powerLevels.Users[userID.String()] = level
}

// Clone returns a deep copy. Mutating the copy never affects the
// receiver.
func (powerLevels *PowerLevels) Clone() PowerLevels {
	clone := PowerLevels{
		Users:         cloneLevelMap(powerLevels.Users),
		UsersDefault:  cloneLevel(powerLevels.UsersDefault),
		Events:        cloneLevelMap(powerLevels.Events),
		EventsDefault: cloneLevel(powerLevels.EventsDefault),
		StateDefault:  cloneLevel(powerLevels.StateDefault),
		Invite:        cloneLevel(powerLevels.Invite),
		Ban:           cloneLevel(powerLevels.Ban),
		Kick:          cloneLevel(powerLevels.Kick),
		Redact:        cloneLevel(powerLevels.Redact),
		Notifications: cloneLevelMap(powerLevels.Notifications),
	}
	if powerLevels.extra != nil {
		clone.extra = make(map[string]json.RawMessage, len(powerLevels.extra))
		for key, value := range powerLevels.extra {
			clone.extra[key] = append(json.RawMessage(nil), value...)
		}
	}
	return clone
}

// UnmarshalJSON decodes power level content, keeping unknown keys.
func (powerLevels *PowerLevels) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("power levels: %w", err)
	}

	var decoded PowerLevels
	var err error
	mapFields := map[string]*map[string]int{
		keyUsers:         &decoded.Users,
		keyEvents:        &decoded.Events,
		keyNotifications: &decoded.Notifications,
	}
	scalarFields := map[string]**int{
		keyUsersDefault:  &decoded.UsersDefault,
		keyEventsDefault: &decoded.EventsDefault,
		keyStateDefault:  &decoded.StateDefault,
		keyInvite:        &decoded.Invite,
		keyBan:           &decoded.Ban,
		keyKick:          &decoded.Kick,
		keyRedact:        &decoded.Redact,
	}

	for key, value := range raw {
		if target, ok := mapFields[key]; ok {
			if *target, err = decodeLevelMap(value); err != nil {
				return fmt.Errorf("power levels: %s: %w", key, err)
			}
			continue
		}
		if target, ok := scalarFields[key]; ok {
			if isJSONNull(value) {
				continue
			}
			level, err := decodeLevel(value)
			if err != nil {
				return fmt.Errorf("power levels: %s: %w", key, err)
			}
			*target = &level
			continue
		}
		if decoded.extra == nil {
			decoded.extra = make(map[string]json.RawMessage)
		}
		decoded.extra[key] = value
	}

	*powerLevels = decoded
	return nil
}

// MarshalJSON encodes the full power level content, including keys
// carried over from the decoded event.
func (powerLevels PowerLevels) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(powerLevels.extra)+10)
	for key, value := range powerLevels.extra {
		out[key] = value
	}
	putMap := func(key string, levels map[string]int) {
		if levels != nil {
			out[key] = levels
		}
	}
	putScalar := func(key string, level *int) {
		if level != nil {
			out[key] = *level
		}
	}
	putMap(keyUsers, powerLevels.Users)
	putMap(keyEvents, powerLevels.Events)
	putMap(keyNotifications, powerLevels.Notifications)
	putScalar(keyUsersDefault, powerLevels.UsersDefault)
	putScalar(keyEventsDefault, powerLevels.EventsDefault)
	putScalar(keyStateDefault, powerLevels.StateDefault)
	putScalar(keyInvite, powerLevels.Invite)
	putScalar(keyBan, powerLevels.Ban)
	putScalar(keyKick, powerLevels.Kick)
	putScalar(keyRedact, powerLevels.Redact)
	return json.Marshal(out)
}

func decodeLevelMap(data json.RawMessage) (map[string]int, error) {
	if isJSONNull(data) {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	levels := make(map[string]int, len(raw))
	for key, value := range raw {
		level, err := decodeLevel(value)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		levels[key] = level
	}
	return levels, nil
}

// decodeLevel accepts a JSON integer or a string holding one.
func decodeLevel(data json.RawMessage) (int, error) {
	var number json.Number
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return 0, err
	}
	switch typed := value.(type) {
	case json.Number:
		number = typed
	case string:
		number = json.Number(strings.TrimSpace(typed))
	default:
		return 0, fmt.Errorf("power level must be an integer, got %s", string(data))
	}

	if level, err := strconv.ParseInt(number.String(), 10, 64); err == nil {
		if level > math.MaxInt32 || level < math.MinInt32 {
			return 0, fmt.Errorf("power level %d out of range", level)
		}
		return int(level), nil
	}
	return 0, fmt.Errorf("power level must be an integer, got %s", string(data))
}

func isJSONNull(data json.RawMessage) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

func cloneLevel(level *int) *int {
	if level == nil {
		return nil
	}
	value := *level
	return &value
}

func cloneLevelMap(levels map[string]int) map[string]int {
	if levels == nil {
		return nil
	}
	clone := make(map[string]int, len(levels))
	for key, value := range levels {
		clone[key] = value
	}
	return clone
}
