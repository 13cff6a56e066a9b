// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/bureau-foundation/roommanager/lib/ref"

// Matrix event types read or written by the room manager.
const (
	MatrixEventTypeCreate         ref.EventType = "m.room.create"
	MatrixEventTypePowerLevels    ref.EventType = "m.room.power_levels"
	MatrixEventTypeTombstone      ref.EventType = "m.room.tombstone"
	MatrixEventTypeEncryption     ref.EventType = "m.room.encryption"
	MatrixEventTypeJoinRules      ref.EventType = "m.room.join_rules"
	MatrixEventTypeRoomMember     ref.EventType = "m.room.member"
	MatrixEventTypeRoomName       ref.EventType = "m.room.name"
	MatrixEventTypeCanonicalAlias ref.EventType = "m.room.canonical_alias"
	MatrixEventTypeMessage        ref.EventType = "m.room.message"
)

// Message types and formats for m.room.message content.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"

	// FormatHTML is the only rich-text format defined by the Matrix
	// client-server API.
	FormatHTML = "org.matrix.custom.html"

	// RelTypeReplace marks an edit of an earlier message.
	RelTypeReplace = "m.replace"
)

// Membership states carried in m.room.member content.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// RoomTypeSpace is the m.room.create "type" value marking a space.
const RoomTypeSpace = "m.space"

// EncryptionAlgorithmMegolm is the room encryption algorithm enabled on
// every room the manager creates.
const EncryptionAlgorithmMegolm = "m.megolm.v1.aes-sha2"

// Join rules.
const (
	JoinRulePublic = "public"
	JoinRuleInvite = "invite"
)

// CreateContent is the content of an m.room.create state event.
//
// Room versions before 11 carry the creator in the content. From room
// version 11 on the creator is the event's sender, so callers must
// prefer the sender and fall back to Creator only when it is empty.
type CreateContent struct {
	// RoomVersion is absent for version 1 rooms.
	RoomVersion string `json:"room_version,omitempty"`
	Type        string `json:"type,omitempty"`
	Creator     string `json:"creator,omitempty"`
}

// Version returns the declared room version, defaulting to "1" when the
// event omits it.
func (content CreateContent) Version() string {
	if content.RoomVersion == "" {
		return "1"
	}
	return content.RoomVersion
}

// IsSpace reports whether the create event marks the room as a space.
func (content CreateContent) IsSpace() bool {
	return content.Type == RoomTypeSpace
}

// TombstoneContent is the content of an m.room.tombstone state event.
// A room is tombstoned when the event exists with a non-empty
// ReplacementRoom.
type TombstoneContent struct {
	Body            string `json:"body,omitempty"`
	ReplacementRoom string `json:"replacement_room"`
}

// EncryptionContent is the content of an m.room.encryption state event.
type EncryptionContent struct {
	Algorithm string `json:"algorithm"`
}

// JoinRulesContent is the content of an m.room.join_rules state event.
type JoinRulesContent struct {
	JoinRule string `json:"join_rule"`
}

// RoomNameContent is the content of an m.room.name state event.
type RoomNameContent struct {
	Name string `json:"name"`
}

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}
