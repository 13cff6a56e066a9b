// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"strconv"

	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/richtext"
	"github.com/bureau-foundation/roommanager/lib/schema"
)

// Authority is the caller's identity together with the instance
// administrator set in force for one invocation.
type Authority struct {
	Caller         ref.UserID
	InstanceAdmins map[ref.UserID]struct{}
}

// IsInstanceAdmin reports whether the caller is an instance
// administrator.
func (a Authority) IsInstanceAdmin() bool {
	_, ok := a.InstanceAdmins[a.Caller]
	return ok
}

// RequireInstanceAdmin fails with ReasonNotInstanceAdmin unless the
// caller is an instance administrator.
func (a Authority) RequireInstanceAdmin() error {
	if a.IsInstanceAdmin() {
		return nil
	}
	return guardError(ReasonNotInstanceAdmin,
		"Only instance administrators can use this command. Instance administrators are listed in my configuration.")
}

// CheckManagedRoom passes only for rooms on supportedVersion that self
// created.
func CheckManagedRoom(info RoomInfo, self ref.UserID, supportedVersion string) error {
	room := richtext.MentionRoom(info.ID.String())
	if info.Version != supportedVersion {
		return guardError(ReasonUnsupportedVersion,
			"I only support rooms with version %s. The room %s has version %s.",
			supportedVersion, room, richtext.Escape(info.Version))
	}
	if info.Creator != self {
		return guardError(ReasonNotCreatedByMe,
			"I only manage rooms created by myself. The room %s was created by %s.",
			room, richtext.MentionUser(info.Creator.String()))
	}
	return nil
}

// CheckRoomAdmin passes when user is a joined member at admin level.
// Not being a member is reported separately from lacking the level
// because the remedy differs.
func CheckRoomAdmin(membership Membership, powerLevels schema.PowerLevels, user ref.UserID) error {
	if !membership.IsJoined(user) {
		return guardError(ReasonNotMember, "You are not a member of the room.")
	}
	if !powerLevels.IsAdmin(user) {
		return guardError(ReasonNotAdmin, "You need to be an admin in the room yourself to perform this action.")
	}
	return nil
}

// CheckUpgradable passes when info describes a plain room on a version
// strictly older than target that has not been upgraded yet. Versions
// are compared as integers. A tombstone is checked first so an
// upgraded room is always reported as such.
func CheckUpgradable(info RoomInfo, target string) error {
	room := richtext.MentionRoom(info.ID.String())
	if info.Tombstoned {
		return guardError(ReasonAlreadyUpgraded,
			"The room %s has already been upgraded once and cannot be upgraded again.", room)
	}
	if info.Space {
		return guardError(ReasonIsSpace, "The room %s is a space. I can only upgrade rooms, not spaces.", room)
	}
	current, currentErr := strconv.Atoi(info.Version)
	wanted, wantedErr := strconv.Atoi(target)
	if currentErr != nil || wantedErr != nil {
		return guardError(ReasonUnknownVersion,
			"The room %s has version %s, which I cannot compare with version %s.",
			room, richtext.Escape(info.Version), richtext.Escape(target))
	}
	if current >= wanted {
		return guardError(ReasonAlreadyCurrent,
			"The room %s is already on version %s. I currently use room version %s.",
			room, richtext.Escape(info.Version), richtext.Escape(target))
	}
	return nil
}

// checkNotSelf rejects commands that target the engine's own identity.
func checkNotSelf(target, self ref.UserID, message string) error {
	if target == self {
		return guardError(ReasonProtectedIdentity, "%s", message)
	}
	return nil
}
