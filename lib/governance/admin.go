// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/roommanager/lib/config"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/richtext"
)

// AdminResult reports a promotion or demotion. Changed is false when
// the user already had the requested standing. Invited is set when the
// user had to be invited first.
type AdminResult struct {
	Room    ref.RoomID
	User    ref.UserID
	Changed bool
	Invited bool
}

// AddAdmin promotes userArg to admin in roomArg. The caller must be an
// admin of a room the engine manages. A user who is neither joined nor
// invited is invited first.
func (e *Engine) AddAdmin(ctx context.Context, inv Invocation, userArg, roomArg string) (AdminResult, error) {
	target, err := parseUser(userArg)
	if err != nil {
		return AdminResult{}, err
	}
	reference, err := parseRoom(roomArg)
	if err != nil {
		return AdminResult{}, err
	}
	if err := checkNotSelf(target, e.self, "I am already the room creator."); err != nil {
		return AdminResult{}, err
	}

	room, err := e.fetchManagedRoom(ctx, inv, reference)
	if err != nil {
		return AdminResult{}, err
	}
	if err := CheckRoomAdmin(room.Membership, room.PowerLevels, inv.Sender); err != nil {
		return AdminResult{}, err
	}

	result := AdminResult{Room: room.Info.ID, User: target}
	if !room.Membership.IsJoinedOrInvited(target) {
		if err := e.homeserver.InviteUser(ctx, room.Info.ID, target); err != nil {
			return AdminResult{}, &Error{
				Kind:    KindNotFound,
				Message: fmt.Sprintf("Could not find user with ID %s or invite failed.", richtext.Escape(target.String())),
				Err:     err,
			}
		}
		result.Invited = true
	}

	result.Changed, err = e.mutator.Apply(ctx, room.Info.ID, target, Promote)
	if err != nil {
		return AdminResult{}, err
	}
	if result.Changed {
		e.audit.Record(ctx, inv.Policy.Audit, config.CategoryPromote, fmt.Sprintf("%s promoted %s to administrator in %s.",
			richtext.MentionUser(inv.Sender.String()), richtext.MentionUser(target.String()),
			richtext.MentionRoom(room.Info.ID.String())))
	}
	return result, nil
}

// RemoveAdmin demotes userArg to level 0 in roomArg. The caller must
// be an admin of a room the engine manages and the target must be
// joined.
func (e *Engine) RemoveAdmin(ctx context.Context, inv Invocation, userArg, roomArg string) (AdminResult, error) {
	target, err := parseUser(userArg)
	if err != nil {
		return AdminResult{}, err
	}
	reference, err := parseRoom(roomArg)
	if err != nil {
		return AdminResult{}, err
	}
	if err := checkNotSelf(target, e.self, "I cannot be demoted."); err != nil {
		return AdminResult{}, err
	}

	room, err := e.fetchManagedRoom(ctx, inv, reference)
	if err != nil {
		return AdminResult{}, err
	}
	if err := CheckRoomAdmin(room.Membership, room.PowerLevels, inv.Sender); err != nil {
		return AdminResult{}, err
	}
	if !room.Membership.IsJoined(target) {
		return AdminResult{}, guardError(ReasonTargetNotMember,
			"The user %s is not a member of the room.", richtext.Escape(target.String()))
	}

	result := AdminResult{Room: room.Info.ID, User: target}
	result.Changed, err = e.mutator.Apply(ctx, room.Info.ID, target, Demote)
	if err != nil {
		return AdminResult{}, err
	}
	if result.Changed {
		e.audit.Record(ctx, inv.Policy.Audit, config.CategoryDemote, fmt.Sprintf("%s demoted %s from administrator in %s.",
			richtext.MentionUser(inv.Sender.String()), richtext.MentionUser(target.String()),
			richtext.MentionRoom(room.Info.ID.String())))
	}
	return result, nil
}

// BecomeAdmin promotes the caller in roomArg through instance-admin
// authority alone; room membership and level are not required.
func (e *Engine) BecomeAdmin(ctx context.Context, inv Invocation, roomArg string) (AdminResult, error) {
	reference, err := parseRoom(roomArg)
	if err != nil {
		return AdminResult{}, err
	}
	if err := inv.Authority().RequireInstanceAdmin(); err != nil {
		return AdminResult{}, err
	}
	if err := checkNotSelf(inv.Sender, e.self, "I am already the room creator."); err != nil {
		return AdminResult{}, err
	}

	room, err := e.fetchManagedRoom(ctx, inv, reference)
	if err != nil {
		return AdminResult{}, err
	}

	result := AdminResult{Room: room.Info.ID, User: inv.Sender}
	if !room.Membership.IsJoinedOrInvited(inv.Sender) {
		if err := e.homeserver.InviteUser(ctx, room.Info.ID, inv.Sender); err != nil {
			return AdminResult{}, remoteError("invite you to "+richtext.MentionRoom(room.Info.ID.String()), err)
		}
		result.Invited = true
	}

	result.Changed, err = e.mutator.Apply(ctx, room.Info.ID, inv.Sender, Promote)
	if err != nil {
		return AdminResult{}, err
	}
	if result.Changed {
		e.audit.Record(ctx, inv.Policy.Audit, config.CategoryPromote, fmt.Sprintf("%s promoted themselves to administrator in %s as an instance administrator.",
			richtext.MentionUser(inv.Sender.String()), richtext.MentionRoom(room.Info.ID.String())))
	}
	return result, nil
}

// fetchManagedRoom resolves reference, fetches the room, and applies
// the version and ownership guard.
func (e *Engine) fetchManagedRoom(ctx context.Context, inv Invocation, reference ref.RoomReference) (Room, error) {
	roomID, err := e.state.Resolve(ctx, reference)
	if err != nil {
		return Room{}, err
	}
	room, err := e.state.FetchRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	if err := CheckManagedRoom(room.Info, e.self, inv.Policy.RoomVersion); err != nil {
		return Room{}, err
	}
	return room, nil
}
