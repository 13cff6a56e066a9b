// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/roommanager/lib/config"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/richtext"
	"github.com/bureau-foundation/roommanager/lib/schema"
	"github.com/bureau-foundation/roommanager/messaging"
)

// CreateRequest describes a room or space to create.
type CreateRequest struct {
	Name string
	// Visibility is schema.VisibilityPublic or schema.VisibilityPrivate.
	Visibility string
	Space      bool
}

func (r CreateRequest) kind() string {
	if r.Space {
		return "space"
	}
	return "room"
}

// CreateRoom creates a room or space with the caller as its only
// administrator besides the engine. Invalid input is rejected before
// any homeserver request.
func (e *Engine) CreateRoom(ctx context.Context, inv Invocation, request CreateRequest) (ref.RoomID, error) {
	name := strings.TrimSpace(request.Name)
	if name == "" {
		return ref.RoomID{}, validationError("Please provide a valid %s name.", request.kind())
	}
	if request.Visibility != schema.VisibilityPublic && request.Visibility != schema.VisibilityPrivate {
		return ref.RoomID{}, validationError("The visibility must be %s or %s.", schema.VisibilityPublic, schema.VisibilityPrivate)
	}

	roomVersion := inv.Policy.RoomVersion
	createRequest := messaging.CreateRoomRequest{
		Name:        name,
		RoomVersion: roomVersion,
		Visibility:  request.Visibility,
		Invite:      []string{inv.Sender.String()},
		InitialState: []messaging.StateEvent{
			{
				Type:    schema.MatrixEventTypeEncryption,
				Content: schema.EncryptionContent{Algorithm: schema.EncryptionAlgorithmMegolm},
			},
			{
				Type:    schema.MatrixEventTypeJoinRules,
				Content: schema.JoinRulesContent{JoinRule: schema.JoinRuleForVisibility(request.Visibility)},
			},
		},
		PowerLevelContentOverride: schema.CreatorPowerLevels(initialAdmins(roomVersion, inv.Sender, e.self)...),
	}
	if request.Visibility == schema.VisibilityPublic {
		createRequest.Alias = schema.AliasLocalpartFromName(name)
	}
	if request.Space {
		createRequest.CreationContent = map[string]any{"type": schema.RoomTypeSpace}
	}

	response, err := e.homeserver.CreateRoom(ctx, createRequest)
	if err != nil {
		return ref.RoomID{}, remoteError("create the "+request.kind()+" "+richtext.Escape(name), err)
	}

	e.audit.Record(ctx, inv.Policy.Audit, config.CategoryCreate, fmt.Sprintf(
		"%s created the %s %s %s (%s, version %s).",
		richtext.MentionUser(inv.Sender.String()), request.Visibility, request.kind(),
		richtext.MentionRoom(response.RoomID.String()), richtext.Escape(name), richtext.Escape(roomVersion)))
	return response.RoomID, nil
}

// initialAdmins lists the users given admin level at creation. From
// room version 12 on the creator holds unlimited power implicitly and
// must not appear in the users map; older versions need the engine
// listed or the override would leave it powerless.
func initialAdmins(roomVersion string, caller, self ref.UserID) []string {
	admins := []string{caller.String()}
	if version, err := strconv.Atoi(roomVersion); err == nil && version < 12 && caller != self {
		admins = append(admins, self.String())
	}
	return admins
}

// InviteOutcome is the result of inviting one member of an upgraded
// room into its replacement. Err is nil on success.
type InviteOutcome struct {
	User ref.UserID
	Err  error
}

// UpgradeResult reports an upgrade. The upgrade itself succeeded;
// individual invites may not have.
type UpgradeResult struct {
	Room        ref.RoomID
	Replacement ref.RoomID
	Version     string
	Invites     []InviteOutcome
}

// FailedInvites returns the outcomes that failed.
func (r UpgradeResult) FailedInvites() []InviteOutcome {
	var failed []InviteOutcome
	for _, outcome := range r.Invites {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// maxConcurrentInvites bounds the invite fan-out after an upgrade.
const maxConcurrentInvites = 4

// UpgradeRoom upgrades roomArg to the policy's room version and
// invites every joined or invited member of the old room into the
// replacement. Room admins and instance admins may upgrade; the room
// need not have been created by the engine.
func (e *Engine) UpgradeRoom(ctx context.Context, inv Invocation, roomArg string) (UpgradeResult, error) {
	roomID, err := e.state.ResolveRoom(ctx, roomArg)
	if err != nil {
		return UpgradeResult{}, err
	}
	room, err := e.state.FetchRoom(ctx, roomID)
	if err != nil {
		return UpgradeResult{}, err
	}
	target := inv.Policy.RoomVersion
	if err := CheckUpgradable(room.Info, target); err != nil {
		return UpgradeResult{}, err
	}
	authority := inv.Authority()
	if !authority.IsInstanceAdmin() {
		if err := CheckRoomAdmin(room.Membership, room.PowerLevels, inv.Sender); err != nil {
			return UpgradeResult{}, err
		}
	}

	replacement, err := e.homeserver.UpgradeRoom(ctx, roomID, target)
	if err != nil {
		return UpgradeResult{}, remoteError("upgrade the room "+richtext.MentionRoom(roomID.String()), err)
	}

	result := UpgradeResult{
		Room:        roomID,
		Replacement: replacement,
		Version:     target,
		Invites:     e.inviteAll(ctx, replacement, room.Membership.JoinedOrInvited()),
	}
	for _, failed := range result.FailedInvites() {
		e.logger.Warn("invite into upgraded room failed",
			"room_id", roomID,
			"replacement_room", replacement,
			"user_id", failed.User,
			"error", failed.Err,
		)
	}

	e.audit.Record(ctx, inv.Policy.Audit, config.CategoryUpgrade, upgradeAuditRecord(inv.Sender, result))
	return result, nil
}

// inviteAll invites users (except the engine) into roomID. Every user
// gets an outcome; one failure does not stop the others.
func (e *Engine) inviteAll(ctx context.Context, roomID ref.RoomID, users []ref.UserID) []InviteOutcome {
	users = slices.DeleteFunc(slices.Clone(users), func(user ref.UserID) bool { return user == e.self })
	outcomes := make([]InviteOutcome, len(users))

	var group errgroup.Group
	group.SetLimit(maxConcurrentInvites)
	for index, user := range users {
		group.Go(func() error {
			outcomes[index] = InviteOutcome{User: user, Err: e.homeserver.InviteUser(ctx, roomID, user)}
			return nil
		})
	}
	group.Wait()
	return outcomes
}

func upgradeAuditRecord(caller ref.UserID, result UpgradeResult) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s upgraded the room %s to version %s. The replacement room is %s.",
		richtext.MentionUser(caller.String()), richtext.MentionRoom(result.Room.String()),
		richtext.Escape(result.Version), richtext.MentionRoom(result.Replacement.String()))
	failed := result.FailedInvites()
	if len(failed) == 0 {
		fmt.Fprintf(&builder, " All %d members were invited.", len(result.Invites))
		return builder.String()
	}
	fmt.Fprintf(&builder, " %d of %d invites failed:\n", len(failed), len(result.Invites))
	for _, outcome := range failed {
		fmt.Fprintf(&builder, "\n- %s: %s", richtext.MentionUser(outcome.User.String()), richtext.Escape(outcome.Err.Error()))
	}
	return builder.String()
}

// ForgetResult reports a forgotten room. Owned is false when the room
// was created by someone else and the engine merely left it.
type ForgetResult struct {
	Room  ref.RoomID
	Owned bool
}

// ForgetRoom leaves and forgets a room. Instance admins only. A room
// the engine created is forgotten only once nobody but the engine is
// joined or invited. The invoking room is refused: the reply has to
// be posted there after the engine has left.
func (e *Engine) ForgetRoom(ctx context.Context, inv Invocation, roomArg string) (ForgetResult, error) {
	reference, err := parseRoom(roomArg)
	if err != nil {
		return ForgetResult{}, err
	}
	if err := inv.Authority().RequireInstanceAdmin(); err != nil {
		return ForgetResult{}, err
	}
	roomID, err := e.state.Resolve(ctx, reference)
	if err != nil {
		return ForgetResult{}, err
	}
	if roomID == inv.Room {
		return ForgetResult{}, guardError(ReasonInvokingRoom,
			"I can't forget the room this command was sent from. Run forgetroom from another room and name %s.",
			richtext.MentionRoom(roomID.String()))
	}
	room, err := e.state.FetchRoom(ctx, roomID)
	if err != nil {
		return ForgetResult{}, err
	}

	result := ForgetResult{Room: roomID, Owned: room.Info.Creator == e.self}
	if result.Owned {
		remaining := slices.DeleteFunc(room.Membership.JoinedOrInvited(), func(user ref.UserID) bool { return user == e.self })
		if len(remaining) > 0 {
			return ForgetResult{}, guardError(ReasonNotEmpty,
				"The room %s still has %d other members. I only forget rooms I created once they are empty.",
				richtext.MentionRoom(roomID.String()), len(remaining))
		}
	}

	mention := richtext.MentionRoom(roomID.String())
	if err := e.homeserver.LeaveRoom(ctx, roomID); err != nil {
		return ForgetResult{}, remoteError("leave the room "+mention, err)
	}
	if err := e.homeserver.ForgetRoom(ctx, roomID); err != nil {
		return ForgetResult{}, remoteError("forget the room "+mention, err)
	}

	ownership := "a room created by " + richtext.MentionUser(room.Info.Creator.String())
	if result.Owned {
		ownership = "an empty room I created"
	}
	e.audit.Record(ctx, inv.Policy.Audit, config.CategoryForget, fmt.Sprintf(
		"%s made me forget %s, %s.", richtext.MentionUser(inv.Sender.String()), mention, ownership))
	return result, nil
}

// ManagedRoom is a room listed by ListRooms.
type ManagedRoom struct {
	ID    ref.RoomID
	Name  string
	Space bool
}

// maxConcurrentStateReads bounds ListRooms' per-room state reads.
const maxConcurrentStateReads = 8

// ListRooms returns the joined rooms the engine created on the policy's
// room version, sorted by room ID. Rooms whose state cannot be read are
// skipped.
func (e *Engine) ListRooms(ctx context.Context, inv Invocation) ([]ManagedRoom, error) {
	joined, err := e.homeserver.JoinedRooms(ctx)
	if err != nil {
		return nil, remoteError("list my rooms", err)
	}

	candidates := make([]*ManagedRoom, len(joined))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentStateReads)
	for index, roomID := range joined {
		group.Go(func() error {
			info, err := e.state.FetchRoomInfo(groupCtx, roomID)
			if err != nil {
				e.logger.Debug("skipping unreadable room", "room_id", roomID, "error", err)
				return nil
			}
			if CheckManagedRoom(info, e.self, inv.Policy.RoomVersion) != nil {
				return nil
			}
			candidates[index] = &ManagedRoom{ID: roomID, Name: info.Name, Space: info.Space}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var rooms []ManagedRoom
	for _, candidate := range candidates {
		if candidate != nil {
			rooms = append(rooms, *candidate)
		}
	}
	slices.SortFunc(rooms, func(a, b ManagedRoom) int { return strings.Compare(a.ID.String(), b.ID.String()) })
	return rooms, nil
}
