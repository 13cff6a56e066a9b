// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/schema"
	"github.com/bureau-foundation/roommanager/messaging"
)

// Homeserver is the subset of messaging.Session the engine uses.
type Homeserver interface {
	UserID() ref.UserID
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error)
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error)
	UpgradeRoom(ctx context.Context, roomID ref.RoomID, newVersion string) (ref.RoomID, error)
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error
	ForgetRoom(ctx context.Context, roomID ref.RoomID) error
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)
}

var _ Homeserver = (messaging.Session)(nil)

// Membership maps each user with a member event to its membership
// state (join, invite, leave, ban, knock).
type Membership map[ref.UserID]string

// IsJoined reports whether user is a joined member.
func (m Membership) IsJoined(user ref.UserID) bool {
	return m[user] == schema.MembershipJoin
}

// IsJoinedOrInvited reports whether user is joined or has a pending
// invite.
func (m Membership) IsJoinedOrInvited(user ref.UserID) bool {
	state := m[user]
	return state == schema.MembershipJoin || state == schema.MembershipInvite
}

// Joined returns the joined members sorted by user ID.
func (m Membership) Joined() []ref.UserID {
	return m.filter(m.IsJoined)
}

// JoinedOrInvited returns joined and invited members sorted by user ID.
func (m Membership) JoinedOrInvited() []ref.UserID {
	return m.filter(m.IsJoinedOrInvited)
}

func (m Membership) filter(keep func(ref.UserID) bool) []ref.UserID {
	var users []ref.UserID
	for user := range m {
		if keep(user) {
			users = append(users, user)
		}
	}
	slices.SortFunc(users, func(a, b ref.UserID) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return users
}

// RoomInfo is what the engine needs from a room's current state.
type RoomInfo struct {
	ID ref.RoomID

	// Version is the create event's room_version, "1" when absent.
	Version string

	// Creator is the create event's sender, falling back to the
	// content's creator field for events that lack one.
	Creator ref.UserID

	Space      bool
	Tombstoned bool

	// Name is the room's m.room.name, possibly empty.
	Name string
}

// Room is a full snapshot: state summary, membership, and power levels.
type Room struct {
	Info        RoomInfo
	Membership  Membership
	PowerLevels schema.PowerLevels
}

// StateAccessor reads room state from the homeserver. Every call goes
// to the homeserver; nothing is cached, so permission decisions always
// see current state.
type StateAccessor struct {
	homeserver Homeserver
	logger     *slog.Logger
}

// NewStateAccessor returns a StateAccessor reading through homeserver.
func NewStateAccessor(homeserver Homeserver, logger *slog.Logger) *StateAccessor {
	return &StateAccessor{homeserver: homeserver, logger: logger}
}

// parseRoom validates a room argument without resolving it.
func parseRoom(raw string) (ref.RoomReference, error) {
	reference, err := ref.ParseRoomReference(raw)
	if err != nil {
		return ref.RoomReference{}, &Error{Kind: KindValidation, Message: "Please provide a valid room ID or alias.", Err: err}
	}
	return reference, nil
}

// ResolveRoom turns a room ID or alias as typed by a user into a room
// ID. Malformed text is a validation error; an alias the directory
// cannot resolve is reported as a missing room.
func (a *StateAccessor) ResolveRoom(ctx context.Context, raw string) (ref.RoomID, error) {
	reference, err := parseRoom(raw)
	if err != nil {
		return ref.RoomID{}, err
	}
	return a.Resolve(ctx, reference)
}

// Resolve returns the room ID a parsed reference names. Room IDs pass
// through; aliases go to the room directory.
func (a *StateAccessor) Resolve(ctx context.Context, reference ref.RoomReference) (ref.RoomID, error) {
	if !reference.IsAlias() {
		return reference.ID, nil
	}
	roomID, err := a.homeserver.ResolveAlias(ctx, reference.Alias)
	if err != nil {
		return ref.RoomID{}, roomNotFoundError(reference.String(), err)
	}
	return roomID, nil
}

// FetchPowerLevels returns the room's current m.room.power_levels.
func (a *StateAccessor) FetchPowerLevels(ctx context.Context, roomID ref.RoomID) (schema.PowerLevels, error) {
	powerLevels, err := a.fetchPowerLevels(ctx, roomID)
	if err != nil {
		return schema.PowerLevels{}, roomNotFoundError(roomID.String(), err)
	}
	return powerLevels, nil
}

// FetchRoomInfo reads the full room state once and extracts the create
// event, tombstone, and name.
func (a *StateAccessor) FetchRoomInfo(ctx context.Context, roomID ref.RoomID) (RoomInfo, error) {
	info, err := a.fetchRoomInfo(ctx, roomID)
	if err != nil {
		return RoomInfo{}, roomNotFoundError(roomID.String(), err)
	}
	return info, nil
}

// FetchRoom fetches room info, membership, and power levels
// concurrently.
func (a *StateAccessor) FetchRoom(ctx context.Context, roomID ref.RoomID) (Room, error) {
	room := Room{}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		room.Info, err = a.fetchRoomInfo(groupCtx, roomID)
		return err
	})
	group.Go(func() error {
		var err error
		room.Membership, room.PowerLevels, err = a.fetchMembership(groupCtx, roomID)
		return err
	})
	if err := group.Wait(); err != nil {
		a.logger.Debug("room state fetch failed", "room_id", roomID, "error", err)
		return Room{}, roomNotFoundError(roomID.String(), err)
	}
	return room, nil
}

// fetchMembership reads member states and power levels concurrently.
func (a *StateAccessor) fetchMembership(ctx context.Context, roomID ref.RoomID) (Membership, schema.PowerLevels, error) {
	var membership Membership
	var powerLevels schema.PowerLevels

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		membership, err = a.fetchMembers(groupCtx, roomID)
		return err
	})
	group.Go(func() error {
		var err error
		powerLevels, err = a.fetchPowerLevels(groupCtx, roomID)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, schema.PowerLevels{}, err
	}
	return membership, powerLevels, nil
}

func (a *StateAccessor) fetchMembers(ctx context.Context, roomID ref.RoomID) (Membership, error) {
	members, err := a.homeserver.GetRoomMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	membership := make(Membership, len(members))
	for _, member := range members {
		membership[member.UserID] = member.Membership
	}
	return membership, nil
}

func (a *StateAccessor) fetchPowerLevels(ctx context.Context, roomID ref.RoomID) (schema.PowerLevels, error) {
	return messaging.GetState[schema.PowerLevels](ctx, a.homeserver, roomID, schema.MatrixEventTypePowerLevels, "")
}

func (a *StateAccessor) fetchRoomInfo(ctx context.Context, roomID ref.RoomID) (RoomInfo, error) {
	events, err := a.homeserver.GetRoomState(ctx, roomID)
	if err != nil {
		return RoomInfo{}, err
	}
	return roomInfoFromState(roomID, events)
}

// roomInfoFromState summarizes a room's state events. A room without a
// create event is malformed and rejected.
func roomInfoFromState(roomID ref.RoomID, events []messaging.Event) (RoomInfo, error) {
	createEvent, ok := messaging.FindStateEvent(events, schema.MatrixEventTypeCreate, "")
	if !ok {
		return RoomInfo{}, fmt.Errorf("room %s has no m.room.create event", roomID)
	}
	var create schema.CreateContent
	if err := json.Unmarshal(createEvent.Content, &create); err != nil {
		return RoomInfo{}, fmt.Errorf("parsing m.room.create in %s: %w", roomID, err)
	}

	info := RoomInfo{
		ID:      roomID,
		Version: create.Version(),
		Creator: createEvent.Sender,
		Space:   create.IsSpace(),
	}
	if info.Creator.IsZero() && create.Creator != "" {
		if creator, err := ref.ParseUserID(create.Creator); err == nil {
			info.Creator = creator
		}
	}

	if _, ok := messaging.FindStateEvent(events, schema.MatrixEventTypeTombstone, ""); ok {
		info.Tombstoned = true
	}
	if nameEvent, ok := messaging.FindStateEvent(events, schema.MatrixEventTypeRoomName, ""); ok {
		var name schema.RoomNameContent
		if err := json.Unmarshal(nameEvent.Content, &name); err == nil {
			info.Name = name.Name
		}
	}
	return info, nil
}
