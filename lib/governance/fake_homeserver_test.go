// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"testing"

	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/schema"
	"github.com/bureau-foundation/roommanager/messaging"
)

var (
	botUser   = ref.MustParseUserID("@roommanager:example.org")
	aliceUser = ref.MustParseUserID("@alice:example.org")
	bobUser   = ref.MustParseUserID("@bob:example.org")
	carolUser = ref.MustParseUserID("@carol:example.org")
	opsUser   = ref.MustParseUserID("@ops:example.org")
)

// fakeRoom is the state the fake homeserver keeps per room.
type fakeRoom struct {
	creator     ref.UserID
	version     string
	space       bool
	tombstoned  bool
	name        string
	members     map[ref.UserID]string
	powerLevels json.RawMessage
}

// fakeHomeserver is an in-memory Homeserver. Rooms absent from rooms
// answer every request with M_FORBIDDEN, as a homeserver does for a
// room the user is not in.
type fakeHomeserver struct {
	mu sync.Mutex

	self    ref.UserID
	rooms   map[ref.RoomID]*fakeRoom
	aliases map[ref.RoomAlias]ref.RoomID

	// calls records every method invoked, in order.
	calls []string

	powerLevelWrites int
	createRequests   []messaging.CreateRoomRequest
	messages         map[ref.RoomID][]messaging.MessageContent
	invites          map[ref.RoomID][]ref.UserID
	left             []ref.RoomID
	forgotten        []ref.RoomID

	inviteErrors     map[ref.UserID]error
	upgradeError     error
	sendStateError   error
	sendMessageError error
	nextRoom         int
}

func newFakeHomeserver() *fakeHomeserver {
	return &fakeHomeserver{
		self:         botUser,
		rooms:        make(map[ref.RoomID]*fakeRoom),
		aliases:      make(map[ref.RoomAlias]ref.RoomID),
		messages:     make(map[ref.RoomID][]messaging.MessageContent),
		invites:      make(map[ref.RoomID][]ref.UserID),
		inviteErrors: make(map[ref.UserID]error),
	}
}

// addRoom registers a room. levels is the users map of its power
// levels; members maps users to membership states.
func (f *fakeHomeserver) addRoom(roomID string, room *fakeRoom, levels map[string]int) ref.RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room.members == nil {
		room.members = make(map[ref.UserID]string)
	}
	content, err := json.Marshal(map[string]any{
		"users":          levels,
		"users_default":  0,
		"events_default": 0,
		"state_default":  50,
		"ban":            50,
		"invite":         0,
		"com.example.custom": map[string]bool{
			"preserved": true,
		},
	})
	if err != nil {
		panic(err)
	}
	room.powerLevels = content
	id := ref.MustParseRoomID(roomID)
	f.rooms[id] = room
	return id
}

// managedRoom is a room the bot created on version 12 with alice as
// joined admin, bob as joined member, and carol invited.
func (f *fakeHomeserver) managedRoom(roomID string) ref.RoomID {
	return f.addRoom(roomID, &fakeRoom{
		creator: botUser,
		version: "12",
		name:    "Team",
		members: map[ref.UserID]string{
			botUser:   schema.MembershipJoin,
			aliceUser: schema.MembershipJoin,
			bobUser:   schema.MembershipJoin,
			carolUser: schema.MembershipInvite,
		},
	}, map[string]int{aliceUser.String(): 100})
}

func (f *fakeHomeserver) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeHomeserver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeHomeserver) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.calls, call)
}

func (f *fakeHomeserver) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.powerLevelWrites
}

// levels decodes the room's current power levels.
func (f *fakeHomeserver) levels(t *testing.T, roomID ref.RoomID) schema.PowerLevels {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var powerLevels schema.PowerLevels
	if err := json.Unmarshal(f.rooms[roomID].powerLevels, &powerLevels); err != nil {
		t.Fatalf("decoding power levels: %v", err)
	}
	return powerLevels
}

// level returns user's current power level in roomID.
func (f *fakeHomeserver) level(t *testing.T, roomID ref.RoomID, user ref.UserID) int {
	t.Helper()
	powerLevels := f.levels(t, roomID)
	return powerLevels.UserLevel(user)
}

func (f *fakeHomeserver) room(roomID ref.RoomID) (*fakeRoom, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, &messaging.MatrixError{
			Code:       messaging.ErrCodeForbidden,
			Message:    "You don't have permission to access that room.",
			StatusCode: http.StatusForbidden,
		}
	}
	return room, nil
}

func (f *fakeHomeserver) UserID() ref.UserID { return f.self }

func (f *fakeHomeserver) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ResolveAlias")
	roomID, ok := f.aliases[alias]
	if !ok {
		return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: http.StatusNotFound}
	}
	return roomID, nil
}

func (f *fakeHomeserver) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetStateEvent")
	room, err := f.room(roomID)
	if err != nil {
		return nil, err
	}
	if eventType != schema.MatrixEventTypePowerLevels || stateKey != "" {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: http.StatusNotFound}
	}
	return append(json.RawMessage(nil), room.powerLevels...), nil
}

func (f *fakeHomeserver) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRoomState")
	room, err := f.room(roomID)
	if err != nil {
		return nil, err
	}
	stateEvent := func(eventType ref.EventType, sender ref.UserID, content any) messaging.Event {
		encoded, err := json.Marshal(content)
		if err != nil {
			panic(err)
		}
		empty := ""
		return messaging.Event{Type: eventType, Sender: sender, StateKey: &empty, Content: encoded}
	}
	create := schema.CreateContent{RoomVersion: room.version}
	if room.space {
		create.Type = schema.RoomTypeSpace
	}
	events := []messaging.Event{stateEvent(schema.MatrixEventTypeCreate, room.creator, create)}
	if room.name != "" {
		events = append(events, stateEvent(schema.MatrixEventTypeRoomName, room.creator, schema.RoomNameContent{Name: room.name}))
	}
	if room.tombstoned {
		events = append(events, stateEvent(schema.MatrixEventTypeTombstone, room.creator,
			schema.TombstoneContent{Body: "This room has been replaced", ReplacementRoom: "!next"}))
	}
	return events, nil
}

func (f *fakeHomeserver) GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRoomMembers")
	room, err := f.room(roomID)
	if err != nil {
		return nil, err
	}
	var members []messaging.RoomMember
	for user, membership := range room.members {
		members = append(members, messaging.RoomMember{UserID: user, Membership: membership})
	}
	return members, nil
}

func (f *fakeHomeserver) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendStateEvent")
	room, err := f.room(roomID)
	if err != nil {
		return ref.EventID{}, err
	}
	if f.sendStateError != nil {
		return ref.EventID{}, f.sendStateError
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return ref.EventID{}, err
	}
	if eventType == schema.MatrixEventTypePowerLevels {
		room.powerLevels = encoded
		f.powerLevelWrites++
	}
	return ref.MustParseEventID(fmt.Sprintf("$state%d", len(f.calls))), nil
}

func (f *fakeHomeserver) SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendMessage")
	if f.sendMessageError != nil {
		return ref.EventID{}, f.sendMessageError
	}
	f.messages[roomID] = append(f.messages[roomID], content)
	return ref.MustParseEventID(fmt.Sprintf("$message%d", len(f.calls))), nil
}

func (f *fakeHomeserver) CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateRoom")
	f.createRequests = append(f.createRequests, request)
	f.nextRoom++
	roomID := ref.MustParseRoomID(fmt.Sprintf("!created%d", f.nextRoom))
	f.rooms[roomID] = &fakeRoom{
		creator: f.self,
		version: request.RoomVersion,
		name:    request.Name,
		members: map[ref.UserID]string{f.self: schema.MembershipJoin},
	}
	return &messaging.CreateRoomResponse{RoomID: roomID}, nil
}

func (f *fakeHomeserver) UpgradeRoom(ctx context.Context, roomID ref.RoomID, newVersion string) (ref.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpgradeRoom")
	room, err := f.room(roomID)
	if err != nil {
		return ref.RoomID{}, err
	}
	if f.upgradeError != nil {
		return ref.RoomID{}, f.upgradeError
	}
	room.tombstoned = true
	f.nextRoom++
	replacement := ref.MustParseRoomID(fmt.Sprintf("!replacement%d", f.nextRoom))
	f.rooms[replacement] = &fakeRoom{
		creator: f.self,
		version: newVersion,
		members: map[ref.UserID]string{f.self: schema.MembershipJoin},
	}
	return replacement, nil
}

func (f *fakeHomeserver) InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InviteUser")
	room, err := f.room(roomID)
	if err != nil {
		return err
	}
	if err := f.inviteErrors[userID]; err != nil {
		return err
	}
	room.members[userID] = schema.MembershipInvite
	f.invites[roomID] = append(f.invites[roomID], userID)
	return nil
}

func (f *fakeHomeserver) LeaveRoom(ctx context.Context, roomID ref.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("LeaveRoom")
	room, err := f.room(roomID)
	if err != nil {
		return err
	}
	room.members[f.self] = schema.MembershipLeave
	f.left = append(f.left, roomID)
	return nil
}

func (f *fakeHomeserver) ForgetRoom(ctx context.Context, roomID ref.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ForgetRoom")
	if _, err := f.room(roomID); err != nil {
		return err
	}
	delete(f.rooms, roomID)
	f.forgotten = append(f.forgotten, roomID)
	return nil
}

func (f *fakeHomeserver) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("JoinedRooms")
	var rooms []ref.RoomID
	for roomID, room := range f.rooms {
		if room.members[f.self] == schema.MembershipJoin {
			rooms = append(rooms, roomID)
		}
	}
	return rooms, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an engine over a fresh fake homeserver.
func newTestEngine() (*Engine, *fakeHomeserver) {
	homeserver := newFakeHomeserver()
	return NewEngine(homeserver, testLogger()), homeserver
}

// invocation returns an invocation from sender in room under the
// default test policy: version 12, ops as the only instance admin, and
// every audit category enabled.
func invocation(sender ref.UserID, room string) Invocation {
	return Invocation{
		Sender: sender,
		Room:   ref.MustParseRoomID(room),
		Policy: Policy{
			RoomVersion:    "12",
			InstanceAdmins: map[ref.UserID]struct{}{opsUser: {}},
			Audit: AuditPolicy{
				Channel: ref.MustParseRoomID("!audit:example.org"),
				Categories: map[string]bool{
					"create": true, "upgrade": true, "promote": true, "demote": true, "forget": true,
				},
			},
		},
	}
}
