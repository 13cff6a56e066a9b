// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/roommanager/lib/clock"
	"github.com/bureau-foundation/roommanager/lib/config"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/schema"
	"github.com/bureau-foundation/roommanager/lib/secret"
	"github.com/bureau-foundation/roommanager/messaging"
)

const (
	botID   = "@roommanager:example.org"
	aliceID = "@alice:example.org"
	bobID   = "@bob:example.org"
	carolID = "@carol:example.org"
	opsID   = "@ops:example.org"
)

// mockRoom is one room's state on the mock homeserver.
type mockRoom struct {
	// state holds every state event except power levels and
	// membership, which are kept in the fields below.
	state       []map[string]any
	powerLevels map[string]any
	members     map[string]string
}

// sentMessage is an m.room.message the bot sent.
type sentMessage struct {
	roomID  string
	content messaging.MessageContent
}

// mockHomeserver implements the subset of the Matrix client-server API
// the room manager uses. Thread-safe: tests configure rooms and queue
// timeline events while the bot is making requests.
type mockHomeserver struct {
	mu sync.Mutex

	rooms   map[string]*mockRoom
	aliases map[string]string

	// sent records every message the bot sent, in order.
	sent []sentMessage

	// messageSent is signaled (non-blocking) for every sent message.
	messageSent chan sentMessage

	// sendFailures is the number of upcoming sends to reject with
	// M_LIMIT_EXCEEDED.
	sendFailures int

	// pending holds timeline events for the next incremental /sync,
	// keyed by room ID.
	pending map[string][]map[string]any

	// invites lists rooms with a pending invite for the bot.
	invites map[string]bool

	syncBatch    int
	createdRooms int
	eventCounter int
}

func newMockHomeserver() *mockHomeserver {
	return &mockHomeserver{
		rooms:       make(map[string]*mockRoom),
		aliases:     make(map[string]string),
		messageSent: make(chan sentMessage, 64),
		pending:     make(map[string][]map[string]any),
		invites:     make(map[string]bool),
	}
}

// addRoom registers a room created by creator at the given version.
// Users listed in admins get level 100; members maps each user to a
// membership.
func (m *mockHomeserver) addRoom(roomID, creator, version string, admins []string, members map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := map[string]any{}
	for _, admin := range admins {
		users[admin] = 100
	}
	if members == nil {
		members = map[string]string{}
	}
	m.rooms[roomID] = &mockRoom{
		state: []map[string]any{
			stateEventJSON(schema.MatrixEventTypeCreate, creator, map[string]any{"room_version": version}),
			stateEventJSON(schema.MatrixEventTypeRoomName, creator, map[string]any{"name": "Room " + roomID}),
		},
		powerLevels: map[string]any{"users": users, "users_default": 0},
		members:     members,
	}
}

// managedRoom adds a version 12 room created by the bot, with alice as
// administrator and alice, bob, and the bot joined.
func (m *mockHomeserver) managedRoom(roomID string) ref.RoomID {
	m.addRoom(roomID, botID, "12", []string{aliceID}, map[string]string{
		botID:   schema.MembershipJoin,
		aliceID: schema.MembershipJoin,
		bobID:   schema.MembershipJoin,
	})
	return ref.MustParseRoomID(roomID)
}

func stateEventJSON(eventType ref.EventType, sender string, content map[string]any) map[string]any {
	return map[string]any{
		"type":      eventType,
		"state_key": "",
		"sender":    sender,
		"content":   content,
	}
}

// level returns user's power level in roomID from the stored event.
func (m *mockHomeserver) level(roomID, user string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.rooms[roomID]
	if room == nil {
		return 0
	}
	users, _ := room.powerLevels["users"].(map[string]any)
	switch value := users[user].(type) {
	case float64:
		return int(value)
	case int:
		return value
	}
	return 0
}

// queueMessage queues an m.room.message from sender for the next
// incremental /sync.
func (m *mockHomeserver) queueMessage(roomID, eventID, sender string, content map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[roomID] = append(m.pending[roomID], map[string]any{
		"type":     schema.MatrixEventTypeMessage,
		"event_id": eventID,
		"sender":   sender,
		"content":  content,
	})
}

func (m *mockHomeserver) addInvite(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[roomID] = true
}

func (m *mockHomeserver) hasInvite(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invites[roomID]
}

func (m *mockHomeserver) failSends(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendFailures = count
}

func (m *mockHomeserver) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// waitForMessage returns the next sent message or fails the test after
// a few seconds.
func (m *mockHomeserver) waitForMessage(t *testing.T) sentMessage {
	t.Helper()
	select {
	case message := <-m.messageSent:
		return message
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the bot to send a message")
		return sentMessage{}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeMatrixError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"errcode": code, "error": message})
}

func (m *mockHomeserver) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath := r.URL.RawPath
		if rawPath == "" {
			rawPath = r.URL.Path
		}
		const prefix = "/_matrix/client/v3/"
		if !strings.HasPrefix(rawPath, prefix) {
			http.NotFound(w, r)
			return
		}
		path := rawPath[len(prefix):]

		switch {
		case path == "account/whoami" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"user_id": botID})
		case path == "sync" && r.Method == http.MethodGet:
			m.handleSync(w, r)
		case path == "joined_rooms" && r.Method == http.MethodGet:
			m.handleJoinedRooms(w)
		case path == "createRoom" && r.Method == http.MethodPost:
			m.handleCreateRoom(w, r)
		case strings.HasPrefix(path, "join/") && r.Method == http.MethodPost:
			roomID, _ := url.PathUnescape(path[len("join/"):])
			m.handleJoin(w, roomID)
		case strings.HasPrefix(path, "directory/room/") && r.Method == http.MethodGet:
			alias, _ := url.PathUnescape(path[len("directory/room/"):])
			m.handleResolveAlias(w, alias)
		case strings.HasPrefix(path, "rooms/"):
			segments := strings.SplitN(path[len("rooms/"):], "/", 2)
			if len(segments) < 2 {
				http.NotFound(w, r)
				return
			}
			roomID, _ := url.PathUnescape(segments[0])
			m.handleRoom(w, r, roomID, segments[1])
		default:
			http.NotFound(w, r)
		}
	})
}

func (m *mockHomeserver) handleRoom(w http.ResponseWriter, r *http.Request, roomID, rest string) {
	m.mu.Lock()
	room := m.rooms[roomID]
	m.mu.Unlock()
	if room == nil {
		writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown room "+roomID)
		return
	}

	switch {
	case rest == "state" && r.Method == http.MethodGet:
		m.handleGetRoomState(w, room)
	case strings.HasPrefix(rest, "state/"):
		typeAndKey := strings.SplitN(rest[len("state/"):], "/", 2)
		eventType, _ := url.PathUnescape(typeAndKey[0])
		if eventType != string(schema.MatrixEventTypePowerLevels) {
			writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "no such state event")
			return
		}
		if r.Method == http.MethodPut {
			m.handlePutPowerLevels(w, r, room)
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		writeJSON(w, http.StatusOK, room.powerLevels)
	case strings.HasPrefix(rest, "send/") && r.Method == http.MethodPut:
		m.handleSend(w, r, roomID)
	case rest == "members" && r.Method == http.MethodGet:
		m.handleMembers(w, room)
	case rest == "joined_members" && r.Method == http.MethodGet:
		m.handleJoinedMembers(w, room)
	case rest == "invite" && r.Method == http.MethodPost:
		var request messaging.InviteRequest
		json.NewDecoder(r.Body).Decode(&request)
		m.mu.Lock()
		room.members[request.UserID.String()] = schema.MembershipInvite
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	case rest == "leave" && r.Method == http.MethodPost:
		m.mu.Lock()
		room.members[botID] = schema.MembershipLeave
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	case rest == "forget" && r.Method == http.MethodPost:
		m.mu.Lock()
		delete(m.rooms, roomID)
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{})
	case rest == "upgrade" && r.Method == http.MethodPost:
		m.handleUpgrade(w, r, roomID, room)
	default:
		http.NotFound(w, r)
	}
}

func (m *mockHomeserver) handleGetRoomState(w http.ResponseWriter, room *mockRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := append([]map[string]any(nil), room.state...)
	events = append(events, stateEventJSON(schema.MatrixEventTypePowerLevels, botID, room.powerLevels))
	writeJSON(w, http.StatusOK, events)
}

func (m *mockHomeserver) handlePutPowerLevels(w http.ResponseWriter, r *http.Request, room *mockRoom) {
	var content map[string]any
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		writeMatrixError(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
		return
	}
	m.mu.Lock()
	room.powerLevels = content
	m.eventCounter++
	eventID := fmt.Sprintf("$state%d", m.eventCounter)
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"event_id": eventID})
}

func (m *mockHomeserver) handleSend(w http.ResponseWriter, r *http.Request, roomID string) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	if room := m.rooms[roomID]; room != nil && room.members[botID] != schema.MembershipJoin {
		m.mu.Unlock()
		writeMatrixError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "not in room "+roomID)
		return
	}
	if m.sendFailures > 0 {
		m.sendFailures--
		m.mu.Unlock()
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"errcode":        messaging.ErrCodeLimitExceeded,
			"error":          "slow down",
			"retry_after_ms": 1500,
		})
		return
	}
	var content messaging.MessageContent
	json.Unmarshal(body, &content)
	message := sentMessage{roomID: roomID, content: content}
	m.sent = append(m.sent, message)
	m.eventCounter++
	eventID := fmt.Sprintf("$sent%d", m.eventCounter)
	m.mu.Unlock()

	select {
	case m.messageSent <- message:
	default:
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_id": eventID})
}

func (m *mockHomeserver) handleMembers(w http.ResponseWriter, room *mockRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk := []map[string]any{}
	for user, membership := range room.members {
		chunk = append(chunk, map[string]any{
			"type":      schema.MatrixEventTypeRoomMember,
			"state_key": user,
			"sender":    user,
			"content":   map[string]any{"membership": membership},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunk": chunk})
}

func (m *mockHomeserver) handleJoinedMembers(w http.ResponseWriter, room *mockRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	joined := map[string]any{}
	for user, membership := range room.members {
		if membership == schema.MembershipJoin {
			joined[user] = map[string]any{}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"joined": joined})
}

func (m *mockHomeserver) handleJoinedRooms(w http.ResponseWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	joined := []string{}
	for roomID, room := range m.rooms {
		if room.members[botID] == schema.MembershipJoin {
			joined = append(joined, roomID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"joined_rooms": joined})
}

func (m *mockHomeserver) handleJoin(w http.ResponseWriter, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, roomID)
	if room := m.rooms[roomID]; room != nil {
		room.members[botID] = schema.MembershipJoin
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID})
}

func (m *mockHomeserver) handleResolveAlias(w http.ResponseWriter, alias string) {
	m.mu.Lock()
	roomID, ok := m.aliases[alias]
	m.mu.Unlock()
	if !ok {
		writeMatrixError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown alias "+alias)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "servers": []string{"example.org"}})
}

func (m *mockHomeserver) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var request messaging.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeMatrixError(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdRooms++
	roomID := fmt.Sprintf("!created%d:example.org", m.createdRooms)

	createContent := map[string]any{"room_version": request.RoomVersion}
	if roomType, ok := request.CreationContent["type"]; ok {
		createContent["type"] = roomType
	}
	powerLevels := request.PowerLevelContentOverride
	if powerLevels == nil {
		powerLevels = map[string]any{}
	}
	members := map[string]string{botID: schema.MembershipJoin}
	for _, invitee := range request.Invite {
		members[invitee] = schema.MembershipInvite
	}
	m.rooms[roomID] = &mockRoom{
		state: []map[string]any{
			stateEventJSON(schema.MatrixEventTypeCreate, botID, createContent),
			stateEventJSON(schema.MatrixEventTypeRoomName, botID, map[string]any{"name": request.Name}),
		},
		powerLevels: powerLevels,
		members:     members,
	}
	if request.Alias != "" {
		m.aliases["#"+request.Alias+":example.org"] = roomID
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID})
}

func (m *mockHomeserver) handleUpgrade(w http.ResponseWriter, r *http.Request, roomID string, room *mockRoom) {
	var request messaging.UpgradeRoomRequest
	json.NewDecoder(r.Body).Decode(&request)

	m.mu.Lock()
	defer m.mu.Unlock()
	replacement := "!upgraded-" + strings.TrimPrefix(roomID, "!")
	room.state = append(room.state, stateEventJSON(schema.MatrixEventTypeTombstone, botID, map[string]any{
		"body":             "This room has been replaced",
		"replacement_room": replacement,
	}))
	m.rooms[replacement] = &mockRoom{
		state: []map[string]any{
			stateEventJSON(schema.MatrixEventTypeCreate, botID, map[string]any{"room_version": request.NewVersion}),
		},
		powerLevels: room.powerLevels,
		members:     map[string]string{botID: schema.MembershipJoin},
	}
	writeJSON(w, http.StatusOK, map[string]any{"replacement_room": replacement})
}

// handleSync answers the initial sync with pending invites only. An
// incremental sync waits briefly for queued timeline events so the
// bot's long-poll loop does not spin.
func (m *mockHomeserver) handleSync(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	if since != "" {
		deadline := time.After(20 * time.Millisecond)
	wait:
		for {
			m.mu.Lock()
			ready := len(m.pending) > 0 || len(m.invites) > 0
			m.mu.Unlock()
			if ready {
				break
			}
			select {
			case <-r.Context().Done():
				return
			case <-deadline:
				break wait
			case <-time.After(time.Millisecond):
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncBatch++

	joined := map[string]any{}
	if since != "" {
		for roomID, events := range m.pending {
			joined[roomID] = map[string]any{
				"timeline": map[string]any{"events": events, "prev_batch": since},
			}
		}
		m.pending = make(map[string][]map[string]any)
	}
	invited := map[string]any{}
	for roomID := range m.invites {
		invited[roomID] = map[string]any{"invite_state": map[string]any{"events": []any{}}}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"next_batch": fmt.Sprintf("batch_%d", m.syncBatch),
		"rooms":      map[string]any{"join": joined, "invite": invited},
	})
}

// testConfig returns a valid config for the bot with ops as the only
// instance administrator.
func testConfig(homeserverURL string) *config.Config {
	cfg := config.Default()
	cfg.HomeserverURL = homeserverURL
	cfg.UserID = botID
	cfg.AccessTokenFile = "/dev/null"
	cfg.Administrators = []string{opsID}
	cfg.MaxConcurrentCommands = 2
	cfg.SyncTimeout = time.Second
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testBot is a Bot wired to a mock homeserver over HTTP.
type testBot struct {
	*Bot
	homeserver *mockHomeserver
	holder     *config.Holder
}

// newTestBot starts a mock homeserver and returns a bot connected to
// it. modify, when non-nil, adjusts the config before the bot is
// built.
func newTestBot(t *testing.T, clk clock.Clock, modify func(*config.Config)) *testBot {
	t.Helper()
	homeserver := newMockHomeserver()
	server := httptest.NewServer(homeserver.handler())
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	if modify != nil {
		modify(cfg)
	}
	holder := config.NewHolder("", cfg)

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: server.URL, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	token, err := secret.NewFromBytes([]byte("test-token"))
	if err != nil {
		t.Fatalf("creating token buffer: %v", err)
	}
	session := client.NewSession(ref.MustParseUserID(botID), token)
	t.Cleanup(func() { session.Close() })

	if clk == nil {
		clk = clock.Real()
	}
	bot, err := newBot(session, holder, clk, testLogger(), newMetrics())
	if err != nil {
		t.Fatalf("newBot: %v", err)
	}
	return &testBot{Bot: bot, homeserver: homeserver, holder: holder}
}
