// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

// Chat command handling. A command message becomes a commandRequest in
// the sync loop; handleCommand runs it on a worker: build the policy
// from the config snapshot taken when the message arrived, call the
// engine, then reply in a thread on the command message.

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/roommanager/lib/config"
	"github.com/bureau-foundation/roommanager/lib/governance"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/richtext"
	"github.com/bureau-foundation/roommanager/lib/schema"
	"github.com/bureau-foundation/roommanager/messaging"
)

// commandRequest is one command message, resolved against the config
// snapshot current when it arrived.
type commandRequest struct {
	invocationID string
	name         string
	definition   commandDefinition
	roomID       ref.RoomID
	eventID      ref.EventID
	sender       ref.UserID
	args         governance.Arguments
	config       *config.Config
}

// commandHandler executes a command and returns the Markdown success
// reply.
type commandHandler func(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error)

type commandDefinition struct {
	usage   string
	help    string
	handler commandHandler
}

// commandOrder is the order commands are listed in help.
var commandOrder = []string{
	"help", "listrooms", "createroom", "createspace", "upgraderoom",
	"addadmin", "removeadmin", "becomeadmin", "forgetroom",
}

// commands maps command names (without prefix) to their definitions.
// Populated in init because handleHelp reads it.
var commands map[string]commandDefinition

func init() {
	commands = map[string]commandDefinition{
		"help": {"", "Show this list of commands.", handleHelp},
		"listrooms": {"", "List all rooms owned by this Room Manager instance.",
			handleListRooms},
		"createroom": {"<public|private> <name>", "Create a new room and add you as an administrator.",
			func(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error) {
				return handleCreate(ctx, b, inv, request, false)
			}},
		"createspace": {"<public|private> <name>", "Create a new space and add you as an administrator.",
			func(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error) {
				return handleCreate(ctx, b, inv, request, true)
			}},
		"upgraderoom": {"[room]", "Upgrade a room to the configured room version (room admins and instance administrators).",
			handleUpgradeRoom},
		"addadmin": {"<user> [room]", "Promote a user to administrator (room admins only).",
			handleAddAdmin},
		"removeadmin": {"<user> [room]", "Demote a room administrator to a normal user (room admins only).",
			handleRemoveAdmin},
		"becomeadmin": {"[room]", "Promote yourself to administrator (instance administrators only).",
			handleBecomeAdmin},
		"forgetroom": {"[room]", "Make me leave and forget a room (instance administrators only).",
			handleForgetRoom},
	}
}

// handleCommand runs one command and posts its reply.
func (b *Bot) handleCommand(ctx context.Context, request commandRequest) {
	start := b.clock.Now()
	logger := b.logger.With(
		"invocation_id", request.invocationID,
		"room_id", request.roomID,
		"event_id", request.eventID,
		"sender", request.sender,
		"command", request.name,
	)
	logger.Info("processing command")

	inv := governance.Invocation{
		Sender: request.sender,
		Room:   request.roomID,
		Policy: policy(request.config),
	}
	reply, err := request.definition.handler(ctx, b, inv, request)
	b.metrics.recordCommand(request.name, err)
	duration := b.clock.Now().Sub(start)

	if err != nil {
		kind := governance.KindOf(err)
		if kind == governance.KindRemote {
			logger.Error("command failed", "kind", kind, "duration", duration, "error", err)
		} else {
			logger.Info("command rejected", "kind", kind, "duration", duration, "error", err)
		}
		b.reply(ctx, request, governance.UserMessage(err))
		return
	}

	logger.Info("command completed", "duration", duration)
	if request.config.SilenceSuccessResponses && b.crowded(ctx, request.roomID) {
		b.metrics.repliesSuppressed.Inc()
		logger.Debug("success reply suppressed")
		return
	}
	b.reply(ctx, request, reply)
}

// crowded reports whether roomID has more than two joined members,
// the threshold above which success replies may be silenced. A failed
// lookup counts as not crowded so the reply is still sent.
func (b *Bot) crowded(ctx context.Context, roomID ref.RoomID) bool {
	members, err := b.session.JoinedMembers(ctx, roomID)
	if err != nil {
		b.logger.Warn("could not count room members", "room_id", roomID, "error", err)
		return false
	}
	return len(members) > 2
}

// reply posts markdown as an m.notice reply to the command message.
func (b *Bot) reply(ctx context.Context, request commandRequest, markdown string) {
	rendered := richtext.Render(markdown)
	content := messaging.NewHTMLMessage(schema.MsgTypeNotice, rendered.Plain, rendered.HTML)
	if !request.eventID.IsZero() {
		content = content.ReplyTo(request.eventID)
	}
	if _, err := b.sendMessageRetry(ctx, request.roomID, content); err != nil {
		b.logger.Error("failed to send reply",
			"invocation_id", request.invocationID,
			"room_id", request.roomID,
			"error", err,
		)
	}
}

func handleHelp(_ context.Context, _ *Bot, inv governance.Invocation, request commandRequest) (string, error) {
	prefix := request.config.CommandPrefix
	var builder strings.Builder
	builder.WriteString("Available commands:\n")
	for _, name := range commandOrder {
		definition := commands[name]
		usage := prefix + name
		if definition.usage != "" {
			usage += " " + definition.usage
		}
		fmt.Fprintf(&builder, "\n- `%s`: %s", usage, definition.help)
	}
	fmt.Fprintf(&builder, "\n\nRooms default to the room the command is sent in. I manage rooms I created with room version %s.",
		richtext.Escape(inv.Policy.RoomVersion))
	return builder.String(), nil
}

func handleListRooms(ctx context.Context, b *Bot, inv governance.Invocation, _ commandRequest) (string, error) {
	rooms, err := b.engine.ListRooms(ctx, inv)
	if err != nil {
		return "", err
	}
	if len(rooms) == 0 {
		return "No rooms created by this Room Manager instance were found.", nil
	}
	var builder strings.Builder
	builder.WriteString("Rooms created by this Room Manager instance:\n")
	for _, room := range rooms {
		kind := "Room"
		if room.Space {
			kind = "Space"
		}
		fmt.Fprintf(&builder, "\n- %s (%s)", richtext.MentionRoom(room.ID.String()), kind)
		if room.Name != "" {
			fmt.Fprintf(&builder, ": %s", richtext.Escape(room.Name))
		}
	}
	return builder.String(), nil
}

func handleCreate(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest, space bool) (string, error) {
	visibility := ""
	if len(request.args) > 0 {
		visibility = strings.ToLower(request.args[0].Text)
	}
	createRequest := governance.CreateRequest{
		Name:       request.args.Text(1),
		Visibility: visibility,
		Space:      space,
	}
	roomID, err := b.engine.CreateRoom(ctx, inv, createRequest)
	if err != nil {
		return "", err
	}
	kind := "room"
	if space {
		kind = "space"
	}
	return fmt.Sprintf("Created %s %s with visibility %s.", kind, richtext.MentionRoom(roomID.String()), visibility), nil
}

func handleUpgradeRoom(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error) {
	result, err := b.engine.UpgradeRoom(ctx, inv, governance.ResolveRoomArgument(request.args, request.roomID))
	if err != nil {
		return "", err
	}
	failed := result.FailedInvites()
	b.metrics.inviteFailures.Add(float64(len(failed)))

	reply := fmt.Sprintf("Room %s has been upgraded to v%s. The new room is %s.",
		richtext.MentionRoom(result.Room.String()), richtext.Escape(result.Version),
		richtext.MentionRoom(result.Replacement.String()))
	if len(failed) == 0 {
		return reply, nil
	}
	users := make([]string, len(failed))
	for index, outcome := range failed {
		users[index] = richtext.MentionUser(outcome.User.String())
	}
	return reply + fmt.Sprintf(" I could not invite %d of %d members into the new room: %s.",
		len(failed), len(result.Invites), strings.Join(users, ", ")), nil
}

func handleAddAdmin(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error) {
	user, room := governance.ResolveUserAndRoomArguments(request.args, request.roomID)
	result, err := b.engine.AddAdmin(ctx, inv, user, room)
	if err != nil {
		return "", err
	}
	roomMention := richtext.MentionRoom(result.Room.String())
	userText := richtext.Escape(result.User.String())
	if !result.Changed {
		return fmt.Sprintf("User %s is already an administrator in room %s.", userText, roomMention), nil
	}
	b.metrics.powerLevelWrites.Inc()
	reply := fmt.Sprintf("User %s has been promoted to administrator in room %s.", userText, roomMention)
	if result.Invited {
		reply += " They were invited to the room first."
	}
	return reply, nil
}

func handleRemoveAdmin(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error) {
	user, room := governance.ResolveUserAndRoomArguments(request.args, request.roomID)
	result, err := b.engine.RemoveAdmin(ctx, inv, user, room)
	if err != nil {
		return "", err
	}
	roomMention := richtext.MentionRoom(result.Room.String())
	userText := richtext.Escape(result.User.String())
	if !result.Changed {
		return fmt.Sprintf("User %s is not an administrator in room %s.", userText, roomMention), nil
	}
	b.metrics.powerLevelWrites.Inc()
	return fmt.Sprintf("User %s has been demoted from administrator in room %s.", userText, roomMention), nil
}

func handleBecomeAdmin(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error) {
	result, err := b.engine.BecomeAdmin(ctx, inv, governance.ResolveRoomArgument(request.args, request.roomID))
	if err != nil {
		return "", err
	}
	roomMention := richtext.MentionRoom(result.Room.String())
	if !result.Changed {
		return fmt.Sprintf("You are already an administrator in room %s.", roomMention), nil
	}
	b.metrics.powerLevelWrites.Inc()
	return fmt.Sprintf("You have been promoted to administrator in room %s.", roomMention), nil
}

func handleForgetRoom(ctx context.Context, b *Bot, inv governance.Invocation, request commandRequest) (string, error) {
	result, err := b.engine.ForgetRoom(ctx, inv, governance.ResolveRoomArgument(request.args, request.roomID))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("I left and forgot the room %s.", richtext.MentionRoom(result.Room.String())), nil
}
