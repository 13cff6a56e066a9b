// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/roommanager/lib/governance"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/schema"
	"github.com/bureau-foundation/roommanager/messaging"
)

// syncFilter limits /sync to room messages. Invites arrive regardless
// of the filter.
const syncFilter = `{
	"room": {
		"state": {
			"types": []
		},
		"timeline": {
			"types": ["m.room.message"],
			"limit": 50
		},
		"ephemeral": {
			"types": []
		},
		"account_data": {
			"types": []
		}
	},
	"presence": {
		"types": []
	},
	"account_data": {
		"types": []
	}
}`

// syncMaxBackoff caps the wait between failed /sync attempts.
const syncMaxBackoff = 30 * time.Second

// initialSync returns the next_batch token to start from. Messages in
// the initial response predate this process and are not handled;
// pending invites are.
func (b *Bot) initialSync(ctx context.Context) (string, error) {
	response, err := b.session.Sync(ctx, messaging.SyncOptions{Filter: syncFilter})
	if err != nil {
		return "", fmt.Errorf("initial sync: %w", err)
	}

	b.logger.Info("initial sync complete",
		"next_batch", response.NextBatch,
		"joined_rooms", len(response.Rooms.Join),
		"pending_invites", len(response.Rooms.Invite),
	)
	b.acceptInvites(ctx, response.Rooms.Invite)
	return response.NextBatch, nil
}

// syncLoop long-polls /sync from sinceToken until ctx is done. Failed
// polls back off exponentially up to syncMaxBackoff.
func (b *Bot) syncLoop(ctx context.Context, sinceToken string) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		timeout := b.config.Snapshot().SyncTimeout
		response, err := b.session.Sync(ctx, messaging.SyncOptions{
			Since:      sinceToken,
			Timeout:    int(timeout / time.Millisecond),
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("sync failed, retrying", "error", err, "backoff", backoff)
			// Pooled connections may be dead after a network change.
			if closer, ok := b.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.clock.After(backoff):
			}
			backoff = min(backoff*2, syncMaxBackoff)
			continue
		}

		backoff = time.Second
		sinceToken = response.NextBatch
		b.processSyncResponse(ctx, response)
	}
}

// processSyncResponse accepts invites and dispatches every command in
// the joined rooms' timelines.
func (b *Bot) processSyncResponse(ctx context.Context, response *messaging.SyncResponse) {
	b.acceptInvites(ctx, response.Rooms.Invite)
	for roomID, room := range response.Rooms.Join {
		for _, event := range room.Timeline.Events {
			b.handleEvent(ctx, roomID, event)
		}
	}
}

func (b *Bot) acceptInvites(ctx context.Context, invites map[ref.RoomID]messaging.InvitedRoom) {
	if len(invites) == 0 {
		return
	}
	if !b.config.Snapshot().AutoJoinInvites {
		b.logger.Debug("ignoring invites, auto_join_invites is off", "count", len(invites))
		return
	}
	for roomID := range invites {
		if _, err := b.session.JoinRoom(ctx, roomID); err != nil {
			b.logger.Error("failed to accept invite", "room_id", roomID, "error", err)
			continue
		}
		b.logger.Info("accepted invite", "room_id", roomID)
	}
}

// handleEvent starts a command handler for event if it is a command
// message the bot has not handled yet. It blocks while every worker is
// busy, which holds back the next /sync.
func (b *Bot) handleEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	if event.Type != schema.MatrixEventTypeMessage || event.Sender == b.self {
		return
	}

	var content messaging.MessageContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		b.logger.Debug("skipping undecodable message", "room_id", roomID, "event_id", event.EventID, "error", err)
		return
	}
	if content.MsgType != schema.MsgTypeText {
		return
	}
	// Edits carry the new text under m.new_content; the original
	// message already ran.
	if content.RelatesTo != nil && content.RelatesTo.RelType == schema.RelTypeReplace {
		return
	}

	cfg := b.config.Snapshot()
	formattedBody := ""
	if content.Format == schema.FormatHTML {
		formattedBody = content.FormattedBody
	}
	name, args, ok := governance.ParseInvocation(cfg.CommandPrefix, content.Body, formattedBody)
	if !ok {
		return
	}
	definition, known := commands[name]
	if !known {
		b.logger.Debug("ignoring unknown command", "room_id", roomID, "sender", event.Sender, "command", name)
		return
	}

	if !event.EventID.IsZero() {
		if seen, _ := b.seen.ContainsOrAdd(event.EventID, struct{}{}); seen {
			return
		}
	}

	request := commandRequest{
		invocationID: uuid.NewString(),
		name:         name,
		definition:   definition,
		roomID:       roomID,
		eventID:      event.EventID,
		sender:       event.Sender,
		args:         args,
		config:       cfg,
	}
	// A dispatched command runs to completion and replies even when
	// shutdown cancels ctx; Run waits for the workers before returning.
	commandCtx := context.WithoutCancel(ctx)
	b.workers.Go(func() error {
		b.handleCommand(commandCtx, request)
		return nil
	})
}
