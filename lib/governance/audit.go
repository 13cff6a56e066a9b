// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/richtext"
	"github.com/bureau-foundation/roommanager/lib/schema"
	"github.com/bureau-foundation/roommanager/messaging"
)

// AuditPolicy says where audit records go and which categories are
// recorded. A zero Channel disables auditing.
type AuditPolicy struct {
	Channel    ref.RoomID
	Categories map[string]bool
}

// Enabled reports whether records of category are sent.
func (p AuditPolicy) Enabled(category string) bool {
	return !p.Channel.IsZero() && p.Categories[category]
}

// MessageSender sends a message to a room.
type MessageSender interface {
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
}

// AuditLogger posts governance records to the audit channel.
type AuditLogger struct {
	sender MessageSender
	logger *slog.Logger
}

// NewAuditLogger returns an AuditLogger sending through sender.
func NewAuditLogger(sender MessageSender, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{sender: sender, logger: logger}
}

// Record sends markdown as an m.notice to the policy's channel when
// category is enabled. Failures are logged and otherwise ignored: the
// action being recorded has already happened.
func (a *AuditLogger) Record(ctx context.Context, policy AuditPolicy, category, markdown string) {
	if !policy.Enabled(category) {
		return
	}
	rendered := richtext.Render(markdown)
	content := messaging.NewHTMLMessage(schema.MsgTypeNotice, rendered.Plain, rendered.HTML)
	if _, err := a.sender.SendMessage(ctx, policy.Channel, content); err != nil {
		a.logger.Warn("audit record not delivered",
			"channel", policy.Channel,
			"category", category,
			"error", err,
		)
	}
}
