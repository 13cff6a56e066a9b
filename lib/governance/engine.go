// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"log/slog"

	"github.com/bureau-foundation/roommanager/lib/ref"
)

// Policy is the configuration snapshot an invocation runs under. It is
// taken once per invocation; a reload never changes it mid-command.
type Policy struct {
	// RoomVersion is the version new rooms get and managed rooms must
	// have.
	RoomVersion    string
	InstanceAdmins map[ref.UserID]struct{}
	Audit          AuditPolicy
}

// Invocation is one command execution: who sent it, from which room,
// and under which policy.
type Invocation struct {
	Sender ref.UserID
	Room   ref.RoomID
	Policy Policy
}

// Authority returns the authorization context for the invocation.
func (inv Invocation) Authority() Authority {
	return Authority{Caller: inv.Sender, InstanceAdmins: inv.Policy.InstanceAdmins}
}

// Engine runs governance commands against one homeserver session.
// Methods are safe for concurrent use.
type Engine struct {
	homeserver Homeserver
	self       ref.UserID
	state      *StateAccessor
	mutator    *Mutator
	audit      *AuditLogger
	logger     *slog.Logger
}

// NewEngine returns an Engine acting as homeserver.UserID().
func NewEngine(homeserver Homeserver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	state := NewStateAccessor(homeserver, logger)
	return &Engine{
		homeserver: homeserver,
		self:       homeserver.UserID(),
		state:      state,
		mutator:    NewMutator(homeserver, state, logger),
		audit:      NewAuditLogger(homeserver, logger),
		logger:     logger,
	}
}

// parseUser validates a user argument.
func parseUser(raw string) (ref.UserID, error) {
	if raw == "" {
		return ref.UserID{}, validationError("Please provide a user ID.")
	}
	userID, err := ref.ParseUserID(raw)
	if err != nil {
		return ref.UserID{}, &Error{Kind: KindValidation, Message: "Please provide a valid user ID, like @user:example.org.", Err: err}
	}
	return userID, nil
}
