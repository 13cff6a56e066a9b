// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/roommanager/lib/clock"
	"github.com/bureau-foundation/roommanager/lib/config"
	"github.com/bureau-foundation/roommanager/lib/governance"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/messaging"
)

// seenEventsSize bounds the processed-event cache. A timeline event is
// delivered again only around sync gaps and reconnects, so recent
// history is enough.
const seenEventsSize = 4096

// Bot connects the governance engine to a Matrix session: it follows
// /sync, turns command messages into engine calls, and replies.
type Bot struct {
	session messaging.Session
	engine  *governance.Engine
	config  *config.Holder
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics
	self    ref.UserID

	// seen holds recently processed event IDs so a redelivered
	// command runs once.
	seen *lru.Cache[ref.EventID, struct{}]

	// workers runs command handlers; the limit comes from
	// max_concurrent_commands at startup.
	workers *errgroup.Group
}

func newBot(session messaging.Session, holder *config.Holder, clk clock.Clock, logger *slog.Logger, m *metrics) (*Bot, error) {
	seen, err := lru.New[ref.EventID, struct{}](seenEventsSize)
	if err != nil {
		return nil, fmt.Errorf("creating event cache: %w", err)
	}
	workers := &errgroup.Group{}
	workers.SetLimit(holder.Snapshot().MaxConcurrentCommands)

	return &Bot{
		session: session,
		engine:  governance.NewEngine(session, logger),
		config:  holder,
		clock:   clk,
		logger:  logger,
		metrics: m,
		self:    session.UserID(),
		seen:    seen,
		workers: workers,
	}, nil
}

// Run follows /sync until ctx is done, then waits for running commands
// to finish. History from before startup is skipped, never replayed.
func (b *Bot) Run(ctx context.Context) error {
	since, err := b.initialSync(ctx)
	if err != nil {
		return err
	}
	err = b.syncLoop(ctx, since)
	b.workers.Wait()
	return err
}

// policy builds the per-invocation policy from one config snapshot.
func policy(cfg *config.Config) governance.Policy {
	return governance.Policy{
		RoomVersion:    cfg.RoomVersion,
		InstanceAdmins: cfg.AdministratorIDs(),
		Audit: governance.AuditPolicy{
			Channel:    cfg.LoggingRoom(),
			Categories: cfg.LoggingCategories(),
		},
	}
}
