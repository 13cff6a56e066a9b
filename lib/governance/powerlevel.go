// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/richtext"
	"github.com/bureau-foundation/roommanager/lib/schema"
)

// Change is a power level transition applied to one user.
type Change int

const (
	// Promote raises the user to schema.PowerLevelAdmin. A level
	// already at or above it is left alone.
	Promote Change = iota + 1
	// Demote sets the user to 0. A level at or below 0 is left alone,
	// so a negative level is never raised.
	Demote
)

func (c Change) String() string {
	switch c {
	case Promote:
		return "promote"
	case Demote:
		return "demote"
	default:
		return "unknown"
	}
}

// Level is the level a Change writes.
func (c Change) Level() int {
	if c == Promote {
		return schema.PowerLevelAdmin
	}
	return 0
}

// Satisfied reports whether level already meets the change.
func (c Change) Satisfied(level int) bool {
	if c == Promote {
		return level >= schema.PowerLevelAdmin
	}
	return level <= 0
}

// applyChange returns powerLevels with change applied to target and
// whether anything differs. The input is not modified.
func applyChange(powerLevels schema.PowerLevels, target ref.UserID, change Change) (schema.PowerLevels, bool) {
	if change.Satisfied(powerLevels.UserLevel(target)) {
		return powerLevels, false
	}
	updated := powerLevels.Clone()
	updated.SetUserLevel(target, change.Level())
	return updated, true
}

// Mutator applies power level changes. Writes to one room are
// serialized so concurrent commands cannot lose each other's updates
// through the full-map resend the protocol requires.
type Mutator struct {
	homeserver Homeserver
	state      *StateAccessor
	locks      *roomLocks
	self       ref.UserID
	logger     *slog.Logger
}

// NewMutator returns a Mutator writing through homeserver.
func NewMutator(homeserver Homeserver, state *StateAccessor, logger *slog.Logger) *Mutator {
	return &Mutator{
		homeserver: homeserver,
		state:      state,
		locks:      newRoomLocks(),
		self:       homeserver.UserID(),
		logger:     logger,
	}
}

// Apply applies change to target in roomID and reports whether a write
// happened. Power levels are re-read under the room's lock, so the
// decision always reflects the latest state this process has written.
// The engine's own identity is never modified.
func (m *Mutator) Apply(ctx context.Context, roomID ref.RoomID, target ref.UserID, change Change) (bool, error) {
	if err := checkNotSelf(target, m.self, "My own power level cannot be changed."); err != nil {
		return false, err
	}

	unlock, err := m.locks.lock(ctx, roomID)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := m.state.FetchPowerLevels(ctx, roomID)
	if err != nil {
		return false, err
	}
	updated, changed := applyChange(current, target, change)
	if !changed {
		m.logger.Debug("power level already satisfied",
			"room_id", roomID, "user_id", target, "change", change)
		return false, nil
	}

	if _, err := m.homeserver.SendStateEvent(ctx, roomID, schema.MatrixEventTypePowerLevels, "", updated); err != nil {
		return false, remoteError("update the power levels in "+richtext.MentionRoom(roomID.String()), err)
	}
	m.logger.Info("power level changed",
		"room_id", roomID,
		"user_id", target,
		"change", change,
		"previous_level", current.UserLevel(target),
		"level", change.Level(),
	)
	return true, nil
}
