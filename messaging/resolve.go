// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/roommanager/lib/ref"
)

// StateReader is the subset of Session needed by GetState.
type StateReader interface {
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
}

// GetState reads a typed state event from a Matrix room. It calls
// GetStateEvent on the session and unmarshals the raw JSON content into
// T:
//
//	powerLevels, err := messaging.GetState[schema.PowerLevels](ctx, session, roomID, schema.MatrixEventTypePowerLevels, "")
//
// Returns an error if the state event does not exist (M_NOT_FOUND) or
// if the content cannot be unmarshaled into T.
func GetState[T any](ctx context.Context, session StateReader, roomID ref.RoomID, eventType ref.EventType, stateKey string) (T, error) {
	var zero T
	content, err := session.GetStateEvent(ctx, roomID, eventType, stateKey)
	if err != nil {
		return zero, fmt.Errorf("reading %s[%q] from room %s: %w", eventType, stateKey, roomID, err)
	}
	var result T
	if err := json.Unmarshal(content, &result); err != nil {
		return zero, fmt.Errorf("unmarshaling %s from room %s: %w", eventType, roomID, err)
	}
	return result, nil
}

// FindStateEvent returns the first event in events with the given type
// and state key. ok is false when there is none.
func FindStateEvent(events []Event, eventType ref.EventType, stateKey string) (event Event, ok bool) {
	for _, candidate := range events {
		if candidate.Type == eventType && candidate.StateKey != nil && *candidate.StateKey == stateKey {
			return candidate, true
		}
	}
	return Event{}, false
}
