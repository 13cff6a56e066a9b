// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"sync"

	"github.com/bureau-foundation/roommanager/lib/ref"
)

// roomLocks serializes power level writes per room. Entries exist only
// while some caller holds or waits for the room's lock.
type roomLocks struct {
	mu    sync.Mutex
	rooms map[ref.RoomID]*roomLock
}

type roomLock struct {
	// token is a one-slot semaphore: holding the value holds the lock.
	// A channel rather than a sync.Mutex so waiting honors ctx.
	token   chan struct{}
	waiters int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{rooms: make(map[ref.RoomID]*roomLock)}
}

// lock blocks until the room's lock is held or ctx is done. On success
// the returned function releases it.
func (l *roomLocks) lock(ctx context.Context, roomID ref.RoomID) (func(), error) {
	l.mu.Lock()
	entry, ok := l.rooms[roomID]
	if !ok {
		entry = &roomLock{token: make(chan struct{}, 1)}
		l.rooms[roomID] = entry
	}
	entry.waiters++
	l.mu.Unlock()

	select {
	case entry.token <- struct{}{}:
		return func() {
			<-entry.token
			l.release(roomID, entry)
		}, nil
	case <-ctx.Done():
		l.release(roomID, entry)
		return nil, ctx.Err()
	}
}

func (l *roomLocks) release(roomID ref.RoomID, entry *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.waiters--
	if entry.waiters == 0 {
		delete(l.rooms, roomID)
	}
}

// size returns the number of rooms with a live entry.
func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}
