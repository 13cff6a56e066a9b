// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/messaging"
)

// sendMaxAttempts bounds reply delivery. With 1s and 2s backoff a
// reply is abandoned after about three seconds of rate limiting or
// server errors.
const sendMaxAttempts = 3

// sendMessageRetry sends a message, retrying transient failures
// (connection errors, 429, 5xx). Other errors are returned at once. A
// rate limit response's retry_after_ms replaces the backoff when it is
// longer.
func (b *Bot) sendMessageRetry(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	var lastError error
	for attempt := 0; attempt < sendMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if wait := retryAfter(lastError); wait > backoff {
				backoff = wait
			}
			select {
			case <-ctx.Done():
				return ref.EventID{}, ctx.Err()
			case <-b.clock.After(backoff):
			}
		}

		eventID, err := b.session.SendMessage(ctx, roomID, content)
		if err == nil {
			return eventID, nil
		}
		lastError = err

		if !messaging.IsTransient(err) {
			return ref.EventID{}, err
		}

		b.logger.Warn("transient message send failure, retrying",
			"room_id", roomID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return ref.EventID{}, lastError
}

func retryAfter(err error) time.Duration {
	var matrixErr *messaging.MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.RetryAfter()
	}
	return 0
}
