// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bureau-foundation/roommanager/lib/clock"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/messaging"
)

type sendResult struct {
	eventID ref.EventID
	err     error
}

func TestSendMessageRetry(t *testing.T) {
	content := messaging.NewTextMessage("hello")

	t.Run("rate limited then delivered", func(t *testing.T) {
		fake := clock.Fake(time.Unix(1_700_000_000, 0))
		tb := newTestBot(t, fake, nil)
		roomID := tb.homeserver.managedRoom("!team:example.org")
		tb.homeserver.failSends(1)

		done := make(chan sendResult, 1)
		go func() {
			eventID, err := tb.sendMessageRetry(context.Background(), roomID, content)
			done <- sendResult{eventID, err}
		}()

		// retry_after_ms (1.5s) is longer than the first backoff (1s).
		fake.WaitForTimers(1)
		fake.Advance(time.Second)
		if fake.PendingCount() != 1 {
			t.Fatal("retry did not honor retry_after_ms")
		}
		fake.Advance(500 * time.Millisecond)

		result := <-done
		if result.err != nil {
			t.Fatalf("sendMessageRetry: %v", result.err)
		}
		if result.eventID.IsZero() {
			t.Error("empty event ID")
		}
		if sent := tb.homeserver.sentMessages(); len(sent) != 1 {
			t.Errorf("delivered %d messages, want 1", len(sent))
		}
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		fake := clock.Fake(time.Unix(1_700_000_000, 0))
		tb := newTestBot(t, fake, nil)
		roomID := tb.homeserver.managedRoom("!team:example.org")
		tb.homeserver.failSends(sendMaxAttempts + 1)

		done := make(chan sendResult, 1)
		go func() {
			eventID, err := tb.sendMessageRetry(context.Background(), roomID, content)
			done <- sendResult{eventID, err}
		}()
		for range sendMaxAttempts - 1 {
			fake.WaitForTimers(1)
			fake.Advance(2 * time.Second)
		}

		result := <-done
		if !messaging.IsMatrixError(result.err, messaging.ErrCodeLimitExceeded) {
			t.Fatalf("err = %v, want M_LIMIT_EXCEEDED", result.err)
		}
		tb.homeserver.mu.Lock()
		remaining := tb.homeserver.sendFailures
		tb.homeserver.mu.Unlock()
		if remaining != 1 {
			t.Errorf("made %d attempts, want %d", sendMaxAttempts+1-remaining, sendMaxAttempts)
		}
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		fake := clock.Fake(time.Unix(1_700_000_000, 0))
		tb := newTestBot(t, fake, nil)

		_, err := tb.sendMessageRetry(context.Background(), ref.MustParseRoomID("!missing:example.org"), content)
		if !messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			t.Fatalf("err = %v, want M_NOT_FOUND", err)
		}
		if fake.PendingCount() != 0 {
			t.Error("a retry was scheduled for a permanent error")
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		fake := clock.Fake(time.Unix(1_700_000_000, 0))
		tb := newTestBot(t, fake, nil)
		roomID := tb.homeserver.managedRoom("!team:example.org")
		tb.homeserver.failSends(1)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan sendResult, 1)
		go func() {
			eventID, err := tb.sendMessageRetry(ctx, roomID, content)
			done <- sendResult{eventID, err}
		}()
		fake.WaitForTimers(1)
		cancel()

		result := <-done
		if !errors.Is(result.err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", result.err)
		}
	})
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{name: "nil", err: nil, want: 0},
		{name: "plain error", err: errors.New("boom"), want: 0},
		{name: "rate limit", err: &messaging.MatrixError{Code: messaging.ErrCodeLimitExceeded, RetryAfterMS: 2500}, want: 2500 * time.Millisecond},
		{
			name: "wrapped",
			err:  fmt.Errorf("sending: %w", &messaging.MatrixError{Code: messaging.ErrCodeLimitExceeded, RetryAfterMS: 100}),
			want: 100 * time.Millisecond,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := retryAfter(test.err); got != test.want {
				t.Errorf("retryAfter = %v, want %v", got, test.want)
			}
		})
	}
}
