// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for the room
// manager.
//
// [Client] is an unauthenticated client holding the homeserver URL and
// HTTP transport. [Client.NewSession] binds it to an access token held
// in a secret.Buffer, producing a [DirectSession]: room creation and
// upgrade, membership (invite, join, leave, forget, member listing),
// state events (individual and full room state), messages, alias
// resolution, and long-polling /sync.
//
// [Session] is the interface over those operations. Consumers that use
// only part of it declare their own narrower interface, as
// [GetState] does with [StateReader].
//
// All API errors are returned as [*MatrixError] with the standard Matrix
// error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status code.
// [IsMatrixError] tests for a specific code; [IsTransient] separates
// retryable failures (rate limiting, 5xx, transport) from permanent
// ones. Request URLs are built by string concatenation rather than
// url.URL to avoid double-encoding escaped path segments.
package messaging
