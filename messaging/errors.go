// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// MatrixError represents a structured error response from the Matrix homeserver.
// Callers can use errors.As to extract the structured information:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeNotFound { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_UNKNOWN_TOKEN").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// RetryAfterMS is the server's requested backoff for M_LIMIT_EXCEEDED.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// RetryAfter returns the server-requested backoff, or zero when none
// was given.
func (e *MatrixError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterMS) * time.Millisecond
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden           = "M_FORBIDDEN"
	ErrCodeUnknownToken        = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound            = "M_NOT_FOUND"
	ErrCodeLimitExceeded       = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized        = "M_UNRECOGNIZED"
	ErrCodeUnknown             = "M_UNKNOWN"
	ErrCodeInvalidParam        = "M_INVALID_PARAM"
	ErrCodeRoomInUse           = "M_ROOM_IN_USE"
	ErrCodeUnsupportedVersion  = "M_UNSUPPORTED_ROOM_VERSION"
	ErrCodeBadState            = "M_BAD_STATE"
	ErrCodeUserNotFound        = "M_USER_NOT_FOUND"
	ErrCodeIncompatibleVersion = "M_INCOMPATIBLE_ROOM_VERSION"
)

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// IsTransient reports whether a failed request may succeed if retried:
// rate limiting, server-side (5xx) failures, and transport errors that
// never produced a Matrix response. Client errors such as M_FORBIDDEN
// are permanent, and so is cancellation of the caller's context.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		return true
	}
	return matrixErr.StatusCode == http.StatusTooManyRequests ||
		matrixErr.Code == ErrCodeLimitExceeded ||
		matrixErr.StatusCode >= 500
}
