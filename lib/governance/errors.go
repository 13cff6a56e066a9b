// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/roommanager/lib/richtext"
)

// Kind classifies a governance failure by how the command should
// react to it. Only KindRemote hides its cause from the caller.
type Kind int

const (
	// KindValidation: malformed or missing arguments, detected before
	// any remote call.
	KindValidation Kind = iota + 1
	// KindNotFound: the room or user could not be resolved through the
	// homeserver.
	KindNotFound
	// KindAuthorization: the caller lacks standing, or the target is a
	// protected identity.
	KindAuthorization
	// KindPrecondition: the room is in the wrong state for the action.
	KindPrecondition
	// KindRemote: a mutating homeserver request failed after every
	// precondition passed.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindPrecondition:
		return "precondition"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is a governance failure. Message is Markdown addressed to the
// caller; Err, when set, is the underlying cause for internal logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// roomNotFoundError collapses every failure to read a room into the one
// message a caller can act on.
func roomNotFoundError(room string, cause error) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("The room %s does not exist or I am not a member of it.", richtext.MentionRoom(room)),
		Err:     cause,
	}
}

// remoteError reports a failed mutation without exposing the cause.
// action completes the sentence "Could not ...".
func remoteError(action string, cause error) *Error {
	return &Error{
		Kind:    KindRemote,
		Message: fmt.Sprintf("Could not %s. Make sure I have sufficient permissions.", action),
		Err:     cause,
	}
}

// Reason identifies which guard rejected a command.
type Reason int

const (
	ReasonUnsupportedVersion Reason = iota + 1
	ReasonNotCreatedByMe
	ReasonNotMember
	ReasonNotAdmin
	ReasonNotInstanceAdmin
	ReasonProtectedIdentity
	ReasonTargetNotMember
	ReasonIsSpace
	ReasonAlreadyCurrent
	ReasonUnknownVersion
	ReasonAlreadyUpgraded
	ReasonNotEmpty
	ReasonInvokingRoom
)

var reasonNames = map[Reason]string{
	ReasonUnsupportedVersion: "unsupported_version",
	ReasonNotCreatedByMe:     "not_created_by_me",
	ReasonNotMember:          "not_member",
	ReasonNotAdmin:           "not_admin",
	ReasonNotInstanceAdmin:   "not_instance_admin",
	ReasonProtectedIdentity:  "protected_identity",
	ReasonTargetNotMember:    "target_not_member",
	ReasonIsSpace:            "is_space",
	ReasonAlreadyCurrent:     "already_current",
	ReasonUnknownVersion:     "unknown_version",
	ReasonAlreadyUpgraded:    "already_upgraded",
	ReasonNotEmpty:           "not_empty",
	ReasonInvokingRoom:       "invoking_room",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Kind maps the reason onto the error taxonomy: standing problems are
// authorization failures, room state problems are preconditions.
func (r Reason) Kind() Kind {
	switch r {
	case ReasonNotMember, ReasonNotAdmin, ReasonNotInstanceAdmin, ReasonProtectedIdentity:
		return KindAuthorization
	default:
		return KindPrecondition
	}
}

// GuardError is returned by the permission guards. Callers switch on
// Reason with errors.As rather than matching Message.
type GuardError struct {
	Reason  Reason
	Message string
}

func (e *GuardError) Error() string { return e.Message }

func guardError(reason Reason, format string, args ...any) *GuardError {
	return &GuardError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the taxonomy kind of err. Errors that did not come
// from this package are treated as remote failures.
func KindOf(err error) Kind {
	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return guardErr.Reason.Kind()
	}
	var governanceErr *Error
	if errors.As(err, &governanceErr) {
		return governanceErr.Kind
	}
	return KindRemote
}

// HasReason reports whether err is a GuardError with the given reason.
func HasReason(err error, reason Reason) bool {
	var guardErr *GuardError
	return errors.As(err, &guardErr) && guardErr.Reason == reason
}

// UserMessage renders err as the Markdown reply shown to the caller.
// Causes of remote failures are never included.
func UserMessage(err error) string {
	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return guardErr.Message
	}
	var governanceErr *Error
	if errors.As(err, &governanceErr) {
		return governanceErr.Message
	}
	return "Could not complete the action. Make sure I have sufficient permissions."
}
