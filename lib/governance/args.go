// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"strings"

	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/richtext"
)

// Arguments are the tokens of a command body after the command keyword.
type Arguments []richtext.Token

// ParseInvocation splits a message into a command name and its
// arguments. The formatted body is preferred when present because
// mention pills carry the full identifier only in their link target.
// ok is false when the message does not start with prefix.
//
// The command name is returned lowercased and without the prefix.
func ParseInvocation(prefix, body, formattedBody string) (command string, args Arguments, ok bool) {
	var tokens []richtext.Token
	if strings.TrimSpace(formattedBody) != "" {
		tokens = richtext.Tokenize(formattedBody)
	} else {
		tokens = richtext.TokenizePlain(body)
	}
	if len(tokens) == 0 || tokens[0].Target != "" {
		return "", nil, false
	}
	keyword := tokens[0].Text
	if prefix == "" || !strings.HasPrefix(keyword, prefix) || len(keyword) == len(prefix) {
		return "", nil, false
	}
	return strings.ToLower(keyword[len(prefix):]), Arguments(tokens[1:]), true
}

// Text joins the visible text of the arguments from index start on.
// Used for free-form arguments such as room names.
func (args Arguments) Text(start int) string {
	if start >= len(args) {
		return ""
	}
	words := make([]string, 0, len(args)-start)
	for _, token := range args[start:] {
		words = append(words, token.Text)
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// value returns the identifier at index, or "" when absent. A link
// target wins over the label when its sigil fits the slot; otherwise
// the visible text is used as typed.
func (args Arguments) value(index int, sigils string) string {
	if index >= len(args) {
		return ""
	}
	token := args[index]
	if token.Target != "" && strings.IndexByte(sigils, token.Target[0]) >= 0 {
		return token.Target
	}
	return strings.TrimSpace(token.Text)
}

const (
	userSigils = "@"
	roomSigils = "!#"
)

// ResolveRoomArgument resolves "<command> [room]": the first argument,
// or the invoking room when it is omitted.
func ResolveRoomArgument(args Arguments, invokingRoom ref.RoomID) string {
	if room := args.value(0, roomSigils); room != "" {
		return room
	}
	return invokingRoom.String()
}

// ResolveUserAndRoomArguments resolves "<command> <user> [room]". user
// is "" when missing; room defaults to the invoking room.
func ResolveUserAndRoomArguments(args Arguments, invokingRoom ref.RoomID) (user, room string) {
	user = args.value(0, userSigils)
	room = args.value(1, roomSigils)
	if room == "" {
		room = invokingRoom.String()
	}
	return user, room
}
