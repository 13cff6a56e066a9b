// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"testing"

	"github.com/bureau-foundation/roommanager/lib/ref"
)

func TestParseInvocation(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		formattedBody string
		wantCommand   string
		wantArgs      int
		wantOK        bool
	}{
		{name: "plain", body: "!addadmin @alice:example.org", wantCommand: "addadmin", wantArgs: 1, wantOK: true},
		{name: "uppercase keyword", body: "!ListRooms", wantCommand: "listrooms", wantOK: true},
		{name: "no prefix", body: "addadmin @alice:example.org"},
		{name: "prefix alone", body: "! help"},
		{name: "empty", body: "   "},
		{
			name:          "formatted preferred",
			body:          "!addadmin Alice",
			formattedBody: `!addadmin <a href="https://matrix.to/#/@alice:example.org">Alice</a>`,
			wantCommand:   "addadmin",
			wantArgs:      1,
			wantOK:        true,
		},
		{
			name:          "leading mention is not a command",
			body:          "Bot: !help",
			formattedBody: `<a href="https://matrix.to/#/@roommanager:example.org">!help</a>`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			command, args, ok := ParseInvocation("!", test.body, test.formattedBody)
			if ok != test.wantOK {
				t.Fatalf("ok = %v, want %v", ok, test.wantOK)
			}
			if command != test.wantCommand {
				t.Errorf("command = %q, want %q", command, test.wantCommand)
			}
			if len(args) != test.wantArgs {
				t.Errorf("args = %+v, want %d", args, test.wantArgs)
			}
		})
	}
}

func TestResolveUserAndRoomArguments(t *testing.T) {
	invoking := ref.MustParseRoomID("!r:example.org")
	tests := []struct {
		name          string
		body          string
		formattedBody string
		wantUser      string
		wantRoom      string
	}{
		{
			name:     "user only defaults to invoking room",
			body:     "!addadmin @alice:example.org",
			wantUser: "@alice:example.org",
			wantRoom: "!r:example.org",
		},
		{
			name:     "user and room",
			body:     "!addadmin @alice:example.org #general:example.org",
			wantUser: "@alice:example.org",
			wantRoom: "#general:example.org",
		},
		{
			name:          "mention pill uses the link target",
			body:          "!addadmin Bob",
			formattedBody: `!addadmin <a href="https://matrix.to/#/@bob:example.org">Bob</a>`,
			wantUser:      "@bob:example.org",
			wantRoom:      "!r:example.org",
		},
		{
			name:          "multi-word pill stays one argument",
			body:          "!addadmin Bob Smith !other:example.org",
			formattedBody: `!addadmin <a href="https://matrix.to/#/@bob:example.org">Bob Smith</a> !other:example.org`,
			wantUser:      "@bob:example.org",
			wantRoom:      "!other:example.org",
		},
		{
			name:          "room pill",
			formattedBody: `!removeadmin @carol:example.org <a href="https://matrix.to/#/%23team:example.org">Team</a>`,
			wantUser:      "@carol:example.org",
			wantRoom:      "#team:example.org",
		},
		{
			name:          "user pill in room slot falls back to its label",
			formattedBody: `!addadmin @carol:example.org <a href="https://matrix.to/#/@bob:example.org">Bob</a>`,
			wantUser:      "@carol:example.org",
			wantRoom:      "Bob",
		},
		{
			name:     "missing user",
			body:     "!addadmin",
			wantUser: "",
			wantRoom: "!r:example.org",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, args, ok := ParseInvocation("!", test.body, test.formattedBody)
			if !ok {
				t.Fatal("not recognized as a command")
			}
			user, room := ResolveUserAndRoomArguments(args, invoking)
			if user != test.wantUser || room != test.wantRoom {
				t.Errorf("got (%q, %q), want (%q, %q)", user, room, test.wantUser, test.wantRoom)
			}
		})
	}
}

func TestResolveRoomArgument(t *testing.T) {
	invoking := ref.MustParseRoomID("!r:example.org")

	_, args, _ := ParseInvocation("!", "!upgraderoom", "")
	if room := ResolveRoomArgument(args, invoking); room != "!r:example.org" {
		t.Errorf("omitted room = %q", room)
	}

	_, args, _ = ParseInvocation("!", "!upgraderoom #old:example.org", "")
	if room := ResolveRoomArgument(args, invoking); room != "#old:example.org" {
		t.Errorf("explicit room = %q", room)
	}
}

func TestArgumentsText(t *testing.T) {
	_, args, _ := ParseInvocation("!", "!createroom public  Team   Chat ", "")
	if got := args.Text(1); got != "Team Chat" {
		t.Errorf("Text(1) = %q, want %q", got, "Team Chat")
	}
	if got := args.Text(5); got != "" {
		t.Errorf("Text past the end = %q", got)
	}
}
