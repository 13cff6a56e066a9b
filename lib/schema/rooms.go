// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "strings"

// Room directory visibility values for createRoom.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// AliasLocalpartFromName derives the alias localpart published for a
// public room: the trimmed room name with each run of whitespace
// replaced by a single "-".
//
// Example: AliasLocalpartFromName("Team  Chat") → "Team-Chat"
func AliasLocalpartFromName(name string) string {
	return strings.Join(strings.Fields(name), "-")
}

// JoinRuleForVisibility maps a directory visibility to the join rule
// set in the room's initial state: public rooms are open to join,
// everything else is invite-only.
func JoinRuleForVisibility(visibility string) string {
	if visibility == VisibilityPublic {
		return JoinRulePublic
	}
	return JoinRuleInvite
}

// CreatorPowerLevels returns the power_level_content_override for a new
// room: the listed users at PowerLevelAdmin and nothing else, leaving
// every other field to the homeserver's preset.
func CreatorPowerLevels(admins ...string) map[string]any {
	users := make(map[string]int, len(admins))
	for _, admin := range admins {
		users[admin] = PowerLevelAdmin
	}
	return map[string]any{"users": users}
}
