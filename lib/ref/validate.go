// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// parseSigilID extracts localpart and server from a Matrix identifier
// with the given sigil prefix (@ for user IDs, # for room aliases).
// The server part may itself contain ':' (a port), so only the first
// colon separates the two.
func parseSigilID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if len(identifier) < 2 || identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with %c", kind, identifier, sigil)
	}
	if strings.ContainsAny(identifier, " \t\r\n") {
		return "", "", fmt.Errorf("invalid %s %q: contains whitespace", kind, identifier)
	}
	localpart, server, found := strings.Cut(identifier[1:], ":")
	if !found {
		return "", "", fmt.Errorf("invalid %s %q: missing :server", kind, identifier)
	}
	if localpart == "" {
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	}
	if server == "" {
		return "", "", fmt.Errorf("invalid %s %q: empty server", kind, identifier)
	}
	return localpart, server, nil
}
