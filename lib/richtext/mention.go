// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package richtext

import (
	"net/url"
	"strings"
)

const matrixToPrefix = "https://matrix.to/#/"

// Escape backslash-escapes every ASCII punctuation character so s is
// rendered literally by Render. Line breaks become spaces.
func Escape(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))
	for _, character := range s {
		switch {
		case character == '\n' || character == '\r':
			builder.WriteByte(' ')
		case character < 0x80 && isASCIIPunctuation(byte(character)):
			builder.WriteByte('\\')
			builder.WriteRune(character)
		default:
			builder.WriteRune(character)
		}
	}
	return builder.String()
}

func isASCIIPunctuation(c byte) bool {
	return (c >= '!' && c <= '/') || (c >= ':' && c <= '@') || (c >= '[' && c <= '`') || (c >= '{' && c <= '~')
}

// MatrixToURL returns the matrix.to permalink for a room ID, alias, or
// user ID.
func MatrixToURL(identifier string) string {
	fragment := (&url.URL{Fragment: "/" + identifier}).EscapedFragment()
	// Parentheses would end a Markdown link destination early.
	fragment = strings.NewReplacer("(", "%28", ")", "%29").Replace(fragment)
	return "https://matrix.to/#" + fragment
}

// MentionRoom returns a Markdown link to a room labelled with its
// identifier.
func MentionRoom(roomIdentifier string) string {
	return "[" + Escape(roomIdentifier) + "](" + MatrixToURL(roomIdentifier) + ")"
}

// MentionUser returns a Markdown link to a user. Matrix clients render
// it as a mention pill.
func MentionUser(userID string) string {
	return "[" + Escape(userID) + "](" + MatrixToURL(userID) + ")"
}

// ParseMatrixTo extracts the identifier from a matrix.to URL: the
// first path segment of the fragment, percent-decoded, without any
// query. ok is false for any other URL.
//
// Example: "https://matrix.to/#/%23room:example.org?via=example.org"
// yields "#room:example.org".
func ParseMatrixTo(raw string) (identifier string, ok bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !strings.EqualFold(parsed.Host, "matrix.to") {
		return "", false
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return "", false
	}

	fragment := parsed.EscapedFragment()
	fragment = strings.TrimPrefix(fragment, "/")
	fragment, _, _ = strings.Cut(fragment, "?")
	segment, _, _ := strings.Cut(fragment, "/")
	decoded, err := url.PathUnescape(segment)
	if err != nil || decoded == "" {
		return "", false
	}
	return decoded, true
}
