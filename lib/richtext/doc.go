// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package richtext converts between the room manager's text and Matrix
// message bodies.
//
// Outgoing: replies and audit records are written as Markdown and
// rendered by [Render] into the plain body and the
// org.matrix.custom.html formatted body of one message. [MentionRoom]
// and [MentionUser] build matrix.to links; [Escape] makes untrusted
// strings (room names, user input) safe to interpolate.
//
// Incoming: [Tokenize] splits a formatted command body into
// whitespace-delimited tokens, keeping each matrix.to anchor as one
// token that carries the identifier from its href, so a mention pill
// resolves to "@bob:example.org" rather than its display label.
// [TokenizePlain] does the same for bodies without HTML.
package richtext
