// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package richtext

import (
	"bufio"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Token is one whitespace-delimited word of a command body. Target is
// set when the word came from a matrix.to anchor and holds the
// identifier from its href; Text is always the visible text.
type Token struct {
	Text   string
	Target string
}

// Tokenize splits a formatted (HTML) body into tokens. Each matrix.to
// anchor becomes exactly one token regardless of spaces in its label.
// Line breaks and block boundaries separate tokens; inline markup such
// as <b> does not. The <mx-reply> reply fallback is skipped.
func Tokenize(formattedBody string) []Token {
	tokenizer := html.NewTokenizer(strings.NewReader(formattedBody))
	var builder tokenBuilder
	replyDepth := 0

	for {
		kind := tokenizer.Next()
		switch kind {
		case html.ErrorToken:
			// io.EOF or malformed input; either way the body ends here.
			builder.flush()
			return builder.tokens

		case html.TextToken:
			if replyDepth > 0 {
				continue
			}
			builder.text(string(tokenizer.Text()))

		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, hasAttributes := tokenizer.TagName()
			tag := string(name)

			if tag == "mx-reply" {
				if kind == html.StartTagToken {
					replyDepth++
				} else if kind == html.EndTagToken && replyDepth > 0 {
					replyDepth--
				}
				continue
			}
			if replyDepth > 0 {
				continue
			}

			switch atom.Lookup(name) {
			case atom.A:
				if kind == html.StartTagToken {
					builder.openAnchor(anchorTarget(tokenizer, hasAttributes))
				} else if kind == html.EndTagToken {
					builder.closeAnchor()
				}
			case atom.Br, atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Blockquote, atom.Pre, atom.Tr, atom.Td, atom.Th,
				atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				builder.boundary()
			}
		}
	}
}

// TokenizePlain splits a plain body on whitespace. Leading reply
// fallback lines ("> ..." followed by a blank line) are skipped.
func TokenizePlain(body string) []Token {
	body = stripPlainReplyFallback(body)
	var tokens []Token
	for _, word := range strings.Fields(body) {
		tokens = append(tokens, Token{Text: word})
	}
	return tokens
}

func stripPlainReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	scanner := bufio.NewScanner(strings.NewReader(body))
	var remainder []string
	inFallback := true
	for scanner.Scan() {
		line := scanner.Text()
		if inFallback {
			if strings.HasPrefix(line, ">") {
				continue
			}
			inFallback = false
			if strings.TrimSpace(line) == "" {
				continue
			}
		}
		remainder = append(remainder, line)
	}
	return strings.Join(remainder, "\n")
}

func anchorTarget(tokenizer *html.Tokenizer, hasAttributes bool) string {
	for hasAttributes {
		var key, value []byte
		key, value, hasAttributes = tokenizer.TagAttr()
		if string(key) != "href" {
			continue
		}
		if identifier, ok := ParseMatrixTo(string(value)); ok {
			return identifier
		}
		return ""
	}
	return ""
}

// tokenBuilder accumulates words across HTML text fragments.
type tokenBuilder struct {
	tokens  []Token
	current strings.Builder

	inAnchor     bool
	anchorTarget string
	anchorLabel  strings.Builder

	// afterAnchor is set between an anchor's end and the next
	// whitespace. Clients append ": " to a leading mention pill.
	afterAnchor bool
}

func (builder *tokenBuilder) text(fragment string) {
	if builder.inAnchor {
		builder.anchorLabel.WriteString(fragment)
		return
	}
	if builder.afterAnchor {
		builder.afterAnchor = false
		if len(fragment) > 0 && !isSpace(rune(fragment[0])) {
			word, rest, _ := strings.Cut(fragment, " ")
			if strings.TrimFunc(word, unicode.IsPunct) == "" {
				fragment = " " + rest
			}
		}
	}
	for index, word := range strings.FieldsFunc(fragment, isSpace) {
		// A fragment that starts with space ends the word carried
		// over from the previous fragment.
		if index == 0 && len(fragment) > 0 && !isSpace(rune(fragment[0])) {
			builder.current.WriteString(word)
			continue
		}
		builder.flush()
		builder.current.WriteString(word)
	}
	if len(fragment) > 0 && isSpace(rune(fragment[len(fragment)-1])) {
		builder.flush()
	}
}

func (builder *tokenBuilder) openAnchor(target string) {
	if target == "" {
		// Ordinary links contribute their label as text.
		return
	}
	builder.flush()
	builder.inAnchor = true
	builder.anchorTarget = target
	builder.anchorLabel.Reset()
}

func (builder *tokenBuilder) closeAnchor() {
	if !builder.inAnchor {
		return
	}
	builder.inAnchor = false
	builder.afterAnchor = true
	label := strings.Join(strings.Fields(builder.anchorLabel.String()), " ")
	builder.tokens = append(builder.tokens, Token{Text: label, Target: builder.anchorTarget})
}

func (builder *tokenBuilder) boundary() {
	builder.afterAnchor = false
	if builder.inAnchor {
		builder.anchorLabel.WriteString(" ")
		return
	}
	builder.flush()
}

func (builder *tokenBuilder) flush() {
	if builder.inAnchor {
		builder.closeAnchor()
	}
	if builder.current.Len() == 0 {
		return
	}
	builder.tokens = append(builder.tokens, Token{Text: builder.current.String()})
	builder.current.Reset()
}

func isSpace(character rune) bool {
	switch character {
	case ' ', '\t', '\n', '\r', '\f', '\u00a0':
		return true
	}
	return false
}
