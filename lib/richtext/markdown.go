// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package richtext

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Message is one rendered message in both Matrix body forms.
type Message struct {
	Plain string
	HTML  string
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

// getMarkdown returns the shared converter. Raw HTML in the source is
// never passed through (goldmark's default), and single newlines are
// kept as <br> since chat replies are line oriented.
func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownInstance
}

// Render converts Markdown into a Message. The HTML form is goldmark's
// output; the plain form is derived from the same parse so both bodies
// always agree on content.
func Render(markdown string) Message {
	source := []byte(markdown)
	document := getMarkdown().Parser().Parse(text.NewReader(source))

	var htmlBuffer bytes.Buffer
	if err := getMarkdown().Renderer().Render(&htmlBuffer, source, document); err != nil {
		// Sent without a formatted body.
		return Message{Plain: renderPlain(source, document)}
	}

	return Message{
		Plain: renderPlain(source, document),
		HTML:  strings.TrimRight(htmlBuffer.String(), "\n"),
	}
}

// plainRenderer accumulates the plain-text body while walking the AST.
type plainRenderer struct {
	source []byte
	output strings.Builder
	// listDepth tracks nesting so list items can be indented.
	listDepth int
}

func renderPlain(source []byte, document ast.Node) string {
	renderer := &plainRenderer{source: source}
	ast.Walk(document, renderer.walk)
	return strings.TrimRight(renderer.output.String(), "\n")
}

func (renderer *plainRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindParagraph, ast.KindHeading:
		if !entering {
			renderer.endBlock()
		}

	case ast.KindTextBlock:
		if !entering && node.NextSibling() != nil {
			renderer.output.WriteString("\n")
		}

	case ast.KindList:
		if entering {
			renderer.listDepth++
		} else {
			renderer.listDepth--
			if renderer.listDepth == 0 {
				renderer.output.WriteString("\n")
			}
		}

	case ast.KindListItem:
		if entering {
			if renderer.output.Len() > 0 && !strings.HasSuffix(renderer.output.String(), "\n") {
				renderer.output.WriteString("\n")
			}
			renderer.output.WriteString(strings.Repeat("  ", renderer.listDepth-1))
			list := node.Parent().(*ast.List)
			if list.IsOrdered() {
				renderer.output.WriteString(orderedMarker(list, node))
			} else {
				renderer.output.WriteString("- ")
			}
		}

	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			lines := node.Lines()
			for index := 0; index < lines.Len(); index++ {
				segment := lines.At(index)
				renderer.output.Write(segment.Value(renderer.source))
			}
			renderer.endBlock()
			return ast.WalkSkipChildren, nil
		}

	case ast.KindThematicBreak:
		if entering {
			renderer.output.WriteString("---")
			renderer.endBlock()
		}

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			renderer.output.Write(util.UnescapePunctuations(textNode.Segment.Value(renderer.source)))
			if textNode.SoftLineBreak() || textNode.HardLineBreak() {
				renderer.output.WriteString("\n")
			}
		}

	case ast.KindString:
		if entering {
			renderer.output.Write(node.(*ast.String).Value)
		}

	case ast.KindAutoLink:
		if entering {
			renderer.output.Write(node.(*ast.AutoLink).URL(renderer.source))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeSpan:
		if entering {
			// Code span content is literal; backslashes are not escapes.
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				if textNode, ok := child.(*ast.Text); ok {
					renderer.output.Write(textNode.Segment.Value(renderer.source))
				}
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML, ast.KindHTMLBlock:
		return ast.WalkSkipChildren, nil

	case extast.KindStrikethrough, ast.KindEmphasis, ast.KindLink, ast.KindDocument, ast.KindBlockquote:
		// Inline decoration and containers contribute only their
		// children's text. A link's plain form is its label.
	}
	return ast.WalkContinue, nil
}

func (renderer *plainRenderer) endBlock() {
	if renderer.listDepth > 0 {
		return
	}
	renderer.output.WriteString("\n\n")
}

func orderedMarker(list *ast.List, item ast.Node) string {
	number := list.Start
	for sibling := list.FirstChild(); sibling != nil && sibling != item; sibling = sibling.NextSibling() {
		number++
	}
	return strconv.Itoa(number) + ". "
}
