// Package textprep turns story text, which LLMs usually return as markdown,
// into plain prose suitable for speech synthesis.
package textprep

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type block struct {
	text     string
	listItem bool
}

// Plain renders markdown as speakable text. Headings become sentences, list
// items become lines and paragraphs are separated by a blank line. Code,
// raw HTML, images and link destinations are dropped.
func Plain(source string) string {
	src := []byte(norm.NFC.String(source))
	doc := markdown.Parser().Parse(text.NewReader(src))

	var (
		blocks  []block
		current *bytes.Buffer
		inList  int
	)
	open := func() {
		if current == nil {
			current = &bytes.Buffer{}
		}
	}
	closeBlock := func(heading bool) {
		if current == nil {
			return
		}
		line := collapse(current.String())
		current = nil
		if line == "" {
			return
		}
		if heading {
			line = sentence(line)
		}
		blocks = append(blocks, block{text: line, listItem: inList > 0})
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock,
			ast.KindRawHTML, ast.KindImage, ast.KindCodeSpan:
			return ast.WalkSkipChildren, nil
		case ast.KindAutoLink, extast.KindTaskCheckBox:
			return ast.WalkSkipChildren, nil
		case ast.KindList:
			if entering {
				inList++
			} else {
				inList--
			}
		case ast.KindParagraph, ast.KindTextBlock, extast.KindTableHeader, extast.KindTableRow:
			if entering {
				open()
			} else {
				closeBlock(false)
			}
		case ast.KindHeading:
			if entering {
				open()
			} else {
				closeBlock(true)
			}
		case extast.KindTableCell:
			if !entering && current != nil {
				current.WriteString(", ")
			}
		case ast.KindText:
			if !entering || current == nil {
				break
			}
			t := n.(*ast.Text)
			current.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				current.WriteByte(' ')
			}
		case ast.KindString:
			if entering && current != nil {
				current.Write(n.(*ast.String).Value)
			}
		}
		return ast.WalkContinue, nil
	})

	var out strings.Builder
	for i, b := range blocks {
		if i > 0 {
			if b.listItem && blocks[i-1].listItem {
				out.WriteString("\n")
			} else {
				out.WriteString("\n\n")
			}
		}
		out.WriteString(b.text)
	}
	return out.String()
}

// Normalize applies NFC and collapses every whitespace run to one space.
func Normalize(s string) string {
	return collapse(norm.NFC.String(s))
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func collapse(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSuffix(s, ",")
}

// sentence ends s with a full stop unless it already ends in punctuation,
// so the synthesizer pauses after a heading.
func sentence(s string) string {
	r := []rune(s)
	if unicode.IsPunct(r[len(r)-1]) {
		return s
	}
	return s + "."
}

// Title returns the text of the first heading in source, or "".
func Title(source string) string {
	src := []byte(norm.NFC.String(source))
	doc := markdown.Parser().Parse(text.NewReader(src))

	var (
		buf     bytes.Buffer
		inTitle bool
		done    bool
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if done {
			return ast.WalkStop, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			inTitle = entering
			if !entering {
				done = true
			}
		case ast.KindText:
			if entering && inTitle {
				buf.Write(n.(*ast.Text).Segment.Value(src))
			}
		case ast.KindCodeSpan, ast.KindImage, ast.KindRawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return collapse(buf.String())
}
