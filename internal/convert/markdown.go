package convert

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	editLinkRe = regexp.MustCompile(`(?mi)^\[edit[^\]]*\]\([^\)]+\)\s*$`)
	tocRe      = regexp.MustCompile(`(?mi)^#{1,3}\s+(?:table of )?contents?\s*\n(?:\s*[-*]\s*\[.*?\]\(#.*?\)\s*\n)*`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t\n]+`)
)

// MarkdownConverter renders markdown to HTML and keeps only the visible text,
// with block elements separated by blank lines.
type MarkdownConverter struct{}

func (MarkdownConverter) Convert(ctx context.Context, raw []byte) (Result, error) {
	src := CleanMarkdown(string(raw))

	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.SkipImages | mdhtml.SkipHTML})
	rendered := markdown.ToHTML([]byte(src), p, r)

	root, err := html.Parse(bytes.NewReader(rendered))
	if err != nil {
		return Result{}, fmt.Errorf("parse rendered markdown: %w", err)
	}
	var b strings.Builder
	extractText(&b, root, false)

	return Result{Text: normalize(b.String()), ContentType: "text/markdown"}, nil
}

// CleanMarkdown drops converter trailers ("images={...}" metadata appended by
// PDF-to-markdown tools) and documentation boilerplate such as edit links and
// link-only tables of contents.
func CleanMarkdown(text string) string {
	if i := strings.Index(text, "images={"); i >= 0 {
		text = text[:i]
	}
	text = editLinkRe.ReplaceAllString(text, "")
	text = tocRe.ReplaceAllString(text, "")
	return text
}

func extractText(b *strings.Builder, n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		switch {
		case pre:
			b.WriteString(n.Data)
		case strings.TrimSpace(n.Data) != "" || !betweenBlocks(n):
			b.WriteString(spaceRuns.ReplaceAllString(n.Data, " "))
		}
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Img:
			return
		case atom.Br:
			b.WriteString("\n")
			return
		case atom.Pre:
			pre = true
		case atom.Li:
			b.WriteString("- ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(b, c, pre)
	}

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Pre, atom.Blockquote, atom.Ul, atom.Ol, atom.Table, atom.Hr:
			b.WriteString("\n\n")
		case atom.Li, atom.Tr:
			b.WriteString("\n")
		case atom.Td, atom.Th:
			b.WriteString(" ")
		}
	}
}

// betweenBlocks reports whether a text node sits directly inside a container
// of block elements, where whitespace is layout only.
func betweenBlocks(n *html.Node) bool {
	if n.Parent == nil {
		return true
	}
	switch n.Parent.DataAtom {
	case atom.Html, atom.Body, atom.Ul, atom.Ol, atom.Table, atom.Thead, atom.Tbody, atom.Tr, atom.Blockquote, atom.Dl:
		return true
	}
	return false
}
