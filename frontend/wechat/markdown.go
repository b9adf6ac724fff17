package wechat

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// PlainText strips Markdown down to plain prose for the customer-service text
// channel, which renders no markup at all.
//
// Fenced code blocks are removed entirely; headings, emphasis, quotes, lists
// and links are reduced to their text content. Raw HTML is dropped.
func PlainText(md string) string {
	r := renderer.NewRenderer(
		renderer.WithNodeRenderers(
			util.Prioritized(&plainRenderer{}, 1),
		),
	)

	gm := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough),
		goldmark.WithRenderer(r),
	)

	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		// Fallback: deliver the reply as-is rather than not at all.
		return strings.TrimSpace(md)
	}

	return strings.TrimSpace(collapseBlankLines(buf.String()))
}

// collapseBlankLines reduces runs of three or more newlines (left behind by
// removed blocks) to a single blank line.
func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// plainRenderer implements goldmark's renderer.NodeRenderer, producing
// plain text output.
type plainRenderer struct{}

// RegisterFuncs registers render functions for each AST node kind.
func (r *plainRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	// Block nodes
	reg.Register(ast.KindDocument, r.renderNoop)
	reg.Register(ast.KindHeading, r.renderBlock)
	reg.Register(ast.KindParagraph, r.renderBlock)
	reg.Register(ast.KindBlockquote, r.renderNoop)
	reg.Register(ast.KindFencedCodeBlock, r.renderDropBlock)
	reg.Register(ast.KindCodeBlock, r.renderDropBlock)
	reg.Register(ast.KindList, r.renderNoop)
	reg.Register(ast.KindListItem, r.renderBlock)
	reg.Register(ast.KindTextBlock, r.renderNoop)
	reg.Register(ast.KindThematicBreak, r.renderDropBlock)
	reg.Register(ast.KindHTMLBlock, r.renderDropBlock)

	// Inline nodes
	reg.Register(ast.KindText, r.renderText)
	reg.Register(ast.KindString, r.renderString)
	reg.Register(ast.KindCodeSpan, r.renderNoop)
	reg.Register(ast.KindEmphasis, r.renderNoop)
	reg.Register(ast.KindLink, r.renderNoop)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
	reg.Register(ast.KindImage, r.renderDropInline)
	reg.Register(ast.KindRawHTML, r.renderDropInline)

	// Extension: strikethrough
	reg.Register(extast.KindStrikethrough, r.renderNoop)
}

// renderNoop renders only the node's children.
func (r *plainRenderer) renderNoop(_ util.BufWriter, _ []byte, _ ast.Node, _ bool) (ast.WalkStatus, error) {
	return ast.WalkContinue, nil
}

// renderBlock renders the node's children followed by a line break.
func (r *plainRenderer) renderBlock(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

// renderDropBlock removes the node and its content entirely.
func (r *plainRenderer) renderDropBlock(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

// renderDropInline removes an inline node and its content.
func (r *plainRenderer) renderDropInline(_ util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Text)
	_, _ = w.Write(n.Segment.Value(source))
	if n.SoftLineBreak() || n.HardLineBreak() {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderString(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.String)
	_, _ = w.Write(n.Value)
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.AutoLink)
	_, _ = w.Write(n.URL(source))
	return ast.WalkContinue, nil
}
