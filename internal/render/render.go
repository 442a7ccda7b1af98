// Package render turns display-ready markdown into HTML. Wikilinks rewritten
// by linkres become in-app anchors and fenced code is highlighted.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/orgview/internal/linkres"
)

// WikilinkClass is the class attribute of rendered wikilink anchors.
const WikilinkClass = "wikilink"

// Renderer converts markdown to HTML. It is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

type config struct {
	style string
}

// Option configures a Renderer.
type Option func(*config)

// WithStyle selects the chroma style for code blocks (default "github").
func WithStyle(name string) Option {
	return func(c *config) { c.style = name }
}

// New creates a Renderer. Raw HTML in documents is not passed through.
func New(opts ...Option) *Renderer {
	cfg := config{style: "github"}
	for _, opt := range opts {
		opt(&cfg)
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(wikilinkTransformer{}, 100)),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
			renderer.WithNodeRenderers(util.Prioritized(newCodeRenderer(cfg.style), 100)),
		),
	)
	return &Renderer{md: md}
}

// Render converts a display body (see linkres.RewriteForDisplay) to HTML.
func (r *Renderer) Render(body string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render: convert: %w", err)
	}
	return buf.String(), nil
}

// wikilinkTransformer points links with the wikilink scheme at the in-app
// document route and marks them with WikilinkClass.
type wikilinkTransformer struct{}

func (wikilinkTransformer) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok || !strings.HasPrefix(string(link.Destination), linkres.Scheme) {
			return ast.WalkContinue, nil
		}
		target, ok := linkres.TargetFromHref(string(link.Destination))
		if !ok {
			return ast.WalkContinue, nil
		}
		link.Destination = []byte(linkres.Href(target))
		link.SetAttributeString("class", []byte(WikilinkClass))
		return ast.WalkContinue, nil
	})
}

// codeRenderer highlights fenced code blocks with chroma using inline styles.
type codeRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func newCodeRenderer(style string) *codeRenderer {
	return &codeRenderer{
		style:     styles.Get(style),
		formatter: chromahtml.New(chromahtml.TabWidth(4)),
	}
}

func (r *codeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *codeRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	if err := r.highlight(w, string(n.Language(source)), code.String()); err != nil {
		_, _ = w.WriteString("<pre><code>")
		_, _ = w.Write(util.EscapeHTML([]byte(code.String())))
		_, _ = w.WriteString("</code></pre>\n")
	}
	return ast.WalkSkipChildren, nil
}

func (r *codeRenderer) highlight(w util.BufWriter, lang, code string) error {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return err
	}
	return r.formatter.Format(w, r.style, it)
}
