// Package markdown renders Markdown documents with goldmark so they can sit next to
// reStructuredText pages: headings get the same anchors, relative links to other
// documents are rewritten to page URLs, and raw HTML (component markers) is kept.
package markdown

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
)

// Result is a rendered Markdown document.
type Result struct {
	HTML string
	// Doc carries the headings only, so the document can take part in label
	// collection and toctree outlines.
	Doc *rst.Document
}

// Converter renders Markdown. It is safe for concurrent use.
type Converter struct {
	md goldmark.Markdown
}

func New() *Converter {
	return &Converter{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)}
}

// Convert renders body, the front-matter-free source of the document at docPath.
func (c *Converter) Convert(docPath string, body []byte, baseURL string) (*Result, error) {
	anchors := rst.NewAnchorSet()
	ctx := parser.NewContext(parser.WithIDs(&anchorIDs{set: anchors}))
	root := c.md.Parser().Parse(text.NewReader(body), parser.WithContext(ctx))

	doc := &rst.Document{Anchors: anchors, Targets: map[string]*rst.Target{}}
	err := gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Heading:
			title := plainText(node, body)
			id, _ := node.AttributeString("id")
			anchor, _ := id.([]byte)
			doc.Children = append(doc.Children, &rst.Heading{
				Line:    lineOf(node, body),
				Level:   node.Level,
				Inlines: []rst.Inline{&rst.Text{Value: title}},
				Text:    title,
				Anchor:  string(anchor),
			})
		case *gmast.Link:
			node.Destination = []byte(rewrite(docPath, string(node.Destination), baseURL, true))
		case *gmast.Image:
			node.Destination = []byte(rewrite(docPath, string(node.Destination), baseURL, false))
		}
		return gmast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := c.md.Renderer().Render(&buf, body, root); err != nil {
		return nil, err
	}
	return &Result{HTML: buf.String(), Doc: doc}, nil
}

// rewrite maps a relative destination onto the site. Links to .md and .rst documents
// point at their pages.
func rewrite(docPath, dest, baseURL string, link bool) string {
	u, err := url.Parse(dest)
	if err != nil || dest == "" || u.Scheme != "" || u.Host != "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") {
		return dest
	}
	target := urlbuilder.Resolve(docPath, u.Path)
	if link {
		switch strings.ToLower(path.Ext(target)) {
		case ".md", ".markdown", ".rst", ".rest":
			target = urlbuilder.PageURL(target)
		}
	}
	return urlbuilder.Anchor(urlbuilder.Build(baseURL, target), u.Fragment)
}

func plainText(n gmast.Node, src []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gmast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *gmast.String:
			b.Write(t.Value)
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func lineOf(n gmast.Node, src []byte) int {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return 0
	}
	return bytes.Count(src[:lines.At(0).Start], []byte("\n")) + 1
}

// anchorIDs hands out heading ids from an rst.AnchorSet so Markdown and RST pages slug
// headings the same way.
type anchorIDs struct {
	set *rst.AnchorSet
}

func (a *anchorIDs) Generate(value []byte, _ gmast.NodeKind) []byte {
	base := rst.Slugify(string(util.UnescapePunctuations(value)))
	return []byte(a.set.Unique(base))
}

func (a *anchorIDs) Put(value []byte) {
	a.set.Unique(string(value))
}
