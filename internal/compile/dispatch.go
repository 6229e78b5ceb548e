package compile

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/diagram"
	"git.home.luguber.info/inful/rstsite/internal/directive"
	"git.home.luguber.info/inful/rstsite/internal/highlight"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/music"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
)

// UnknownDirectiveError is returned in strict mode for a directive without a handler.
type UnknownDirectiveError struct {
	Name string
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("unknown directive %q", e.Name)
}

// Dispatch renders one decoded directive. It is the only place that switches over
// directive kinds. Returned errors are subject to the strict-mode policy of the caller.
func (dc *DocContext) Dispatch(d directive.Directive) (string, error) {
	switch n := d.(type) {
	case *directive.CodeBlock:
		opts := highlight.Options{
			LineNumbers: n.LineNumbers || dc.c.opts.LineNumbers,
			CopyButton:  n.CopyButton || dc.c.opts.CopyButton,
			Caption:     n.Caption,
		}
		return dc.code(n.Language, n.Code, opts), nil
	case *directive.Math:
		return dc.math(n), nil
	case *directive.Diagram:
		return dc.diagram(n)
	case *directive.MusicScore:
		return dc.music(n)
	case *directive.Snippet:
		return dc.snippet(n)
	case *directive.SnippetCard:
		return dc.snippetCard(n), nil
	case *directive.TocTree:
		return dc.tocTree(n)
	case *directive.Contents:
		return dc.contents(n), nil
	case *directive.Admonition:
		return dc.admonition(n)
	case *directive.Image:
		return dc.image(n), nil
	case *directive.Figure:
		return dc.figure(n)
	case *directive.Raw:
		if n.Format != "html" {
			return "", nil
		}
		return n.Content, nil
	case *directive.Component:
		return dc.component(n)
	case *directive.Unknown:
		if dc.c.opts.Strict {
			return "", &UnknownDirectiveError{Name: n.Name()}
		}
		dc.c.opts.Logger.Debug("Unhandled directive",
			logfields.Page(dc.path),
			logfields.Directive(n.Name()),
			logfields.Line(n.Line()))
		return "<!-- unhandled directive: " + strings.ReplaceAll(n.Name(), "--", "- -") + " -->", nil
	}
	return "", fmt.Errorf("no handler for directive %T", d)
}

func (dc *DocContext) math(m *directive.Math) string {
	var b strings.Builder
	b.WriteString(`<div class="math-block"`)
	if m.Label != "" {
		fmt.Fprintf(&b, ` id="%s"`, html.EscapeString(dc.anchors.Unique(rst.Slugify(m.Label))))
	}
	b.WriteString(">")
	for _, f := range m.Formulas {
		b.WriteString(`\[` + html.EscapeString(f) + `\]`)
	}
	b.WriteString("</div>")
	return b.String()
}

func (dc *DocContext) diagram(d *directive.Diagram) (string, error) {
	opts := diagram.Options{Direction: diagram.Direction(strings.ToUpper(d.Direction)), Width: float64(d.Width)}
	if opts.Width == 0 {
		opts.Width = float64(dc.c.opts.DiagramWidth)
	}
	svg, err := dc.c.opts.Memo.Do("diagram", func() (string, error) {
		return diagram.Render(d.Type, d.Source, opts)
	}, d.Type, d.Source, string(opts.Direction), strconv.Itoa(int(opts.Width)))
	if err != nil {
		return "", err
	}
	return figureWrap("diagram diagram-"+d.Type, mathSafe.Replace(svg), d.Caption), nil
}

func (dc *DocContext) music(m *directive.MusicScore) (string, error) {
	opts := music.Options{Width: float64(m.Width), Scale: m.Scale}
	if opts.Width == 0 {
		opts.Width = float64(dc.c.opts.MusicWidth)
	}
	svg, err := dc.c.opts.Memo.Do("music", func() (string, error) {
		return music.RenderABC(m.Source, opts)
	}, m.Source, strconv.FormatFloat(opts.Width, 'f', -1, 64), strconv.FormatFloat(opts.Scale, 'f', -1, 64))
	if err != nil {
		return "", err
	}
	return figureWrap("music", mathSafe.Replace(svg), m.Caption), nil
}

func figureWrap(class, body, caption string) string {
	if caption == "" {
		return `<div class="` + class + `">` + body + `</div>`
	}
	return `<figure class="` + class + `">` + body + `<figcaption>` + escapeText(caption) + `</figcaption></figure>`
}

// snippet embeds a registered snippet. Embed failures never fail the page: they become
// a visible placeholder and a warning, in strict mode too.
func (dc *DocContext) snippet(s *directive.Snippet) (string, error) {
	ctx := snippet.Context{HostPath: dc.path, Depth: dc.depth, Line: s.Line(), Stack: dc.stack, Anchors: dc.anchors}
	body, err := dc.c.opts.Snippets.Embed(s.ID, ctx, dc.renderSnippet)
	if err != nil {
		var ee *snippet.EmbedError
		if errors.As(err, &ee) {
			dc.warn(s.Line(), s.Name(), ee)
			return fmt.Sprintf(`<div class="snippet-missing" data-snippet-id="%s"><p>Snippet not found: %s</p></div>`,
				html.EscapeString(s.ID), escapeText(ee.Reason+": "+s.ID)), nil
		}
		return "", err
	}
	dc.page.Snippets = append(dc.page.Snippets, s.ID)
	return fmt.Sprintf(`<div class="snippet" data-snippet-id="%s">`+"\n%s</div>", html.EscapeString(s.ID), body), nil
}

// renderSnippet renders shifted snippet blocks with the host page's anchors and
// diagnostics. The heading depth after the embed is restored so later host embeds
// are shifted relative to the host outline.
func (dc *DocContext) renderSnippet(blocks []rst.Block, ctx snippet.Context) (string, error) {
	savedDepth, savedStack := dc.depth, dc.stack
	defer func() { dc.depth, dc.stack = savedDepth, savedStack }()
	dc.stack = ctx.Stack
	var b strings.Builder
	if err := dc.blocks(&b, blocks); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (dc *DocContext) snippetCard(c *directive.SnippetCard) string {
	e, ok := dc.c.opts.Snippets.Get(c.ID)
	if !ok {
		dc.warn(c.Line(), c.Name(), &snippet.EmbedError{ID: c.ID, HostPath: dc.path, Line: c.Line(), Reason: "snippet not found"})
		return fmt.Sprintf(`<div class="snippet-card snippet-missing" data-snippet-id="%s"><p>Snippet not found: %s</p></div>`,
			html.EscapeString(c.ID), escapeText(c.ID))
	}
	title := c.Title
	if title == "" {
		title = e.Title
	}
	href := urlbuilder.Build(dc.c.opts.BaseURL, urlbuilder.PageURL(e.Path))
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="snippet-card" data-snippet-id="%s">`, html.EscapeString(c.ID))
	fmt.Fprintf(&b, `<a class="snippet-card-title" href="%s">%s</a>`, escapeText(href), escapeText(title))
	if e.Summary != "" {
		fmt.Fprintf(&b, `<p class="snippet-card-summary">%s</p>`, escapeText(e.Summary))
	}
	b.WriteString("</div>")
	return b.String()
}

func (dc *DocContext) admonition(a *directive.Admonition) (string, error) {
	class := "admonition " + a.Kind
	if a.Kind == "admonition" {
		class = "admonition"
	}
	if a.Class != "" {
		class += " " + a.Class
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="%s">`+"\n", html.EscapeString(class))
	fmt.Fprintf(&b, `<p class="admonition-title">%s</p>`+"\n", escapeText(a.Title))
	if err := dc.blocks(&b, a.Children); err != nil {
		return "", err
	}
	b.WriteString("</div>")
	return b.String(), nil
}

func (dc *DocContext) image(img *directive.Image) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<img src="%s" alt="%s"`, escapeText(dc.assetURL(img.URI)), escapeText(img.Alt))
	if img.Width != "" {
		fmt.Fprintf(&b, ` width="%s"`, escapeText(img.Width))
	}
	if img.Height != "" {
		fmt.Fprintf(&b, ` height="%s"`, escapeText(img.Height))
	}
	if img.Align != "" {
		fmt.Fprintf(&b, ` class="align-%s"`, html.EscapeString(img.Align))
	}
	b.WriteString(">")
	if img.Target != "" {
		return `<a href="` + escapeText(dc.assetURL(img.Target)) + `">` + b.String() + `</a>`
	}
	return b.String()
}

func (dc *DocContext) figure(f *directive.Figure) (string, error) {
	img := f.Image
	align := img.Align
	img.Align = ""
	var b strings.Builder
	if align != "" {
		fmt.Fprintf(&b, `<figure class="align-%s">`, html.EscapeString(align))
	} else {
		b.WriteString("<figure>")
	}
	b.WriteString(dc.image(&img))
	if len(f.Caption) > 0 {
		b.WriteString("<figcaption>")
		if err := dc.blocks(&b, f.Caption); err != nil {
			return "", err
		}
		b.WriteString("</figcaption>")
	}
	b.WriteString("</figure>")
	return b.String(), nil
}

// component writes a component invocation marker. Markers are expanded by the
// component renderer once the page layout has been applied.
func (dc *DocContext) component(c *directive.Component) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `<x-component name="%s"`, html.EscapeString(c.Component))
	for _, p := range c.Props {
		fmt.Fprintf(&b, ` %s="%s"`, html.EscapeString(p.Key), escapeText(p.Value))
	}
	if len(c.Children) == 0 {
		b.WriteString("></x-component>")
		return b.String(), nil
	}
	b.WriteString(`><x-slot name="default">`)
	if err := dc.blocks(&b, c.Children); err != nil {
		return "", err
	}
	b.WriteString("</x-slot></x-component>")
	return b.String(), nil
}
