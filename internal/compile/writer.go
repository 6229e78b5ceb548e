package compile

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/directive"
	"git.home.luguber.info/inful/rstsite/internal/highlight"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
)

// mathSafe escapes the characters the math pass treats as delimiters, so only
// formulas written by the compiler itself are tagged.
var mathSafe = strings.NewReplacer("$", "&#36;", `\`, "&#92;")

func escapeText(s string) string {
	return mathSafe.Replace(html.EscapeString(s))
}

func (dc *DocContext) blocks(b *strings.Builder, blocks []rst.Block) error {
	for _, bl := range blocks {
		if err := dc.block(b, bl); err != nil {
			return err
		}
	}
	return nil
}

func (dc *DocContext) block(b *strings.Builder, bl rst.Block) error {
	switch n := bl.(type) {
	case *rst.Paragraph:
		b.WriteString("<p>")
		dc.inlines(b, n.Inlines)
		b.WriteString("</p>\n")
	case *rst.Heading:
		dc.heading(b, n)
	case *rst.List:
		return dc.list(b, n)
	case *rst.LiteralBlock:
		b.WriteString(dc.code(n.Language, n.Code, highlight.Options{}))
		b.WriteByte('\n')
	case *rst.Table:
		dc.table(b, n)
	case *rst.BlockQuote:
		b.WriteString("<blockquote>\n")
		if err := dc.blocks(b, n.Children); err != nil {
			return err
		}
		b.WriteString("</blockquote>\n")
	case *rst.Target:
		if n.URL == "" && !n.Attached && n.Anchor != "" {
			fmt.Fprintf(b, `<span id="%s"></span>`+"\n", html.EscapeString(n.Anchor))
		}
	case *rst.Directive:
		return dc.directive(b, n)
	case *rst.Transition:
		b.WriteString("<hr>\n")
	case *rst.Comment:
	}
	return nil
}

func (dc *DocContext) heading(b *strings.Builder, h *rst.Heading) {
	level := min(max(h.Level, 1), 6)
	dc.depth = level
	anchor := html.EscapeString(h.Anchor)
	fmt.Fprintf(b, `<h%d id="%s">`, level, anchor)
	dc.inlines(b, h.Inlines)
	fmt.Fprintf(b, `<a class="headerlink" href="#%s" title="Permalink">¶</a></h%d>`+"\n", anchor, level)
	dc.page.TOC = append(dc.page.TOC, TocItem{Level: level, Text: h.Text, Anchor: h.Anchor})
}

func (dc *DocContext) list(b *strings.Builder, l *rst.List) error {
	tag := "ul"
	if l.Ordered {
		tag = "ol"
	}
	if l.Ordered && l.Start > 1 {
		fmt.Fprintf(b, `<ol start="%d">`+"\n", l.Start)
	} else {
		b.WriteString("<" + tag + ">\n")
	}
	for _, it := range l.Items {
		b.WriteString("<li>")
		if len(it.Children) == 1 {
			if p, ok := it.Children[0].(*rst.Paragraph); ok {
				dc.inlines(b, p.Inlines)
				b.WriteString("</li>\n")
				continue
			}
		}
		if err := dc.blocks(b, it.Children); err != nil {
			return err
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</" + tag + ">\n")
	return nil
}

func (dc *DocContext) table(b *strings.Builder, t *rst.Table) {
	b.WriteString(`<table class="docutils">` + "\n")
	if t.Header != nil {
		b.WriteString("<thead><tr>")
		for _, c := range t.Header {
			b.WriteString("<th>")
			dc.inlines(b, c.Inlines)
			b.WriteString("</th>")
		}
		b.WriteString("</tr></thead>\n")
	}
	b.WriteString("<tbody>\n")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, c := range row {
			b.WriteString("<td>")
			dc.inlines(b, c.Inlines)
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>\n")
}

func (dc *DocContext) code(language, source string, opts highlight.Options) string {
	h := dc.c.opts.Highlighter
	out, _ := dc.c.opts.Memo.Do("code", func() (string, error) {
		return h.Highlight(language, source, opts), nil
	}, language, source, strconv.FormatBool(opts.LineNumbers), strconv.FormatBool(opts.CopyButton), opts.Caption)
	return out
}

func (dc *DocContext) inlines(b *strings.Builder, spans []rst.Inline) {
	for _, s := range spans {
		dc.inline(b, s)
	}
}

func (dc *DocContext) inline(b *strings.Builder, s rst.Inline) {
	switch n := s.(type) {
	case *rst.Text:
		b.WriteString(escapeText(n.Value))
	case *rst.Emphasis:
		b.WriteString("<em>")
		dc.inlines(b, n.Children)
		b.WriteString("</em>")
	case *rst.Strong:
		b.WriteString("<strong>")
		dc.inlines(b, n.Children)
		b.WriteString("</strong>")
	case *rst.Literal:
		b.WriteString(`<code class="literal">` + escapeText(n.Value) + "</code>")
	case *rst.Role:
		dc.role(b, n)
	case *rst.MathInline:
		if n.Display {
			b.WriteString(`\[` + html.EscapeString(n.Formula) + `\]`)
		} else {
			b.WriteString(`\(` + html.EscapeString(n.Formula) + `\)`)
		}
	case *rst.Reference:
		text := n.Text
		if text == "" {
			text = n.Label
		}
		if text == "" {
			text = n.URL
		}
		switch {
		case n.Missing || n.URL == "":
			fmt.Fprintf(b, `<span class="reference missing" title="unresolved reference">%s</span>`, escapeText(text))
		case isExternal(n.URL):
			fmt.Fprintf(b, `<a class="reference external" href="%s">%s</a>`, escapeText(n.URL), escapeText(text))
		default:
			fmt.Fprintf(b, `<a class="reference internal" href="%s">%s</a>`, escapeText(n.URL), escapeText(text))
		}
	}
}

func isExternal(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "mailto:")
}

var simpleRoles = map[string]string{
	"emphasis":  "em",
	"strong":    "strong",
	"literal":   "code",
	"code":      "code",
	"kbd":       "kbd",
	"sub":       "sub",
	"subscript": "sub",
	"sup":       "sup",
	"samp":      "samp",
	"file":      "code",
	"command":   "strong",
	"dfn":       "dfn",
	"":          "cite",
}

func (dc *DocContext) role(b *strings.Builder, r *rst.Role) {
	if tag, ok := simpleRoles[r.Name]; ok {
		fmt.Fprintf(b, "<%s>%s</%s>", tag, escapeText(r.Target), tag)
		return
	}
	switch r.Name {
	case "superscript":
		b.WriteString("<sup>" + escapeText(r.Target) + "</sup>")
	case "abbr":
		title, short, explicit := splitAbbr(r.Target)
		if explicit {
			fmt.Fprintf(b, `<abbr title="%s">%s</abbr>`, escapeText(title), escapeText(short))
		} else {
			b.WriteString("<abbr>" + escapeText(short) + "</abbr>")
		}
	case "ref", "doc":
		title, target, _ := rst.SplitTitleTarget(r.Target)
		if title == "" {
			title = target
		}
		fmt.Fprintf(b, `<span class="xref %s">%s</span>`, r.Name, escapeText(title))
	case "url":
		u := strings.TrimSpace(r.Target)
		fmt.Fprintf(b, `<a class="reference external" href="%s">%s</a>`, escapeText(u), escapeText(u))
	default:
		fmt.Fprintf(b, `<span class="role-%s">%s</span>`, html.EscapeString(r.Name), escapeText(r.Target))
	}
}

// splitAbbr splits "HTML (HyperText Markup Language)".
func splitAbbr(s string) (title, short string, ok bool) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ")") {
		if i := strings.LastIndex(s, "("); i > 0 {
			return strings.TrimSpace(s[i+1 : len(s)-1]), strings.TrimSpace(s[:i]), true
		}
	}
	return "", s, false
}

// assetURL resolves an image or link target written in a document. Absolute URLs pass
// through, "/x" is site-relative and anything else is relative to the document.
func (dc *DocContext) assetURL(ref string) string {
	if isExternal(ref) || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return urlbuilder.Build(dc.c.opts.BaseURL, ref)
	}
	return urlbuilder.Build(dc.c.opts.BaseURL, urlbuilder.Resolve(dc.path, ref))
}

func (dc *DocContext) directive(b *strings.Builder, d *rst.Directive) error {
	dec, err := directive.Decode(d)
	if err != nil {
		return dc.fail(b, d.Name, d.Line, err)
	}
	out, err := dc.Dispatch(dec)
	if err != nil {
		return dc.fail(b, d.Name, d.Line, err)
	}
	b.WriteString(out)
	if out != "" && !strings.HasSuffix(out, "\n") {
		b.WriteByte('\n')
	}
	return nil
}

// fail applies the directive error policy: strict mode returns the error, otherwise
// the page gets a visible marker and a warning.
func (dc *DocContext) fail(b *strings.Builder, name string, line int, err error) error {
	if dc.c.opts.Strict {
		return &DirectiveError{Path: dc.path, Line: line, Directive: name, Err: err}
	}
	dc.warn(line, name, err)
	fmt.Fprintf(b, `<div class="directive-error" data-directive="%s"><p>%s</p></div>`+"\n",
		html.EscapeString(name), escapeText(err.Error()))
	return nil
}

// DirectiveError is a directive failure returned in strict mode.
type DirectiveError struct {
	Path      string
	Line      int
	Directive string
	Err       error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%s:%d: directive %q: %v", e.Path, e.Line, e.Directive, e.Err)
}

func (e *DirectiveError) Unwrap() error { return e.Err }
