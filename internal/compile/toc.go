package compile

import (
	"fmt"
	"html"
	"path"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/directive"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

// TocEntryError reports a toctree entry that names no document.
type TocEntryError struct {
	Entry string
}

func (e *TocEntryError) Error() string {
	return fmt.Sprintf("toctree entry %q names no document", e.Entry)
}

type tocLink struct {
	level int
	text  string
	href  string
	class string
}

func (dc *DocContext) link(lb xref.Label) string {
	return urlbuilder.Anchor(urlbuilder.Build(dc.c.opts.BaseURL, urlbuilder.PageURL(lb.Path)), lb.Anchor)
}

func (dc *DocContext) tocTree(t *directive.TocTree) (string, error) {
	var links []tocLink
	for _, e := range t.Entries {
		docs := dc.tocDocs(e, t.Glob)
		if len(docs) == 0 {
			dc.warn(t.Line(), t.Name(), &TocEntryError{Entry: e.Path})
			links = append(links, tocLink{level: 1, text: e.Path, class: "toctree-missing"})
			continue
		}
		for _, lb := range docs {
			title := lb.Title
			if e.Title != "" && len(docs) == 1 {
				title = e.Title
			}
			links = append(links, tocLink{level: 1, text: title, href: dc.link(lb), class: "toctree-l1"})
			links = append(links, dc.subsections(lb, t.MaxDepth)...)
		}
	}
	if t.Hidden {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(`<nav class="toctree">`)
	if t.Caption != "" {
		fmt.Fprintf(&b, `<p class="caption">%s</p>`, escapeText(t.Caption))
	}
	tag := "ul"
	if t.Numbered {
		tag = "ol"
	}
	nestedList(&b, links, tag)
	b.WriteString("</nav>")
	return b.String(), nil
}

// tocDocs resolves one entry. Glob entries match document paths relative to the
// current document and come back sorted.
func (dc *DocContext) tocDocs(e directive.TocEntry, glob bool) []xref.Label {
	labels := dc.c.opts.Labels
	if labels == nil {
		return nil
	}
	if glob && strings.ContainsAny(e.Path, "*?[") {
		pattern := path.Join(path.Dir(dc.path), e.Path)
		if strings.HasPrefix(e.Path, "/") {
			pattern = strings.TrimPrefix(e.Path, "/")
		}
		var out []xref.Label
		for _, lb := range labels.Docs() {
			if lb.Path == dc.path {
				continue
			}
			key := strings.TrimSuffix(lb.Path, path.Ext(lb.Path))
			if ok, _ := path.Match(pattern, key); ok {
				out = append(out, lb)
			}
		}
		return out
	}
	if lb, ok := labels.Doc(e.Path, dc.path); ok {
		return []xref.Label{lb}
	}
	return nil
}

// subsections lists the headings below a document's title down to maxDepth levels of
// the tree; zero means no limit.
func (dc *DocContext) subsections(doc xref.Label, maxDepth int) []tocLink {
	if maxDepth == 1 {
		return nil
	}
	outline := dc.c.opts.Labels.Outline(doc.Path)
	if len(outline) < 2 {
		return nil
	}
	top := outline[0].Level
	var out []tocLink
	for _, h := range outline[1:] {
		level := 1 + h.Level - top
		if level < 2 || (maxDepth > 0 && level > maxDepth) {
			continue
		}
		out = append(out, tocLink{level: level, text: h.Title, href: dc.link(h), class: fmt.Sprintf("toctree-l%d", level)})
	}
	return out
}

// contents lists the headings that follow the directive. A local contents stops at the
// end of the current section.
func (dc *DocContext) contents(c *directive.Contents) string {
	var links []tocLink
	for _, h := range dc.headings {
		if c.Local {
			if h.Line <= c.Line() {
				continue
			}
			if h.Level <= dc.depth {
				break
			}
		}
		links = append(links, tocLink{level: h.Level, text: h.Text, href: "#" + h.Anchor})
	}
	if len(links) == 0 {
		return ""
	}
	if c.Depth > 0 {
		top := links[0].level
		for _, l := range links {
			top = min(top, l.level)
		}
		kept := links[:0]
		for _, l := range links {
			if l.level < top+c.Depth {
				kept = append(kept, l)
			}
		}
		links = kept
	}
	title := c.Title
	if title == "" {
		title = "Contents"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<nav class="contents"><p class="topic-title">%s</p>`, escapeText(title))
	nestedList(&b, links, "ul")
	b.WriteString("</nav>")
	return b.String()
}

// nestedList writes links as nested lists following their levels.
func nestedList(b *strings.Builder, links []tocLink, tag string) {
	if len(links) == 0 {
		return
	}
	base := links[0].level
	for _, l := range links {
		base = min(base, l.level)
	}
	stack := []int{base}
	b.WriteString("<" + tag + ">")
	for i, l := range links {
		level := max(l.level, base)
		switch {
		case i == 0:
		case level > stack[len(stack)-1]:
			b.WriteString("<" + tag + ">")
			stack = append(stack, level)
		default:
			b.WriteString("</li>")
			for len(stack) > 1 && level < stack[len(stack)-1] {
				b.WriteString("</" + tag + "></li>")
				stack = stack[:len(stack)-1]
			}
		}
		if l.class != "" {
			fmt.Fprintf(b, `<li class="%s">`, l.class)
		} else {
			b.WriteString("<li>")
		}
		if l.href == "" {
			b.WriteString(escapeText(l.text))
		} else {
			fmt.Fprintf(b, `<a href="%s">%s</a>`, html.EscapeString(l.href), escapeText(l.text))
		}
	}
	b.WriteString("</li>")
	for len(stack) > 1 {
		b.WriteString("</" + tag + "></li>")
		stack = stack[:len(stack)-1]
	}
	b.WriteString("</" + tag + ">")
}
