package site

import (
	"html"
	"html/template"
	"path"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/rstsite/internal/compile"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/theme"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
)

func (bs *BuildState) siteInfo() theme.SiteInfo {
	return theme.SiteInfo{
		Title:       bs.cfg.Site.Title,
		Description: bs.cfg.Site.Description,
		Language:    bs.cfg.Site.Language,
		BaseURL:     bs.baseURL,
		MathScript:  bs.cfg.Math.Script,
		LiveReload:  bs.builder.liveReload,
		BuildID:     bs.Report.BuildID,
		Generated:   bs.Report.Start,
	}
}

// navLinks lists the top-level pages ordered by weight, then title.
func (bs *BuildState) navLinks() []theme.Link {
	var top []*page
	for _, p := range bs.pages {
		if !strings.Contains(p.out, "/") {
			top = append(top, p)
		}
	}
	sortPages(top)
	links := make([]theme.Link, len(top))
	for i, p := range top {
		links[i] = theme.Link{Title: p.title, URL: p.url}
	}
	return links
}

// activeNav copies nav with the entry for url marked active.
func activeNav(nav []theme.Link, url string) []theme.Link {
	out := make([]theme.Link, len(nav))
	for i, l := range nav {
		l.Active = l.URL == url
		out[i] = l
	}
	return out
}

func (bs *BuildState) pageData(p *page, nav []theme.Link) *theme.PageData {
	meta := p.src.doc.Meta
	return &theme.PageData{
		Site:        bs.siteInfo(),
		Path:        p.src.doc.Rel,
		URL:         p.url,
		Title:       p.title,
		Description: meta.Description,
		Content:     template.HTML(p.html),
		TOC:         template.HTML(tocHTML(p.toc)),
		HasMath:     p.math.HasMath,
		HasCode:     strings.Contains(p.html, `class="highlight"`),
		Tags:        bs.tagLinks(meta.Tags),
		Nav:         activeNav(nav, p.url),
		Modified:    p.modified,
		Params:      p.src.doc.Params,
	}
}

// tagOutput is the site-relative path of the page listing everything tagged tag.
func tagOutput(tag string) string {
	return path.Join(TagsDir, rst.Slugify(tag)+".html")
}

func tagTitle(tag string) string {
	return cases.Title(language.Und, cases.NoLower).String(tag)
}

func (bs *BuildState) tagLinks(tags []string) []theme.Link {
	if len(tags) == 0 {
		return nil
	}
	links := make([]theme.Link, 0, len(tags))
	for _, t := range tags {
		if rst.Slugify(t) == "" {
			continue
		}
		links = append(links, theme.Link{Title: tagTitle(t), URL: urlbuilder.Build(bs.baseURL, tagOutput(t))})
	}
	return links
}

// tocHTML renders the page outline below the title as nested lists.
func tocHTML(items []compile.TocItem) string {
	var b strings.Builder
	depth := 0
	for _, it := range items {
		if it.Level < 2 || it.Anchor == "" {
			continue
		}
		level := it.Level - 1
		for depth < level {
			b.WriteString("<ul>")
			depth++
		}
		for depth > level {
			b.WriteString("</ul>")
			depth--
		}
		b.WriteString(`<li><a href="#`)
		b.WriteString(html.EscapeString(it.Anchor))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(it.Text))
		b.WriteString("</a></li>")
	}
	for ; depth > 0; depth-- {
		b.WriteString("</ul>")
	}
	return b.String()
}

// headingTOC builds the outline of a tree that was not compiled, such as a Markdown page.
func headingTOC(doc *rst.Document) []compile.TocItem {
	var items []compile.TocItem
	rst.Walk(doc.Children, func(b rst.Block) bool {
		if h, ok := b.(*rst.Heading); ok {
			items = append(items, compile.TocItem{Level: h.Level, Text: h.Text, Anchor: h.Anchor})
		}
		return true
	})
	return items
}

func summary(p *page, baseURL string) theme.PageSummary {
	s := theme.PageSummary{Title: p.title, URL: p.url, Modified: p.modified}
	if p.src != nil {
		s.Description = p.src.doc.Meta.Description
		for _, t := range p.src.doc.Meta.Tags {
			s.Tags = append(s.Tags, theme.Link{Title: tagTitle(t), URL: urlbuilder.Build(baseURL, tagOutput(t))})
		}
	}
	return s
}

// latest is the newest modification time among pages.
func latest(pages []*page) time.Time {
	var t time.Time
	for _, p := range pages {
		if p.modified.After(t) {
			t = p.modified
		}
	}
	return t
}
