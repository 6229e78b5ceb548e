package site

import (
	"bytes"
	"context"
	"encoding/xml"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/content"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/highlight"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/theme"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
	"git.home.luguber.info/inful/rstsite/internal/util/sets"
)

// Generated file names.
const (
	SitemapFile = "sitemap.xml"
	IndexFile   = "index.html"
	ChromaCSS   = "css/chroma.css"
	TagsDir     = "tags"
)

// stageWriteIndexes writes the pages derived from the whole site: tag pages, the site
// index when no document provides one, the sitemap, the search index and the code
// highlighting stylesheet.
func stageWriteIndexes(_ context.Context, bs *BuildState) error {
	nav := bs.navLinks()
	if err := bs.writeTagPages(nav); err != nil {
		return err
	}
	if err := bs.writeSiteIndex(nav); err != nil {
		return err
	}
	if err := bs.writeSitemap(); err != nil {
		return err
	}
	if bs.search != nil {
		var buf bytes.Buffer
		if err := bs.search.WriteJSON(&buf); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryBuild, "encode search index").Build()
		}
		if err := bs.writeOutput(bs.cfg.Search.File, buf.Bytes()); err != nil {
			return err
		}
		bs.logger.Info("Search index written", logfields.Path(bs.cfg.Search.File), logfields.Count(bs.search.Len()))
	}
	css, err := highlight.CSS(bs.cfg.Highlight.Style)
	if err != nil {
		return err
	}
	return bs.writeOutput(path.Join(theme.StaticDir, ChromaCSS), []byte(css))
}

// taggedPages groups pages by tag slug, keeping the first spelling of each tag.
func (bs *BuildState) taggedPages() (map[string][]*page, map[string]string) {
	byTag := make(map[string][]*page)
	names := make(map[string]string)
	for _, p := range bs.pages {
		seen := sets.New[string]()
		for _, t := range p.src.doc.Meta.Tags {
			slug := rst.Slugify(t)
			if slug == "" || seen.Has(slug) {
				continue
			}
			seen.Add(slug)
			if _, ok := names[slug]; !ok {
				names[slug] = t
			}
			byTag[slug] = append(byTag[slug], p)
		}
	}
	return byTag, names
}

func (bs *BuildState) writeTagPages(nav []theme.Link) error {
	byTag, names := bs.taggedPages()
	if len(byTag) == 0 {
		return nil
	}
	slugs := make([]string, 0, len(byTag))
	for s := range byTag {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)

	var overview []theme.PageSummary
	for _, slug := range slugs {
		pages := byTag[slug]
		sortPages(pages)
		out := tagOutput(names[slug])
		tp := &page{out: out, url: urlbuilder.Build(bs.baseURL, out), title: tagTitle(names[slug]), modified: latest(pages)}
		data := bs.generatedData(tp, nav, pages)
		if err := bs.renderGenerated(theme.LayoutTag, tp, data); err != nil {
			return err
		}
		overview = append(overview, theme.PageSummary{Title: tp.title, URL: tp.url, Modified: tp.modified})
	}

	out := path.Join(TagsDir, IndexFile)
	ip := &page{out: out, url: urlbuilder.Build(bs.baseURL, out), title: "Tags", modified: latest(bs.pages)}
	data := bs.generatedData(ip, nav, nil)
	data.Pages = overview
	if err := bs.renderGenerated(theme.LayoutIndex, ip, data); err != nil {
		return err
	}
	bs.Report.Pages += len(slugs) + 1
	bs.builder.recorder.IncPages("tag", len(slugs)+1)
	bs.logger.Info("Tag pages written", logfields.Count(len(slugs)))
	return nil
}

func (bs *BuildState) writeSiteIndex(nav []theme.Link) error {
	for _, p := range bs.pages {
		if p.out == IndexFile {
			return nil
		}
	}
	ip := &page{out: IndexFile, url: urlbuilder.Build(bs.baseURL, IndexFile), title: bs.cfg.Site.Title, modified: latest(bs.pages)}
	pages := append([]*page(nil), bs.pages...)
	sortPages(pages)
	data := bs.generatedData(ip, nav, pages)
	data.Title = ""
	data.Description = bs.cfg.Site.Description
	if err := bs.renderGenerated(theme.LayoutIndex, ip, data); err != nil {
		return err
	}
	bs.Report.Pages++
	bs.builder.recorder.IncPages("index", 1)
	return nil
}

func (bs *BuildState) generatedData(p *page, nav []theme.Link, pages []*page) *theme.PageData {
	data := &theme.PageData{
		Site:     bs.siteInfo(),
		Path:     p.out,
		URL:      p.url,
		Title:    p.title,
		Nav:      activeNav(nav, p.url),
		Modified: p.modified,
	}
	for _, sp := range pages {
		data.Pages = append(data.Pages, summary(sp, bs.baseURL))
	}
	return data
}

func (bs *BuildState) renderGenerated(layout string, p *page, data *theme.PageData) error {
	out, err := bs.renderLayout(layout, data)
	if err != nil {
		bs.Report.AddIssue(ReportIssue{Code: issueCode(err), Stage: StageWriteIndexes, Severity: SeverityError, Message: err.Error(), Path: p.out})
		return err
	}
	if err := bs.writeOutput(p.out, []byte(out)); err != nil {
		return err
	}
	bs.extra = append(bs.extra, p)
	return nil
}

// sortPages orders pages by weight, then title.
func sortPages(pages []*page) {
	sort.SliceStable(pages, func(i, j int) bool {
		wi, wj := pages[i].src.doc.Meta.Weight, pages[j].src.doc.Meta.Weight
		if wi != wj {
			return wi < wj
		}
		return pages[i].title < pages[j].title
	})
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (bs *BuildState) writeSitemap() error {
	origin := strings.TrimRight(bs.cfg.Site.URL, "/")
	all := append(append([]*page(nil), bs.pages...), bs.extra...)
	sort.Slice(all, func(i, j int) bool { return all[i].out < all[j].out })
	set := sitemapURLSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range all {
		u := sitemapURL{Loc: origin + p.url}
		if !p.modified.IsZero() {
			u.LastMod = p.modified.UTC().Format("2006-01-02")
		}
		set.URLs = append(set.URLs, u)
	}
	data, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "encode sitemap").Build()
	}
	return bs.writeOutput(SitemapFile, append([]byte(xml.Header), append(data, '\n')...))
}

// stageCopyAssets copies the theme's static files and the content assets.
func stageCopyAssets(ctx context.Context, bs *BuildState) error {
	n := 0
	for _, sf := range bs.theme.StaticFiles() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := bs.copyThemeFile(sf); err != nil {
			bs.Report.AddIssue(ReportIssue{Code: IssueOutputFailure, Stage: StageCopyAssets, Severity: SeverityError, Message: err.Error(), Path: sf.Src})
			return err
		}
		n++
	}
	for _, a := range bs.assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := bs.copyAsset(a); err != nil {
			bs.Report.AddIssue(ReportIssue{Code: IssueOutputFailure, Stage: StageCopyAssets, Severity: SeverityError, Message: err.Error(), Path: a.Rel})
			return err
		}
		n++
	}
	bs.Report.Assets = n
	bs.logger.Info("Assets copied", logfields.Count(n))
	return nil
}

func (bs *BuildState) copyThemeFile(sf theme.StaticFile) error {
	f, err := bs.theme.Open(sf.Src)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTheme, "open theme file").
			WithContext("path", sf.Src).Build()
	}
	defer f.Close()
	return bs.copyOutput(sf.Dst, f, 0o644)
}

func (bs *BuildState) copyAsset(a content.File) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "open asset").
			WithContext("path", a.Rel).Build()
	}
	defer f.Close()
	mode := fs.FileMode(0o644)
	if st, err := f.Stat(); err == nil {
		mode = st.Mode()
	}
	return bs.copyOutput(a.OutputPath(), f, mode)
}
