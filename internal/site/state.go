package site

import (
	"log/slog"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/rstsite/internal/compile"
	"git.home.luguber.info/inful/rstsite/internal/component"
	"git.home.luguber.info/inful/rstsite/internal/config"
	"git.home.luguber.info/inful/rstsite/internal/content"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/mathtag"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/search"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/theme"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

// BuildState carries everything the stages of one build share.
type BuildState struct {
	builder *Builder
	cfg     *config.Config
	logger  *slog.Logger
	Report  *BuildReport
	workers int
	baseURL string

	stageDir  string
	preloaded bool

	theme    *theme.Theme
	renderer *component.Renderer

	docs     []*content.Document
	assets   []content.File
	sources  []*source
	labels   *xref.Labels
	snippets *snippet.Registry
	memo     *compile.Memo
	pages    []*page
	// extra holds generated pages (tag pages, the site index) for the sitemap.
	extra  []*page
	search *search.Index
}

func newBuildState(b *Builder, report *BuildReport) *BuildState {
	return &BuildState{
		builder: b,
		cfg:     b.cfg,
		logger:  b.logger.With(logfields.BuildID(report.BuildID)),
		Report:  report,
		workers: max(b.cfg.Build.Workers, 1),
		baseURL: b.cfg.Site.BaseURL,
	}
}

// source is a parsed document.
type source struct {
	doc  *content.Document
	tree *rst.Document
	// html is the rendered body of a Markdown document.
	html string
}

func (s *source) title() string {
	if t := strings.TrimSpace(s.doc.Meta.Title); t != "" {
		return t
	}
	var first string
	rst.Walk(s.tree.Children, func(b rst.Block) bool {
		if h, ok := b.(*rst.Heading); ok && first == "" {
			first = h.Text
		}
		return first == ""
	})
	if first != "" {
		return first
	}
	base := path.Base(s.doc.Rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

// page is a document on its way to the output tree, or a generated page.
type page struct {
	src      *source
	out      string
	url      string
	title    string
	html     string
	math     mathtag.Result
	toc      []compile.TocItem
	modified time.Time
}

func newPage(s *source, baseURL string) *page {
	out := s.doc.OutputPath()
	return &page{
		src:      s,
		out:      out,
		url:      urlbuilder.Build(baseURL, out),
		title:    s.title(),
		modified: s.doc.Modified,
	}
}
