package site

import (
	"bytes"
	"context"
	"errors"

	"git.home.luguber.info/inful/rstsite/internal/compile"
	"git.home.luguber.info/inful/rstsite/internal/component"
	"git.home.luguber.info/inful/rstsite/internal/content"
	"git.home.luguber.info/inful/rstsite/internal/highlight"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/mathtag"
	"git.home.luguber.info/inful/rstsite/internal/search"
	"git.home.luguber.info/inful/rstsite/internal/theme"
)

func stageCompilePages(ctx context.Context, bs *BuildState) error {
	bs.memo = compile.NewMemo(bs.cfg.Build.RenderCacheSize)
	comp := compile.New(compile.Options{
		BaseURL:      bs.baseURL,
		Strict:       bs.cfg.Build.Strict,
		Highlighter:  highlight.New(bs.cfg.Highlight.Aliases),
		LineNumbers:  bs.cfg.Highlight.LineNumbers,
		CopyButton:   bs.cfg.CopyButton(),
		DiagramWidth: bs.cfg.Build.DiagramWidth,
		MusicWidth:   bs.cfg.Build.MusicWidth,
		Memo:         bs.memo,
		Labels:       bs.labels,
		Snippets:     bs.snippets,
		Logger:       bs.logger,
	})

	var published []*source
	for _, s := range bs.sources {
		if !s.doc.IsSnippet() {
			published = append(published, s)
		}
	}
	pages := make([]*page, len(published))
	errs := make([]error, len(published))
	diags := make([][]compile.Diagnostic, len(published))
	err := forEach(ctx, bs.workers, len(published), func(i int) {
		s := published[i]
		p := newPage(s, bs.baseURL)
		if s.doc.Kind == content.KindMarkdown {
			p.html, p.math = mathtag.ExtractAndTag(s.html)
			p.toc = headingTOC(s.tree)
			pages[i] = p
			return
		}
		cp, err := comp.Compile(s.doc.Rel, s.tree)
		if err != nil {
			errs[i] = err
			return
		}
		p.html, p.math, p.toc = cp.HTML, cp.Math, cp.TOC
		diags[i] = cp.Diagnostics
		pages[i] = p
	})
	if err != nil {
		return err
	}

	hits, misses := bs.memo.Stats()
	bs.Report.CacheHits, bs.Report.CacheMisses = hits, misses
	bs.builder.recorder.ObserveRenderCache(hits, misses)

	for _, ds := range diags {
		for _, d := range ds {
			bs.Report.AddIssue(ReportIssue{Code: issueCode(d.Err), Stage: StageCompilePages, Severity: SeverityWarning, Message: d.String(), Path: d.Path, Line: d.Line})
			bs.builder.recorder.IncDirective(d.Directive, true)
		}
	}
	var failed []error
	for i, err := range errs {
		if err == nil {
			bs.pages = append(bs.pages, pages[i])
			continue
		}
		bs.Report.AddIssue(ReportIssue{Code: issueCode(err), Stage: StageCompilePages, Severity: SeverityError, Message: err.Error(), Path: published[i].doc.Rel})
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		return newFatalStageError(StageCompilePages, errors.Join(failed...))
	}
	bs.logger.Info("Pages compiled", logfields.Count(len(bs.pages)), logfields.Workers(bs.workers))
	return nil
}

func stageRenderPages(ctx context.Context, bs *BuildState) error {
	if bs.cfg.SearchEnabled() {
		bs.search = search.NewIndex(bs.cfg.Search.MaxText)
	}
	nav := bs.navLinks()
	errs := make([]error, len(bs.pages))
	err := forEach(ctx, bs.workers, len(bs.pages), func(i int) {
		p := bs.pages[i]
		data := bs.pageData(p, nav)
		layout := p.src.doc.Meta.Layout
		if layout == "" {
			layout = theme.LayoutPage
		}
		out, err := bs.renderLayout(layout, data)
		if err != nil {
			errs[i] = err
			return
		}
		if err := bs.writeOutput(p.out, []byte(out)); err != nil {
			errs[i] = err
			return
		}
		if bs.search != nil {
			errs[i] = bs.search.Add(search.Page{URL: p.url, Title: p.title, Description: data.Description, Tags: p.src.doc.Meta.Tags, HTML: out})
		}
	})
	if err != nil {
		return err
	}
	var failed []error
	for i, err := range errs {
		if err != nil {
			bs.Report.AddIssue(ReportIssue{Code: issueCode(err), Stage: StageRenderPages, Severity: SeverityError, Message: err.Error(), Path: bs.pages[i].src.doc.Rel})
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return newFatalStageError(StageRenderPages, errors.Join(failed...))
	}
	bs.Report.Pages += len(bs.pages)
	bs.builder.recorder.IncPages("page", len(bs.pages))
	bs.logger.Info("Pages rendered", logfields.Count(len(bs.pages)))
	return nil
}

// renderLayout applies the theme layout, expands every component marker with a fresh
// per-page render context and injects the collected component assets.
func (bs *BuildState) renderLayout(layout string, data *theme.PageData) (string, error) {
	var buf bytes.Buffer
	if err := bs.theme.Render(&buf, layout, data); err != nil {
		return "", err
	}
	rc := component.NewRenderContext(bs.baseURL)
	out, err := bs.renderer.Expand(buf.String(), rc)
	if err != nil {
		bs.logger.Error("Component rendering failed", logfields.Page(data.Path), logfields.Error(err))
		return "", err
	}
	return component.InjectAssets(out, rc), nil
}
