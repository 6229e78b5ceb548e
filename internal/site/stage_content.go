package site

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/rstsite/internal/component"
	"git.home.luguber.info/inful/rstsite/internal/content"
	"git.home.luguber.info/inful/rstsite/internal/directive"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/markdown"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/theme"
)

func stageLoadTheme(_ context.Context, bs *BuildState) error {
	t := bs.builder.theme
	if t == nil {
		var err error
		if t, err = theme.Load(bs.cfg.ThemeDir()); err != nil {
			return err
		}
	}
	reg, err := component.NewRegistry(enabledComponents(t.Components, bs.cfg.Theme.Disable))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTheme, "register theme components").
			WithContext("theme", t.Name()).Build()
	}
	bs.theme = t
	bs.renderer = component.NewRenderer(reg)
	bs.logger.Info("Theme loaded", logfields.Theme(t.Name()), logfields.Count(reg.Len()))
	return nil
}

// enabledComponents drops the definitions named in disable, by "category/name" or by
// bare name.
func enabledComponents(defs []component.Definition, disable []string) []component.Definition {
	if len(disable) == 0 {
		return defs
	}
	off := make(map[string]bool, len(disable))
	for _, d := range disable {
		off[d] = true
	}
	out := make([]component.Definition, 0, len(defs))
	for _, d := range defs {
		if off[d.Key()] || off[d.Name] {
			continue
		}
		out = append(out, d)
	}
	return out
}

func stageDiscoverContent(ctx context.Context, bs *BuildState) error {
	if !bs.preloaded {
		files, err := content.NewDiscovery(bs.cfg.ContentDir(), bs.cfg.Content.Exclude, bs.logger).Discover(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bs.Report.AddIssue(ReportIssue{Code: IssueDiscoveryFailure, Stage: StageDiscoverContent, Severity: SeverityError, Message: err.Error()})
			return err
		}
		bs.assets = content.Assets(files)
		if err := bs.loadDocuments(ctx, content.Documents(files)); err != nil {
			return err
		}
	}

	if !bs.cfg.Build.Drafts {
		kept := make([]*content.Document, 0, len(bs.docs))
		for _, d := range bs.docs {
			if d.Meta.Draft {
				bs.logger.Debug("Skipping draft", logfields.Page(d.Rel))
				continue
			}
			kept = append(kept, d)
		}
		bs.docs = kept
	}
	bs.Report.Documents = len(bs.docs)

	if !bs.preloaded && bs.cfg.GitDates() {
		bs.applyGitDates()
	}
	for _, d := range bs.docs {
		if d.Modified.IsZero() {
			d.Modified = d.Meta.Date
		}
	}
	bs.logger.Info("Documents loaded", logfields.Count(len(bs.docs)), slog.Int("assets", len(bs.assets)))
	return nil
}

func (bs *BuildState) loadDocuments(ctx context.Context, files []content.File) error {
	docs := make([]*content.Document, len(files))
	errs := make([]error, len(files))
	if err := forEach(ctx, bs.workers, len(files), func(i int) {
		docs[i], errs[i] = content.Load(files[i])
	}); err != nil {
		return err
	}
	var failed []error
	for i, err := range errs {
		if err == nil {
			bs.docs = append(bs.docs, docs[i])
			continue
		}
		code := IssueDiscoveryFailure
		if errors.Is(err, content.ErrFrontMatter) {
			code = IssueFrontMatter
		}
		bs.Report.AddIssue(ReportIssue{Code: code, Stage: StageDiscoverContent, Severity: SeverityError, Message: err.Error(), Path: files[i].Rel})
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		return ferrors.WrapError(errors.Join(failed...), ferrors.CategoryParse, "load documents").
			WithContext("count", len(failed)).Build()
	}
	return nil
}

// applyGitDates replaces file modification times with the last commit touching each
// document. Content outside a repository keeps its file times.
func (bs *BuildState) applyGitDates() {
	rels := make([]string, len(bs.docs))
	for i, d := range bs.docs {
		rels[i] = d.Rel
	}
	dates, err := content.GitLastModified(bs.cfg.ContentDir(), rels, bs.cfg.Content.MaxGitCommits)
	if errors.Is(err, content.ErrNoRepository) {
		bs.logger.Debug("Content is not in a git repository; using file times")
		return
	}
	if err != nil {
		bs.Report.AddIssue(ReportIssue{Code: IssueGitDates, Stage: StageDiscoverContent, Severity: SeverityWarning, Message: err.Error()})
		bs.logger.Warn("Git history unavailable; using file times", logfields.Error(err))
		return
	}
	for _, d := range bs.docs {
		if t, ok := dates[d.Rel]; ok {
			d.Modified = t
		}
	}
}

func stageParseDocuments(ctx context.Context, bs *BuildState) error {
	conv := markdown.New()
	srcs := make([]*source, len(bs.docs))
	errs := make([]error, len(bs.docs))
	err := forEach(ctx, bs.workers, len(bs.docs), func(i int) {
		d := bs.docs[i]
		if d.Kind == content.KindMarkdown {
			res, err := conv.Convert(d.Rel, d.Body, bs.baseURL)
			if err != nil {
				errs[i] = ferrors.WrapError(err, ferrors.CategoryParse, "convert markdown").
					WithContext("page", d.Rel).Build()
				return
			}
			srcs[i] = &source{doc: d, tree: res.Doc, html: res.HTML}
			return
		}
		tree, err := rst.Parse(string(d.Body),
			rst.WithPath(d.Rel),
			rst.WithLineOffset(d.BodyLine-1),
			rst.WithBodyModes(directive.BodyMode))
		if err != nil {
			errs[i] = err
			return
		}
		srcs[i] = &source{doc: d, tree: tree}
	})
	if err != nil {
		return err
	}

	severity := SeverityWarning
	if bs.cfg.Build.Strict {
		severity = SeverityError
	}
	var failed []error
	for i, perr := range errs {
		if perr == nil {
			bs.sources = append(bs.sources, srcs[i])
			continue
		}
		issue := ReportIssue{Code: IssueParseError, Stage: StageParseDocuments, Severity: severity, Message: perr.Error(), Path: bs.docs[i].Rel}
		var pe *rst.ParseError
		if errors.As(perr, &pe) {
			issue.Line = pe.Line
		}
		bs.Report.AddIssue(issue)
		bs.logger.Warn("Document skipped", logfields.Page(bs.docs[i].Rel), logfields.Error(perr))
		failed = append(failed, perr)
	}

	for _, s := range bs.sources {
		rst.Walk(s.tree.Children, func(b rst.Block) bool {
			if d, ok := b.(*rst.Directive); ok {
				bs.builder.recorder.IncDirective(d.Name, false)
			}
			return true
		})
	}

	if len(failed) == 0 {
		return nil
	}
	if bs.cfg.Build.Strict {
		return newFatalStageError(StageParseDocuments, errors.Join(failed...))
	}
	return newWarnStageError(StageParseDocuments, errors.Join(failed...))
}
