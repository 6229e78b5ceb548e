package site

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/rstsite/internal/config"
	"git.home.luguber.info/inful/rstsite/internal/content"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

// stageCollectLabels builds the site-wide label table from every published document.
// Snippets are excluded: their headings only exist, renamed, inside host pages.
func stageCollectLabels(_ context.Context, bs *BuildState) error {
	var in []xref.DocLabels
	for _, s := range bs.sources {
		if s.doc.IsSnippet() {
			continue
		}
		in = append(in, xref.DocLabels{Path: s.doc.Rel, Title: s.doc.Meta.Title, Doc: s.tree})
	}
	labels, errs := xref.Collect(in)
	bs.labels = labels
	bs.Report.Labels = labels.Len()
	bs.logger.Info("Labels collected", logfields.Count(labels.Len()))
	return bs.referenceErrors(StageCollectLabels, errs)
}

// stageResolveReferences rewrites the reference roles of every RST document against
// the complete label table. Snippets also see their own labels.
func stageResolveReferences(ctx context.Context, bs *BuildState) error {
	link := func(docPath, anchor string) string {
		return urlbuilder.Anchor(urlbuilder.Build(bs.baseURL, urlbuilder.PageURL(docPath)), anchor)
	}
	results := make([][]*xref.ReferenceError, len(bs.sources))
	err := forEach(ctx, bs.workers, len(bs.sources), func(i int) {
		s := bs.sources[i]
		if s.doc.Kind != content.KindRST {
			return
		}
		labels := bs.labels
		if s.doc.IsSnippet() {
			labels, results[i] = bs.labels.Scoped(xref.DocLabels{Path: s.doc.Rel, Title: s.doc.Meta.Title, Doc: s.tree})
		}
		results[i] = append(results[i], xref.Resolve(s.doc.Rel, s.tree, labels, link)...)
	})
	if err != nil {
		return err
	}
	var errs []*xref.ReferenceError
	for _, r := range results {
		errs = append(errs, r...)
	}
	return bs.referenceErrors(StageResolveReferences, errs)
}

// referenceErrors reports errs as issues and grades the stage by the configured
// reference policy.
func (bs *BuildState) referenceErrors(stage StageName, errs []*xref.ReferenceError) error {
	if len(errs) == 0 {
		return nil
	}
	fatal := bs.cfg.Build.References != config.ReferencesWarn
	severity := SeverityWarning
	if fatal {
		severity = SeverityError
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		code := IssueUnresolvedReference
		if e.Kind == xref.DuplicateLabel {
			code = IssueDuplicateLabel
		}
		bs.Report.AddIssue(ReportIssue{Code: code, Stage: stage, Severity: severity, Message: e.Error(), Path: e.Path, Line: e.Line})
		bs.logger.Warn("Reference problem", logfields.Page(e.Path), logfields.Line(e.Line), logfields.Label(e.Label), logfields.Error(e))
		joined[i] = e
	}
	if fatal {
		return newFatalStageError(stage, errors.Join(joined...))
	}
	return newWarnStageError(stage, errors.Join(joined...))
}

// stageBuildSnippets registers every RST document declaring a snippet_id.
func stageBuildSnippets(_ context.Context, bs *BuildState) error {
	var srcs []snippet.Source
	for _, s := range bs.sources {
		if !s.doc.IsSnippet() {
			continue
		}
		if s.doc.Kind != content.KindRST {
			bs.Report.AddIssue(ReportIssue{
				Code:     IssueEmbedFailure,
				Stage:    StageBuildSnippets,
				Severity: SeverityWarning,
				Message:  "snippet_id is only supported on reStructuredText documents",
				Path:     s.doc.Rel,
			})
			continue
		}
		srcs = append(srcs, snippet.Source{
			ID:      s.doc.Meta.SnippetID,
			Path:    s.doc.Rel,
			Title:   s.doc.Meta.Title,
			Summary: s.doc.Meta.Description,
			Doc:     s.tree,
		})
	}
	reg, err := snippet.NewRegistry(srcs)
	if err != nil {
		var de *snippet.DuplicateError
		code := IssueGenericStageError
		if errors.As(err, &de) {
			code = IssueDuplicateSnippet
		}
		bs.Report.AddIssue(ReportIssue{Code: code, Stage: StageBuildSnippets, Severity: SeverityError, Message: err.Error()})
		return err
	}
	bs.snippets = reg
	bs.Report.Snippets = reg.Len()
	bs.logger.Info("Snippets registered", logfields.Count(reg.Len()))
	return nil
}
