// Package site orchestrates a complete build: it discovers and parses the content,
// resolves cross-references and snippets across all documents, compiles and renders
// every page through the theme and its components, and writes the output tree.
//
// A build runs as an ordered list of stages (see StageName). Per-document work inside
// a stage runs on a bounded worker pool; stage boundaries are barriers, so the label
// table and the snippet registry are complete and read-only before any page uses them.
// Output is written to "<output>.staging" and swapped into place only when every stage
// succeeds.
package site

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/rstsite/internal/component"
	"git.home.luguber.info/inful/rstsite/internal/config"
	"git.home.luguber.info/inful/rstsite/internal/content"
	"git.home.luguber.info/inful/rstsite/internal/diagram"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/history"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/metrics"
	"git.home.luguber.info/inful/rstsite/internal/music"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/theme"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

// Builder builds a site from a configuration. A Builder may run many builds, one at a
// time.
type Builder struct {
	cfg       *config.Config
	outputDir string
	logger    *slog.Logger
	recorder  metrics.Recorder
	history   *history.Store
	theme     *theme.Theme
	// liveReload is the script URL injected into every page by the preview server.
	liveReload string
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithHistory records every finished build in s.
func WithHistory(s *history.Store) Option {
	return func(b *Builder) { b.history = s }
}

// WithTheme uses t instead of loading the configured theme.
func WithTheme(t *theme.Theme) Option {
	return func(b *Builder) { b.theme = t }
}

// WithLiveReload makes every page load the live reload script at scriptURL.
func WithLiveReload(scriptURL string) Option {
	return func(b *Builder) { b.liveReload = scriptURL }
}

// NewBuilder returns a Builder writing to outputDir. An empty outputDir uses the
// configured one.
func NewBuilder(cfg *config.Config, outputDir string, opts ...Option) *Builder {
	if outputDir == "" {
		outputDir = cfg.OutputDir()
	}
	b := &Builder{
		cfg:       cfg,
		outputDir: filepath.Clean(outputDir),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OutputDir is the directory the site is written to.
func (b *Builder) OutputDir() string { return b.outputDir }

// Build discovers the content directory and builds the site. The report is returned
// even when the build fails.
func (b *Builder) Build(ctx context.Context) (*BuildReport, error) {
	return b.run(ctx, nil, false)
}

// BuildDocuments builds the site from already loaded documents; the content directory
// is not walked and no content assets are copied.
func (b *Builder) BuildDocuments(ctx context.Context, docs []*content.Document) (*BuildReport, error) {
	return b.run(ctx, docs, true)
}

func (b *Builder) run(ctx context.Context, docs []*content.Document, preloaded bool) (*BuildReport, error) {
	report := newBuildReport(uuid.NewString())
	bs := newBuildState(b, report)
	if preloaded {
		bs.docs = docs
		bs.preloaded = true
	}
	b.recorder.SetWorkers(bs.workers)
	bs.logger.Info("Build started", logfields.Path(b.outputDir), logfields.Workers(bs.workers))

	err := runStages(ctx, bs, pipeline())
	if err != nil {
		bs.abortStaging()
	}
	report.finish()
	b.recorder.ObserveBuildDuration(report.Duration())
	b.recorder.IncBuildOutcome(string(report.Outcome))

	if perr := report.Persist(b.outputDir); perr != nil {
		bs.logger.Warn("Failed to persist build report", logfields.Path(b.outputDir), logfields.Error(perr))
	}
	b.recordHistory(report)

	attrs := []any{
		logfields.Outcome(string(report.Outcome)),
		logfields.Count(report.Pages),
		logfields.DurationMS(float64(report.Duration().Milliseconds())),
		slog.Int("warnings", report.Warnings()),
		slog.Int("errors", report.Errors()),
	}
	if err != nil {
		bs.logger.Error("Build failed", append(attrs, logfields.Error(err))...)
		var se *StageError
		if errors.As(err, &se) {
			return report, classify(se)
		}
		return report, err
	}
	bs.logger.Info("Build finished", attrs...)
	return report, nil
}

func (b *Builder) recordHistory(r *BuildReport) {
	if b.history == nil {
		return
	}
	data, err := r.MarshalJSON()
	if err != nil {
		data = nil
	}
	e := history.Entry{
		BuildID:  r.BuildID,
		Start:    r.Start,
		End:      r.End,
		Outcome:  string(r.Outcome),
		Pages:    r.Pages,
		Warnings: r.Warnings(),
		Errors:   r.Errors(),
		Report:   data,
	}
	for _, is := range r.sortedIssues() {
		e.Issues = append(e.Issues, history.Issue{Code: string(is.Code), Stage: string(is.Stage), Severity: string(is.Severity), Message: is.Message})
	}
	// The build context may already be canceled; history is written regardless.
	ctx := context.Background()
	if err := b.history.Record(ctx, e); err != nil {
		b.logger.Warn("Failed to record build history", logfields.BuildID(r.BuildID), logfields.Error(err))
		return
	}
	if keep := b.cfg.History.Keep; keep > 0 {
		if _, err := b.history.Prune(ctx, keep); err != nil {
			b.logger.Warn("Failed to prune build history", logfields.Error(err))
		}
	}
}

// classify wraps a stage failure into a classified error whose category follows the
// domain error that caused it.
func classify(se *StageError) error {
	if _, ok := ferrors.AsClassified(se); ok {
		return se
	}
	var (
		pe  *rst.ParseError
		dpe *diagram.ParseError
		mpe *music.ParseError
		re  *xref.ReferenceError
		dup *snippet.DuplicateError
		ee  *snippet.EmbedError
		ce  *component.RenderError
	)
	category := ferrors.CategoryBuild
	switch {
	case se.Kind == StageErrorCanceled:
		category = ferrors.CategoryRuntime
	case errors.As(se, &ce):
		category = ferrors.CategoryRender
	case errors.As(se, &re), errors.As(se, &dup):
		category = ferrors.CategoryReference
	case errors.As(se, &ee):
		category = ferrors.CategoryEmbed
	case errors.As(se, &pe), errors.As(se, &dpe), errors.As(se, &mpe):
		category = ferrors.CategoryParse
	}
	return ferrors.WrapError(se, category, "build failed").
		WithContext("stage", string(se.Stage)).
		Build()
}
