package site

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/metrics"
)

// StageName identifies a build stage.
type StageName string

const (
	StagePrepareOutput     StageName = "prepare_output"
	StageLoadTheme         StageName = "load_theme"
	StageDiscoverContent   StageName = "discover_content"
	StageParseDocuments    StageName = "parse_documents"
	StageCollectLabels     StageName = "collect_labels"
	StageResolveReferences StageName = "resolve_references"
	StageBuildSnippets     StageName = "build_snippets"
	StageCompilePages      StageName = "compile_pages"
	StageRenderPages       StageName = "render_pages"
	StageWriteIndexes      StageName = "write_indexes"
	StageCopyAssets        StageName = "copy_assets"
	StageFinalizeOutput    StageName = "finalize_output"
)

// Stage is one step of a build.
type Stage func(ctx context.Context, bs *BuildState) error

// StageDef pairs a stage name with its function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

func pipeline() []StageDef {
	return []StageDef{
		{StagePrepareOutput, stagePrepareOutput},
		{StageLoadTheme, stageLoadTheme},
		{StageDiscoverContent, stageDiscoverContent},
		{StageParseDocuments, stageParseDocuments},
		{StageCollectLabels, stageCollectLabels},
		{StageResolveReferences, stageResolveReferences},
		{StageBuildSnippets, stageBuildSnippets},
		{StageCompilePages, stageCompilePages},
		{StageRenderPages, stageRenderPages},
		{StageWriteIndexes, stageWriteIndexes},
		{StageCopyAssets, stageCopyAssets},
		{StageFinalizeOutput, stageFinalizeOutput},
	}
}

// StageErrorKind grades a StageError.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Recorded; the build continues.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a stage failure with its grade.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func newWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}

func newCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// StageResult is the per-stage outcome recorded in the report and in metrics.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
)

func classifyStageError(stage StageName, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newCanceledStageError(stage, err)
	}
	return newFatalStageError(stage, err)
}

func resultFor(kind StageErrorKind) (StageResult, metrics.ResultLabel) {
	switch kind {
	case StageErrorWarning:
		return StageResultWarning, metrics.ResultWarning
	case StageErrorCanceled:
		return StageResultCanceled, metrics.ResultCanceled
	default:
		return StageResultFatal, metrics.ResultFatal
	}
}

// runStages executes stages in order, recording timings, and stops at the first fatal
// or canceled stage.
func runStages(ctx context.Context, bs *BuildState, stages []StageDef) error {
	rec := bs.builder.recorder
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			se := newCanceledStageError(st.Name, err)
			bs.Report.recordStage(st.Name, StageResultCanceled, se)
			rec.IncStageResult(string(st.Name), metrics.ResultCanceled)
			return se
		}
		t0 := time.Now()
		err := st.Fn(ctx, bs)
		dur := time.Since(t0)
		bs.Report.StageDurations[st.Name] = dur
		rec.ObserveStageDuration(string(st.Name), dur)
		if err == nil {
			bs.Report.recordStage(st.Name, StageResultSuccess, nil)
			rec.IncStageResult(string(st.Name), metrics.ResultSuccess)
			bs.logger.Debug("Stage complete", logfields.Stage(string(st.Name)), logfields.DurationMS(float64(dur.Microseconds())/1000))
			continue
		}
		se := classifyStageError(st.Name, err)
		res, label := resultFor(se.Kind)
		bs.Report.recordStage(st.Name, res, se)
		rec.IncStageResult(string(st.Name), label)
		if se.Kind == StageErrorWarning {
			bs.logger.Warn("Stage completed with warnings", logfields.Stage(string(st.Name)), logfields.Error(se.Err))
			continue
		}
		return se
	}
	return nil
}
