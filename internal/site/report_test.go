package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/compile"
	"git.home.luguber.info/inful/rstsite/internal/component"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

func TestIssueCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ReportIssueCode
	}{
		{"parse", &rst.ParseError{Path: "a.rst", Line: 2, Reason: "bad"}, IssueParseError},
		{"unresolved", &xref.ReferenceError{Kind: xref.Unresolved, Label: "x"}, IssueUnresolvedReference},
		{"duplicate label", &xref.ReferenceError{Kind: xref.DuplicateLabel, Label: "x"}, IssueDuplicateLabel},
		{"duplicate snippet", &snippet.DuplicateError{ID: "s"}, IssueDuplicateSnippet},
		{"unknown directive", fmt.Errorf("compile: %w", &compile.UnknownDirectiveError{Name: "youtube"}), IssueUnknownDirective},
		{"component", &component.RenderError{Kind: component.UnknownComponent, Component: "x"}, IssueRenderError},
		{"theme category", ferrors.ThemeError("no layouts").Build(), IssueThemeError},
		{"filesystem category", ferrors.FileSystemError("disk full").Build(), IssueOutputFailure},
		{"plain", errors.New("boom"), IssueGenericStageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, issueCode(tt.err))
		})
	}
}

func TestReportOutcome(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *BuildReport)
		want  BuildOutcome
	}{
		{"clean", func(*BuildReport) {}, OutcomeSuccess},
		{"warning issue", func(r *BuildReport) {
			r.AddIssue(ReportIssue{Code: IssueGitDates, Stage: StageDiscoverContent, Severity: SeverityWarning})
		}, OutcomeWarning},
		{"fatal stage", func(r *BuildReport) {
			r.recordStage(StageRenderPages, StageResultFatal, newFatalStageError(StageRenderPages, errors.New("x")))
		}, OutcomeFailed},
		{"canceled wins", func(r *BuildReport) {
			r.recordStage(StageRenderPages, StageResultFatal, newFatalStageError(StageRenderPages, errors.New("x")))
			r.recordStage(StageWriteIndexes, StageResultCanceled, newCanceledStageError(StageWriteIndexes, context.Canceled))
		}, OutcomeCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newBuildReport("b1")
			tt.setup(r)
			r.finish()
			assert.Equal(t, tt.want, r.Outcome)
		})
	}
}

func TestRecordStageKeepsDetailedIssues(t *testing.T) {
	r := newBuildReport("b1")
	r.AddIssue(ReportIssue{Code: IssueUnresolvedReference, Stage: StageResolveReferences, Severity: SeverityWarning, Path: "a.rst", Line: 3})
	r.recordStage(StageResolveReferences, StageResultWarning, newWarnStageError(StageResolveReferences, errors.New("x")))
	assert.Len(t, r.Issues, 1)

	r.recordStage(StageResolveReferences, StageResultFatal, newFatalStageError(StageResolveReferences, errors.New("y")))
	require.Len(t, r.Issues, 2)
	assert.Equal(t, SeverityError, r.Issues[1].Severity)
	assert.Equal(t, 1, r.StageCounts[StageResolveReferences].Warning)
	assert.Equal(t, 1, r.StageCounts[StageResolveReferences].Fatal)
}

func TestReportPersist(t *testing.T) {
	r := newBuildReport("b1")
	r.Pages = 3
	r.StageDurations[StageRenderPages] = 1500000
	r.AddIssue(ReportIssue{Code: IssueParseError, Stage: StageCompilePages, Severity: SeverityWarning, Message: "later", Path: "b.rst"})
	r.AddIssue(ReportIssue{Code: IssueFrontMatter, Stage: StageDiscoverContent, Severity: SeverityError, Message: "first", Path: "a.rst"})

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, r.Persist(dir))

	data, err := os.ReadFile(filepath.Join(dir, ReportJSON))
	require.NoError(t, err)
	var got struct {
		BuildID string        `json:"build_id"`
		Pages   int           `json:"pages"`
		Outcome string        `json:"outcome"`
		Issues  []ReportIssue `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "b1", got.BuildID)
	assert.Equal(t, 3, got.Pages)
	assert.Equal(t, "warning", got.Outcome)
	require.Len(t, got.Issues, 2)
	assert.Equal(t, "first", got.Issues[0].Message)

	text, err := os.ReadFile(filepath.Join(dir, ReportText))
	require.NoError(t, err)
	assert.Contains(t, string(text), "build=b1")
	assert.Contains(t, string(text), "error FRONT_MATTER [discover_content] first")
	assert.NoFileExists(t, filepath.Join(dir, ReportJSON+".tmp"))
}
