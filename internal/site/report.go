package site

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/rstsite/internal/compile"
	"git.home.luguber.info/inful/rstsite/internal/component"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

// Report file names written into the output directory.
const (
	ReportJSON = "build-report.json"
	ReportText = "build-report.txt"
)

// BuildOutcome is the final state of a build.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// ReportIssueCode is a stable, machine-readable issue identifier. Codes are only ever
// appended.
type ReportIssueCode string

const (
	IssueDiscoveryFailure    ReportIssueCode = "DISCOVERY_FAILURE"
	IssueFrontMatter         ReportIssueCode = "FRONT_MATTER"
	IssueParseError          ReportIssueCode = "PARSE_ERROR"
	IssueDirectiveError      ReportIssueCode = "DIRECTIVE_ERROR"
	IssueUnknownDirective    ReportIssueCode = "UNKNOWN_DIRECTIVE"
	IssueDuplicateLabel      ReportIssueCode = "DUPLICATE_LABEL"
	IssueUnresolvedReference ReportIssueCode = "UNRESOLVED_REFERENCE"
	IssueDuplicateSnippet    ReportIssueCode = "DUPLICATE_SNIPPET"
	IssueEmbedFailure        ReportIssueCode = "EMBED_FAILURE"
	IssueRenderError         ReportIssueCode = "RENDER_ERROR"
	IssueThemeError          ReportIssueCode = "THEME_ERROR"
	IssueGitDates            ReportIssueCode = "GIT_DATES_UNAVAILABLE"
	IssueOutputFailure       ReportIssueCode = "OUTPUT_FAILURE"
	IssueCanceled            ReportIssueCode = "BUILD_CANCELED"
	IssueGenericStageError   ReportIssueCode = "GENERIC_STAGE_ERROR"
)

// IssueSeverity grades an issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ReportIssue is one problem found during a build.
type ReportIssue struct {
	Code     ReportIssueCode `json:"code"`
	Stage    StageName       `json:"stage"`
	Severity IssueSeverity   `json:"severity"`
	Message  string          `json:"message"`
	Path     string          `json:"path,omitempty"`
	Line     int             `json:"line,omitempty"`
}

// StageCount counts the results of a stage.
type StageCount struct {
	Success  int `json:"success"`
	Warning  int `json:"warning"`
	Fatal    int `json:"fatal"`
	Canceled int `json:"canceled"`
}

// BuildReport summarizes one build. Issues may be added from worker goroutines.
type BuildReport struct {
	SchemaVersion int
	BuildID       string
	Start         time.Time
	End           time.Time
	Outcome       BuildOutcome

	Documents int
	Pages     int
	Snippets  int
	Assets    int
	Labels    int

	CacheHits   int64
	CacheMisses int64

	StageDurations  map[StageName]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount

	mu     sync.Mutex
	Issues []ReportIssue
}

func newBuildReport(buildID string) *BuildReport {
	return &BuildReport{
		SchemaVersion:   1,
		BuildID:         buildID,
		Start:           time.Now(),
		StageDurations:  make(map[StageName]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
	}
}

// AddIssue records an issue.
func (r *BuildReport) AddIssue(issue ReportIssue) {
	r.mu.Lock()
	r.Issues = append(r.Issues, issue)
	r.mu.Unlock()
}

func (r *BuildReport) hasIssues(stage StageName, sev IssueSeverity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, is := range r.Issues {
		if is.Stage == stage && is.Severity == sev {
			return true
		}
	}
	return false
}

// recordStage counts a stage result. A stage error gets a stage-level issue unless
// the stage already reported detailed issues of the same severity.
func (r *BuildReport) recordStage(stage StageName, res StageResult, se *StageError) {
	sc := r.StageCounts[stage]
	switch res {
	case StageResultSuccess:
		sc.Success++
	case StageResultWarning:
		sc.Warning++
	case StageResultFatal:
		sc.Fatal++
	case StageResultCanceled:
		sc.Canceled++
	}
	r.StageCounts[stage] = sc
	if se == nil {
		return
	}
	r.StageErrorKinds[stage] = se.Kind
	severity := SeverityError
	if se.Kind == StageErrorWarning {
		severity = SeverityWarning
	}
	code := IssueCanceled
	if se.Kind != StageErrorCanceled {
		if r.hasIssues(stage, severity) {
			return
		}
		code = issueCode(se.Err)
	}
	r.AddIssue(ReportIssue{Code: code, Stage: stage, Severity: severity, Message: se.Error()})
}

// issueCode maps an error to its issue code.
func issueCode(err error) ReportIssueCode {
	var (
		pe  *rst.ParseError
		re  *xref.ReferenceError
		de  *snippet.DuplicateError
		ee  *snippet.EmbedError
		ue  *compile.UnknownDirectiveError
		dir *compile.DirectiveError
		ce  *component.RenderError
	)
	switch {
	case errors.As(err, &ce):
		return IssueRenderError
	case errors.As(err, &ue):
		return IssueUnknownDirective
	case errors.As(err, &ee):
		return IssueEmbedFailure
	case errors.As(err, &dir):
		return IssueDirectiveError
	case errors.As(err, &pe):
		return IssueParseError
	case errors.As(err, &re):
		if re.Kind == xref.DuplicateLabel {
			return IssueDuplicateLabel
		}
		return IssueUnresolvedReference
	case errors.As(err, &de):
		return IssueDuplicateSnippet
	}
	switch ferrors.GetCategory(err) {
	case ferrors.CategoryParse:
		return IssueParseError
	case ferrors.CategoryReference:
		return IssueUnresolvedReference
	case ferrors.CategoryEmbed:
		return IssueEmbedFailure
	case ferrors.CategoryRender:
		return IssueRenderError
	case ferrors.CategoryTheme:
		return IssueThemeError
	case ferrors.CategoryFileSystem:
		return IssueOutputFailure
	}
	return IssueGenericStageError
}

func (r *BuildReport) count(sev IssueSeverity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, is := range r.Issues {
		if is.Severity == sev {
			n++
		}
	}
	return n
}

// Errors is the number of error issues.
func (r *BuildReport) Errors() int { return r.count(SeverityError) }

// Warnings is the number of warning issues.
func (r *BuildReport) Warnings() int { return r.count(SeverityWarning) }

func (r *BuildReport) finish() {
	r.End = time.Now()
	r.deriveOutcome()
}

func (r *BuildReport) deriveOutcome() {
	for _, k := range r.StageErrorKinds {
		if k == StageErrorCanceled {
			r.Outcome = OutcomeCanceled
			return
		}
	}
	for _, k := range r.StageErrorKinds {
		if k == StageErrorFatal {
			r.Outcome = OutcomeFailed
			return
		}
	}
	if r.Warnings() > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Duration is the wall time of the build.
func (r *BuildReport) Duration() time.Duration { return r.End.Sub(r.Start) }

// Summary returns a single-line human summary.
func (r *BuildReport) Summary() string {
	return fmt.Sprintf("build=%s documents=%d pages=%d snippets=%d assets=%d duration=%s errors=%d warnings=%d outcome=%s",
		r.BuildID, r.Documents, r.Pages, r.Snippets, r.Assets, r.Duration().Truncate(time.Millisecond), r.Errors(), r.Warnings(), r.Outcome)
}

// Text renders the summary followed by one line per issue.
func (r *BuildReport) Text() string {
	var b strings.Builder
	b.WriteString(r.Summary())
	b.WriteByte('\n')
	for _, is := range r.sortedIssues() {
		fmt.Fprintf(&b, "%s %s [%s] %s\n", is.Severity, is.Code, is.Stage, is.Message)
	}
	return b.String()
}

func (r *BuildReport) sortedIssues() []ReportIssue {
	r.mu.Lock()
	out := append([]ReportIssue(nil), r.Issues...)
	r.mu.Unlock()
	order := make(map[StageName]int)
	for i, st := range pipeline() {
		order[st.Name] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return order[out[i].Stage] < order[out[j].Stage]
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// reportJSON is the serialized form. Durations are milliseconds and maps are keyed by
// plain strings.
type reportJSON struct {
	SchemaVersion    int                   `json:"schema_version"`
	BuildID          string                `json:"build_id"`
	Start            time.Time             `json:"start"`
	End              time.Time             `json:"end"`
	DurationMS       int64                 `json:"duration_ms"`
	Outcome          BuildOutcome          `json:"outcome"`
	Documents        int                   `json:"documents"`
	Pages            int                   `json:"pages"`
	Snippets         int                   `json:"snippets"`
	Assets           int                   `json:"assets"`
	Labels           int                   `json:"labels"`
	CacheHits        int64                 `json:"render_cache_hits"`
	CacheMisses      int64                 `json:"render_cache_misses"`
	Errors           int                   `json:"errors"`
	Warnings         int                   `json:"warnings"`
	StageDurationsMS map[string]int64      `json:"stage_durations_ms"`
	StageErrorKinds  map[string]string     `json:"stage_error_kinds"`
	StageCounts      map[string]StageCount `json:"stage_counts"`
	Issues           []ReportIssue         `json:"issues"`
}

// MarshalJSON implements json.Marshaler.
func (r *BuildReport) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		SchemaVersion:    r.SchemaVersion,
		BuildID:          r.BuildID,
		Start:            r.Start,
		End:              r.End,
		DurationMS:       r.Duration().Milliseconds(),
		Outcome:          r.Outcome,
		Documents:        r.Documents,
		Pages:            r.Pages,
		Snippets:         r.Snippets,
		Assets:           r.Assets,
		Labels:           r.Labels,
		CacheHits:        r.CacheHits,
		CacheMisses:      r.CacheMisses,
		Errors:           r.Errors(),
		Warnings:         r.Warnings(),
		StageDurationsMS: make(map[string]int64, len(r.StageDurations)),
		StageErrorKinds:  make(map[string]string, len(r.StageErrorKinds)),
		StageCounts:      make(map[string]StageCount, len(r.StageCounts)),
		Issues:           r.sortedIssues(),
	}
	for k, v := range r.StageDurations {
		out.StageDurationsMS[string(k)] = v.Milliseconds()
	}
	for k, v := range r.StageErrorKinds {
		out.StageErrorKinds[string(k)] = string(v)
	}
	for k, v := range r.StageCounts {
		out.StageCounts[string(k)] = v
	}
	if out.Issues == nil {
		out.Issues = []ReportIssue{}
	}
	return json.Marshal(out)
}

// Persist writes build-report.json and build-report.txt into root, each through a
// temporary file and a rename.
func (r *BuildReport) Persist(root string) error {
	if r.End.IsZero() {
		r.finish()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("ensure root for report: %w", err)
	}
	jb, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := writeAtomic(filepath.Join(root, ReportJSON), append(jb, '\n')); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(root, ReportText), []byte(r.Text()))
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
