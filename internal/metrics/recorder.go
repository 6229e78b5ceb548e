package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for builds.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string)
	// IncPages counts written pages by kind (page, tag, index).
	IncPages(kind string, n int)
	// IncDirective counts rendered directives; failed marks directives that fell back
	// to an error marker.
	IncDirective(name string, failed bool)
	ObserveRenderCache(hits, misses int64)
	SetWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncPages(string, int)                       {}
func (NoopRecorder) IncDirective(string, bool)                  {}
func (NoopRecorder) ObserveRenderCache(int64, int64)            {}
func (NoopRecorder) SetWorkers(int)                             {}
