package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPage       = "page"
	KeyLine       = "line"
	KeyDirective  = "directive"
	KeyComponent  = "component"
	KeyLabel      = "label"
	KeySnippet    = "snippet_id"
	KeyDiagram    = "diagram"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyCount      = "count"
	KeyWorkers    = "workers"
	KeyOutcome    = "outcome"
	KeyTheme      = "theme"
	KeyBucket     = "bucket"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Page(p string) slog.Attr         { return slog.String(KeyPage, p) }
func Line(n int) slog.Attr            { return slog.Int(KeyLine, n) }
func Directive(name string) slog.Attr { return slog.String(KeyDirective, name) }
func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }
func Label(name string) slog.Attr     { return slog.String(KeyLabel, name) }
func Snippet(id string) slog.Attr     { return slog.String(KeySnippet, id) }
func Diagram(kind string) slog.Attr   { return slog.String(KeyDiagram, kind) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Workers(n int) slog.Attr         { return slog.Int(KeyWorkers, n) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Theme(name string) slog.Attr     { return slog.String(KeyTheme, name) }
func Bucket(name string) slog.Attr    { return slog.String(KeyBucket, name) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
