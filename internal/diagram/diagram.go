// Package diagram turns small text diagram languages into standalone SVG.
//
// Five kinds are supported: flowchart, sequence, gantt, state and class. Each has
// a line-oriented grammar where every non-blank line is one statement; "%%" starts
// a comment. Any statement that matches none of the kind's patterns is a
// *ParseError, since a broken diagram has no useful partial rendering.
package diagram

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Kind names a diagram language.
type Kind string

const (
	KindFlowchart Kind = "flowchart"
	KindSequence  Kind = "sequence"
	KindGantt     Kind = "gantt"
	KindState     Kind = "state"
	KindClass     Kind = "class"
)

// Kinds lists the supported diagram kinds.
func Kinds() []Kind {
	return []Kind{KindFlowchart, KindSequence, KindGantt, KindState, KindClass}
}

// Direction is the main axis of a layered layout.
type Direction string

const (
	TopBottom Direction = "TB"
	LeftRight Direction = "LR"
)

// Options tune rendering. The zero value is valid.
type Options struct {
	// Direction overrides the direction statement of flowchart, state and class diagrams.
	Direction Direction
	// Width is the timeline width of gantt charts in pixels. Zero means 720.
	Width float64
}

// ParseError reports a statement that could not be parsed or resolved.
type ParseError struct {
	Kind      Kind
	Line      int
	Statement string
	Reason    string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s diagram: %s", e.Kind, e.Reason)
	}
	if e.Statement == "" {
		return fmt.Sprintf("%s diagram line %d: %s", e.Kind, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s diagram line %d: %s: %q", e.Kind, e.Line, e.Reason, e.Statement)
}

// Render parses source as the given kind and returns the SVG document.
func Render(kind, source string, opts Options) (string, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindFlowchart, "graph", "flow":
		return RenderFlowchart(source, opts)
	case KindSequence:
		return RenderSequence(source, opts)
	case KindGantt:
		return RenderGantt(source, opts)
	case KindState:
		return RenderState(source, opts)
	case KindClass:
		return RenderClass(source, opts)
	}
	return "", &ParseError{Kind: Kind(kind), Reason: fmt.Sprintf("unsupported diagram type %q", kind)}
}

type statement struct {
	line int
	text string
}

// statements splits source into trimmed non-blank lines with comments removed.
func statements(source string) []statement {
	var out []statement
	for i, raw := range strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n") {
		if idx := strings.Index(raw, "%%"); idx >= 0 {
			raw = raw[:idx]
		}
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		out = append(out, statement{line: i + 1, text: text})
	}
	return out
}

func parseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TB", "TD", "BT":
		return TopBottom, true
	case "LR", "RL":
		return LeftRight, true
	}
	return "", false
}

// idPrefix derives element ids from the source so the same input renders identically
// and several diagrams can share one page.
func idPrefix(kind Kind, source string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(source))
	return fmt.Sprintf("%s-%08x", kind, h.Sum32())
}
