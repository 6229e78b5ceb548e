// Package compile renders parsed RST documents to HTML fragments.
//
// A Compiler holds the read-only, build-wide inputs (base URL, label table, snippet
// registry, highlighter, render memo) and is shared by all workers. Each Compile call
// gets its own DocContext, which owns the page's anchor set and diagnostics.
package compile

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/highlight"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/mathtag"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

// Options configure a Compiler.
type Options struct {
	BaseURL string
	// Strict turns directive failures and unknown directives into errors.
	Strict      bool
	Highlighter *highlight.Highlighter
	// LineNumbers and CopyButton are the defaults for code blocks.
	LineNumbers bool
	CopyButton  bool
	// DiagramWidth is the default gantt timeline width; MusicWidth the default score width.
	DiagramWidth int
	MusicWidth   int
	Memo         *Memo
	Labels       *xref.Labels
	Snippets     *snippet.Registry
	Logger       *slog.Logger
}

// Severity grades a Diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a non-fatal problem found while compiling a page.
type Diagnostic struct {
	Severity  Severity
	Path      string
	Line      int
	Directive string
	Message   string
	Err       error
}

func (d Diagnostic) String() string {
	if d.Directive != "" {
		return fmt.Sprintf("%s:%d: %s: %s", d.Path, d.Line, d.Directive, d.Message)
	}
	return fmt.Sprintf("%s:%d: %s", d.Path, d.Line, d.Message)
}

// TocItem is a heading of the compiled page, including embedded snippet headings.
type TocItem struct {
	Level  int
	Text   string
	Anchor string
}

// Page is the compiled form of one document.
type Page struct {
	Path        string
	HTML        string
	Math        mathtag.Result
	TOC         []TocItem
	Diagnostics []Diagnostic
	// Snippets lists the snippet ids embedded in the page.
	Snippets []string
}

// Compiler renders documents. It is safe for concurrent use.
type Compiler struct {
	opts Options
}

// New returns a Compiler. A nil Highlighter gets the default alias table and a nil
// Logger discards output.
func New(opts Options) *Compiler {
	if opts.Highlighter == nil {
		opts.Highlighter = highlight.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Compiler{opts: opts}
}

// Compile renders doc. The returned error is a directive failure in strict mode;
// everything else is reported in Page.Diagnostics.
func (c *Compiler) Compile(path string, doc *rst.Document) (*Page, error) {
	page := &Page{Path: path}
	dc := &DocContext{
		c:        c,
		page:     page,
		path:     path,
		doc:      doc,
		anchors:  doc.Anchors.Clone(),
		headings: collectHeadings(doc.Children),
	}
	var b strings.Builder
	if err := dc.blocks(&b, doc.Children); err != nil {
		return nil, err
	}
	page.HTML, page.Math = mathtag.ExtractAndTag(b.String())
	return page, nil
}

// DocContext is the per-page state threaded through block rendering and directive
// dispatch.
type DocContext struct {
	c        *Compiler
	page     *Page
	path     string
	doc      *rst.Document
	anchors  *rst.AnchorSet
	headings []*rst.Heading
	// depth is the level of the last heading written.
	depth int
	// stack holds the snippet ids being embedded, outermost first.
	stack []string
}

// Path is the document path.
func (dc *DocContext) Path() string { return dc.path }

// BaseURL is the configured site base URL.
func (dc *DocContext) BaseURL() string { return dc.c.opts.BaseURL }

func (dc *DocContext) warn(line int, directive string, err error) {
	d := Diagnostic{Severity: SeverityWarning, Path: dc.path, Line: line, Directive: directive, Message: err.Error(), Err: err}
	dc.page.Diagnostics = append(dc.page.Diagnostics, d)
	dc.c.opts.Logger.Warn("Directive problem",
		logfields.Page(dc.path),
		logfields.Line(line),
		logfields.Directive(directive),
		logfields.Error(err))
}

func collectHeadings(blocks []rst.Block) []*rst.Heading {
	var out []*rst.Heading
	rst.Walk(blocks, func(b rst.Block) bool {
		if h, ok := b.(*rst.Heading); ok {
			out = append(out, h)
		}
		return true
	})
	return out
}
