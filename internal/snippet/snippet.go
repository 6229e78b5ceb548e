// Package snippet keeps the site-wide registry of reusable snippet documents and
// embeds them into host pages with their headings renumbered for the embed point.
package snippet

import (
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/rst"
)

// MaxLevel is the deepest heading level a shifted snippet heading may reach.
const MaxLevel = 6

// Source is a snippet document as discovered: the value of its snippet_id front matter
// field and its parsed body.
type Source struct {
	ID      string
	Path    string
	Title   string
	Summary string
	Doc     *rst.Document
}

// Heading is one entry of a snippet's heading outline, at its original level.
type Heading struct {
	Level  int
	Text   string
	Anchor string
}

// Entry is a registered snippet.
type Entry struct {
	ID      string
	Path    string
	Title   string
	Summary string
	Doc     *rst.Document
	Outline []Heading
	// TopLevel is the smallest heading level in the snippet, or 1 when it has none.
	TopLevel int
}

// DuplicateError reports two documents declaring the same snippet id.
type DuplicateError struct {
	ID     string
	First  string
	Second string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("snippet id %q declared by both %s and %s", e.ID, e.First, e.Second)
}

// EmbedError reports a snippet that cannot be embedded. It never aborts a build; the
// caller renders a visible placeholder instead.
type EmbedError struct {
	ID       string
	HostPath string
	Line     int
	Reason   string
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("%s:%d: embed snippet %q: %s", e.HostPath, e.Line, e.ID, e.Reason)
}

// Registry maps snippet ids to entries. It is read-only once built.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry indexes sources by id. A repeated id is a *DuplicateError.
func NewRegistry(sources []Source) (*Registry, error) {
	r := &Registry{entries: make(map[string]*Entry, len(sources))}
	for _, s := range sources {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("snippet %s has an empty snippet_id", s.Path)
		}
		if prev, dup := r.entries[id]; dup {
			return nil, &DuplicateError{ID: id, First: prev.Path, Second: s.Path}
		}
		e := &Entry{ID: id, Path: s.Path, Title: s.Title, Summary: s.Summary, Doc: s.Doc, TopLevel: 1}
		outline(e)
		r.entries[id] = e
	}
	return r, nil
}

func outline(e *Entry) {
	top := 0
	var firstPara string
	rst.Walk(e.Doc.Children, func(b rst.Block) bool {
		switch n := b.(type) {
		case *rst.Heading:
			e.Outline = append(e.Outline, Heading{Level: n.Level, Text: n.Text, Anchor: n.Anchor})
			if top == 0 || n.Level < top {
				top = n.Level
			}
		case *rst.Paragraph:
			if firstPara == "" {
				firstPara = rst.PlainText(n.Inlines)
			}
		}
		return true
	})
	if top > 0 {
		e.TopLevel = top
	}
	if e.Title == "" && len(e.Outline) > 0 {
		e.Title = e.Outline[0].Text
	}
	if e.Title == "" {
		e.Title = e.ID
	}
	if e.Summary == "" {
		e.Summary = firstPara
	}
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (*Entry, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.entries[id]
	return e, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of snippets.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Context describes the embed point.
type Context struct {
	HostPath string
	// Depth is the level of the host heading the embed point sits under; 0 at the top of
	// the page.
	Depth int
	Line  int
	// Stack lists the snippet ids being embedded around this embed point, outermost first.
	Stack []string
	// Anchors is the anchor set of the host page.
	Anchors *rst.AnchorSet
}

// RenderFunc renders the shifted snippet blocks. ctx carries the updated stack for
// embeds nested in the snippet.
type RenderFunc func(blocks []rst.Block, ctx Context) (string, error)

// Embed renders snippet id at the embed point. A missing id or an embed cycle is an
// *EmbedError; errors from render are returned unchanged.
func (r *Registry) Embed(id string, ctx Context, render RenderFunc) (string, error) {
	fail := func(reason string) error {
		return &EmbedError{ID: id, HostPath: ctx.HostPath, Line: ctx.Line, Reason: reason}
	}
	var e *Entry
	if r != nil {
		e = r.entries[id]
	}
	if e == nil {
		return "", fail("snippet not found")
	}
	for _, s := range ctx.Stack {
		if s == id {
			return "", fail("recursive embed: " + strings.Join(append(append([]string{}, ctx.Stack...), id), " -> "))
		}
	}
	anchors := ctx.Anchors
	if anchors == nil {
		anchors = rst.NewAnchorSet()
	}
	blocks := Shift(e.Doc.Children, ctx.Depth-e.TopLevel+1, rst.Slugify(id), anchors)

	inner := ctx
	inner.Anchors = anchors
	inner.Stack = append(append([]string{}, ctx.Stack...), id)
	return render(blocks, inner)
}

// Shift copies blocks with every heading level moved by offset (clamped to 1..MaxLevel)
// and every anchor renamed to "<anchor>-<suffix>" and reserved in anchors. References to
// "#anchor" inside the snippet follow the rename. The input is not modified; blocks
// without headings, targets or references are shared.
func Shift(blocks []rst.Block, offset int, suffix string, anchors *rst.AnchorSet) []rst.Block {
	s := &shifter{offset: offset, suffix: suffix, anchors: anchors, renamed: make(map[string]string)}
	rst.Walk(blocks, func(b rst.Block) bool {
		switch n := b.(type) {
		case *rst.Heading:
			s.anchor(n.Anchor)
		case *rst.Target:
			if n.Anchor != "" {
				s.anchor(n.Anchor)
			}
		}
		return true
	})
	return s.blocks(blocks)
}

type shifter struct {
	offset  int
	suffix  string
	anchors *rst.AnchorSet
	renamed map[string]string
}

func (s *shifter) anchor(old string) string {
	if a, ok := s.renamed[old]; ok {
		return a
	}
	a := s.anchors.Unique(old + "-" + s.suffix)
	s.renamed[old] = a
	return a
}

func (s *shifter) blocks(in []rst.Block) []rst.Block {
	out := make([]rst.Block, len(in))
	for i, b := range in {
		switch n := b.(type) {
		case *rst.Heading:
			h := *n
			h.Level = min(max(n.Level+s.offset, 1), MaxLevel)
			h.Anchor = s.anchor(n.Anchor)
			h.Inlines = s.inlines(n.Inlines)
			out[i] = &h
		case *rst.Paragraph:
			p := *n
			p.Inlines = s.inlines(n.Inlines)
			out[i] = &p
		case *rst.Table:
			t := *n
			t.Header = s.cells(n.Header)
			t.Rows = make([][]rst.TableCell, len(n.Rows))
			for k, row := range n.Rows {
				t.Rows[k] = s.cells(row)
			}
			out[i] = &t
		case *rst.Target:
			t := *n
			if t.Anchor != "" {
				t.Anchor = s.anchor(n.Anchor)
			}
			out[i] = &t
		case *rst.BlockQuote:
			out[i] = &rst.BlockQuote{Children: s.blocks(n.Children)}
		case *rst.List:
			l := *n
			l.Items = make([]*rst.ListItem, len(n.Items))
			for k, it := range n.Items {
				l.Items[k] = &rst.ListItem{Children: s.blocks(it.Children)}
			}
			out[i] = &l
		case *rst.Directive:
			d := *n
			d.Children = s.blocks(n.Children)
			out[i] = &d
		default:
			out[i] = b
		}
	}
	return out
}

func (s *shifter) cells(in []rst.TableCell) []rst.TableCell {
	if in == nil {
		return nil
	}
	out := make([]rst.TableCell, len(in))
	for i, c := range in {
		out[i] = rst.TableCell{Inlines: s.inlines(c.Inlines)}
	}
	return out
}

func (s *shifter) inlines(in []rst.Inline) []rst.Inline {
	if in == nil {
		return nil
	}
	out := make([]rst.Inline, len(in))
	for i, sp := range in {
		switch n := sp.(type) {
		case *rst.Emphasis:
			out[i] = &rst.Emphasis{Children: s.inlines(n.Children)}
		case *rst.Strong:
			out[i] = &rst.Strong{Children: s.inlines(n.Children)}
		case *rst.Reference:
			r := *n
			if a, ok := strings.CutPrefix(n.URL, "#"); ok {
				if renamed, known := s.renamed[a]; known {
					r.URL = "#" + renamed
				}
			}
			out[i] = &r
		default:
			out[i] = sp
		}
	}
	return out
}
