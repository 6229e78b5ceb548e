// Package xref resolves :ref: and :doc: roles across the whole site in two stages.
//
// Collect walks every parsed document once and returns an immutable label table.
// Resolve then rewrites the reference roles of one document against that table. The
// site builder runs Collect for all documents before any call to Resolve.
package xref

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/rst"
)

// DocLabels is the input of Collect for one document.
type DocLabels struct {
	Path  string
	Title string
	Doc   *rst.Document
}

// Label is a resolvable reference target.
type Label struct {
	Name     string
	Path     string
	Anchor   string
	Title    string
	Level    int
	Line     int
	Explicit bool
	// Local marks a label of a snippet scope. It links to an anchor of whatever page the
	// snippet is embedded in.
	Local bool
}

func (l Label) location() string {
	if l.Line == 0 {
		return l.Path
	}
	return fmt.Sprintf("%s:%d", l.Path, l.Line)
}

func (l Label) url(link Linker) string {
	if l.Local {
		return "#" + l.Anchor
	}
	return link(l.Path, l.Anchor)
}

// ErrorKind classifies a ReferenceError.
type ErrorKind string

const (
	DuplicateLabel ErrorKind = "duplicate_label"
	Unresolved     ErrorKind = "unresolved_reference"
)

// ReferenceError is a duplicate label or a reference that names no label.
type ReferenceError struct {
	Kind  ErrorKind
	Label string
	// Path and Line locate the referencing document, or the second definition of a
	// duplicate label.
	Path string
	Line int
	Role string
	// First is the earlier definition of a duplicate label.
	First *Label
}

func (e *ReferenceError) Error() string {
	if e.Kind == DuplicateLabel {
		return fmt.Sprintf("duplicate label %q: defined at %s and %s:%d", e.Label, e.First.location(), e.Path, e.Line)
	}
	role := e.Role
	if role == "" {
		role = "reference"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: unresolved %s %q", e.Path, e.Line, role, e.Label)
	}
	return fmt.Sprintf("%s: unresolved %s %q", e.Path, role, e.Label)
}

// Labels is the site-wide label table. It is never modified after Collect returns.
type Labels struct {
	explicit map[string]Label
	implicit map[string]Label
	docs     map[string]Label
	outlines map[string][]Label
	parent   *Labels
}

// Collect records explicit labels, heading labels (as "path#anchor") and one entry per
// document. Duplicate explicit labels are reported; the first definition is kept.
func Collect(docs []DocLabels) (*Labels, []*ReferenceError) {
	l := &Labels{
		explicit: make(map[string]Label),
		implicit: make(map[string]Label),
		docs:     make(map[string]Label),
		outlines: make(map[string][]Label),
	}
	var errs []*ReferenceError
	add := func(lb Label) {
		key := rst.NormalizeLabel(lb.Name)
		if first, dup := l.explicit[key]; dup {
			errs = append(errs, &ReferenceError{Kind: DuplicateLabel, Label: lb.Name, Path: lb.Path, Line: lb.Line, First: &first})
			return
		}
		l.explicit[key] = lb
	}
	for _, d := range docs {
		key := docKey(d.Path)
		title := d.Title
		var firstHeading string
		var pending []*rst.Target
		rst.Walk(d.Doc.Children, func(b rst.Block) bool {
			switch n := b.(type) {
			case *rst.Heading:
				if firstHeading == "" {
					firstHeading = n.Text
				}
				lb := Label{Name: key + "#" + n.Anchor, Path: d.Path, Anchor: n.Anchor, Title: n.Text, Level: n.Level, Line: n.Line}
				l.implicit[lb.Name] = lb
				l.outlines[key] = append(l.outlines[key], lb)
				for _, t := range pending {
					add(Label{Name: t.Label, Path: d.Path, Anchor: n.Anchor, Title: n.Text, Level: n.Level, Line: t.Line, Explicit: true})
				}
				pending = pending[:0]
			case *rst.Target:
				switch {
				case n.URL != "":
				case n.Attached:
					pending = append(pending, n)
				default:
					add(Label{Name: n.Label, Path: d.Path, Anchor: n.Anchor, Title: n.Label, Line: n.Line, Explicit: true})
				}
			}
			return true
		})
		if title == "" {
			title = firstHeading
		}
		if title == "" {
			title = path.Base(key)
		}
		l.docs[key] = Label{Name: key, Path: d.Path, Title: title}
	}
	return l, errs
}

// Scoped returns a table that resolves the labels declared in d before falling back to l.
// Snippet documents resolve against such a table: their labels are marked Local and are
// not visible to other documents. Duplicate labels inside d are reported.
func (l *Labels) Scoped(d DocLabels) (*Labels, []*ReferenceError) {
	local, errs := Collect([]DocLabels{d})
	for _, m := range []map[string]Label{local.explicit, local.implicit} {
		for k, lb := range m {
			lb.Local = true
			m[k] = lb
		}
	}
	clear(local.docs)
	clear(local.outlines)
	local.parent = l
	return local, errs
}

// docKey strips the extension so :doc: targets may omit it.
func docKey(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if ext := path.Ext(p); ext != "" {
		p = strings.TrimSuffix(p, ext)
	}
	return p
}

// Lookup finds a :ref: target. Explicit labels win; otherwise name may be
// "path#anchor", with path site-relative or relative to the referencing document, or the
// title of a heading in the referencing document.
func (l *Labels) Lookup(name, from string) (Label, bool) {
	if lb, ok := l.lookup(name, from); ok {
		return lb, true
	}
	if l.parent != nil {
		return l.parent.Lookup(name, from)
	}
	return Label{}, false
}

func (l *Labels) lookup(name, from string) (Label, bool) {
	if lb, ok := l.explicit[rst.NormalizeLabel(name)]; ok {
		return lb, true
	}
	if doc, anchor, ok := strings.Cut(name, "#"); ok {
		if doc == "" {
			doc = from
		}
		for _, cand := range []string{doc, relative(doc, from)} {
			if lb, found := l.implicit[docKey(cand)+"#"+anchor]; found {
				return lb, true
			}
		}
		return Label{}, false
	}
	lb, ok := l.implicit[docKey(from)+"#"+rst.Slugify(name)]
	return lb, ok
}

// Doc finds a :doc: target. Relative targets resolve against the referencing document's
// directory; a leading "/" makes them site-relative.
func (l *Labels) Doc(target, from string) (Label, bool) {
	if lb, ok := l.docs[docKey(relative(target, from))]; ok {
		return lb, true
	}
	if l.parent != nil {
		return l.parent.Doc(target, from)
	}
	return Label{}, false
}

func relative(target, from string) string {
	if strings.HasPrefix(target, "/") {
		return target
	}
	return path.Join(path.Dir(from), target)
}

// Outline returns the heading labels of a document in source order.
func (l *Labels) Outline(docPath string) []Label {
	return l.outlines[docKey(docPath)]
}

// Docs returns one label per document, sorted by path.
func (l *Labels) Docs() []Label {
	out := make([]Label, 0, len(l.docs))
	for _, lb := range l.docs {
		out = append(out, lb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Explicit returns the explicit labels sorted by name.
func (l *Labels) Explicit() []Label {
	out := make([]Label, 0, len(l.explicit))
	for _, lb := range l.explicit {
		out = append(out, lb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of explicit labels, heading labels and documents.
func (l *Labels) Len() int {
	return len(l.explicit) + len(l.implicit) + len(l.docs)
}

// Linker builds the URL of an anchor inside a document.
type Linker func(docPath, anchor string) string

// Resolve rewrites the :ref: and :doc: roles and the named references of doc in place.
// Every reference that cannot be resolved is reported and left marked Missing.
func Resolve(docPath string, doc *rst.Document, labels *Labels, link Linker) []*ReferenceError {
	var errs []*ReferenceError
	rst.Walk(doc.Children, func(b rst.Block) bool {
		line := blockLine(b)
		for _, slot := range rst.InlineSlots(b) {
			*slot = rst.MapInlines(*slot, func(in rst.Inline) rst.Inline {
				out, err := resolveSpan(docPath, doc, in, labels, link)
				if err != nil {
					err.Line = line
					errs = append(errs, err)
				}
				return out
			})
		}
		return true
	})
	return errs
}

func resolveSpan(docPath string, doc *rst.Document, in rst.Inline, labels *Labels, link Linker) (rst.Inline, *ReferenceError) {
	switch n := in.(type) {
	case *rst.Role:
		if n.Name != "ref" && n.Name != "doc" {
			return in, nil
		}
		title, target, _ := rst.SplitTitleTarget(n.Target)
		var lb Label
		var ok bool
		if n.Name == "ref" {
			lb, ok = labels.Lookup(target, docPath)
		} else {
			lb, ok = labels.Doc(target, docPath)
		}
		if !ok {
			text := title
			if text == "" {
				text = target
			}
			return &rst.Reference{Label: target, Text: text, Missing: true}, &ReferenceError{Kind: Unresolved, Label: target, Path: docPath, Role: ":" + n.Name + ":"}
		}
		if title == "" {
			title = lb.Title
		}
		return &rst.Reference{Label: target, Text: title, URL: lb.url(link)}, nil
	case *rst.Reference:
		if n.URL != "" || n.Label == "" || n.Missing {
			return in, nil
		}
		key := rst.NormalizeLabel(n.Label)
		if t, ok := doc.Targets[key]; ok {
			if t.URL != "" {
				n.URL = t.URL
			} else {
				n.URL = "#" + t.Anchor
			}
			return n, nil
		}
		if lb, ok := labels.Lookup(n.Label, docPath); ok {
			n.URL = lb.url(link)
			return n, nil
		}
		n.Missing = true
		return n, &ReferenceError{Kind: Unresolved, Label: n.Label, Path: docPath}
	}
	return in, nil
}

func blockLine(b rst.Block) int {
	switch n := b.(type) {
	case *rst.Paragraph:
		return n.Line
	case *rst.Heading:
		return n.Line
	case *rst.Table:
		return n.Line
	}
	return 0
}
