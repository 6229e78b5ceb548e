// Package directive turns parsed ".. name::" blocks into a closed set of typed
// directive values. Every directive name the site understands maps to one struct with
// its options already converted; anything else decodes to Unknown.
package directive

import (
	"fmt"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/rst"
)

// Directive is one decoded directive. The set of implementations is closed.
type Directive interface {
	// Name is the directive name as written in the source.
	Name() string
	// Line is the source line of the directive introducer.
	Line() int
	directive()
}

type base struct {
	name string
	line int
}

func (b base) Name() string { return b.name }
func (b base) Line() int    { return b.line }
func (base) directive()     {}

// CodeBlock is code-block, code or sourcecode.
type CodeBlock struct {
	base
	Language    string
	Code        string
	LineNumbers bool
	CopyButton  bool
	Caption     string
}

// Math is a display formula. Each paragraph of the body is a separate formula.
type Math struct {
	base
	Formulas []string
	Label    string
}

// Diagram is a build-time SVG diagram. Type is the diagram grammar: flowchart,
// sequence, gantt, state or class.
type Diagram struct {
	base
	Type      string
	Source    string
	Direction string
	Width     int
	Caption   string
}

// MusicScore is ABC notation engraved to SVG.
type MusicScore struct {
	base
	Source  string
	Width   int
	Scale   float64
	Caption string
}

// Snippet embeds another document by snippet id.
type Snippet struct {
	base
	ID string
}

// SnippetCard renders a linked summary card for a snippet.
type SnippetCard struct {
	base
	ID    string
	Title string
}

// TocEntry is one toctree line, "path" or "Title <path>".
type TocEntry struct {
	Title string
	Path  string
}

// TocTree lists child documents.
type TocTree struct {
	base
	Entries  []TocEntry
	MaxDepth int
	Caption  string
	Hidden   bool
	Numbered bool
	Glob     bool
}

// Contents is a local table of contents built from the headings that follow it.
type Contents struct {
	base
	Title string
	Depth int
	Local bool
}

// Admonition is a callout box. Kind is the directive name for the fixed kinds (note,
// warning, ...) and "admonition" for the generic form, whose argument is the title.
type Admonition struct {
	base
	Kind     string
	Title    string
	Class    string
	Children []rst.Block
}

// Image is a standalone picture.
type Image struct {
	base
	URI    string
	Alt    string
	Width  string
	Height string
	Align  string
	Target string
}

// Figure is an image with a caption and an optional legend.
type Figure struct {
	base
	Image   Image
	Caption []rst.Block
}

// Raw passes content through for one output format.
type Raw struct {
	base
	Format  string
	Content string
}

// Component invokes a theme component. Options become props, nested content becomes the
// default slot.
type Component struct {
	base
	Component string
	Props     rst.Options
	Children  []rst.Block
}

// Unknown is any directive without a handler.
type Unknown struct {
	base
	Argument string
	Body     string
}

var admonitionKinds = map[string]string{
	"attention": "Attention",
	"caution":   "Caution",
	"danger":    "Danger",
	"error":     "Error",
	"hint":      "Hint",
	"important": "Important",
	"note":      "Note",
	"tip":       "Tip",
	"warning":   "Warning",
	"seealso":   "See also",
}

// diagramNames are the directive names that select a diagram grammar directly.
var diagramNames = map[string]string{
	"flowchart":       "flowchart",
	"sequence":        "sequence",
	"sequencediagram": "sequence",
	"gantt":           "gantt",
	"state":           "state",
	"statediagram":    "state",
	"classdiagram":    "class",
}

// BodyMode tells the block parser which directives carry nested RST.
func BodyMode(name string) rst.BodyMode {
	switch {
	case admonitionKinds[name] != "":
		return rst.BodyNested
	case name == "admonition", name == "figure", name == "component":
		return rst.BodyNested
	}
	return rst.BodyRaw
}

// Decode converts a parsed directive into its typed form. Option values that do not
// convert yield a *rst.ParseError at the directive line.
func Decode(d *rst.Directive) (Directive, error) {
	b := base{name: d.Name, line: d.Line}
	dec := &decoder{d: d}
	var out Directive
	switch name := d.Name; {
	case name == "code-block" || name == "code" || name == "sourcecode":
		out = &CodeBlock{
			base:        b,
			Language:    strings.ToLower(strings.TrimSpace(d.Argument)),
			Code:        d.Body,
			LineNumbers: dec.flag("line-numbers", "linenos", "number-lines"),
			CopyButton:  dec.flag("copy", "copy-button"),
			Caption:     dec.str("caption"),
		}
	case name == "math":
		out = &Math{base: b, Formulas: formulas(d), Label: dec.str("label", "name")}
	case name == "diagram" || name == "mermaid":
		typ := strings.ToLower(strings.TrimSpace(d.Argument))
		if name == "mermaid" {
			typ = mermaidType(d.Body)
		}
		if typ == "" {
			return nil, dec.fail("diagram directive needs a diagram type")
		}
		out = &Diagram{base: b, Type: typ, Source: d.Body, Direction: dec.str("direction"), Width: dec.integer("width"), Caption: dec.str("caption")}
	case diagramNames[name] != "":
		out = &Diagram{base: b, Type: diagramNames[name], Source: d.Body, Direction: dec.str("direction"), Width: dec.integer("width"), Caption: dec.str("caption")}
	case name == "musicscore" || name == "abc":
		out = &MusicScore{base: b, Source: d.Body, Width: dec.integer("width"), Scale: dec.float("scale"), Caption: dec.str("caption")}
	case name == "snippet":
		id := strings.TrimSpace(d.Argument)
		if id == "" {
			return nil, dec.fail("snippet directive needs a snippet id")
		}
		out = &Snippet{base: b, ID: id}
	case name == "snippet-card":
		id := strings.TrimSpace(d.Argument)
		if id == "" {
			return nil, dec.fail("snippet-card directive needs a snippet id")
		}
		out = &SnippetCard{base: b, ID: id, Title: dec.str("title")}
	case name == "toctree":
		out = &TocTree{
			base:     b,
			Entries:  tocEntries(d.Body),
			MaxDepth: dec.integer("maxdepth"),
			Caption:  dec.str("caption"),
			Hidden:   dec.flag("hidden"),
			Numbered: dec.flag("numbered"),
			Glob:     dec.flag("glob"),
		}
	case name == "contents":
		out = &Contents{base: b, Title: strings.TrimSpace(d.Argument), Depth: dec.integer("depth"), Local: dec.flag("local")}
	case admonitionKinds[name] != "":
		out = &Admonition{base: b, Kind: name, Title: admonitionKinds[name], Class: dec.str("class"), Children: d.Children}
	case name == "admonition":
		title := strings.TrimSpace(d.Argument)
		if title == "" {
			return nil, dec.fail("admonition directive needs a title")
		}
		out = &Admonition{base: b, Kind: name, Title: title, Class: dec.str("class"), Children: d.Children}
	case name == "image":
		img, err := decodeImage(b, d, dec)
		if err != nil {
			return nil, err
		}
		out = img
	case name == "figure":
		img, err := decodeImage(b, d, dec)
		if err != nil {
			return nil, err
		}
		out = &Figure{base: b, Image: *img, Caption: d.Children}
	case name == "raw":
		format := strings.ToLower(strings.TrimSpace(d.Argument))
		if format == "" {
			return nil, dec.fail("raw directive needs an output format")
		}
		out = &Raw{base: b, Format: format, Content: d.Body}
	case name == "component":
		comp := strings.TrimSpace(d.Argument)
		if comp == "" {
			return nil, dec.fail("component directive needs a component name")
		}
		out = &Component{base: b, Component: comp, Props: d.Options, Children: d.Children}
	default:
		out = &Unknown{base: b, Argument: d.Argument, Body: d.Body}
	}
	if dec.err != nil {
		return nil, dec.err
	}
	return out, nil
}

func decodeImage(b base, d *rst.Directive, dec *decoder) (*Image, error) {
	uri := strings.Join(strings.Fields(d.Argument), "")
	if uri == "" {
		return nil, dec.fail("%s directive needs an image URI", d.Name)
	}
	return &Image{
		base:   b,
		URI:    uri,
		Alt:    dec.str("alt"),
		Width:  dec.str("width"),
		Height: dec.str("height"),
		Align:  dec.str("align"),
		Target: dec.str("target"),
	}, nil
}

// formulas splits a math body at blank lines. A body-less directive uses its argument.
func formulas(d *rst.Directive) []string {
	text := d.Body
	if strings.TrimSpace(text) == "" {
		text = d.Argument
	}
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if f := strings.TrimSpace(part); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// mermaidType reads the diagram kind from the header line of a mermaid-style body.
// The diagram grammars accept their own header lines, so the body is kept whole.
func mermaidType(body string) string {
	for _, l := range strings.Split(body, "\n") {
		fields := strings.Fields(l)
		if len(fields) == 0 {
			continue
		}
		switch kw := strings.ToLower(fields[0]); kw {
		case "graph", "flowchart":
			return "flowchart"
		case "sequencediagram":
			return "sequence"
		case "statediagram", "statediagram-v2":
			return "state"
		case "classdiagram":
			return "class"
		default:
			return kw
		}
	}
	return ""
}

func tocEntries(body string) []TocEntry {
	var out []TocEntry
	for _, l := range strings.Split(body, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "..") {
			continue
		}
		title, target, _ := rst.SplitTitleTarget(l)
		out = append(out, TocEntry{Title: title, Path: target})
	}
	return out
}

// decoder reads options and keeps the first conversion error.
type decoder struct {
	d   *rst.Directive
	err error
}

func (c *decoder) fail(format string, args ...any) error {
	return &rst.ParseError{Line: c.d.Line, Reason: fmt.Sprintf(format, args...)}
}

func (c *decoder) lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := c.d.Options.Get(k); ok {
			return v, true
		}
	}
	return "", false
}

func (c *decoder) str(keys ...string) string {
	v, _ := c.lookup(keys...)
	return v
}

// flag treats a bare option as true and otherwise parses the value as a boolean.
func (c *decoder) flag(keys ...string) bool {
	v, ok := c.lookup(keys...)
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.setErr(keys[0], v, "a boolean")
		return false
	}
	return b
}

func (c *decoder) integer(keys ...string) int {
	v, ok := c.lookup(keys...)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(v, "px"))
	if err != nil || n < 0 {
		c.setErr(keys[0], v, "a non-negative integer")
		return 0
	}
	return n
}

func (c *decoder) float(keys ...string) float64 {
	v, ok := c.lookup(keys...)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		c.setErr(keys[0], v, "a positive number")
		return 0
	}
	return f
}

func (c *decoder) setErr(key, value, want string) {
	if c.err == nil {
		c.err = c.fail("%s option %q expects %s, got %q", c.d.Name, key, want, value)
	}
}
