package rst

import "strings"

// Block is a block-level node. The interface is sealed: only types in this package
// implement it.
type Block interface {
	blockNode()
}

// Inline is an inline span inside a paragraph, heading, list item or table cell.
type Inline interface {
	inlineNode()
}

// Document is a parsed RST source.
type Document struct {
	Children []Block
	// Anchors holds every anchor id handed out while parsing. Content merged into
	// the rendered page later (embedded snippets) must draw from the same set.
	Anchors *AnchorSet
	// Targets maps normalized hyperlink target names declared in this document.
	Targets map[string]*Target
}

// Paragraph is a run of text lines.
type Paragraph struct {
	Line    int
	Inlines []Inline
}

// Heading is a section title.
type Heading struct {
	Line    int
	Level   int
	Inlines []Inline
	Text    string
	Anchor  string
	// Labels lists explicit targets attached to this heading.
	Labels []string
}

// List is a bullet or enumerated list.
type List struct {
	Line    int
	Ordered bool
	Start   int
	Items   []*ListItem
}

// ListItem holds the blocks of one list entry.
type ListItem struct {
	Children []Block
}

// LiteralBlock is preformatted text, either from a "::" paragraph or a literal directive.
type LiteralBlock struct {
	Line     int
	Language string
	Code     string
}

// Option is one ":key: value" line of a directive.
type Option struct {
	Key   string
	Value string
}

// Options is the ordered option list of a directive.
type Options []Option

// Get returns the value for key.
func (o Options) Get(key string) (string, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present, with or without a value.
func (o Options) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Directive is an explicit markup block ".. name:: argument".
type Directive struct {
	Line     int
	Name     string
	Argument string
	Options  Options
	Body     string
	BodyLine int
	// Children is set for container directives whose body is itself RST.
	Children []Block
}

// Table is a simple table. Header is nil when the table has no header row.
type Table struct {
	Line   int
	Header []TableCell
	Rows   [][]TableCell
}

// TableCell is one cell of a table row.
type TableCell struct {
	Inlines []Inline
}

// BlockQuote is an indented block.
type BlockQuote struct {
	Children []Block
}

// Target is an explicit hyperlink target ".. _label:" with an optional external URL.
type Target struct {
	Line   int
	Label  string
	URL    string
	Anchor string
	// Attached is true when the target names the following heading.
	Attached bool
}

// Comment is an explicit markup block that is not a directive or target.
type Comment struct {
	Text string
}

// Transition is a horizontal rule.
type Transition struct{}

func (*Paragraph) blockNode()    {}
func (*Heading) blockNode()      {}
func (*List) blockNode()         {}
func (*LiteralBlock) blockNode() {}
func (*Directive) blockNode()    {}
func (*Table) blockNode()        {}
func (*BlockQuote) blockNode()   {}
func (*Target) blockNode()       {}
func (*Comment) blockNode()      {}
func (*Transition) blockNode()   {}

// Text is plain text.
type Text struct {
	Value string
}

// Emphasis is *text*.
type Emphasis struct {
	Children []Inline
}

// Strong is **text**.
type Strong struct {
	Children []Inline
}

// Literal is inline literal text, written between double backquotes.
type Literal struct {
	Value string
}

// Role is interpreted text :name:`target`. An empty Name is the default role.
type Role struct {
	Name   string
	Target string
}

// MathInline is a formula from :math:, $..$, $$..$$, \(..\) or \[..\].
type MathInline struct {
	Formula string
	Display bool
}

// Reference is a hyperlink. Label is set for named references that must be looked up,
// URL for resolved or external links. Missing marks a reference whose lookup failed.
type Reference struct {
	Label   string
	Text    string
	URL     string
	Missing bool
}

func (*Text) inlineNode()       {}
func (*Emphasis) inlineNode()   {}
func (*Strong) inlineNode()     {}
func (*Literal) inlineNode()    {}
func (*Role) inlineNode()       {}
func (*MathInline) inlineNode() {}
func (*Reference) inlineNode()  {}

// PlainText flattens inline spans to their visible text.
func PlainText(spans []Inline) string {
	var b strings.Builder
	writePlain(&b, spans)
	return b.String()
}

func writePlain(b *strings.Builder, spans []Inline) {
	for _, s := range spans {
		switch n := s.(type) {
		case *Text:
			b.WriteString(n.Value)
		case *Emphasis:
			writePlain(b, n.Children)
		case *Strong:
			writePlain(b, n.Children)
		case *Literal:
			b.WriteString(n.Value)
		case *Role:
			title, target, _ := SplitTitleTarget(n.Target)
			if title != "" {
				b.WriteString(title)
			} else {
				b.WriteString(target)
			}
		case *MathInline:
			b.WriteString(n.Formula)
		case *Reference:
			if n.Text != "" {
				b.WriteString(n.Text)
			} else {
				b.WriteString(n.Label)
			}
		}
	}
}

// SplitTitleTarget splits role content of the form "Title <target>". explicit is false
// when content is a bare target.
func SplitTitleTarget(content string) (title, target string, explicit bool) {
	c := strings.TrimSpace(content)
	if strings.HasSuffix(c, ">") {
		if i := strings.LastIndex(c, "<"); i > 0 {
			t := strings.TrimSpace(c[:i])
			if t != "" {
				return t, strings.TrimSpace(c[i+1 : len(c)-1]), true
			}
		}
	}
	return "", c, false
}

// NormalizeLabel folds a target or reference name the way RST compares them:
// case-insensitive with runs of whitespace collapsed.
func NormalizeLabel(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
