package rst

import (
	"regexp"
	"strconv"
	"strings"
)

// BodyMode tells the parser how to treat the content of a directive.
type BodyMode int

const (
	// BodyRaw keeps the content as text in Directive.Body.
	BodyRaw BodyMode = iota
	// BodyNested parses the content as RST into Directive.Children.
	BodyNested
	// BodyNestedArgument parses the argument and the content as one RST body
	// (admonitions write their first paragraph on the directive line).
	BodyNestedArgument
)

// ParseOption configures Parse.
type ParseOption func(*parser)

// WithPath sets the document path reported in ParseError.
func WithPath(path string) ParseOption {
	return func(p *parser) { p.path = path }
}

// WithLineOffset shifts reported line numbers, for sources that follow front matter.
func WithLineOffset(n int) ParseOption {
	return func(p *parser) { p.offset = n }
}

// WithBodyModes supplies the directive content classification.
func WithBodyModes(fn func(name string) BodyMode) ParseOption {
	return func(p *parser) { p.bodyMode = fn }
}

type adornment struct {
	ch   rune
	over bool
}

type parser struct {
	path     string
	offset   int
	bodyMode func(string) BodyMode
	styles   []adornment
	anchors  *AnchorSet
	targets  map[string]*Target
}

// Parse parses an RST document.
func Parse(src string, opts ...ParseOption) (*Document, error) {
	p := &parser{
		anchors: NewAnchorSet(),
		targets: make(map[string]*Target),
	}
	for _, o := range opts {
		o(p)
	}
	blocks, err := p.parseBlocks(splitLines(src, p.offset))
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = p.path
		}
		return nil, err
	}
	p.attachTargets(blocks)
	return &Document{Children: blocks, Anchors: p.anchors, Targets: p.targets}, nil
}

var (
	directiveRe  = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_\-:+.]*)::(?:\s+(.*))?$`)
	optionRe     = regexp.MustCompile(`^:([^:\s][^:]*):(?:\s+(.*))?$`)
	bulletRe     = regexp.MustCompile(`^([-*+\x{2022}])(?: +|$)`)
	enumRe       = regexp.MustCompile(`^(?:(\d+|#)[.)]|\((\d+|#)\))(?: +|$)`)
	tableEdgeRe  = regexp.MustCompile(`^=+( +=+)+$`)
	targetNameRe = regexp.MustCompile("^_(`[^`]+`|[^:`]+|_):(?:\\s+(.*))?$")
)

func (p *parser) parseBlocks(ls []line) ([]Block, error) {
	var blocks []Block
	i := 0
	for i < len(ls) {
		l := ls[i]
		if blank(l) {
			i++
			continue
		}
		if indentOf(l.text) > 0 {
			j := i
			for j < len(ls) && (blank(ls[j]) || indentOf(ls[j].text) > 0) {
				j++
			}
			children, err := p.parseBlocks(dedent(trimTrailingBlank(ls[i:j])))
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, &BlockQuote{Children: children})
			i = j
			continue
		}
		if isExplicitStart(l.text) {
			b, next, err := p.parseExplicit(ls, i)
			if err != nil {
				return nil, err
			}
			if b != nil {
				blocks = append(blocks, b)
			}
			i = next
			continue
		}
		if h, next, ok, err := p.tryHeading(ls, i); err != nil {
			return nil, err
		} else if ok {
			blocks = append(blocks, h)
			i = next
			continue
		}
		if ch, ok := adornmentChar(l.text); ok && len(l.text) >= 4 && ch != ':' && (i+1 == len(ls) || blank(ls[i+1])) {
			blocks = append(blocks, &Transition{})
			i++
			continue
		}
		if tableEdgeRe.MatchString(l.text) {
			t, next, err := parseTable(ls, i)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, t)
			i = next
			continue
		}
		if m := listMarker(l.text); m != nil {
			list, next, err := p.parseList(ls, i, m)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, list)
			i = next
			continue
		}
		para, lit, next := p.parseParagraph(ls, i)
		if para != nil {
			blocks = append(blocks, para)
		}
		if lit != nil {
			blocks = append(blocks, lit)
		}
		i = next
	}
	return blocks, nil
}

func isExplicitStart(s string) bool {
	return s == ".." || strings.HasPrefix(s, ".. ")
}

func (p *parser) tryHeading(ls []line, i int) (*Heading, int, bool, error) {
	l := ls[i]
	if ch, ok := adornmentChar(l.text); ok {
		// Overline style: adornment, title, adornment.
		if i+1 >= len(ls) || blank(ls[i+1]) {
			return nil, i, false, nil
		}
		if _, isAdorn := adornmentChar(ls[i+1].text); isAdorn {
			return nil, i, false, nil
		}
		if i+2 >= len(ls) {
			return nil, i, false, errorf(l.num, "section title overline without matching underline")
		}
		under, ok := adornmentChar(ls[i+2].text)
		if !ok || under != ch {
			return nil, i, false, errorf(l.num, "section title overline without matching underline")
		}
		title := strings.TrimSpace(ls[i+1].text)
		if visualLen(l.text) < visualLen(title) || visualLen(ls[i+2].text) < visualLen(title) {
			return nil, i, false, errorf(l.num, "section title overline or underline too short for %q", title)
		}
		return p.newHeading(title, adornment{ch: ch, over: true}, ls[i+1].num), i + 3, true, nil
	}
	if i+1 >= len(ls) {
		return nil, i, false, nil
	}
	ch, ok := adornmentChar(ls[i+1].text)
	if !ok {
		return nil, i, false, nil
	}
	title := strings.TrimSpace(l.text)
	if visualLen(ls[i+1].text) < visualLen(title) {
		return nil, i, false, nil
	}
	return p.newHeading(title, adornment{ch: ch}, l.num), i + 2, true, nil
}

func (p *parser) newHeading(title string, style adornment, num int) *Heading {
	level := 0
	for idx, s := range p.styles {
		if s == style {
			level = idx + 1
			break
		}
	}
	if level == 0 {
		p.styles = append(p.styles, style)
		level = len(p.styles)
	}
	inlines := ParseInline(title)
	text := PlainText(inlines)
	return &Heading{
		Line:    num,
		Level:   level,
		Inlines: inlines,
		Text:    text,
		Anchor:  p.anchors.Unique(Slugify(text)),
	}
}

func (p *parser) parseParagraph(ls []line, i int) (*Paragraph, *LiteralBlock, int) {
	start := i
	var texts []string
	for i < len(ls) && !blank(ls[i]) {
		if i > start && indentOf(ls[i].text) == 0 {
			if m := listMarker(ls[i].text); m != nil && m.bullet {
				break
			}
		}
		texts = append(texts, strings.TrimSpace(ls[i].text))
		i++
	}
	text := strings.Join(texts, "\n")
	literal := false
	switch {
	case text == "::":
		text = ""
		literal = true
	case strings.HasSuffix(text, "::"):
		literal = true
		head := text[:len(text)-2]
		if strings.HasSuffix(head, " ") || strings.HasSuffix(head, "\n") {
			text = strings.TrimRight(head, " \n")
		} else {
			text = head + ":"
		}
	}
	var para *Paragraph
	if text != "" {
		para = &Paragraph{Line: ls[start].num, Inlines: ParseInline(text)}
	}
	if !literal {
		return para, nil, i
	}
	j := i
	for j < len(ls) && blank(ls[j]) {
		j++
	}
	if j >= len(ls) || indentOf(ls[j].text) == 0 {
		return para, nil, i
	}
	k := j
	for k < len(ls) && (blank(ls[k]) || indentOf(ls[k].text) > 0) {
		k++
	}
	body := dedent(trimTrailingBlank(ls[j:k]))
	return para, &LiteralBlock{Line: ls[j].num, Code: joinText(body)}, k
}

func (p *parser) parseExplicit(ls []line, i int) (Block, int, error) {
	l := ls[i]
	j := i + 1
	for j < len(ls) && (blank(ls[j]) || indentOf(ls[j].text) > 0) {
		j++
	}
	content := trimTrailingBlank(ls[i+1 : j])
	head := strings.TrimSpace(strings.TrimPrefix(l.text, ".."))

	if head == "" {
		return &Comment{Text: joinText(dedent(content))}, j, nil
	}
	if m := targetNameRe.FindStringSubmatch(head); m != nil {
		label := strings.Trim(m[1], "`")
		url := strings.TrimSpace(m[2])
		for _, c := range content {
			url += strings.TrimSpace(c.text)
		}
		t := &Target{Line: l.num, Label: label, URL: url}
		p.targets[NormalizeLabel(label)] = t
		return t, j, nil
	}
	m := directiveRe.FindStringSubmatch(head)
	if m == nil {
		return &Comment{Text: head + "\n" + joinText(dedent(content))}, j, nil
	}
	d, err := p.parseDirective(strings.ToLower(m[1]), strings.TrimSpace(m[2]), l.num, content)
	if err != nil {
		return nil, j, err
	}
	return d, j, nil
}

func (p *parser) parseDirective(name, argument string, num int, content []line) (*Directive, error) {
	d := &Directive{Line: num, Name: name, Argument: argument}
	body := dedent(content)
	k := 0
	for d.Argument != "" && k < len(body) && !blank(body[k]) && !strings.HasPrefix(body[k].text, ":") {
		d.Argument += " " + strings.TrimSpace(body[k].text)
		k++
	}
	for k < len(body) && !blank(body[k]) && strings.HasPrefix(body[k].text, ":") {
		m := optionRe.FindStringSubmatch(body[k].text)
		if m == nil {
			return nil, errorf(body[k].num, "unterminated directive option block in %q: %q", name, body[k].text)
		}
		opt := Option{Key: strings.ToLower(strings.TrimSpace(m[1])), Value: strings.TrimSpace(m[2])}
		k++
		for k < len(body) && !blank(body[k]) && indentOf(body[k].text) > 0 {
			opt.Value = strings.TrimSpace(opt.Value + " " + strings.TrimSpace(body[k].text))
			k++
		}
		d.Options = append(d.Options, opt)
	}
	for k < len(body) && blank(body[k]) {
		k++
	}
	rest := dedent(body[k:])
	if len(rest) > 0 {
		d.BodyLine = rest[0].num
	}
	d.Body = joinText(rest)

	mode := BodyRaw
	if p.bodyMode != nil {
		mode = p.bodyMode(name)
	}
	if mode == BodyRaw {
		return d, nil
	}
	nested := rest
	if mode == BodyNestedArgument && d.Argument != "" {
		nested = append([]line{{text: d.Argument, num: num}, {num: num}}, rest...)
	}
	children, err := p.parseBlocks(nested)
	if err != nil {
		return nil, err
	}
	d.Children = children
	return d, nil
}

type marker struct {
	bullet bool
	char   string
	width  int
	start  int
}

func listMarker(s string) *marker {
	if m := bulletRe.FindStringSubmatch(s); m != nil {
		return &marker{bullet: true, char: m[1], width: contentColumn(s, len(m[0]))}
	}
	if m := enumRe.FindStringSubmatch(s); m != nil {
		num := m[1]
		style := "."
		if num == "" {
			num = m[2]
			style = "()"
		} else if strings.Contains(m[0], ")") {
			style = ")"
		}
		start := 1
		if n, err := strconv.Atoi(num); err == nil {
			start = n
		}
		return &marker{char: style, width: contentColumn(s, len(m[0])), start: start}
	}
	return nil
}

// contentColumn is where item text starts; a bare marker indents its body by two.
func contentColumn(s string, matched int) int {
	if matched >= len(s) {
		return len(strings.TrimRight(s[:matched], " ")) + 1
	}
	return matched
}

func (p *parser) parseList(ls []line, i int, first *marker) (*List, int, error) {
	list := &List{Line: ls[i].num, Ordered: !first.bullet, Start: first.start}
	for i < len(ls) {
		if blank(ls[i]) {
			j := i
			for j < len(ls) && blank(ls[j]) {
				j++
			}
			if j < len(ls) && indentOf(ls[j].text) == 0 && sameKind(listMarker(ls[j].text), first) {
				i = j
				continue
			}
			break
		}
		m := listMarker(ls[i].text)
		if !sameKind(m, first) {
			break
		}
		col := m.width
		var firstText string
		if col < len(ls[i].text) {
			firstText = ls[i].text[col:]
		}
		item := []line{{text: firstText, num: ls[i].num}}
		j := i + 1
		for j < len(ls) {
			t := ls[j]
			if blank(t) {
				item = append(item, t)
				j++
				continue
			}
			ind := indentOf(t.text)
			if ind >= col {
				item = append(item, line{text: t.text[col:], num: t.num})
				j++
				continue
			}
			if ind > 0 && !blank(ls[j-1]) {
				return nil, j, errorf(t.num, "badly indented list item continuation (expected %d spaces, got %d)", col, ind)
			}
			break
		}
		children, err := p.parseBlocks(trimTrailingBlank(item))
		if err != nil {
			return nil, j, err
		}
		list.Items = append(list.Items, &ListItem{Children: children})
		i = j
	}
	return list, i, nil
}

func sameKind(m, first *marker) bool {
	return m != nil && m.bullet == first.bullet && m.char == first.char
}

func parseTable(ls []line, i int) (*Table, int, error) {
	start := ls[i]
	j := i
	for j < len(ls) && !blank(ls[j]) {
		j++
	}
	rows := ls[i:j]
	var borders []int
	for idx, r := range rows {
		if tableEdgeRe.MatchString(r.text) {
			borders = append(borders, idx)
		}
	}
	if borders[len(borders)-1] != len(rows)-1 {
		return nil, j, errorf(rows[len(rows)-1].num, "simple table not terminated by a border line")
	}
	if len(borders) != 2 && len(borders) != 3 {
		return nil, j, errorf(start.num, "malformed simple table: expected 2 or 3 border lines, found %d", len(borders))
	}
	cols := columnSpans(start.text)
	t := &Table{Line: start.num}
	section := func(from, to int) ([][]TableCell, error) {
		var out [][]string
		for _, r := range rows[from:to] {
			cells, err := splitColumns(r, cols)
			if err != nil {
				return nil, err
			}
			if len(out) > 0 && strings.TrimSpace(cells[0]) == "" {
				prev := out[len(out)-1]
				for c := range cells {
					if s := strings.TrimSpace(cells[c]); s != "" {
						prev[c] = strings.TrimSpace(prev[c] + " " + s)
					}
				}
				continue
			}
			for c := range cells {
				cells[c] = strings.TrimSpace(cells[c])
			}
			out = append(out, cells)
		}
		res := make([][]TableCell, len(out))
		for r, cells := range out {
			res[r] = make([]TableCell, len(cells))
			for c, text := range cells {
				res[r][c] = TableCell{Inlines: ParseInline(text)}
			}
		}
		return res, nil
	}
	body := borders[0] + 1
	if len(borders) == 3 {
		header, err := section(borders[0]+1, borders[1])
		if err != nil {
			return nil, j, err
		}
		if len(header) > 0 {
			t.Header = header[0]
		}
		body = borders[1] + 1
	}
	rowCells, err := section(body, borders[len(borders)-1])
	if err != nil {
		return nil, j, err
	}
	t.Rows = rowCells
	return t, j, nil
}

// span is a column range counted in runes.
type span struct{ start, end int }

func columnSpans(border string) []span {
	var spans []span
	in := false
	col := 0
	for _, r := range border {
		if r == '=' && !in {
			spans = append(spans, span{start: col})
			in = true
		} else if r != '=' && in {
			spans[len(spans)-1].end = col
			in = false
		}
		col++
	}
	if in {
		spans[len(spans)-1].end = col
	}
	return spans
}

// splitColumns cuts a row into cells by rune column. The last column runs to the end of
// the line; text in the margin between two columns is an error.
func splitColumns(l line, cols []span) ([]string, error) {
	rs := []rune(l.text)
	clamp := func(n int) int { return min(n, len(rs)) }
	cells := make([]string, len(cols))
	for c, sp := range cols {
		if sp.start >= len(rs) {
			continue
		}
		if c == len(cols)-1 {
			cells[c] = string(rs[sp.start:])
			continue
		}
		cells[c] = string(rs[sp.start:clamp(sp.end)])
		if gap := string(rs[clamp(sp.end):clamp(cols[c+1].start)]); strings.TrimSpace(gap) != "" {
			return nil, errorf(l.num, "text in column margin of simple table")
		}
	}
	return cells, nil
}

// attachTargets binds internal targets to the heading that follows them and gives the
// remaining ones their own anchors.
func (p *parser) attachTargets(blocks []Block) {
	for idx, b := range blocks {
		switch n := b.(type) {
		case *Target:
			if n.URL != "" {
				continue
			}
			if h := nextHeading(blocks[idx+1:]); h != nil {
				n.Anchor = h.Anchor
				n.Attached = true
				h.Labels = append(h.Labels, n.Label)
				continue
			}
			n.Anchor = p.anchors.Unique(Slugify(n.Label))
		case *BlockQuote:
			p.attachTargets(n.Children)
		case *List:
			for _, it := range n.Items {
				p.attachTargets(it.Children)
			}
		case *Directive:
			p.attachTargets(n.Children)
		}
	}
}

func nextHeading(rest []Block) *Heading {
	for _, b := range rest {
		switch n := b.(type) {
		case *Heading:
			return n
		case *Target, *Comment:
			continue
		default:
			return nil
		}
	}
	return nil
}
