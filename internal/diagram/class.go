package diagram

import (
	"math"
	"regexp"
	"strings"
)

// RelationKind is the semantic of a class relation line.
type RelationKind string

const (
	Composition RelationKind = "composition"
	Aggregation RelationKind = "aggregation"
	Association RelationKind = "association"
	Inheritance RelationKind = "inheritance"
	Dependency  RelationKind = "dependency"
	Realization RelationKind = "realization"
)

// Class is one class box. Members ending in ")" are methods.
type Class struct {
	Name       string
	Attributes []string
	Methods    []string
}

// Relation connects two classes. Decorated tells which end carries the kind's
// marker: "from", "to" or "" for a plain line.
type Relation struct {
	From, To  string
	Kind      RelationKind
	FromMult  string
	ToMult    string
	Label     string
	Decorated string
}

// ClassDiagram is the parsed model of a class diagram.
type ClassDiagram struct {
	Direction Direction
	Classes   []*Class
	Relations []Relation
}

type relationOp struct {
	kind      RelationKind
	decorated string
}

var relationOps = map[string]relationOp{
	"*--":  {Composition, "from"},
	"--*":  {Composition, "to"},
	"o--":  {Aggregation, "from"},
	"--o":  {Aggregation, "to"},
	"<|--": {Inheritance, "from"},
	"--|>": {Inheritance, "to"},
	"-->":  {Association, "to"},
	"<--":  {Association, "from"},
	"--":   {Association, ""},
	"..>":  {Dependency, "to"},
	"..|>": {Realization, "to"},
	"..":   {Dependency, ""},
}

var (
	classHeaderRe = regexp.MustCompile(`^(?:classDiagram|direction\s+(\w+))$`)
	classOpenRe   = regexp.MustCompile(`^class\s+([A-Za-z_][\w]*)\s*(\{)?\s*(\})?$`)
	memberRe      = regexp.MustCompile(`^([A-Za-z_][\w]*)\s*:\s*(.+)$`)
	relationRe    = regexp.MustCompile(`^([A-Za-z_][\w]*)\s*(?:"([^"]*)")?\s*(<\|--|--\|>|\.\.\|>|\*--|--\*|o--|--o|-->|<--|\.\.>|--|\.\.)\s*(?:"([^"]*)")?\s*([A-Za-z_][\w]*)\s*(?::\s*(.*))?$`)
)

// ParseClass parses class diagram source.
func ParseClass(source string) (*ClassDiagram, error) {
	cd := &ClassDiagram{Direction: TopBottom}
	index := make(map[string]*Class)
	class := func(name string) *Class {
		if c, ok := index[name]; ok {
			return c
		}
		c := &Class{Name: name}
		index[name] = c
		cd.Classes = append(cd.Classes, c)
		return c
	}
	var open *Class
	for _, st := range statements(source) {
		if open != nil {
			if st.text == "}" {
				open = nil
				continue
			}
			open.addMember(st.text)
			continue
		}
		if m := classHeaderRe.FindStringSubmatch(st.text); m != nil {
			if m[1] != "" {
				dir, ok := parseDirection(m[1])
				if !ok {
					return nil, &ParseError{Kind: KindClass, Line: st.line, Statement: st.text, Reason: "unknown direction"}
				}
				cd.Direction = dir
			}
			continue
		}
		if m := classOpenRe.FindStringSubmatch(st.text); m != nil {
			c := class(m[1])
			if m[2] != "" && m[3] == "" {
				open = c
			}
			continue
		}
		if m := relationRe.FindStringSubmatch(st.text); m != nil {
			op := relationOps[m[3]]
			from, to := class(m[1]), class(m[5])
			cd.Relations = append(cd.Relations, Relation{
				From:      from.Name,
				To:        to.Name,
				Kind:      op.kind,
				FromMult:  m[2],
				ToMult:    m[4],
				Label:     strings.TrimSpace(m[6]),
				Decorated: op.decorated,
			})
			continue
		}
		if m := memberRe.FindStringSubmatch(st.text); m != nil {
			class(m[1]).addMember(m[2])
			continue
		}
		return nil, &ParseError{Kind: KindClass, Line: st.line, Statement: st.text, Reason: "unrecognized statement"}
	}
	if open != nil {
		return nil, &ParseError{Kind: KindClass, Reason: "class " + open.Name + " body is not closed"}
	}
	return cd, nil
}

func (c *Class) addMember(m string) {
	m = strings.TrimSpace(m)
	if strings.HasSuffix(m, ")") || strings.Contains(m, ")") && strings.Contains(m, "(") {
		c.Methods = append(c.Methods, m)
		return
	}
	c.Attributes = append(c.Attributes, m)
}

const classHeader = 28.0

// RenderClass renders class diagram source as SVG.
func RenderClass(source string, opts Options) (string, error) {
	cd, err := ParseClass(source)
	if err != nil {
		return "", err
	}
	if opts.Direction != "" {
		cd.Direction = opts.Direction
	}
	doc := newSVG(idPrefix(KindClass, source))

	pos := make(map[string]int, len(cd.Classes))
	nodes := make([]*lnode, len(cd.Classes))
	for i, c := range cd.Classes {
		pos[c.Name] = i
		w := textWidth(c.Name)
		for _, m := range append(append([]string{}, c.Attributes...), c.Methods...) {
			w = max(w, textWidth(m))
		}
		h := classHeader + float64(max(len(c.Attributes), 1))*lineGap + float64(max(len(c.Methods), 1))*lineGap + 8
		nodes[i] = &lnode{width: w + 24, height: h, shape: shapeRect}
	}
	edges := make([]*ledge, len(cd.Relations))
	for i, r := range cd.Relations {
		edges[i] = &ledge{from: pos[r.From], to: pos[r.To]}
	}
	g := layoutGraph(nodes, edges, cd.Direction)

	for i, e := range edges {
		r := cd.Relations[i]
		start, end := "", ""
		switch r.Decorated {
		case "from":
			start = relationMarker(doc, r.Kind)
		case "to":
			end = relationMarker(doc, r.Kind)
		}
		class := "relation"
		if r.Kind == Dependency || r.Kind == Realization {
			class = "relation-dashed"
		}
		d, at := g.edgePath(e)
		doc.path(d, class, start, end)
		if r.Label != "" {
			doc.label(at.x, at.y, r.Label)
		}
		a, b := g.nodes[e.from], g.nodes[e.to]
		if r.FromMult != "" {
			p := multiplicityAt(boundary(a, point{b.x, b.y}), a, b)
			doc.text(p.x, p.y, "start", "multiplicity", r.FromMult)
		}
		if r.ToMult != "" {
			p := multiplicityAt(boundary(b, point{a.x, a.y}), b, a)
			doc.text(p.x, p.y, "start", "multiplicity", r.ToMult)
		}
	}
	for i, n := range nodes {
		c := cd.Classes[i]
		x, y := n.x-n.width/2, n.y-n.height/2
		doc.rect(x, y, n.width, n.height, 0, "class-box")
		doc.text(n.x, y+classHeader/2, "middle", "class-name", c.Name)
		y += classHeader
		doc.line(x, y, x+n.width, y, "divider", "")
		y += 4
		for _, a := range c.Attributes {
			doc.text(x+10, y+lineGap/2, "start", "member", a)
			y += lineGap
		}
		if len(c.Attributes) == 0 {
			y += lineGap
		}
		doc.line(x, y, x+n.width, y, "divider", "")
		for _, m := range c.Methods {
			doc.text(x+10, y+lineGap/2+2, "start", "member", m)
			y += lineGap
		}
	}
	return doc.String(KindClass, g.width, g.height), nil
}

func relationMarker(doc *svgDoc, kind RelationKind) string {
	switch kind {
	case Composition:
		doc.marker("composition", "diamond", true)
		return "composition"
	case Aggregation:
		doc.marker("aggregation", "diamond", false)
		return "aggregation"
	case Inheritance, Realization:
		doc.marker("inheritance", "triangle", false)
		return "inheritance"
	case Association, Dependency:
		doc.marker("association", "open-arrow", false)
		return "association"
	}
	return ""
}

// multiplicityAt places a label just off the line leaving node a toward b at p.
func multiplicityAt(p point, a, b *lnode) point {
	dx, dy := b.x-a.x, b.y-a.y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return point{p.x + 8, p.y - 8}
	}
	ux, uy := dx/length, dy/length
	return point{p.x + ux*16 - uy*10 + 4, p.y + uy*16 + ux*10}
}
