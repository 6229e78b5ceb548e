package diagram

import (
	"regexp"
	"strings"
)

// FlowNode is a flowchart node. Shape is "rect", "round" or "diamond".
type FlowNode struct {
	ID    string
	Label string
	Shape string
}

// FlowEdge is a directed, optionally labeled connection.
type FlowEdge struct {
	From, To string
	Label    string
}

// Flowchart is the parsed model of a flowchart diagram.
type Flowchart struct {
	Direction Direction
	Nodes     []*FlowNode
	Edges     []FlowEdge
}

var (
	flowNodeRe   = regexp.MustCompile(`^([A-Za-z_][\w\-]*)\s*(?:\[([^\]]*)\]|\(([^)]*)\)|\{([^}]*)\})?$`)
	flowHeaderRe = regexp.MustCompile(`^(?:direction|graph|flowchart)(?:\s+(\w+))?$`)
	edgeLabelRe  = regexp.MustCompile(`^\|([^|]*)\|\s*`)
)

// ParseFlowchart parses flowchart source.
func ParseFlowchart(source string) (*Flowchart, error) {
	fc := &Flowchart{Direction: TopBottom}
	index := make(map[string]*FlowNode)
	for _, st := range statements(source) {
		if m := flowHeaderRe.FindStringSubmatch(st.text); m != nil {
			if m[1] == "" {
				continue
			}
			dir, ok := parseDirection(m[1])
			if !ok {
				return nil, &ParseError{Kind: KindFlowchart, Line: st.line, Statement: st.text, Reason: "unknown direction"}
			}
			fc.Direction = dir
			continue
		}
		if err := fc.parseChain(st, index); err != nil {
			return nil, err
		}
	}
	return fc, nil
}

func (fc *Flowchart) parseChain(st statement, index map[string]*FlowNode) error {
	fail := func(reason string) error {
		return &ParseError{Kind: KindFlowchart, Line: st.line, Statement: st.text, Reason: reason}
	}
	segments := splitArrows(st.text)
	trailing := ""
	if len(segments) == 2 {
		if head, label, ok := cutOutside(segments[1], ':'); ok {
			segments[1] = head
			trailing = strings.TrimSpace(label)
		}
	}
	var prev string
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		label := ""
		if i > 0 {
			if m := edgeLabelRe.FindStringSubmatch(seg); m != nil {
				label = strings.TrimSpace(m[1])
				seg = seg[len(m[0]):]
			}
		}
		m := flowNodeRe.FindStringSubmatch(seg)
		if m == nil {
			if seg == "" {
				return fail("missing node")
			}
			return fail("unrecognized statement")
		}
		id := m[1]
		node := fc.node(index, id)
		switch {
		case m[2] != "":
			node.Label, node.Shape = m[2], "rect"
		case m[3] != "":
			node.Label, node.Shape = m[3], "round"
		case m[4] != "":
			node.Label, node.Shape = m[4], "diamond"
		}
		if i > 0 {
			fc.Edges = append(fc.Edges, FlowEdge{From: prev, To: id, Label: label})
		}
		prev = id
	}
	if n := len(fc.Edges); trailing != "" && fc.Edges[n-1].Label == "" {
		fc.Edges[n-1].Label = trailing
	}
	return nil
}

func (fc *Flowchart) node(index map[string]*FlowNode, id string) *FlowNode {
	if n, ok := index[id]; ok {
		return n
	}
	n := &FlowNode{ID: id, Label: id, Shape: "rect"}
	index[id] = n
	fc.Nodes = append(fc.Nodes, n)
	return n
}

// splitArrows splits a chain on "->", "-->" and "==>" outside of brackets.
func splitArrows(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			if depth > 0 {
				depth--
			}
		case '|':
			if depth == 0 {
				if end := strings.IndexByte(s[i+1:], '|'); end >= 0 {
					i += end + 1
				}
			}
		case '-', '=':
			if depth != 0 {
				continue
			}
			for _, arrow := range []string{"-->", "==>", "->"} {
				if strings.HasPrefix(s[i:], arrow) {
					parts = append(parts, s[start:i])
					i += len(arrow) - 1
					start = i + 1
					break
				}
			}
		}
	}
	return append(parts, s[start:])
}

// cutOutside splits s at the first sep that is not inside brackets or an edge label.
func cutOutside(s string, sep byte) (string, string, bool) {
	depth := 0
	pipe := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '|':
			pipe = !pipe
		case c == '[' || c == '(' || c == '{':
			depth++
		case c == ']' || c == ')' || c == '}':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0 && !pipe:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// RenderFlowchart renders flowchart source as SVG.
func RenderFlowchart(source string, opts Options) (string, error) {
	fc, err := ParseFlowchart(source)
	if err != nil {
		return "", err
	}
	if opts.Direction != "" {
		fc.Direction = opts.Direction
	}
	doc := newSVG(idPrefix(KindFlowchart, source))
	doc.marker("arrow", "arrow", true)

	pos := make(map[string]int, len(fc.Nodes))
	nodes := make([]*lnode, len(fc.Nodes))
	for i, n := range fc.Nodes {
		pos[n.ID] = i
		w, h := textWidth(n.Label)+24, 36.0
		sh := shapeRect
		switch n.Shape {
		case "round":
			sh = shapeRound
		case "diamond":
			sh = shapeDiamond
			w, h = w*1.4, h*1.6
		}
		nodes[i] = &lnode{width: w, height: h, shape: sh}
	}
	edges := make([]*ledge, len(fc.Edges))
	for i, e := range fc.Edges {
		edges[i] = &ledge{from: pos[e.From], to: pos[e.To]}
	}
	g := layoutGraph(nodes, edges, fc.Direction)

	for i, e := range edges {
		d, at := g.edgePath(e)
		class := "edge"
		if e.back {
			class = "edge-back"
		}
		doc.path(d, class, "", "arrow")
		if label := fc.Edges[i].Label; label != "" {
			doc.label(at.x, at.y, label)
		}
	}
	for i, n := range nodes {
		drawShape(doc, n, "node")
		doc.text(n.x, n.y, "middle", "node-label", fc.Nodes[i].Label)
	}
	return doc.String(KindFlowchart, g.width, g.height), nil
}

func drawShape(doc *svgDoc, n *lnode, class string) {
	switch n.shape {
	case shapeDiamond:
		doc.polygon([]point{
			{n.x, n.y - n.height/2}, {n.x + n.width/2, n.y}, {n.x, n.y + n.height/2}, {n.x - n.width/2, n.y},
		}, class)
	case shapeRound:
		doc.rect(n.x-n.width/2, n.y-n.height/2, n.width, n.height, n.height/2, class)
	case shapeCircle:
		doc.circle(n.x, n.y, n.width/2, class)
	default:
		doc.rect(n.x-n.width/2, n.y-n.height/2, n.width, n.height, 4, class)
	}
}
