package diagram

import (
	"regexp"
	"strings"
)

const (
	startState = "[*]start"
	endState   = "[*]end"
)

// State is a node of a state diagram. Pseudo states are the [*] start and end markers.
type State struct {
	ID          string
	Label       string
	Description string
	Pseudo      bool
}

// Transition is a labeled move between states.
type Transition struct {
	From, To string
	Event    string
}

// StateDiagram is the parsed model of a state diagram.
type StateDiagram struct {
	Direction   Direction
	States      []*State
	Transitions []Transition
}

var (
	stateHeaderRe = regexp.MustCompile(`^(?:stateDiagram(?:-v2)?|direction\s+(\w+))$`)
	transitionRe  = regexp.MustCompile(`^(\[\*\]|[A-Za-z_][\w\-]*)\s*(?:-->|->)\s*(\[\*\]|[A-Za-z_][\w\-]*)\s*(?::\s*(.*))?$`)
	stateDeclRe   = regexp.MustCompile(`^state\s+(?:"([^"]+)"\s+as\s+)?([A-Za-z_][\w\-]*)\s*(?::\s*(.*))?$`)
	stateDescRe   = regexp.MustCompile(`^([A-Za-z_][\w\-]*)\s*:\s*(.+)$`)
)

// ParseState parses state diagram source.
func ParseState(source string) (*StateDiagram, error) {
	sd := &StateDiagram{Direction: TopBottom}
	index := make(map[string]*State)
	get := func(id string, asTarget bool) *State {
		if id == "[*]" {
			id = startState
			if asTarget {
				id = endState
			}
		}
		if s, ok := index[id]; ok {
			return s
		}
		s := &State{ID: id, Label: id}
		if id == startState || id == endState {
			s.Label, s.Pseudo = "", true
		}
		index[id] = s
		sd.States = append(sd.States, s)
		return s
	}
	for _, st := range statements(source) {
		if m := stateHeaderRe.FindStringSubmatch(st.text); m != nil {
			if m[1] != "" {
				dir, ok := parseDirection(m[1])
				if !ok {
					return nil, &ParseError{Kind: KindState, Line: st.line, Statement: st.text, Reason: "unknown direction"}
				}
				sd.Direction = dir
			}
			continue
		}
		if m := transitionRe.FindStringSubmatch(st.text); m != nil {
			from := get(m[1], false)
			to := get(m[2], true)
			sd.Transitions = append(sd.Transitions, Transition{From: from.ID, To: to.ID, Event: strings.TrimSpace(m[3])})
			continue
		}
		if m := stateDeclRe.FindStringSubmatch(st.text); m != nil {
			s := get(m[2], false)
			if m[1] != "" {
				s.Label = m[1]
			}
			if m[3] != "" {
				s.Description = strings.TrimSpace(m[3])
			}
			continue
		}
		if m := stateDescRe.FindStringSubmatch(st.text); m != nil {
			get(m[1], false).Description = strings.TrimSpace(m[2])
			continue
		}
		return nil, &ParseError{Kind: KindState, Line: st.line, Statement: st.text, Reason: "unrecognized statement"}
	}
	return sd, nil
}

// RenderState renders state diagram source as SVG.
func RenderState(source string, opts Options) (string, error) {
	sd, err := ParseState(source)
	if err != nil {
		return "", err
	}
	if opts.Direction != "" {
		sd.Direction = opts.Direction
	}
	doc := newSVG(idPrefix(KindState, source))
	doc.marker("arrow", "arrow", true)

	pos := make(map[string]int, len(sd.States))
	nodes := make([]*lnode, len(sd.States))
	for i, s := range sd.States {
		pos[s.ID] = i
		if s.Pseudo {
			nodes[i] = &lnode{width: 20, height: 20, shape: shapeCircle}
			continue
		}
		w := max(textWidth(s.Label), textWidth(s.Description)) + 28
		h := 36.0
		if s.Description != "" {
			h += lineGap
		}
		nodes[i] = &lnode{width: w, height: h, shape: shapeRound}
	}
	edges := make([]*ledge, len(sd.Transitions))
	for i, t := range sd.Transitions {
		edges[i] = &ledge{from: pos[t.From], to: pos[t.To]}
	}
	g := layoutGraph(nodes, edges, sd.Direction)

	for i, e := range edges {
		d, at := g.edgePath(e)
		class := "edge"
		if e.back {
			class = "edge-back"
		}
		doc.path(d, class, "", "arrow")
		if ev := sd.Transitions[i].Event; ev != "" {
			doc.label(at.x, at.y, ev)
		}
	}
	for i, n := range nodes {
		s := sd.States[i]
		switch {
		case s.ID == startState:
			doc.circle(n.x, n.y, 8, "pseudo")
		case s.ID == endState:
			doc.circle(n.x, n.y, 10, "pseudo-end")
			doc.circle(n.x, n.y, 6, "pseudo")
		case s.Description != "":
			doc.rect(n.x-n.width/2, n.y-n.height/2, n.width, n.height, 10, "node")
			doc.text(n.x, n.y-lineGap/2, "middle", "node-label", s.Label)
			doc.text(n.x, n.y+lineGap/2, "middle", "node-description", s.Description)
		default:
			doc.rect(n.x-n.width/2, n.y-n.height/2, n.width, n.height, 10, "node")
			doc.text(n.x, n.y, "middle", "node-label", s.Label)
		}
	}
	return doc.String(KindState, g.width, g.height), nil
}
