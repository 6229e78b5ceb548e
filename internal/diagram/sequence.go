package diagram

import (
	"regexp"
	"strings"
)

// Actor is a participant of a sequence diagram.
type Actor struct {
	ID    string
	Label string
}

// Message is one arrow between actors. Async covers asynchronous calls and replies.
type Message struct {
	From, To string
	Text     string
	Async    bool
}

// Sequence is the parsed model of a sequence diagram.
type Sequence struct {
	Title    string
	Actors   []*Actor
	Messages []Message
}

var (
	participantRe = regexp.MustCompile(`^(?:participant|actor)\s+([^\s:]+)(?:\s+as\s+(.+))?$`)
	messageRe     = regexp.MustCompile(`^([^\s:\->]+)\s*(-->>|->)\s*([^\s:\->]+)\s*(?::\s*(.*))?$`)
	titleRe       = regexp.MustCompile(`^title\s+(.+)$`)
)

// ParseSequence parses sequence diagram source.
func ParseSequence(source string) (*Sequence, error) {
	seq := &Sequence{}
	index := make(map[string]*Actor)
	actor := func(id string) *Actor {
		if a, ok := index[id]; ok {
			return a
		}
		a := &Actor{ID: id, Label: id}
		index[id] = a
		seq.Actors = append(seq.Actors, a)
		return a
	}
	for _, st := range statements(source) {
		switch {
		case st.text == "sequenceDiagram":
		case titleRe.MatchString(st.text):
			seq.Title = strings.TrimSpace(titleRe.FindStringSubmatch(st.text)[1])
		case participantRe.MatchString(st.text):
			m := participantRe.FindStringSubmatch(st.text)
			a := actor(m[1])
			if m[2] != "" {
				a.Label = strings.TrimSpace(m[2])
			}
		case messageRe.MatchString(st.text):
			m := messageRe.FindStringSubmatch(st.text)
			from, to := actor(m[1]), actor(m[3])
			seq.Messages = append(seq.Messages, Message{
				From:  from.ID,
				To:    to.ID,
				Text:  strings.TrimSpace(m[4]),
				Async: m[2] == "-->>",
			})
		default:
			return nil, &ParseError{Kind: KindSequence, Line: st.line, Statement: st.text, Reason: "unrecognized statement"}
		}
	}
	return seq, nil
}

const (
	actorHeight = 36.0
	messageStep = 44.0
	selfWidth   = 36.0
)

// RenderSequence renders sequence diagram source as SVG.
func RenderSequence(source string, _ Options) (string, error) {
	seq, err := ParseSequence(source)
	if err != nil {
		return "", err
	}
	doc := newSVG(idPrefix(KindSequence, source))
	doc.marker("sync", "arrow", true)
	doc.marker("async", "open-arrow", false)

	top := margin
	if seq.Title != "" {
		top += 30
	}
	// Columns are wide enough for the actor box and the longest message leaving it.
	widths := make([]float64, len(seq.Actors))
	col := make(map[string]int, len(seq.Actors))
	for i, a := range seq.Actors {
		col[a.ID] = i
		widths[i] = max(textWidth(a.Label)+24, 80)
	}
	gaps := make([]float64, len(seq.Actors))
	for _, m := range seq.Messages {
		from, to := col[m.From], col[m.To]
		need := textWidth(m.Text) + 24
		switch {
		case from == to:
			gaps[from] = max(gaps[from], need/2+selfWidth)
		default:
			left := min(from, to)
			span := max(from, to) - left
			gaps[left] = max(gaps[left], need/float64(span))
		}
	}
	centers := make([]float64, len(seq.Actors))
	x := margin
	for i := range seq.Actors {
		centers[i] = x + widths[i]/2
		x += widths[i] + max(gaps[i], 40)
	}
	width := max(x, textWidth(seq.Title)+2*margin)

	lifeTop := top + actorHeight
	lifeBottom := lifeTop + float64(len(seq.Messages)+1)*messageStep
	height := lifeBottom + actorHeight + margin

	if seq.Title != "" {
		doc.text(width/2, margin+10, "middle", "title", seq.Title)
	}
	for i, a := range seq.Actors {
		cx := centers[i]
		doc.line(cx, lifeTop, cx, lifeBottom, "lifeline", "")
		for _, y := range []float64{top, lifeBottom} {
			doc.rect(cx-widths[i]/2, y, widths[i], actorHeight, 4, "actor")
			doc.text(cx, y+actorHeight/2, "middle", "actor-label", a.Label)
		}
	}
	for i, m := range seq.Messages {
		y := lifeTop + float64(i+1)*messageStep
		class, marker := "msg-sync", "sync"
		if m.Async {
			class, marker = "msg-async", "async"
		}
		x1, x2 := centers[col[m.From]], centers[col[m.To]]
		if x1 == x2 {
			d := "M" + num(x1) + "," + num(y-10) + " L" + num(x1+selfWidth) + "," + num(y-10) +
				" L" + num(x1+selfWidth) + "," + num(y+10) + " L" + num(x1) + "," + num(y+10)
			doc.path(d, class, "", marker)
			if m.Text != "" {
				doc.text(x1+selfWidth+6, y, "start", "message", m.Text)
			}
			continue
		}
		doc.line(x1, y, x2, y, class, marker)
		if m.Text != "" {
			doc.text((x1+x2)/2, y-10, "middle", "message", m.Text)
		}
	}
	return doc.String(KindSequence, width, height), nil
}
