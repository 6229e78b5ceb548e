package diagram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render("pie", "a: 1", Options{})
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Error(), `unsupported diagram type "pie"`)
}

func TestRenderDispatchesEveryKind(t *testing.T) {
	sources := map[Kind]string{
		KindFlowchart: "A -> B",
		KindSequence:  "A -> B: hi",
		KindGantt:     "Build [2024-01-01] : 3d",
		KindState:     "[*] -> Idle",
		KindClass:     "class Foo",
	}
	for _, kind := range Kinds() {
		svg, err := Render(string(kind), sources[kind], Options{})
		require.NoError(t, err, kind)
		assert.True(t, strings.HasPrefix(svg, `<svg xmlns="http://www.w3.org/2000/svg" class="diagram diagram-`+string(kind)+`"`), kind)
		assert.True(t, strings.HasSuffix(svg, "</svg>"))
	}
}

func TestParseFlowchart(t *testing.T) {
	src := "%% checkout flow\ndirection LR\nA[Start] -> B(Work) -> |done| C{Ok?}\nC -> A: retry\nD\n"
	fc, err := ParseFlowchart(src)
	require.NoError(t, err)

	assert.Equal(t, LeftRight, fc.Direction)
	require.Len(t, fc.Nodes, 4)
	assert.Equal(t, FlowNode{ID: "A", Label: "Start", Shape: "rect"}, *fc.Nodes[0])
	assert.Equal(t, "round", fc.Nodes[1].Shape)
	assert.Equal(t, FlowNode{ID: "C", Label: "Ok?", Shape: "diamond"}, *fc.Nodes[2])
	assert.Equal(t, []FlowEdge{
		{From: "A", To: "B"},
		{From: "B", To: "C", Label: "done"},
		{From: "C", To: "A", Label: "retry"},
	}, fc.Edges)
}

func TestParseFlowchartErrors(t *testing.T) {
	tests := []struct {
		src  string
		line int
	}{
		{src: "A -> B\nthis is not valid\n", line: 2},
		{src: "A ->\n", line: 1},
		{src: "direction UP\n", line: 1},
	}
	for _, tt := range tests {
		_, err := ParseFlowchart(tt.src)
		var pe *ParseError
		require.True(t, errors.As(err, &pe), tt.src)
		assert.Equal(t, KindFlowchart, pe.Kind)
		assert.Equal(t, tt.line, pe.Line)
		assert.NotEmpty(t, pe.Statement)
	}
}

func TestLayoutCycleSafety(t *testing.T) {
	for _, n := range []int{1, 2, 3, 10} {
		nodes := make([]*lnode, n)
		edges := make([]*ledge, n)
		for i := range n {
			nodes[i] = &lnode{width: 40, height: 20}
			edges[i] = &ledge{from: i, to: (i + 1) % n}
		}
		g := layoutGraph(nodes, edges, TopBottom)

		seen := 0
		for l, vs := range g.layers {
			for _, v := range vs {
				assert.Equal(t, l, nodes[v].layer)
				seen++
			}
		}
		assert.Equal(t, n, seen, "every node is placed in exactly one layer")
		for i, nd := range nodes {
			assert.Equal(t, i, nd.layer, "cycle of %d is unrolled in first-seen order", n)
		}
		back := 0
		for _, e := range edges {
			if e.back || e.from == e.to {
				back++
			}
		}
		assert.Equal(t, 1, back)
	}
}

func TestLayoutLongestPath(t *testing.T) {
	nodes := []*lnode{{width: 10, height: 10}, {width: 10, height: 10}, {width: 10, height: 10}, {width: 10, height: 10}}
	edges := []*ledge{{from: 0, to: 1}, {from: 1, to: 2}, {from: 0, to: 2}, {from: 3, to: 2}}
	layoutGraph(nodes, edges, LeftRight)
	assert.Equal(t, []int{0, 1, 2, 0}, []int{nodes[0].layer, nodes[1].layer, nodes[2].layer, nodes[3].layer})
	assert.Less(t, nodes[0].x, nodes[1].x)
	assert.Less(t, nodes[1].x, nodes[2].x)
}

func TestRenderFlowchartCycleIsDeterministic(t *testing.T) {
	src := "A -> B -> A\nB -> B"
	first, err := RenderFlowchart(src, Options{})
	require.NoError(t, err)
	second, err := RenderFlowchart(src, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, first, `class="edge-back"`)
	assert.Contains(t, first, idPrefix(KindFlowchart, src)+"-arrow")
}

func TestParseSequence(t *testing.T) {
	src := "title Login\nparticipant Browser as Web Browser\nBrowser -> API: POST /login\nAPI -> DB: query\nDB -->> API: rows\nAPI -> API: audit\n"
	seq, err := ParseSequence(src)
	require.NoError(t, err)

	assert.Equal(t, "Login", seq.Title)
	require.Len(t, seq.Actors, 3)
	assert.Equal(t, "Web Browser", seq.Actors[0].Label)
	assert.Equal(t, []string{"Browser", "API", "DB"}, []string{seq.Actors[0].ID, seq.Actors[1].ID, seq.Actors[2].ID})
	require.Len(t, seq.Messages, 4)
	assert.False(t, seq.Messages[0].Async)
	assert.True(t, seq.Messages[2].Async)

	svg, err := RenderSequence(src, Options{})
	require.NoError(t, err)
	assert.Contains(t, svg, `class="msg-async"`)
	assert.Contains(t, svg, `class="msg-sync"`)
	assert.Contains(t, svg, "POST /login")
}

func TestParseSequenceRejectsUnknownArrow(t *testing.T) {
	_, err := ParseSequence("A --> B: hi")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Line)
}

func TestParseGantt(t *testing.T) {
	src := "title Release\nsection Build\nDesign [2024-03-01] : 3d\nImplement : after Design, 1w\nsection Ship\nRelease : 2024-03-20, 1d\nDocs : 2d\n"
	g, err := ParseGantt(src)
	require.NoError(t, err)

	require.Len(t, g.Tasks, 4)
	date := func(s string) time.Time {
		d, _ := time.Parse(dateLayout, s)
		return d
	}
	assert.Equal(t, date("2024-03-04"), g.Tasks[1].Start)
	assert.Equal(t, date("2024-03-11"), g.Tasks[1].End)
	assert.Equal(t, "Ship", g.Tasks[2].Section)
	assert.Equal(t, date("2024-03-21"), g.Tasks[3].Start, "tasks without a start follow the previous task")
	assert.Equal(t, []string{"Build", "Ship"}, g.Sections)

	svg, err := RenderGantt(src, Options{Width: 400})
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(svg, `class="task"`))
}

func TestParseGanttErrors(t *testing.T) {
	tests := map[string]string{
		"unknown dependency": "A : after Missing, 1d",
		"cycle":              "A : after B, 1d\nB : after A, 1d",
		"duplicate":          "A [2024-01-01] : 1d\nA [2024-01-02] : 1d",
		"bad duration":       "A [2024-01-01] : soon",
		"duration overflow":  "A [2024-01-01] : 99999999999999999999d",
		"too many weeks":     "A [2024-01-01] : 6000w",
		"no start":           "A : 2d",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGantt(src)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, KindGantt, pe.Kind)
			assert.NotZero(t, pe.Line)
		})
	}
}

func TestParseState(t *testing.T) {
	src := "stateDiagram\n[*] -> Idle\nIdle -> Running: start\nRunning -> Idle: stop\nRunning -> [*]\nstate Running: doing work\n"
	sd, err := ParseState(src)
	require.NoError(t, err)

	ids := make([]string, len(sd.States))
	for i, s := range sd.States {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{startState, "Idle", "Running", endState}, ids)
	assert.True(t, sd.States[0].Pseudo)
	assert.Equal(t, "doing work", sd.States[2].Description)
	assert.Equal(t, "start", sd.Transitions[1].Event)

	svg, err := RenderState(src, Options{})
	require.NoError(t, err)
	assert.Contains(t, svg, `class="pseudo-end"`)
	assert.Contains(t, svg, `class="edge-back"`)
}

func TestParseClass(t *testing.T) {
	src := "classDiagram\nclass Order {\n  +id int\n  +total() float\n}\nCustomer \"1\" *-- \"n\" Order : places\nOrder o-- Item\nAnimal <|-- Dog\nOrder -- Invoice\nCustomer : +name string\n"
	cd, err := ParseClass(src)
	require.NoError(t, err)

	require.Len(t, cd.Classes, 6)
	order := cd.Classes[0]
	assert.Equal(t, []string{"+id int"}, order.Attributes)
	assert.Equal(t, []string{"+total() float"}, order.Methods)
	assert.Equal(t, Relation{From: "Customer", To: "Order", Kind: Composition, FromMult: "1", ToMult: "n", Label: "places", Decorated: "from"}, cd.Relations[0])
	assert.Equal(t, Aggregation, cd.Relations[1].Kind)
	assert.Equal(t, Inheritance, cd.Relations[2].Kind)
	assert.Equal(t, Relation{From: "Order", To: "Invoice", Kind: Association}, cd.Relations[3])

	svg, err := RenderClass(src, Options{})
	require.NoError(t, err)
	assert.Contains(t, svg, idPrefix(KindClass, src)+"-composition")
	assert.Contains(t, svg, idPrefix(KindClass, src)+"-aggregation")
	assert.Contains(t, svg, ">places<")
}

func TestParseClassUnclosedBody(t *testing.T) {
	_, err := ParseClass("class A {\n  +x int\n")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "not closed")
}
