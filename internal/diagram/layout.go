package diagram

import (
	"math"
	"sort"
)

type shape int

const (
	shapeRect shape = iota
	shapeRound
	shapeDiamond
	shapeCircle
)

const (
	margin  = 20.0
	nodeSep = 40.0
	rankSep = 60.0
	loopOff = 60.0
)

// lnode is a node of a layered layout. x and y are the center after layout.
type lnode struct {
	width, height float64
	shape         shape
	layer, order  int
	x, y          float64
}

// ledge is a directed edge. back marks edges reversed to break a cycle.
type ledge struct {
	from, to int
	back     bool
}

type graphLayout struct {
	nodes  []*lnode
	edges  []*ledge
	dir    Direction
	layers [][]int
	width  float64
	height float64
}

// layoutGraph runs the layered layout: cycle breaking, longest-path layering,
// barycenter ordering and coordinate assignment. It terminates on any input since
// every phase works on the acyclic edge set.
func layoutGraph(nodes []*lnode, edges []*ledge, dir Direction) *graphLayout {
	g := &graphLayout{nodes: nodes, edges: edges, dir: dir}
	if len(nodes) == 0 {
		g.width, g.height = 2*margin, 2*margin
		return g
	}
	markBackEdges(len(nodes), edges)
	layer := assignLayers(len(nodes), edges)
	maxLayer := 0
	for v, l := range layer {
		nodes[v].layer = l
		maxLayer = max(maxLayer, l)
	}
	g.layers = make([][]int, maxLayer+1)
	for v := range nodes {
		g.layers[layer[v]] = append(g.layers[layer[v]], v)
	}
	g.orderLayers()
	g.place()
	return g
}

// markBackEdges runs a depth-first search from the sources in first-seen order, then
// from any node not yet visited, and marks edges that close a cycle.
func markBackEdges(n int, edges []*ledge) {
	adj := make([][]*ledge, n)
	indeg := make([]int, n)
	for _, e := range edges {
		if e.from == e.to {
			continue
		}
		adj[e.from] = append(adj[e.from], e)
		indeg[e.to]++
	}
	const (
		unvisited = iota
		active
		done
	)
	state := make([]int, n)
	var visit func(v int)
	visit = func(v int) {
		state[v] = active
		for _, e := range adj[v] {
			switch state[e.to] {
			case unvisited:
				visit(e.to)
			case active:
				e.back = true
			}
		}
		state[v] = done
	}
	for v := range n {
		if indeg[v] == 0 && state[v] == unvisited {
			visit(v)
		}
	}
	for v := range n {
		if state[v] == unvisited {
			visit(v)
		}
	}
}

// assignLayers gives each node its longest distance from a source over forward edges.
func assignLayers(n int, edges []*ledge) []int {
	out := make([][]int, n)
	indeg := make([]int, n)
	for _, e := range edges {
		if e.back || e.from == e.to {
			continue
		}
		out[e.from] = append(out[e.from], e.to)
		indeg[e.to]++
	}
	layer := make([]int, n)
	queue := make([]int, 0, n)
	for v := range n {
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range out[v] {
			layer[w] = max(layer[w], layer[v]+1)
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
	}
	return layer
}

func (g *graphLayout) orderLayers() {
	neighbors := make([][]int, len(g.nodes))
	for _, e := range g.edges {
		if e.from == e.to {
			continue
		}
		neighbors[e.from] = append(neighbors[e.from], e.to)
		neighbors[e.to] = append(neighbors[e.to], e.from)
	}
	g.renumber()
	sweep := func(l, ref int) {
		bary := make(map[int]float64, len(g.layers[l]))
		for _, v := range g.layers[l] {
			sum, count := 0.0, 0
			for _, w := range neighbors[v] {
				if g.nodes[w].layer == ref {
					sum += float64(g.nodes[w].order)
					count++
				}
			}
			if count == 0 {
				bary[v] = float64(g.nodes[v].order)
				continue
			}
			bary[v] = sum / float64(count)
		}
		sort.SliceStable(g.layers[l], func(i, j int) bool {
			return bary[g.layers[l][i]] < bary[g.layers[l][j]]
		})
		g.renumber()
	}
	for range 2 {
		for l := 1; l < len(g.layers); l++ {
			sweep(l, l-1)
		}
		for l := len(g.layers) - 2; l >= 0; l-- {
			sweep(l, l+1)
		}
	}
}

func (g *graphLayout) renumber() {
	for _, vs := range g.layers {
		for i, v := range vs {
			g.nodes[v].order = i
		}
	}
}

func (g *graphLayout) place() {
	horizontal := g.dir == LeftRight
	// rank is the extent along the layering axis, span across it.
	rank := func(n *lnode) float64 {
		if horizontal {
			return n.width
		}
		return n.height
	}
	span := func(n *lnode) float64 {
		if horizontal {
			return n.height
		}
		return n.width
	}
	spans := make([]float64, len(g.layers))
	maxSpan := 0.0
	for l, vs := range g.layers {
		total := 0.0
		for i, v := range vs {
			if i > 0 {
				total += nodeSep
			}
			total += span(g.nodes[v])
		}
		spans[l] = total
		maxSpan = max(maxSpan, total)
	}
	pos := margin
	for l, vs := range g.layers {
		thick := 0.0
		for _, v := range vs {
			thick = max(thick, rank(g.nodes[v]))
		}
		cursor := margin + (maxSpan-spans[l])/2
		for _, v := range vs {
			n := g.nodes[v]
			along := pos + thick/2
			across := cursor + span(n)/2
			if horizontal {
				n.x, n.y = along, across
			} else {
				n.x, n.y = across, along
			}
			cursor += span(n) + nodeSep
		}
		pos += thick + rankSep
	}
	extent := pos - rankSep + margin
	cross := maxSpan + 2*margin
	if g.hasLoops() {
		cross += loopOff + 20
	}
	if horizontal {
		g.width, g.height = extent, cross
	} else {
		g.width, g.height = cross, extent
	}
}

func (g *graphLayout) hasLoops() bool {
	for _, e := range g.edges {
		if e.back || e.from == e.to {
			return true
		}
	}
	return false
}

// boundary returns where the ray from the center of n toward t leaves its outline.
func boundary(n *lnode, t point) point {
	dx, dy := t.x-n.x, t.y-n.y
	if dx == 0 && dy == 0 {
		return point{n.x, n.y}
	}
	hw, hh := n.width/2, n.height/2
	var s float64
	switch n.shape {
	case shapeDiamond:
		s = 1 / (math.Abs(dx)/hw + math.Abs(dy)/hh)
	case shapeCircle:
		s = hw / math.Hypot(dx, dy)
	default:
		s = math.Inf(1)
		if dx != 0 {
			s = hw / math.Abs(dx)
		}
		if dy != 0 {
			s = math.Min(s, hh/math.Abs(dy))
		}
	}
	return point{n.x + dx*s, n.y + dy*s}
}

// edgePath returns the SVG path data for e and a point for its label.
func (g *graphLayout) edgePath(e *ledge) (string, point) {
	a, b := g.nodes[e.from], g.nodes[e.to]
	horizontal := g.dir == LeftRight
	switch {
	case e.from == e.to:
		if horizontal {
			sx, sy := a.x-6, a.y+a.height/2
			d := "M" + num(sx) + "," + num(sy) +
				" C" + num(a.x-30) + "," + num(sy+40) + " " + num(a.x+30) + "," + num(sy+40) + " " + num(a.x+6) + "," + num(sy)
			return d, point{a.x, sy + 34}
		}
		sx, sy := a.x+a.width/2, a.y-6
		d := "M" + num(sx) + "," + num(sy) +
			" C" + num(sx+40) + "," + num(a.y-30) + " " + num(sx+40) + "," + num(a.y+30) + " " + num(sx) + "," + num(a.y+6)
		return d, point{sx + 34, a.y}
	case e.back:
		if horizontal {
			s := boundary(a, point{a.x, a.y + 1000})
			t := boundary(b, point{b.x, b.y + 1000})
			low := math.Max(s.y, t.y) + loopOff
			d := "M" + num(s.x) + "," + num(s.y) +
				" C" + num(s.x) + "," + num(low) + " " + num(t.x) + "," + num(low) + " " + num(t.x) + "," + num(t.y)
			return d, point{(s.x + t.x) / 2, low - 14}
		}
		s := boundary(a, point{a.x + 1000, a.y})
		t := boundary(b, point{b.x + 1000, b.y})
		right := math.Max(s.x, t.x) + loopOff
		d := "M" + num(s.x) + "," + num(s.y) +
			" C" + num(right) + "," + num(s.y) + " " + num(right) + "," + num(t.y) + " " + num(t.x) + "," + num(t.y)
		return d, point{right - 14, (s.y + t.y) / 2}
	}
	s := boundary(a, point{b.x, b.y})
	t := boundary(b, point{a.x, a.y})
	return "M" + num(s.x) + "," + num(s.y) + " L" + num(t.x) + "," + num(t.y), point{(s.x + t.x) / 2, (s.y + t.y) / 2}
}
