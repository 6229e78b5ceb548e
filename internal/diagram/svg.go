package diagram

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	fontSize  = 14.0
	charWidth = 7.0
	lineGap   = 18.0
)

func textWidth(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * charWidth
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

// svgDoc accumulates SVG elements.
type svgDoc struct {
	id      string
	body    strings.Builder
	defs    strings.Builder
	markers map[string]bool
}

func newSVG(id string) *svgDoc {
	return &svgDoc{id: id, markers: make(map[string]bool)}
}

func (d *svgDoc) ref(name string) string {
	return d.id + "-" + name
}

type attr struct {
	key, value string
}

func (d *svgDoc) elem(b *strings.Builder, name string, attrs []attr, content string) {
	b.WriteString("<" + name)
	for _, a := range attrs {
		if a.value == "" {
			continue
		}
		b.WriteString(" " + a.key + `="` + html.EscapeString(a.value) + `"`)
	}
	if content == "" {
		b.WriteString("/>")
		return
	}
	b.WriteString(">" + content + "</" + name + ">")
}

func (d *svgDoc) rect(x, y, w, h, rx float64, class string) {
	d.elem(&d.body, "rect", []attr{
		{"class", class}, {"x", num(x)}, {"y", num(y)}, {"width", num(w)}, {"height", num(h)}, {"rx", nonZero(rx)},
	}, "")
}

func (d *svgDoc) circle(cx, cy, r float64, class string) {
	d.elem(&d.body, "circle", []attr{{"class", class}, {"cx", num(cx)}, {"cy", num(cy)}, {"r", num(r)}}, "")
}

func (d *svgDoc) line(x1, y1, x2, y2 float64, class, marker string) {
	d.elem(&d.body, "line", []attr{
		{"class", class}, {"x1", num(x1)}, {"y1", num(y1)}, {"x2", num(x2)}, {"y2", num(y2)}, {"marker-end", d.markerURL(marker)},
	}, "")
}

func (d *svgDoc) path(p, class, markerStart, markerEnd string) {
	d.elem(&d.body, "path", []attr{
		{"class", class}, {"d", p}, {"fill", "none"}, {"marker-start", d.markerURL(markerStart)}, {"marker-end", d.markerURL(markerEnd)},
	}, "")
}

func (d *svgDoc) polygon(points []point, class string) {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = num(p.x) + "," + num(p.y)
	}
	d.elem(&d.body, "polygon", []attr{{"class", class}, {"points", strings.Join(parts, " ")}}, "")
}

// text writes one label; anchor is start, middle or end.
func (d *svgDoc) text(x, y float64, anchor, class, s string) {
	d.elem(&d.body, "text", []attr{
		{"class", class}, {"x", num(x)}, {"y", num(y)}, {"text-anchor", anchor}, {"dominant-baseline", "middle"},
	}, html.EscapeString(s))
}

// label draws text on an opaque background so it stays readable over edges.
func (d *svgDoc) label(x, y float64, s string) {
	w := textWidth(s) + 8
	d.rect(x-w/2, y-10, w, 20, 3, "edge-label-bg")
	d.text(x, y, "middle", "edge-label", s)
}

func (d *svgDoc) markerURL(name string) string {
	if name == "" {
		return ""
	}
	return "url(#" + d.ref(name) + ")"
}

// marker defines an arrow or decoration marker once per document.
func (d *svgDoc) marker(name, shape string, filled bool) {
	if d.markers[name] {
		return
	}
	d.markers[name] = true
	fill := "#333"
	class := "marker-filled"
	if !filled {
		fill = "#fff"
		class = "marker-open"
	}
	var content string
	switch shape {
	case "diamond":
		content = `<path d="M0,5 L6,0 L12,5 L6,10 Z" fill="` + fill + `" stroke="#333"/>`
		d.defs.WriteString(`<marker id="` + d.ref(name) + `" class="` + class + `" viewBox="0 0 12 10" refX="0" refY="5" markerWidth="12" markerHeight="10" orient="auto-start-reverse">` + content + `</marker>`)
		return
	case "triangle":
		content = `<path d="M0,0 L12,6 L0,12 Z" fill="` + fill + `" stroke="#333"/>`
		d.defs.WriteString(`<marker id="` + d.ref(name) + `" class="` + class + `" viewBox="0 0 12 12" refX="12" refY="6" markerWidth="12" markerHeight="12" orient="auto-start-reverse">` + content + `</marker>`)
		return
	case "open-arrow":
		content = `<path d="M0,0 L10,5 L0,10" fill="none" stroke="#333"/>`
	default:
		content = `<path d="M0,0 L10,5 L0,10 Z" fill="#333"/>`
	}
	d.defs.WriteString(`<marker id="` + d.ref(name) + `" class="` + class + `" viewBox="0 0 10 10" refX="10" refY="5" markerWidth="8" markerHeight="8" orient="auto-start-reverse">` + content + `</marker>`)
}

func (d *svgDoc) String(kind Kind, width, height float64) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" class="diagram diagram-` + string(kind) + `" id="` + d.id + `"`)
	b.WriteString(` width="` + num(width) + `" height="` + num(height) + `" viewBox="0 0 ` + num(width) + " " + num(height) + `">`)
	b.WriteString(`<style>` + diagramCSS + `</style>`)
	if d.defs.Len() > 0 {
		b.WriteString("<defs>" + d.defs.String() + "</defs>")
	}
	b.WriteString(d.body.String())
	b.WriteString("</svg>")
	return b.String()
}

func nonZero(v float64) string {
	if v == 0 {
		return ""
	}
	return num(v)
}

const diagramCSS = `text{font-family:sans-serif;font-size:14px;fill:#222}` +
	`.node{fill:#eef3fb;stroke:#4a6fa5;stroke-width:1.5}` +
	`.edge{stroke:#333;stroke-width:1.5;fill:none}` +
	`.edge-back{stroke:#333;stroke-width:1.5;fill:none;stroke-dasharray:4 3}` +
	`.edge-label-bg{fill:#fff;stroke:none}.edge-label{font-size:12px}` +
	`.pseudo{fill:#333;stroke:#333}.pseudo-end{fill:#fff;stroke:#333;stroke-width:2}` +
	`.actor{fill:#eef3fb;stroke:#4a6fa5;stroke-width:1.5}.lifeline{stroke:#999;stroke-dasharray:4 4}` +
	`.msg-sync{stroke:#333;stroke-width:1.5}.msg-async{stroke:#333;stroke-width:1.5;stroke-dasharray:6 4}` +
	`.task{fill:#7aa6da;stroke:#4a6fa5}.section{fill:#f5f5f5;stroke:none}.axis{stroke:#999}` +
	`.grid{stroke:#e3e3e3}.title{font-size:16px;font-weight:bold}` +
	`.class-box{fill:#fffbe8;stroke:#8a7a3a;stroke-width:1.5}.class-name{font-weight:bold}` +
	`.divider{stroke:#8a7a3a}.relation{stroke:#333;stroke-width:1.2;fill:none}.relation-dashed{stroke:#333;stroke-width:1.2;fill:none;stroke-dasharray:5 4}`

type point struct {
	x, y float64
}
