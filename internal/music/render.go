package music

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Options tune engraving. The zero value renders 720 pixels wide at scale 1.
type Options struct {
	Width float64
	Scale float64
}

const (
	defaultWidth = 720.0
	margin       = 20.0
	space        = 8.0 // distance between staff lines
	staffHeight  = 4 * space
	voiceBlock   = staffHeight + 56
	systemGap    = 24.0
	pxPerQuarter = 28.0
	minSpace     = 16.0
	measurePad   = 14.0
	accWidth     = 9.0
	clefWidth    = 30.0
	keyWidth     = 9.0
	timeWidth    = 22.0
)

// RenderABC parses source and engraves it.
func RenderABC(source string, opts Options) (string, error) {
	tune, err := Parse(source)
	if err != nil {
		return "", err
	}
	return Engrave(tune, opts), nil
}

type system struct {
	first, last int // measure index range, inclusive
	widths      []float64
}

// Engrave lays out a parsed tune and returns the SVG document.
func Engrave(t *Tune, opts Options) string {
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}

	natural := measureWidths(t)
	systems := wrapSystems(t, natural, width)

	e := &engraver{tune: t, width: width}
	y := margin
	if t.Title != "" {
		e.text(width/2, y+10, "middle", "title", t.Title)
		y += 30
	}
	if t.Composer != "" {
		e.text(width-margin, y, "end", "composer", t.Composer)
		y += 16
	}
	if t.Tempo != "" {
		e.text(margin, y, "start", "tempo", t.Tempo)
		y += 16
	}
	for si, sys := range systems {
		for vi, v := range t.Voices {
			top := y + 28 + float64(vi)*voiceBlock
			e.staff(v, top, si == 0, sys)
			if si == 0 && v.Name != "" {
				e.text(margin, top-20, "start", "voice-name", v.Name)
			}
		}
		y += float64(len(t.Voices))*voiceBlock + systemGap
	}
	height := y + margin

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" class="music-score" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(width*scale), num(height*scale), num(width*scale), num(height*scale))
	b.WriteString(`<style>` + scoreCSS + `</style>`)
	if scale != 1 {
		fmt.Fprintf(&b, `<g transform="scale(%s)">`, num(scale))
	} else {
		b.WriteString("<g>")
	}
	b.WriteString(e.body.String())
	b.WriteString("</g></svg>")
	return b.String()
}

// noteWidth is the horizontal room of a note before justification.
func noteWidth(n *Note) float64 {
	w := math.Max(minSpace, n.Duration.Float()*4*pxPerQuarter)
	for _, p := range n.Pitches {
		if p.Accidental != NoAccidental {
			return w + accWidth
		}
	}
	return w
}

// measureWidths returns, for every measure index, the widest rendering across voices.
func measureWidths(t *Tune) []float64 {
	count := 0
	for _, v := range t.Voices {
		count = max(count, len(v.Measures))
	}
	widths := make([]float64, count)
	for i := range widths {
		widths[i] = 40
		for _, v := range t.Voices {
			if i >= len(v.Measures) {
				continue
			}
			w := measurePad
			for _, n := range v.Measures[i].Notes {
				w += noteWidth(n)
			}
			widths[i] = max(widths[i], w)
		}
	}
	return widths
}

func headerWidth(t *Tune, first bool) float64 {
	w := clefWidth + float64(abs(t.Key.Accidentals))*keyWidth + 6
	if first && (t.Meter.Den > 0 || t.Meter.Symbol != "") {
		w += timeWidth
	}
	return w
}

// wrapSystems fills systems greedily and stretches every system but the last to the
// full line width.
func wrapSystems(t *Tune, natural []float64, width float64) []system {
	var out []system
	i := 0
	for i < len(natural) || len(out) == 0 {
		avail := width - 2*margin - headerWidth(t, len(out) == 0)
		sys := system{first: i, last: i - 1}
		used := 0.0
		for i < len(natural) && (sys.last < sys.first || used+natural[i] <= avail) {
			used += natural[i]
			sys.widths = append(sys.widths, natural[i])
			sys.last = i
			i++
		}
		if i < len(natural) && used > 0 {
			f := avail / used
			for k := range sys.widths {
				sys.widths[k] *= f
			}
		}
		out = append(out, sys)
		if len(natural) == 0 {
			break
		}
	}
	return out
}

type engraver struct {
	tune  *Tune
	width float64
	body  strings.Builder
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func (e *engraver) text(x, y float64, anchor, class, s string) {
	fmt.Fprintf(&e.body, `<text class="%s" x="%s" y="%s" text-anchor="%s">%s</text>`, class, num(x), num(y), anchor, html.EscapeString(s))
}

func (e *engraver) line(x1, y1, x2, y2 float64, class string) {
	fmt.Fprintf(&e.body, `<line class="%s" x1="%s" y1="%s" x2="%s" y2="%s"/>`, class, num(x1), num(y1), num(x2), num(y2))
}

func (e *engraver) staff(v *Voice, top float64, first bool, sys system) {
	left, right := margin, e.width-margin
	bottom := top + staffHeight
	for k := 0; k < 5; k++ {
		y := top + float64(k)*space
		e.line(left, y, right, y, "staff-line")
	}
	e.line(left, top, left, bottom, "bar")

	x := left + 4
	clef := "clef.treble"
	if v.Clef == Bass {
		clef = "clef.bass"
	}
	e.text(x, bottom-space, "start", "clef", glyph(clef))
	x += clefWidth

	positions, accGlyph := sharpPositions, glyph("acc.sharp")
	if e.tune.Key.Accidentals < 0 {
		positions, accGlyph = flatPositions, glyph("acc.flat")
	}
	shift := 0
	if v.Clef == Bass {
		shift = -2
	}
	for k := 0; k < abs(e.tune.Key.Accidentals); k++ {
		e.text(x, bottom-float64(positions[k]+shift)*space/2+4, "start", "accidental", accGlyph)
		x += keyWidth
	}
	x += 6

	if first {
		switch {
		case e.tune.Meter.Symbol == "C":
			e.text(x, top+2*space+6, "start", "time", glyph("time.common"))
			x += timeWidth
		case e.tune.Meter.Symbol == "C|":
			e.text(x, top+2*space+6, "start", "time", glyph("time.cut"))
			x += timeWidth
		case e.tune.Meter.Den > 0:
			e.text(x+8, top+space+4, "middle", "time", strconv.Itoa(e.tune.Meter.Num))
			e.text(x+8, top+3*space+4, "middle", "time", strconv.Itoa(e.tune.Meter.Den))
			x += timeWidth
		}
	}

	var tie *point
	for k, mi := 0, sys.first; mi <= sys.last; k, mi = k+1, mi+1 {
		w := sys.widths[k]
		if mi >= len(v.Measures) {
			x += w
			e.line(x, top, x, bottom, "bar")
			continue
		}
		m := v.Measures[mi]
		if m.StartRepeat {
			e.line(x+1, top, x+1, bottom, "bar-thick")
			e.line(x+5, top, x+5, bottom, "bar")
			e.dots(x+9, top)
		}
		naturalW := measurePad
		for _, n := range m.Notes {
			naturalW += noteWidth(n)
		}
		stretch := 1.0
		if naturalW > measurePad {
			stretch = (w - measurePad) / (naturalW - measurePad)
		}
		cursor := x + measurePad
		for _, n := range m.Notes {
			nx := cursor
			if hasAccidental(n) {
				nx += accWidth
			}
			tie = e.note(n, nx, top, v.Clef, tie)
			cursor += noteWidth(n) * stretch
		}
		x += w
		e.barLine(m.Bar, x, top)
	}
	if tie != nil {
		e.tieArc(tie.x, tie.y, right-4, tie.y)
	}
}

type point struct{ x, y float64 }

func hasAccidental(n *Note) bool {
	for _, p := range n.Pitches {
		if p.Accidental != NoAccidental {
			return true
		}
	}
	return false
}

func (e *engraver) dots(x, top float64) {
	fmt.Fprintf(&e.body, `<circle class="dot" cx="%s" cy="%s" r="1.6"/>`, num(x), num(top+1.5*space))
	fmt.Fprintf(&e.body, `<circle class="dot" cx="%s" cy="%s" r="1.6"/>`, num(x), num(top+2.5*space))
}

func (e *engraver) barLine(bar string, x, top float64) {
	bottom := top + staffHeight
	switch bar {
	case "||":
		e.line(x-4, top, x-4, bottom, "bar")
		e.line(x, top, x, bottom, "bar")
	case "|]":
		e.line(x-5, top, x-5, bottom, "bar")
		e.line(x-1, top, x-1, bottom, "bar-thick")
	case ":|":
		e.dots(x-10, top)
		e.line(x-5, top, x-5, bottom, "bar")
		e.line(x-1, top, x-1, bottom, "bar-thick")
	default:
		e.line(x, top, x, bottom, "bar")
	}
}

// note draws one note, chord or rest and returns the start of a pending tie.
func (e *engraver) note(n *Note, x, top float64, clef Clef, tie *point) *point {
	bottom := top + staffHeight
	if n.Chord != "" {
		e.text(x, top-14, "start", "chord-symbol", n.Chord)
	}
	if n.Rest {
		if !n.Invisible {
			e.text(x, top+2*space+5, "start", "rest", restGlyph(n.Duration))
		}
		return nil
	}
	base := baseValue(n.Duration)
	filled := base.Float() < 0.5
	ref := bottomLine(clef)
	lowY, highY := math.Inf(-1), math.Inf(1)
	sum := 0
	for _, p := range n.Pitches {
		step := p.Diatonic() - ref
		sum += step
		y := bottom - float64(step)*space/2
		lowY, highY = math.Max(lowY, y), math.Min(highY, y)
		for s := -2; s >= step; s -= 2 {
			ly := bottom - float64(s)*space/2
			e.line(x-7, ly, x+7, ly, "ledger")
		}
		for s := 10; s <= step; s += 2 {
			ly := bottom - float64(s)*space/2
			e.line(x-7, ly, x+7, ly, "ledger")
		}
		if g := accidentalGlyph(p.Accidental); g != "" {
			e.text(x-8, y+4, "end", "accidental", g)
		}
		fill := "#222"
		if !filled {
			fill = "none"
		}
		fmt.Fprintf(&e.body, `<ellipse class="notehead" cx="%s" cy="%s" rx="4.6" ry="3.4" fill="%s" transform="rotate(-20 %s %s)"/>`,
			num(x), num(y), fill, num(x), num(y))
		if isDotted(n.Duration, base) {
			fmt.Fprintf(&e.body, `<circle class="dot" cx="%s" cy="%s" r="1.5"/>`, num(x+8), num(y-2))
		}
	}
	if tie != nil {
		e.tieArc(tie.x, tie.y, x-6, lowY)
	}
	if base.Float() < 1 {
		up := float64(sum)/float64(len(n.Pitches)) < 4
		var sx, y1, y2 float64
		if up {
			sx, y1, y2 = x+4.3, lowY, highY-3.5*space
		} else {
			sx, y1, y2 = x-4.3, highY, lowY+3.5*space
		}
		e.line(sx, y1, sx, y2, "stem")
		for f := 0; f < flagCount(base); f++ {
			off := float64(f) * 6
			if up {
				e.line(sx, y2+off, sx+7, y2+off+10, "flag")
			} else {
				e.line(sx, y2-off, sx+7, y2-off-10, "flag")
			}
		}
	}
	if n.Tie {
		return &point{x + 6, lowY}
	}
	return nil
}

func (e *engraver) tieArc(x1, y1, x2, y2 float64) {
	fmt.Fprintf(&e.body, `<path class="tie" d="M%s,%s Q%s,%s %s,%s" fill="none"/>`,
		num(x1), num(y1+5), num((x1+x2)/2), num(math.Max(y1, y2)+12), num(x2), num(y2+5))
}

// baseValue is the largest power-of-two note value not longer than d.
func baseValue(d Fraction) Fraction {
	v := d.Float()
	base := Fraction{4, 1}
	for base.Float() > v && base.Den < 128 {
		base = base.Mul(Fraction{1, 2})
	}
	return base
}

func isDotted(d, base Fraction) bool {
	return d == base.Mul(Fraction{3, 2})
}

func flagCount(base Fraction) int {
	n := 0
	for v := base.Float(); v < 0.25-1e-9; v *= 2 {
		n++
	}
	return n
}

const scoreCSS = `text{font-family:serif;fill:#222}.title{font-size:18px;font-weight:bold}` +
	`.composer,.tempo,.voice-name{font-size:12px}.clef{font-size:38px}.accidental{font-size:16px}` +
	`.time{font-size:18px;font-weight:bold}.rest{font-size:28px}.chord-symbol{font-size:12px;font-family:sans-serif}` +
	`.staff-line,.ledger{stroke:#444;stroke-width:0.8}.bar,.stem,.flag{stroke:#222;stroke-width:1}` +
	`.bar-thick{stroke:#222;stroke-width:3}.notehead{stroke:#222;stroke-width:1.2}.dot{fill:#222}.tie{stroke:#222}`
