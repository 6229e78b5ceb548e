package music

// glyphs maps engraving symbols to code points of the Unicode Musical Symbols block
// and the Miscellaneous Symbols accidentals.
var glyphs = map[string]rune{
	"clef.treble":       '\U0001D11E',
	"clef.bass":         '\U0001D122',
	"time.common":       '\U0001D134',
	"time.cut":          '\U0001D135',
	"rest.whole":        '\U0001D13B',
	"rest.half":         '\U0001D13C',
	"rest.quarter":      '\U0001D13D',
	"rest.eighth":       '\U0001D13E',
	"rest.sixteenth":    '\U0001D13F',
	"rest.thirtysecond": '\U0001D140',
	"acc.sharp":         '♯',
	"acc.flat":          '♭',
	"acc.natural":       '♮',
	"acc.doublesharp":   '\U0001D12A',
	"acc.doubleflat":    '\U0001D12B',
}

func glyph(name string) string {
	if r, ok := glyphs[name]; ok {
		return string(r)
	}
	return ""
}

func accidentalGlyph(a Accidental) string {
	switch a {
	case Sharp:
		return glyph("acc.sharp")
	case Flat:
		return glyph("acc.flat")
	case Natural:
		return glyph("acc.natural")
	case DoubleSharp:
		return glyph("acc.doublesharp")
	case DoubleFlat:
		return glyph("acc.doubleflat")
	}
	return ""
}

func restGlyph(d Fraction) string {
	switch v := d.Float(); {
	case v >= 1:
		return glyph("rest.whole")
	case v >= 0.5:
		return glyph("rest.half")
	case v >= 0.25:
		return glyph("rest.quarter")
	case v >= 0.125:
		return glyph("rest.eighth")
	case v >= 0.0625:
		return glyph("rest.sixteenth")
	}
	return glyph("rest.thirtysecond")
}

// Key signature positions in half staff spaces above the bottom line of a treble staff,
// in the order accidentals are added. Bass staff positions are two steps lower.
var (
	sharpPositions = []int{8, 5, 9, 6, 3, 7, 4}
	flatPositions  = []int{4, 7, 3, 6, 2, 5, 1}
)

// bottomLine is the diatonic index of the pitch on the bottom staff line: E4 for
// treble, G2 for bass.
func bottomLine(c Clef) int {
	if c == Bass {
		return Pitch{Step: 'G', Octave: 2}.Diatonic()
	}
	return Pitch{Step: 'E', Octave: 4}.Diatonic()
}
