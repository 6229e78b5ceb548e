// Package music parses ABC notation and engraves it as SVG staff notation.
package music

import "fmt"

// Fraction is a non-negative rational duration measured in whole notes.
type Fraction struct {
	Num, Den int
}

func frac(n, d int) Fraction {
	return Fraction{Num: n, Den: d}.reduce()
}

func (f Fraction) reduce() Fraction {
	if f.Den == 0 {
		return Fraction{0, 1}
	}
	g := gcd(abs(f.Num), abs(f.Den))
	if g == 0 {
		return Fraction{0, 1}
	}
	return Fraction{f.Num / g, f.Den / g}
}

// Mul returns f*g.
func (f Fraction) Mul(g Fraction) Fraction {
	return Fraction{f.Num * g.Num, f.Den * g.Den}.reduce()
}

// Add returns f+g.
func (f Fraction) Add(g Fraction) Fraction {
	return Fraction{f.Num*g.Den + g.Num*f.Den, f.Den * g.Den}.reduce()
}

// Float returns f as a float64.
func (f Fraction) Float() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Accidental is an explicit accidental written before a note.
type Accidental int

const (
	NoAccidental Accidental = iota
	Sharp
	DoubleSharp
	Flat
	DoubleFlat
	Natural
)

// Pitch is a note name in scientific octave numbering: ABC "C" is C4, "c" is C5.
type Pitch struct {
	Step       byte
	Octave     int
	Accidental Accidental
}

const steps = "CDEFGAB"

// Diatonic returns the diatonic index of p, counting C0 as 0.
func (p Pitch) Diatonic() int {
	for i := 0; i < len(steps); i++ {
		if steps[i] == p.Step {
			return p.Octave*7 + i
		}
	}
	return p.Octave * 7
}

// Note is a note, chord or rest. A rest has no pitches.
type Note struct {
	Pitches  []Pitch
	Duration Fraction
	Rest     bool
	// Invisible marks "x" rests, which take time but are not drawn.
	Invisible bool
	Tie       bool
	Chord     string
	Line      int
	Column    int
}

// Measure holds the notes between two bar lines.
type Measure struct {
	Notes []*Note
	// Bar is the closing bar line: "|", "||", "|]", ":|", "::" or "" at the end of a voice.
	Bar         string
	StartRepeat bool
}

// Duration is the sum of the note durations.
func (m *Measure) Duration() Fraction {
	total := Fraction{0, 1}
	for _, n := range m.Notes {
		total = total.Add(n.Duration)
	}
	return total
}

// Clef selects the staff.
type Clef string

const (
	Treble Clef = "treble"
	Bass   Clef = "bass"
)

// Voice is one staff line of music.
type Voice struct {
	ID       string
	Name     string
	Clef     Clef
	Measures []*Measure
}

// Meter is the time signature. Symbol is "C" or "C|" for common and cut time.
type Meter struct {
	Num, Den int
	Symbol   string
}

// Key is a key signature. Accidentals counts sharps (positive) or flats (negative).
type Key struct {
	Tonic       string
	Mode        string
	Accidentals int
	Clef        Clef
}

// Tune is a parsed ABC tune.
type Tune struct {
	Index    int
	Title    string
	Composer string
	Meter    Meter
	Unit     Fraction
	Tempo    string
	Key      Key
	Voices   []*Voice
}
