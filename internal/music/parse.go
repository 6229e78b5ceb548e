package music

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxLengthPart   = 256
	maxRestMeasures = 1000
)

// ParseError reports a malformed header field or body token.
type ParseError struct {
	Line   int
	Column int
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("abc line %d, column %d: %s", e.Line, e.Column, e.Reason)
	}
	return fmt.Sprintf("abc line %d, column %d: %s: %q", e.Line, e.Column, e.Reason, e.Token)
}

var (
	fieldRe = regexp.MustCompile(`^([A-Za-z]):\s*(.*)$`)
	tonicRe = regexp.MustCompile(`^([A-Ga-g])([#b]?)\s*([A-Za-z]*)$`)
	vAttrRe = regexp.MustCompile(`(\w+)=("[^"]*"|\S+)`)
)

const defaultVoice = "1"

type parser struct {
	tune    *Tune
	voices  map[string]*Voice
	cur     *Voice
	measure *Measure
	inBody  bool
	unitSet bool

	chord       string
	last        *Note
	broken      Fraction
	tupletLeft  int
	tupletRatio Fraction
}

// Parse reads an ABC tune.
func Parse(source string) (*Tune, error) {
	p := &parser{
		tune:   &Tune{Unit: frac(1, 8), Key: Key{Tonic: "C", Clef: Treble}},
		voices: make(map[string]*Voice),
	}
	for i, raw := range strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n") {
		lineNo := i + 1
		text := stripComment(raw)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if m := fieldRe.FindStringSubmatch(text); m != nil {
			if err := p.field(m[1], strings.TrimSpace(m[2]), lineNo); err != nil {
				return nil, err
			}
			continue
		}
		if !p.inBody {
			p.startBody()
		}
		if err := p.body(text, lineNo); err != nil {
			return nil, err
		}
	}
	p.closeMeasure("")
	if len(p.tune.Voices) == 0 {
		p.voice(defaultVoice)
	}
	return p.tune, nil
}

func stripComment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && (i == 0 || s[i-1] != '\\') {
			return s[:i]
		}
	}
	return s
}

func (p *parser) startBody() {
	p.inBody = true
	if !p.unitSet && p.tune.Meter.Den > 0 && float64(p.tune.Meter.Num)/float64(p.tune.Meter.Den) < 0.75 {
		p.tune.Unit = frac(1, 16)
	}
}

func (p *parser) field(name, value string, line int) error {
	fail := func(reason string) error {
		return &ParseError{Line: line, Column: 3, Token: value, Reason: reason}
	}
	switch name {
	case "X":
		if n, err := strconv.Atoi(value); err == nil {
			p.tune.Index = n
		}
	case "T":
		if p.tune.Title == "" {
			p.tune.Title = value
		}
	case "C":
		p.tune.Composer = value
	case "Q":
		p.tune.Tempo = value
	case "M":
		m, ok := parseMeter(value)
		if !ok {
			return fail("invalid meter")
		}
		p.tune.Meter = m
	case "L":
		f, ok := parseFraction(value)
		if !ok {
			return fail("invalid unit note length")
		}
		p.tune.Unit = f
		p.unitSet = true
	case "K":
		k, err := parseKey(value)
		if err != nil {
			return fail(err.Error())
		}
		p.tune.Key = k
		if !p.inBody {
			p.startBody()
		}
	case "V":
		p.voiceField(value)
	}
	return nil
}

func parseMeter(v string) (Meter, bool) {
	switch strings.TrimSpace(v) {
	case "C":
		return Meter{Num: 4, Den: 4, Symbol: "C"}, true
	case "C|":
		return Meter{Num: 2, Den: 2, Symbol: "C|"}, true
	case "none", "":
		return Meter{}, true
	}
	parts := strings.SplitN(strings.TrimSpace(v), "/", 2)
	if len(parts) != 2 {
		return Meter{}, false
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	den, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || num <= 0 || den <= 0 {
		return Meter{}, false
	}
	return Meter{Num: num, Den: den}, true
}

func parseFraction(v string) (Fraction, bool) {
	parts := strings.SplitN(strings.TrimSpace(v), "/", 2)
	if len(parts) != 2 {
		return Fraction{}, false
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	den, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || num <= 0 || den <= 0 {
		return Fraction{}, false
	}
	return frac(num, den), true
}

var modeShift = map[string]int{
	"":      0,
	"maj":   0,
	"major": 0,
	"ion":   0,
	"m":     -3,
	"min":   -3,
	"minor": -3,
	"aeo":   -3,
	"mix":   -1,
	"dor":   -2,
	"phr":   -4,
	"lyd":   1,
	"loc":   -5,
}

const fifths = "FCGDAEB"

func parseKey(v string) (Key, error) {
	k := Key{Tonic: "C", Clef: Treble}
	fields := strings.Fields(v)
	var rest []string
	for _, f := range fields {
		switch {
		case f == "clef=bass" || f == "bass":
			k.Clef = Bass
		case f == "clef=treble" || f == "treble":
			k.Clef = Treble
		case strings.Contains(f, "="):
		default:
			rest = append(rest, f)
		}
	}
	spec := strings.Join(rest, " ")
	if spec == "" || spec == "none" {
		return k, nil
	}
	m := tonicRe.FindStringSubmatch(spec)
	if m == nil {
		return k, fmt.Errorf("invalid key")
	}
	mode := strings.ToLower(m[3])
	if len(mode) > 3 && mode != "major" && mode != "minor" {
		mode = mode[:3]
	}
	shift, ok := modeShift[mode]
	if !ok {
		return k, fmt.Errorf("unknown mode %q", m[3])
	}
	letter := strings.ToUpper(m[1])
	count := strings.Index(fifths, letter) - 1
	switch m[2] {
	case "#":
		count += 7
	case "b":
		count -= 7
	}
	count += shift
	if count < -7 || count > 7 {
		return k, fmt.Errorf("key %q needs more than seven accidentals", spec)
	}
	k.Tonic = letter + m[2]
	k.Mode = mode
	k.Accidentals = count
	return k, nil
}

func (p *parser) voiceField(value string) {
	fields := strings.Fields(value)
	id := defaultVoice
	if len(fields) > 0 {
		id = fields[0]
	}
	v := p.voice(id)
	for _, m := range vAttrRe.FindAllStringSubmatch(value, -1) {
		val := strings.Trim(m[2], `"`)
		switch m[1] {
		case "clef":
			if val == "bass" {
				v.Clef = Bass
			} else {
				v.Clef = Treble
			}
		case "name", "nm":
			v.Name = val
		}
	}
	for _, f := range fields[min(1, len(fields)):] {
		switch f {
		case "bass":
			v.Clef = Bass
		case "treble":
			v.Clef = Treble
		}
	}
	if p.inBody {
		p.switchVoice(v)
	}
}

func (p *parser) voice(id string) *Voice {
	if v, ok := p.voices[id]; ok {
		return v
	}
	v := &Voice{ID: id, Clef: p.tune.Key.Clef}
	if v.Clef == "" {
		v.Clef = Treble
	}
	p.voices[id] = v
	p.tune.Voices = append(p.tune.Voices, v)
	return v
}

func (p *parser) switchVoice(v *Voice) {
	if p.cur == v {
		return
	}
	p.closeMeasure("")
	p.cur = v
	p.last = nil
}

func (p *parser) current() *Voice {
	if p.cur == nil {
		if len(p.tune.Voices) > 0 {
			p.cur = p.tune.Voices[0]
		} else {
			p.cur = p.voice(defaultVoice)
		}
	}
	return p.cur
}

func (p *parser) openMeasure() *Measure {
	if p.measure == nil {
		p.measure = &Measure{}
	}
	return p.measure
}

// closeMeasure ends the measure being filled. Bars that follow an empty measure
// update the previous bar instead of creating an empty measure.
func (p *parser) closeMeasure(bar string) {
	v := p.current()
	if p.measure == nil || len(p.measure.Notes) == 0 {
		start := p.measure != nil && p.measure.StartRepeat
		if bar != "" && len(v.Measures) > 0 && !start {
			prev := v.Measures[len(v.Measures)-1]
			if prev.Bar == "|" || prev.Bar == "" {
				prev.Bar = bar
			}
		}
		if bar == "" {
			p.measure = nil
		}
		return
	}
	p.measure.Bar = bar
	v.Measures = append(v.Measures, p.measure)
	p.measure = nil
}

var bars = []string{":|:", "::", "|]", "||", "[|", "|:", ":|", "|"}

func (p *parser) body(text string, line int) error {
	p.current()
	i := 0
	for i < len(text) {
		c := text[i]
		col := i + 1
		fail := func(token, reason string) error {
			return &ParseError{Line: line, Column: col, Token: token, Reason: reason}
		}
		switch {
		case c == ' ' || c == '\t' || c == '`' || c == '\\' || c == ')' || c == 'y' || c == '.' || c == '~':
			i++
			continue
		case c == '"':
			end := strings.IndexByte(text[i+1:], '"')
			if end < 0 {
				return fail(text[i:], "unterminated chord symbol")
			}
			p.chord = strings.TrimLeft(text[i+1:i+1+end], "^_<>@")
			i += end + 2
			continue
		case c == '!' || c == '+':
			end := strings.IndexByte(text[i+1:], c)
			if end < 0 {
				return fail(text[i:], "unterminated decoration")
			}
			i += end + 2
			continue
		case c == '-':
			if p.last == nil {
				return fail("-", "tie without a preceding note")
			}
			p.last.Tie = true
			i++
			continue
		case c == '>' || c == '<':
			n := 1
			for i+n < len(text) && text[i+n] == c {
				n++
			}
			if p.last == nil || n > 3 {
				return fail(text[i:i+n], "misplaced broken rhythm")
			}
			long := frac(1<<(n+1)-1, 1<<n)
			short := frac(1, 1<<n)
			if c == '>' {
				p.last.Duration = p.last.Duration.Mul(long)
				p.broken = short
			} else {
				p.last.Duration = p.last.Duration.Mul(short)
				p.broken = long
			}
			i += n
			continue
		case c == '(':
			if i+1 < len(text) && text[i+1] >= '2' && text[i+1] <= '9' {
				n := int(text[i+1] - '0')
				p.tupletLeft = n
				p.tupletRatio = frac(tupletTime(n), n)
				i += 2
				continue
			}
			i++
			continue
		case c == '[' && i+2 < len(text) && isLetter(text[i+1]) && text[i+2] == ':':
			end := strings.IndexByte(text[i:], ']')
			if end < 0 {
				return fail(text[i:], "unterminated inline field")
			}
			if err := p.field(string(text[i+1]), strings.TrimSpace(text[i+3:i+end]), line); err != nil {
				return err
			}
			i += end + 1
			continue
		case c == '[' && i+1 < len(text) && text[i+1] >= '1' && text[i+1] <= '9':
			i += 2
			continue
		case c == '[' && (i+1 >= len(text) || text[i+1] != '|'):
			next, err := p.chordNote(text, i, line)
			if err != nil {
				return err
			}
			i = next
			continue
		case c == '|' || c == ':' || c == '[':
			bar := ""
			for _, b := range bars {
				if strings.HasPrefix(text[i:], b) {
					bar = b
					break
				}
			}
			if bar == "" {
				return fail(string(c), "invalid bar line")
			}
			i += len(bar)
			for i < len(text) && text[i] >= '1' && text[i] <= '9' {
				i++
			}
			p.bar(bar)
			continue
		case c == 'z' || c == 'x':
			d, next, err := p.duration(text, i+1, line)
			if err != nil {
				return err
			}
			p.addNote(&Note{Rest: true, Invisible: c == 'x', Duration: p.tune.Unit.Mul(d), Line: line, Column: col})
			i = next
			continue
		case c == 'Z':
			j := i + 1
			for j < len(text) && text[j] >= '0' && text[j] <= '9' {
				j++
			}
			count := 1
			if j > i+1 {
				n, err := strconv.Atoi(text[i+1 : j])
				if err != nil || n < 1 || n > maxRestMeasures {
					return fail(text[i:j], "invalid multi-measure rest count")
				}
				count = n
			}
			whole := frac(1, 1)
			if p.tune.Meter.Den > 0 {
				whole = frac(p.tune.Meter.Num, p.tune.Meter.Den)
			}
			p.addNote(&Note{Rest: true, Duration: whole.Mul(frac(count, 1)), Line: line, Column: col})
			i = j
			continue
		}
		pitch, next, err := p.pitch(text, i, line)
		if err != nil {
			return err
		}
		d, next, err := p.duration(text, next, line)
		if err != nil {
			return err
		}
		p.addNote(&Note{Pitches: []Pitch{pitch}, Duration: p.tune.Unit.Mul(d), Line: line, Column: col})
		i = next
	}
	return nil
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

// tupletTime is the number of notes whose time a tuplet of n notes takes.
func tupletTime(n int) int {
	switch n {
	case 2, 4, 8:
		return 3
	case 3, 6:
		return 2
	}
	return 2
}

func (p *parser) bar(bar string) {
	switch bar {
	case "|:", "[|":
		p.closeMeasure("|")
		p.openMeasure().StartRepeat = bar == "|:"
	case "::", ":|:":
		p.closeMeasure(":|")
		p.openMeasure().StartRepeat = true
	default:
		p.closeMeasure(bar)
	}
}

func (p *parser) addNote(n *Note) {
	if !p.broken.isZero() {
		n.Duration = n.Duration.Mul(p.broken)
		p.broken = Fraction{}
	}
	if p.tupletLeft > 0 {
		n.Duration = n.Duration.Mul(p.tupletRatio)
		p.tupletLeft--
	}
	if p.chord != "" {
		n.Chord = p.chord
		p.chord = ""
	}
	m := p.openMeasure()
	m.Notes = append(m.Notes, n)
	p.last = n
}

func (f Fraction) isZero() bool { return f.Num == 0 }

func (p *parser) chordNote(text string, i, line int) (int, error) {
	start := i
	i++
	var pitches []Pitch
	var inner Fraction
	for i < len(text) && text[i] != ']' {
		if text[i] == ' ' {
			i++
			continue
		}
		pitch, next, err := p.pitch(text, i, line)
		if err != nil {
			return 0, err
		}
		d, next, err := p.duration(text, next, line)
		if err != nil {
			return 0, err
		}
		if len(pitches) == 0 {
			inner = d
		}
		pitches = append(pitches, pitch)
		i = next
	}
	if i >= len(text) {
		return 0, &ParseError{Line: line, Column: start + 1, Token: text[start:], Reason: "unterminated chord"}
	}
	if len(pitches) == 0 {
		return 0, &ParseError{Line: line, Column: start + 1, Token: text[start : i+1], Reason: "empty chord"}
	}
	outer, next, err := p.duration(text, i+1, line)
	if err != nil {
		return 0, err
	}
	p.addNote(&Note{Pitches: pitches, Duration: p.tune.Unit.Mul(inner).Mul(outer), Line: line, Column: start + 1})
	return next, nil
}

func (p *parser) pitch(text string, i, line int) (Pitch, int, error) {
	start := i
	var acc Accidental
	switch {
	case strings.HasPrefix(text[i:], "^^"):
		acc, i = DoubleSharp, i+2
	case strings.HasPrefix(text[i:], "__"):
		acc, i = DoubleFlat, i+2
	case text[i] == '^':
		acc, i = Sharp, i+1
	case text[i] == '_':
		acc, i = Flat, i+1
	case text[i] == '=':
		acc, i = Natural, i+1
	}
	if i >= len(text) || !strings.ContainsRune("ABCDEFGabcdefg", rune(text[i])) {
		end := min(i+1, len(text))
		return Pitch{}, 0, &ParseError{Line: line, Column: start + 1, Token: text[start:end], Reason: "invalid note"}
	}
	letter := text[i]
	p0 := Pitch{Step: letter, Octave: 4, Accidental: acc}
	if letter >= 'a' {
		p0.Step = letter - 'a' + 'A'
		p0.Octave = 5
	}
	i++
	for i < len(text) && (text[i] == ',' || text[i] == '\'') {
		if text[i] == ',' {
			p0.Octave--
		} else {
			p0.Octave++
		}
		i++
	}
	return p0, i, nil
}

// duration reads a length multiplier such as 2, 3/2, /, // or /4.
func (p *parser) duration(text string, i, line int) (Fraction, int, error) {
	start := i
	num, den := 1, 1
	var err error
	j := i
	for j < len(text) && text[j] >= '0' && text[j] <= '9' {
		j++
	}
	if j > i {
		num, err = strconv.Atoi(text[i:j])
	}
	if err == nil && j < len(text) && text[j] == '/' {
		k := j + 1
		for k < len(text) && text[k] >= '0' && text[k] <= '9' {
			k++
		}
		if k > j+1 {
			den, err = strconv.Atoi(text[j+1 : k])
			j = k
		} else {
			for j < len(text) && text[j] == '/' && den <= maxLengthPart {
				den *= 2
				j++
			}
		}
	}
	if err != nil || num <= 0 || den <= 0 || num > maxLengthPart || den > maxLengthPart {
		return Fraction{}, 0, &ParseError{Line: line, Column: start + 1, Token: text[start:j], Reason: "invalid duration"}
	}
	return frac(num, den), j, nil
}
