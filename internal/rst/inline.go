package rst

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"git.home.luguber.info/inful/rstsite/internal/mathtag"
)

const (
	openingPunct = "-:/'\"<([{"
	closingPunct = "-.,:;!?\\/'\")]}>"
)

var (
	roleRe    = regexp.MustCompile("^:([A-Za-z][A-Za-z0-9_\\-+.]*):`")
	wordRefRe = regexp.MustCompile(`^[A-Za-z0-9]+(?:[-._][A-Za-z0-9]+)*(__?)`)
	urlRe     = regexp.MustCompile(`^https?://[^\s<>]+`)
)

// ParseInline splits text into inline spans. Markup that does not satisfy the
// recognition rules is kept as plain text; ParseInline never fails.
func ParseInline(text string) []Inline {
	s := &inlineScanner{src: text}
	s.run()
	return s.out
}

type inlineScanner struct {
	src string
	buf strings.Builder
	out []Inline
}

func (s *inlineScanner) flush() {
	if s.buf.Len() == 0 {
		return
	}
	s.out = append(s.out, &Text{Value: s.buf.String()})
	s.buf.Reset()
}

func (s *inlineScanner) emit(n Inline) {
	s.flush()
	s.out = append(s.out, n)
}

func (s *inlineScanner) run() {
	src := s.src
	i := 0
	for i < len(src) {
		c := src[i]
		if c == '\\' {
			if i+1 < len(src) && (src[i+1] == '(' || src[i+1] == '[') {
				if f, end, ok := mathtag.Match(src, i); ok {
					if f.Text != "" {
						s.emit(&MathInline{Formula: f.Text, Display: f.Display})
					}
					i = end
					continue
				}
			}
			if i+1 < len(src) {
				r, size := utf8.DecodeRuneInString(src[i+1:])
				if !unicode.IsSpace(r) {
					s.buf.WriteRune(r)
				}
				i += 1 + size
				continue
			}
			s.buf.WriteByte(c)
			i++
			continue
		}
		if c == '$' {
			if f, end, ok := mathtag.MatchDollar(src, i); ok {
				if f.Text != "" {
					s.emit(&MathInline{Formula: f.Text, Display: f.Display})
				}
				i = end
				continue
			}
			if strings.HasPrefix(src[i:], "$$") {
				s.buf.WriteString("$$")
				i += 2
				continue
			}
		}
		if s.canStart(i) {
			if next, ok := s.markup(i); ok {
				i = next
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(src[i:])
		s.buf.WriteRune(r)
		i += size
	}
	s.flush()
}

// canStart applies the start-string rule to position i.
func (s *inlineScanner) canStart(i int) bool {
	if i == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(s.src[:i])
	return unicode.IsSpace(prev) || strings.ContainsRune(openingPunct, prev)
}

// canEnd applies the end-string rule: end is the offset after the end-string.
func (s *inlineScanner) canEnd(end int) bool {
	if end >= len(s.src) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(s.src[end:])
	return unicode.IsSpace(next) || strings.ContainsRune(closingPunct, next)
}

// findClose returns the offset of the end-string for content starting at from.
func (s *inlineScanner) findClose(from int, closeStr string, escapes bool) int {
	src := s.src
	for j := from; j+len(closeStr) <= len(src); j++ {
		if escapes && src[j] == '\\' {
			j++
			continue
		}
		if !strings.HasPrefix(src[j:], closeStr) || j == from {
			continue
		}
		prev, _ := utf8.DecodeLastRuneInString(src[:j])
		if unicode.IsSpace(prev) {
			continue
		}
		if s.canEnd(j + len(closeStr)) {
			return j
		}
	}
	return -1
}

func (s *inlineScanner) followedByText(i int) bool {
	if i >= len(s.src) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s.src[i:])
	return !unicode.IsSpace(r)
}

func (s *inlineScanner) markup(i int) (int, bool) {
	src := s.src[i:]
	switch {
	case strings.HasPrefix(src, "**"):
		return s.delimited(i, "**", func(content string) Inline {
			return &Strong{Children: []Inline{&Text{Value: unescape(content)}}}
		}, true)
	case strings.HasPrefix(src, "``"):
		return s.delimited(i, "``", func(content string) Inline {
			return &Literal{Value: content}
		}, false)
	case strings.HasPrefix(src, "*"):
		return s.delimited(i, "*", func(content string) Inline {
			return &Emphasis{Children: []Inline{&Text{Value: unescape(content)}}}
		}, true)
	case strings.HasPrefix(src, ":"):
		return s.role(i)
	case strings.HasPrefix(src, "`"):
		return s.interpreted(i)
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		return s.url(i)
	}
	return s.wordReference(i)
}

func (s *inlineScanner) delimited(i int, delim string, build func(string) Inline, escapes bool) (int, bool) {
	start := i + len(delim)
	if !s.followedByText(start) {
		return i, false
	}
	end := s.findClose(start, delim, escapes)
	if end < 0 {
		return i, false
	}
	s.emit(build(s.src[start:end]))
	return end + len(delim), true
}

func (s *inlineScanner) role(i int) (int, bool) {
	m := roleRe.FindStringSubmatch(s.src[i:])
	if m == nil {
		return i, false
	}
	start := i + len(m[0])
	if !s.followedByText(start) {
		return i, false
	}
	end := s.findClose(start, "`", true)
	if end < 0 {
		return i, false
	}
	name := strings.ToLower(m[1])
	content := s.src[start:end]
	if name == "math" {
		s.emit(&MathInline{Formula: content})
	} else {
		s.emit(&Role{Name: name, Target: unescape(content)})
	}
	return end + 1, true
}

func (s *inlineScanner) interpreted(i int) (int, bool) {
	start := i + 1
	if !s.followedByText(start) {
		return i, false
	}
	src := s.src
	for j := start + 1; j < len(src); j++ {
		if src[j] == '\\' {
			j++
			continue
		}
		if src[j] != '`' {
			continue
		}
		if j+1 < len(src) && src[j+1] == '`' {
			j++
			continue
		}
		if prev, _ := utf8.DecodeLastRuneInString(src[:j]); unicode.IsSpace(prev) {
			continue
		}
		if next, ok := s.closeInterpreted(start, j); ok {
			return next, true
		}
	}
	return i, false
}

// closeInterpreted handles the suffix after the closing backquote at end: a
// reference marker, a trailing role or nothing.
func (s *inlineScanner) closeInterpreted(start, end int) (int, bool) {
	content := unescape(s.src[start:end])
	after := end + 1
	rest := s.src[after:]
	switch {
	case strings.HasPrefix(rest, "__") && s.canEnd(after+2):
		s.emit(linkReference(content))
		return after + 2, true
	case strings.HasPrefix(rest, "_") && s.canEnd(after+1):
		s.emit(linkReference(content))
		return after + 1, true
	}
	if m := roleSuffixRe.FindString(rest); m != "" && s.canEnd(after+len(m)) {
		s.emit(&Role{Name: strings.ToLower(strings.Trim(m, ":")), Target: content})
		return after + len(m), true
	}
	if !s.canEnd(after) {
		return 0, false
	}
	s.emit(&Role{Target: content})
	return after, true
}

var roleSuffixRe = regexp.MustCompile(`^:[A-Za-z][A-Za-z0-9_\-+.]*:`)

// linkReference builds the span for `text <url>`_, `text <label_>`_ and `label`_.
func linkReference(content string) *Reference {
	title, target, explicit := SplitTitleTarget(content)
	if !explicit {
		return &Reference{Label: target, Text: target}
	}
	if strings.HasSuffix(target, "_") && !strings.Contains(target, "/") {
		return &Reference{Label: strings.TrimSuffix(target, "_"), Text: title}
	}
	return &Reference{URL: strings.Join(strings.Fields(target), ""), Text: title}
}

func (s *inlineScanner) url(i int) (int, bool) {
	m := urlRe.FindString(s.src[i:])
	m = strings.TrimRight(m, ".,;:!?)'\"")
	if len(m) <= len("https://") {
		return i, false
	}
	s.emit(&Reference{URL: m, Text: m})
	return i + len(m), true
}

func (s *inlineScanner) wordReference(i int) (int, bool) {
	m := wordRefRe.FindStringSubmatch(s.src[i:])
	if m == nil {
		return i, false
	}
	end := i + len(m[0])
	if !s.canEnd(end) {
		return i, false
	}
	label := strings.TrimSuffix(m[0], m[1])
	s.emit(&Reference{Label: label, Text: label})
	return end, true
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
