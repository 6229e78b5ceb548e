package mathtag

import (
	"strings"

	"golang.org/x/net/html"
)

// Formula is one detected formula with its delimiters removed.
type Formula struct {
	Text    string
	Display bool
}

// Result describes the formulas found by ExtractAndTag. Templates use HasMath to
// decide whether to load the math renderer.
type Result struct {
	HasMath  bool
	Count    int
	Formulas []Formula
}

const (
	inlineClass  = "math math-inline"
	displayClass = "math math-display"
)

var rawElements = map[string]bool{
	"pre":      true,
	"code":     true,
	"script":   true,
	"style":    true,
	"textarea": true,
}

// ExtractAndTag replaces every formula in src with a placeholder element. Formula
// text is unescaped from src and escaped exactly once in the placeholder, so the
// data-formula attribute carries the author's text verbatim.
func ExtractAndTag(src string) (string, Result) {
	var (
		out strings.Builder
		res Result
	)
	out.Grow(len(src))
	i := 0
	for i < len(src) {
		lt := strings.IndexByte(src[i:], '<')
		if lt < 0 {
			tagText(&out, src[i:], &res)
			break
		}
		tagText(&out, src[i:i+lt], &res)
		i += lt
		end := skipMarkup(src, i)
		out.WriteString(src[i:end])
		i = end
	}
	res.Count = len(res.Formulas)
	res.HasMath = res.Count > 0
	return out.String(), res
}

// skipMarkup returns the offset after the tag, comment or raw element that starts at i.
func skipMarkup(src string, i int) int {
	if strings.HasPrefix(src[i:], "<!--") {
		if end := strings.Index(src[i+4:], "-->"); end >= 0 {
			return i + 4 + end + 3
		}
		return len(src)
	}
	gt := strings.IndexByte(src[i:], '>')
	if gt < 0 {
		return len(src)
	}
	tagEnd := i + gt + 1
	name := tagName(src[i+1 : tagEnd-1])
	if !rawElements[name] || strings.HasSuffix(src[i:tagEnd], "/>") {
		return tagEnd
	}
	closing := "</" + name
	lower := strings.ToLower(src[tagEnd:])
	idx := strings.Index(lower, closing)
	if idx < 0 {
		return len(src)
	}
	closeStart := tagEnd + idx
	if gt := strings.IndexByte(src[closeStart:], '>'); gt >= 0 {
		return closeStart + gt + 1
	}
	return len(src)
}

func tagName(tag string) string {
	if strings.HasPrefix(tag, "/") {
		return ""
	}
	end := strings.IndexAny(tag, " \t\n\r/>")
	if end < 0 {
		end = len(tag)
	}
	return strings.ToLower(tag[:end])
}

func tagText(out *strings.Builder, text string, res *Result) {
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text) && text[i+1] == '$':
			out.WriteString("&#36;")
			i += 2
			continue
		case c == '$' || c == '\\':
			if f, end, ok := Match(text, i); ok {
				if f.Text != "" {
					f.Text = html.UnescapeString(f.Text)
					res.Formulas = append(res.Formulas, f)
					out.WriteString(Placeholder(f))
				}
				i = end
				continue
			}
			if strings.HasPrefix(text[i:], "$$") {
				out.WriteString("$$")
				i += 2
				continue
			}
		}
		out.WriteByte(c)
		i++
	}
}

// Placeholder renders the element that stands in for f.
func Placeholder(f Formula) string {
	escaped := html.EscapeString(f.Text)
	if f.Display {
		return `<div class="` + displayClass + `" data-formula="` + escaped + `">` + escaped + `</div>`
	}
	return `<span class="` + inlineClass + `" data-formula="` + escaped + `">` + escaped + `</span>`
}

// Match reports whether a formula opens at s[i]. end is the offset after the closing
// delimiter. An empty display formula ($$$$) matches with an empty Text so callers
// can drop it.
func Match(s string, i int) (Formula, int, bool) {
	switch {
	case strings.HasPrefix(s[i:], `\[`):
		return matchPair(s, i, `\[`, `\]`, true)
	case strings.HasPrefix(s[i:], `\(`):
		return matchPair(s, i, `\(`, `\)`, false)
	case strings.HasPrefix(s[i:], "$"):
		return MatchDollar(s, i)
	}
	return Formula{}, i, false
}

func matchPair(s string, i int, open, closeDelim string, display bool) (Formula, int, bool) {
	start := i + len(open)
	end := strings.Index(s[start:], closeDelim)
	if end < 0 {
		return Formula{}, i, false
	}
	body := s[start : start+end]
	return Formula{Text: strings.TrimSpace(body), Display: display}, start + end + len(closeDelim), true
}

// MatchDollar matches $$...$$ or $...$ at s[i]. Display delimiters are tried as a
// unit first; an unterminated $$ never falls back to inline matching.
func MatchDollar(s string, i int) (Formula, int, bool) {
	if i > 0 && s[i-1] == '\\' {
		return Formula{}, i, false
	}
	if strings.HasPrefix(s[i:], "$$") {
		start := i + 2
		end := indexUnescaped(s, start, "$$")
		if end < 0 {
			return Formula{}, i, false
		}
		return Formula{Text: strings.TrimSpace(s[start:end]), Display: true}, end + 2, true
	}
	start := i + 1
	if start >= len(s) || isSpace(s[start]) {
		return Formula{}, i, false
	}
	for j := start; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '$':
			if j+1 < len(s) && s[j+1] == '$' {
				return Formula{}, i, false
			}
			if isSpace(s[j-1]) {
				continue
			}
			if j+1 < len(s) && s[j+1] >= '0' && s[j+1] <= '9' {
				continue
			}
			return Formula{Text: s[start:j]}, j + 1, true
		}
	}
	return Formula{}, i, false
}

func indexUnescaped(s string, from int, delim string) int {
	for j := from; j+len(delim) <= len(s); j++ {
		if s[j] == '\\' {
			j++
			continue
		}
		if strings.HasPrefix(s[j:], delim) {
			return j
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
