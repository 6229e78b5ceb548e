package rst

import (
	"strings"
	"unicode/utf8"
)

type line struct {
	text string
	num  int
}

const tabWidth = 8

func splitLines(src string, offset int) []line {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	raw := strings.Split(src, "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	out := make([]line, len(raw))
	for i, r := range raw {
		out[i] = line{text: strings.TrimRight(expandTabs(r), " \t\f\v"), num: offset + i + 1}
	}
	return out
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

func blank(l line) bool { return l.text == "" }

func indentOf(s string) int {
	return len(s) - len(strings.TrimLeft(s, " "))
}

// dedent removes the smallest common indentation of the non-blank lines.
func dedent(ls []line) []line {
	minIndent := -1
	for _, l := range ls {
		if blank(l) {
			continue
		}
		if ind := indentOf(l.text); minIndent < 0 || ind < minIndent {
			minIndent = ind
		}
	}
	out := make([]line, len(ls))
	for i, l := range ls {
		if blank(l) || minIndent <= 0 {
			out[i] = l
			continue
		}
		out[i] = line{text: l.text[minIndent:], num: l.num}
	}
	return out
}

func trimTrailingBlank(ls []line) []line {
	for len(ls) > 0 && blank(ls[len(ls)-1]) {
		ls = ls[:len(ls)-1]
	}
	return ls
}

func joinText(ls []line) string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}

const adornmentChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// adornmentChar returns the repeated punctuation character of an adornment line.
func adornmentChar(s string) (rune, bool) {
	if len(s) < 2 {
		return 0, false
	}
	first, _ := utf8.DecodeRuneInString(s)
	if !strings.ContainsRune(adornmentChars, first) {
		return 0, false
	}
	for _, r := range s {
		if r != first {
			return 0, false
		}
	}
	return first, true
}

func visualLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
