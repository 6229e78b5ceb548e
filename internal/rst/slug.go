package rst

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify turns heading or label text into an anchor id: accents are stripped, letters
// lower-cased and every other run of characters collapsed into a single '-'.
// Text with no usable characters yields "section".
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(unicode.ToLower(r))
		case r == '_' && b.Len() > 0:
			if dash {
				b.WriteByte('-')
				dash = false
			}
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	if b.Len() == 0 {
		return "section"
	}
	return b.String()
}

// AnchorSet hands out anchor ids that are unique within one rendered page.
type AnchorSet struct {
	used map[string]struct{}
}

// NewAnchorSet returns an empty set.
func NewAnchorSet() *AnchorSet {
	return &AnchorSet{used: make(map[string]struct{})}
}

// Unique returns base if unused, otherwise the first free "base-N" for N = 1, 2, ...
// The returned id is reserved.
func (a *AnchorSet) Unique(base string) string {
	if base == "" {
		base = "section"
	}
	id := base
	for n := 1; a.Has(id); n++ {
		id = base + "-" + strconv.Itoa(n)
	}
	a.used[id] = struct{}{}
	return id
}

// Has reports whether id is taken.
func (a *AnchorSet) Has(id string) bool {
	_, ok := a.used[id]
	return ok
}

// Clone copies the set so a page render can extend it without touching the parsed document.
func (a *AnchorSet) Clone() *AnchorSet {
	c := NewAnchorSet()
	for k := range a.used {
		c.used[k] = struct{}{}
	}
	return c
}

// Len returns the number of reserved ids.
func (a *AnchorSet) Len() int { return len(a.used) }
