// Package search builds the client-side search index from rendered pages.
package search

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxText is the number of runes of body text kept per page.
const DefaultMaxText = 2000

// contentSelectors are tried in order; the first match is the indexed region.
var contentSelectors = []string{"main article", "article", "main", "body"}

// skipped elements never contribute text.
const skipped = "script, style, noscript, svg, button, nav, .headerlink, .page-toc"

// Section is a heading of a page.
type Section struct {
	Anchor string `json:"anchor"`
	Title  string `json:"title"`
	Level  int    `json:"level"`
}

// Entry is one indexed page.
type Entry struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Sections    []Section `json:"sections,omitempty"`
	Text        string    `json:"text"`
}

// Page is the input for one rendered page.
type Page struct {
	URL         string
	Title       string
	Description string
	Tags        []string
	HTML        string
}

// Index collects entries from concurrent render workers.
type Index struct {
	maxText int

	mu      sync.Mutex
	entries []Entry
}

// NewIndex returns an empty index. A non-positive maxText uses DefaultMaxText.
func NewIndex(maxText int) *Index {
	if maxText <= 0 {
		maxText = DefaultMaxText
	}
	return &Index{maxText: maxText}
}

// Add extracts p's text and headings and adds it to the index.
func (ix *Index) Add(p Page) error {
	e, err := Extract(p, ix.maxText)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.entries = append(ix.entries, e)
	ix.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// Entries returns the entries sorted by URL.
func (ix *Index) Entries() []Entry {
	ix.mu.Lock()
	out := append([]Entry(nil), ix.entries...)
	ix.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// WriteJSON writes the sorted entries as a JSON array.
func (ix *Index) WriteJSON(w io.Writer) error {
	entries := ix.Entries()
	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(entries)
}

// Extract builds the entry for one page. The title falls back to the first h1.
func Extract(p Page, maxText int) (Entry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return Entry{}, err
	}
	root := doc.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			root = s
			break
		}
	}
	root = root.Clone()
	root.Find(skipped).Remove()

	e := Entry{URL: p.URL, Title: p.Title, Description: p.Description, Tags: p.Tags}
	root.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		title := collapse(h.Text())
		if e.Title == "" && goquery.NodeName(h) == "h1" {
			e.Title = title
		}
		id, _ := h.Attr("id")
		if id == "" || title == "" {
			return
		}
		level := int(goquery.NodeName(h)[1] - '0')
		e.Sections = append(e.Sections, Section{Anchor: id, Title: title, Level: level})
	})
	if e.Title == "" {
		e.Title = collapse(doc.Find("title").First().Text())
	}
	e.Text = truncate(collapse(root.Text()), maxText)
	return e, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			s = s[:pos]
			break
		}
		i++
	}
	if cut := strings.LastIndexByte(s, ' '); cut > len(s)/2 {
		s = s[:cut]
	}
	return s + "…"
}
