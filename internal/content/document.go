package content

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Meta is the typed part of a document's front matter.
type Meta struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Tags        []string  `yaml:"tags"`
	Draft       bool      `yaml:"draft"`
	SnippetID   string    `yaml:"snippet_id"`
	Layout      string    `yaml:"layout"`
	Weight      int       `yaml:"weight"`
	Date        time.Time `yaml:"date"`
}

// Document is a loaded content document.
type Document struct {
	File
	Meta Meta
	// Params holds every front matter field, including the typed ones.
	Params map[string]any
	Body   []byte
	// BodyLine is the source line Body starts on.
	BodyLine int
	Modified time.Time
}

// IsSnippet reports whether the document is only embedded, never published.
func (d *Document) IsSnippet() bool { return d.Meta.SnippetID != "" }

// Load reads f and splits off its front matter.
func Load(f File) (*Document, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileReadFailed, f.Rel, err)
	}
	doc, err := Parse(f, raw)
	if err != nil {
		return nil, err
	}
	if st, err := os.Stat(f.Path); err == nil {
		doc.Modified = st.ModTime().UTC()
	}
	return doc, nil
}

// Parse builds a Document from raw file content.
func Parse(f File, raw []byte) (*Document, error) {
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	fm, body, line, err := SplitFrontMatter(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFrontMatter, f.Rel, err)
	}
	doc := &Document{File: f, Body: body, BodyLine: line, Params: map[string]any{}}
	if len(bytes.TrimSpace(fm)) == 0 {
		return doc, nil
	}
	if err := yaml.Unmarshal(fm, &doc.Meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFrontMatter, f.Rel, err)
	}
	if err := yaml.Unmarshal(fm, &doc.Params); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFrontMatter, f.Rel, err)
	}
	return doc, nil
}

var fence = []byte("---")

// SplitFrontMatter separates a leading "---" delimited YAML block from the body. line is
// the 1-based line the body starts on. Input without front matter is returned whole.
func SplitFrontMatter(src []byte) (fm, body []byte, line int, err error) {
	first, rest, ok := bytes.Cut(src, []byte("\n"))
	if !ok || !bytes.Equal(bytes.TrimRight(first, " \t"), fence) {
		return nil, src, 1, nil
	}
	line = 2
	for off := 0; off <= len(rest); {
		end := bytes.IndexByte(rest[off:], '\n')
		next := len(rest)
		if end >= 0 {
			next = off + end
		}
		if bytes.Equal(bytes.TrimRight(rest[off:next], " \t"), fence) {
			body = nil
			if next < len(rest) {
				body = rest[next+1:]
			}
			return rest[:off], body, line + 1, nil
		}
		line++
		if end < 0 {
			break
		}
		off = next + 1
	}
	return nil, nil, 0, fmt.Errorf("front matter is not closed with ---")
}

// FormatFrontMatter renders fields as a front matter block followed by body.
func FormatFrontMatter(fields any, body []byte) ([]byte, error) {
	out, err := yaml.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n")
	b.Write(body)
	return b.Bytes(), nil
}
