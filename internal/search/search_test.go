package search

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html><html><head><title>Guide | Site</title><style>.x{}</style></head>
<body><nav class="page-nav"><ul><li>Menu entry</li></ul></nav>
<main><article class="document">
<h1 id="guide">Guide<a class="headerlink" href="#guide">¶</a></h1>
<p>Install   the
tool first.</p>
<div class="highlight"><button class="copy-button">Copy</button><pre>go install</pre></div>
<h2 id="usage">Usage</h2>
<p>Run it.</p>
<script>var ignored = 1;</script>
</article>
<aside class="page-toc">Contents</aside></main></body></html>`

func TestExtract(t *testing.T) {
	e, err := Extract(Page{URL: "/guide.html", HTML: page, Tags: []string{"go"}}, 0)
	require.NoError(t, err)

	assert.Equal(t, "Guide", e.Title)
	assert.Equal(t, []Section{
		{Anchor: "guide", Title: "Guide", Level: 1},
		{Anchor: "usage", Title: "Usage", Level: 2},
	}, e.Sections)
	assert.Equal(t, "Guide Install the tool first. go install Usage Run it.", e.Text)
	assert.NotContains(t, e.Text, "Menu")
	assert.NotContains(t, e.Text, "ignored")
	assert.NotContains(t, e.Text, "Copy")
}

func TestExtractTitleFallsBackToDocumentTitle(t *testing.T) {
	e, err := Extract(Page{URL: "/x.html", HTML: `<html><head><title>Plain</title></head><body><p>text</p></body></html>`}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Plain", e.Title)
	assert.Equal(t, "text", e.Text)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"alpha beta gamma", 12, "alpha beta…"},
		{"ääääää", 3, "äää…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n), tt.in)
	}
}

func TestIndexWriteJSON(t *testing.T) {
	ix := NewIndex(0)
	require.NoError(t, ix.Add(Page{URL: "/b.html", Title: "B", HTML: "<main><p>second</p></main>"}))
	require.NoError(t, ix.Add(Page{URL: "/a.html", Title: "A", HTML: "<main><p>first</p></main>"}))
	assert.Equal(t, 2, ix.Len())

	var buf bytes.Buffer
	require.NoError(t, ix.WriteJSON(&buf))
	var got []Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "/a.html", got[0].URL)
	assert.Equal(t, "first", got[0].Text)

	buf.Reset()
	require.NoError(t, NewIndex(0).WriteJSON(&buf))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}
