package compile

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/diagram"
	"git.home.luguber.info/inful/rstsite/internal/directive"
	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/snippet"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

func parse(t *testing.T, p, src string) *rst.Document {
	t.Helper()
	doc, err := rst.Parse(src, rst.WithPath(p), rst.WithBodyModes(directive.BodyMode))
	require.NoError(t, err)
	return doc
}

func compile(t *testing.T, opts Options, src string) *Page {
	t.Helper()
	page, err := New(opts).Compile("page.rst", parse(t, "page.rst", src))
	require.NoError(t, err)
	return page
}

func TestCompileBlocks(t *testing.T) {
	page := compile(t, Options{}, "Title\n=====\n\nSome *emph* and **strong** with ``code``.\n\n- one\n- two\n\n3. three\n4. four\n\n=====  =====\nA      B\n=====  =====\n1      2\n=====  =====\n\n----\n\nEnd with :kbd:`Ctrl` and :abbr:`HTML (HyperText Markup Language)`.\n")

	h := page.HTML
	assert.Contains(t, h, `<h1 id="title">Title<a class="headerlink" href="#title" title="Permalink">¶</a></h1>`)
	assert.Contains(t, h, "<p>Some <em>emph</em> and <strong>strong</strong> with <code class=\"literal\">code</code>.</p>")
	assert.Contains(t, h, "<ul>\n<li>one</li>\n<li>two</li>\n</ul>")
	assert.Contains(t, h, `<ol start="3">`)
	assert.Contains(t, h, "<thead><tr><th>A</th><th>B</th></tr></thead>")
	assert.Contains(t, h, "<tr><td>1</td><td>2</td></tr>")
	assert.Contains(t, h, "<hr>")
	assert.Contains(t, h, "<kbd>Ctrl</kbd>")
	assert.Contains(t, h, `<abbr title="HyperText Markup Language">HTML</abbr>`)
	assert.Equal(t, []TocItem{{Level: 1, Text: "Title", Anchor: "title"}}, page.TOC)
	assert.False(t, page.Math.HasMath)
}

func TestCompileMath(t *testing.T) {
	page := compile(t, Options{}, "Inline $a<b$ and :math:`x^2` cost \\$5.\n\n.. math::\n\n   e = mc^2\n\n   \\sum_i i\n")

	assert.True(t, page.Math.HasMath)
	assert.Equal(t, 4, page.Math.Count)
	assert.Contains(t, page.HTML, `<span class="math math-inline" data-formula="a&lt;b">a&lt;b</span>`)
	assert.Contains(t, page.HTML, `data-formula="x^2"`)
	assert.Contains(t, page.HTML, `<div class="math math-display" data-formula="\sum_i i">`)
	assert.Contains(t, page.HTML, "cost &#36;5.")
	assert.Equal(t, "e = mc^2", page.Math.Formulas[2].Text)
}

func TestCompileTextDollarsAreNotMath(t *testing.T) {
	page := compile(t, Options{}, "Prices: ``$1`` and ``$2``.\n")
	assert.False(t, page.Math.HasMath)
}

func TestCompileCodeBlock(t *testing.T) {
	page := compile(t, Options{CopyButton: true}, ".. code-block:: golang\n   :linenos:\n\n   package main\n   func main() {}\n")
	assert.Contains(t, page.HTML, `<div class="highlight" data-language="go">`)
	assert.Contains(t, page.HTML, `<span class="line" data-line="2">`)
	assert.Contains(t, page.HTML, `class="copy-button"`)
}

func TestCompileDiagramAndMusic(t *testing.T) {
	memo := NewMemo(16)
	src := ".. diagram:: flowchart\n   :caption: Flow\n\n   A[Start] -> B[End]\n   B -> A\n\n.. musicscore::\n\n   X:1\n   K:C\n   CDEF|\n\n.. diagram:: flowchart\n   :caption: Flow\n\n   A[Start] -> B[End]\n   B -> A\n"
	page := compile(t, Options{Memo: memo}, src)

	assert.Equal(t, 2, strings.Count(page.HTML, `<figure class="diagram diagram-flowchart">`))
	assert.Contains(t, page.HTML, "<figcaption>Flow</figcaption>")
	assert.Contains(t, page.HTML, `<div class="music"><svg`)
	hits, misses := memo.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCompileDirectiveErrorPolicy(t *testing.T) {
	src := "Intro.\n\n.. diagram:: flowchart\n\n   A -> \n   this is not a statement\n"

	page := compile(t, Options{}, src)
	assert.Contains(t, page.HTML, `<div class="directive-error" data-directive="diagram">`)
	require.Len(t, page.Diagnostics, 1)
	assert.Equal(t, SeverityWarning, page.Diagnostics[0].Severity)
	assert.Equal(t, 3, page.Diagnostics[0].Line)

	_, err := New(Options{Strict: true}).Compile("page.rst", parse(t, "page.rst", src))
	var de *DirectiveError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "diagram", de.Directive)
	var pe *diagram.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestCompileOptionErrorPolicy(t *testing.T) {
	src := ".. toctree::\n   :maxdepth: many\n"
	page := compile(t, Options{}, src)
	assert.Contains(t, page.HTML, "directive-error")

	_, err := New(Options{Strict: true}).Compile("page.rst", parse(t, "page.rst", src))
	var pe *rst.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestCompileUnknownDirective(t *testing.T) {
	page := compile(t, Options{}, ".. youtube:: abc\n")
	assert.Contains(t, page.HTML, "<!-- unhandled directive: youtube -->")

	_, err := New(Options{Strict: true}).Compile("page.rst", parse(t, "page.rst", ".. youtube:: abc\n"))
	var ue *UnknownDirectiveError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "youtube", ue.Name)
}

func registry(t *testing.T, snippets map[string]string) *snippet.Registry {
	t.Helper()
	var sources []snippet.Source
	for id, src := range snippets {
		p := "snippets/" + id + ".rst"
		sources = append(sources, snippet.Source{ID: id, Path: p, Doc: parse(t, p, src)})
	}
	reg, err := snippet.NewRegistry(sources)
	require.NoError(t, err)
	return reg
}

func TestCompileSnippetHeadingShift(t *testing.T) {
	reg := registry(t, map[string]string{"setup": "Setup\n=====\n\nRun it.\n"})
	page := compile(t, Options{Snippets: reg}, "Guide\n=====\n\nSetup\n-----\n\n.. snippet:: setup\n\nAfter\n-----\n")

	assert.Contains(t, page.HTML, `<h2 id="setup">Setup`)
	assert.Contains(t, page.HTML, `<div class="snippet" data-snippet-id="setup">`)
	assert.Contains(t, page.HTML, `<h3 id="setup-setup">Setup`)
	assert.Contains(t, page.HTML, `<h2 id="after">After`)
	assert.Equal(t, []string{"setup"}, page.Snippets)
	assert.Equal(t, []TocItem{
		{Level: 1, Text: "Guide", Anchor: "guide"},
		{Level: 2, Text: "Setup", Anchor: "setup"},
		{Level: 3, Text: "Setup", Anchor: "setup-setup"},
		{Level: 2, Text: "After", Anchor: "after"},
	}, page.TOC)
}

func TestCompileSnippetFailuresArePlaceholders(t *testing.T) {
	reg := registry(t, map[string]string{
		"a": "A text.\n\n.. snippet:: b\n",
		"b": ".. snippet:: a\n",
	})
	opts := Options{Snippets: reg, Strict: true}

	page := compile(t, opts, ".. snippet:: missing\n")
	assert.Contains(t, page.HTML, `<div class="snippet-missing" data-snippet-id="missing">`)
	require.Len(t, page.Diagnostics, 1)

	page = compile(t, opts, ".. snippet:: a\n")
	assert.Contains(t, page.HTML, "recursive embed: a -&gt; b -&gt; a")
	assert.Contains(t, page.HTML, "<p>A text.</p>")
}

func TestCompileSnippetCard(t *testing.T) {
	reg := registry(t, map[string]string{"install": "Install\n=======\n\nHow to install.\n"})
	page := compile(t, Options{Snippets: reg, BaseURL: "/site"}, ".. snippet-card:: install\n")
	assert.Contains(t, page.HTML, `<a class="snippet-card-title" href="/site/snippets/install.html">Install</a>`)
	assert.Contains(t, page.HTML, `<p class="snippet-card-summary">How to install.</p>`)
}

func TestCompileTocTree(t *testing.T) {
	docs := []xref.DocLabels{
		{Path: "guide/intro.rst", Doc: parse(t, "guide/intro.rst", "Intro\n=====\n\nSub\n---\n\nDeep\n~~~~\n")},
		{Path: "guide/setup.rst", Doc: parse(t, "guide/setup.rst", "Setup\n=====\n")},
		{Path: "index.rst", Doc: parse(t, "index.rst", "Home\n====\n")},
	}
	labels, errs := xref.Collect(docs)
	require.Empty(t, errs)

	c := New(Options{Labels: labels, BaseURL: "/site"})
	page, err := c.Compile("index.rst", parse(t, "index.rst", ".. toctree::\n   :maxdepth: 2\n   :caption: Guide\n\n   guide/intro\n   Custom <guide/setup>\n   missing\n"))
	require.NoError(t, err)

	h := page.HTML
	assert.Contains(t, h, `<p class="caption">Guide</p>`)
	assert.Contains(t, h, `<li class="toctree-l1"><a href="/site/guide/intro.html">Intro</a><ul><li class="toctree-l2"><a href="/site/guide/intro.html#sub">Sub</a></li></ul></li>`)
	assert.NotContains(t, h, "#deep")
	assert.Contains(t, h, `<a href="/site/guide/setup.html">Custom</a>`)
	assert.Contains(t, h, `<li class="toctree-missing">missing</li>`)
	require.Len(t, page.Diagnostics, 1)

	page, err = c.Compile("index.rst", parse(t, "index.rst", ".. toctree::\n   :glob:\n   :maxdepth: 1\n\n   guide/*\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(page.HTML, "toctree-l1"))
}

func TestCompileLocalContents(t *testing.T) {
	page := compile(t, Options{}, "Title\n=====\n\n.. contents:: On this page\n   :local:\n\nAlpha\n-----\n\nBeta\n----\n\nNext\n====\n")
	assert.Contains(t, page.HTML, `<nav class="contents"><p class="topic-title">On this page</p><ul><li><a href="#alpha">Alpha</a></li><li><a href="#beta">Beta</a></li></ul></nav>`)
	assert.NotContains(t, page.HTML, `href="#next"`)
}

func TestCompileAdmonitionFigureComponent(t *testing.T) {
	src := ".. note::\n\n   Remember $x$.\n\n.. figure:: img/plot.png\n   :alt: Plot\n   :align: center\n\n   The *caption*.\n\n.. component:: card\n   :title: Hi \"there\"\n\n   Slot body.\n"
	page, err := New(Options{BaseURL: "/site"}).Compile("guide/page.rst", parse(t, "guide/page.rst", src))
	require.NoError(t, err)

	h := page.HTML
	assert.Contains(t, h, "<div class=\"admonition note\">\n<p class=\"admonition-title\">Note</p>")
	assert.Equal(t, 1, page.Math.Count)
	assert.Contains(t, h, `<figure class="align-center"><img src="/site/guide/img/plot.png" alt="Plot"><figcaption><p>The <em>caption</em>.</p>`)
	assert.Contains(t, h, `<x-component name="card" title="Hi &#34;there&#34;"><x-slot name="default"><p>Slot body.</p>`)
}

func TestCompileReferences(t *testing.T) {
	doc := parse(t, "page.rst", "See `Go <https://go.dev>`_ and :ref:`nowhere`.\n")
	labels, _ := xref.Collect([]xref.DocLabels{{Path: "page.rst", Doc: doc}})
	errs := xref.Resolve("page.rst", doc, labels, func(p, a string) string { return "/" + p + "#" + a })
	require.Len(t, errs, 1)

	page, err := New(Options{}).Compile("page.rst", doc)
	require.NoError(t, err)
	assert.Contains(t, page.HTML, `<a class="reference external" href="https://go.dev">Go</a>`)
	assert.Contains(t, page.HTML, `<span class="reference missing" title="unresolved reference">nowhere</span>`)
}
