package directive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/rst"
)

func decodeFirst(t *testing.T, src string) (Directive, error) {
	t.Helper()
	doc, err := rst.Parse(src, rst.WithBodyModes(BodyMode))
	require.NoError(t, err)
	require.NotEmpty(t, doc.Children)
	d, ok := doc.Children[0].(*rst.Directive)
	require.True(t, ok, "first block is %T", doc.Children[0])
	return Decode(d)
}

func TestDecodeCodeBlock(t *testing.T) {
	got, err := decodeFirst(t, ".. code-block:: Python\n   :line-numbers:\n   :copy: false\n   :caption: Example\n\n   print(1)\n   print(2)\n")
	require.NoError(t, err)

	cb, ok := got.(*CodeBlock)
	require.True(t, ok)
	assert.Equal(t, "code-block", cb.Name())
	assert.Equal(t, 1, cb.Line())
	assert.Equal(t, "python", cb.Language)
	assert.Equal(t, "print(1)\nprint(2)", cb.Code)
	assert.True(t, cb.LineNumbers)
	assert.False(t, cb.CopyButton)
	assert.Equal(t, "Example", cb.Caption)
}

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(t *testing.T, d Directive)
	}{
		{
			name: "math splits formulas at blank lines",
			src:  ".. math::\n   :label: euler\n\n   e^{i\\pi} + 1 = 0\n\n   a^2 + b^2 = c^2\n",
			check: func(t *testing.T, d Directive) {
				m := d.(*Math)
				assert.Equal(t, []string{`e^{i\pi} + 1 = 0`, "a^2 + b^2 = c^2"}, m.Formulas)
				assert.Equal(t, "euler", m.Label)
			},
		},
		{
			name: "math argument form",
			src:  ".. math:: x^2\n",
			check: func(t *testing.T, d Directive) {
				assert.Equal(t, []string{"x^2"}, d.(*Math).Formulas)
			},
		},
		{
			name: "diagram with type argument",
			src:  ".. diagram:: flowchart\n   :direction: LR\n   :width: 400\n\n   A -> B\n",
			check: func(t *testing.T, d Directive) {
				dg := d.(*Diagram)
				assert.Equal(t, "flowchart", dg.Type)
				assert.Equal(t, "LR", dg.Direction)
				assert.Equal(t, 400, dg.Width)
				assert.Equal(t, "A -> B", dg.Source)
			},
		},
		{
			name: "diagram shorthand name",
			src:  ".. gantt::\n\n   Design [2024-01-01] : 3d\n",
			check: func(t *testing.T, d Directive) {
				assert.Equal(t, "gantt", d.(*Diagram).Type)
			},
		},
		{
			name: "mermaid reads the header line",
			src:  ".. mermaid::\n\n   sequenceDiagram\n   A -> B: hi\n",
			check: func(t *testing.T, d Directive) {
				dg := d.(*Diagram)
				assert.Equal(t, "sequence", dg.Type)
				assert.Equal(t, "sequenceDiagram\nA -> B: hi", dg.Source)
			},
		},
		{
			name: "music score",
			src:  ".. musicscore::\n   :scale: 0.8\n\n   X:1\n   K:C\n   CDEF|\n",
			check: func(t *testing.T, d Directive) {
				ms := d.(*MusicScore)
				assert.InDelta(t, 0.8, ms.Scale, 1e-9)
				assert.Equal(t, "X:1\nK:C\nCDEF|", ms.Source)
			},
		},
		{
			name: "snippet and card",
			src:  ".. snippet:: install-steps\n",
			check: func(t *testing.T, d Directive) {
				assert.Equal(t, "install-steps", d.(*Snippet).ID)
			},
		},
		{
			name: "snippet card with title",
			src:  ".. snippet-card:: install-steps\n   :title: Installing\n",
			check: func(t *testing.T, d Directive) {
				c := d.(*SnippetCard)
				assert.Equal(t, "install-steps", c.ID)
				assert.Equal(t, "Installing", c.Title)
			},
		},
		{
			name: "toctree entries",
			src:  ".. toctree::\n   :maxdepth: 2\n   :hidden:\n\n   intro\n   Setup guide <guide/setup>\n",
			check: func(t *testing.T, d Directive) {
				tt := d.(*TocTree)
				assert.Equal(t, 2, tt.MaxDepth)
				assert.True(t, tt.Hidden)
				assert.Equal(t, []TocEntry{{Path: "intro"}, {Title: "Setup guide", Path: "guide/setup"}}, tt.Entries)
			},
		},
		{
			name: "contents",
			src:  ".. contents:: On this page\n   :depth: 2\n   :local:\n",
			check: func(t *testing.T, d Directive) {
				c := d.(*Contents)
				assert.Equal(t, "On this page", c.Title)
				assert.Equal(t, 2, c.Depth)
				assert.True(t, c.Local)
			},
		},
		{
			name: "fixed admonition keeps nested blocks",
			src:  ".. warning::\n\n   Be *careful*.\n",
			check: func(t *testing.T, d Directive) {
				a := d.(*Admonition)
				assert.Equal(t, "warning", a.Kind)
				assert.Equal(t, "Warning", a.Title)
				require.Len(t, a.Children, 1)
				assert.IsType(t, &rst.Paragraph{}, a.Children[0])
			},
		},
		{
			name: "generic admonition",
			src:  ".. admonition:: Custom title\n   :class: tip\n\n   Body.\n",
			check: func(t *testing.T, d Directive) {
				a := d.(*Admonition)
				assert.Equal(t, "Custom title", a.Title)
				assert.Equal(t, "tip", a.Class)
			},
		},
		{
			name: "figure with caption",
			src:  ".. figure:: img/plot.png\n   :alt: A plot\n   :width: 50%\n\n   The caption.\n",
			check: func(t *testing.T, d Directive) {
				f := d.(*Figure)
				assert.Equal(t, "img/plot.png", f.Image.URI)
				assert.Equal(t, "A plot", f.Image.Alt)
				assert.Equal(t, "50%", f.Image.Width)
				assert.Len(t, f.Caption, 1)
			},
		},
		{
			name: "raw html",
			src:  ".. raw:: HTML\n\n   <b>hi</b>\n",
			check: func(t *testing.T, d Directive) {
				r := d.(*Raw)
				assert.Equal(t, "html", r.Format)
				assert.Equal(t, "<b>hi</b>", r.Content)
			},
		},
		{
			name: "component props and slot",
			src:  ".. component:: card\n   :title: Hello\n   :variant: wide\n\n   Slot text.\n",
			check: func(t *testing.T, d Directive) {
				c := d.(*Component)
				assert.Equal(t, "card", c.Component)
				v, _ := c.Props.Get("variant")
				assert.Equal(t, "wide", v)
				assert.Len(t, c.Children, 1)
			},
		},
		{
			name: "unknown directive",
			src:  ".. youtube:: abc123\n",
			check: func(t *testing.T, d Directive) {
				u := d.(*Unknown)
				assert.Equal(t, "youtube", u.Name())
				assert.Equal(t, "abc123", u.Argument)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decodeFirst(t, tt.src)
			require.NoError(t, err)
			tt.check(t, d)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "bad integer", src: "Intro.\n\n.. toctree::\n   :maxdepth: two\n"},
		{name: "bad flag", src: "Intro.\n\n.. code-block:: go\n   :linenos: maybe\n\n   x\n"},
		{name: "bad scale", src: "Intro.\n\n.. musicscore::\n   :scale: -1\n\n   K:C\n"},
		{name: "snippet without id", src: "Intro.\n\n.. snippet::\n"},
		{name: "image without uri", src: "Intro.\n\n.. image::\n"},
		{name: "diagram without type", src: "Intro.\n\n.. diagram::\n\n   A -> B\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := rst.Parse(tt.src, rst.WithBodyModes(BodyMode))
			require.NoError(t, err)
			d := doc.Children[1].(*rst.Directive)
			_, err = Decode(d)
			var pe *rst.ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, 3, pe.Line)
		})
	}
}

func TestBodyMode(t *testing.T) {
	assert.Equal(t, rst.BodyNested, BodyMode("note"))
	assert.Equal(t, rst.BodyNested, BodyMode("figure"))
	assert.Equal(t, rst.BodyRaw, BodyMode("code-block"))
	assert.Equal(t, rst.BodyRaw, BodyMode("youtube"))
}
