package rst

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headings(doc *Document) []*Heading {
	var out []*Heading
	for _, b := range doc.Children {
		if h, ok := b.(*Heading); ok {
			out = append(out, h)
		}
	}
	return out
}

func TestParseHeadingAnchorsAreUnique(t *testing.T) {
	src := "Heading\n=======\n\nHeading\n=======\n\nHeading\n-------\n"
	doc, err := Parse(src)
	require.NoError(t, err)

	hs := headings(doc)
	require.Len(t, hs, 3)
	assert.Equal(t, []string{"heading", "heading-1", "heading-2"}, []string{hs[0].Anchor, hs[1].Anchor, hs[2].Anchor})
	assert.Equal(t, []int{1, 1, 2}, []int{hs[0].Level, hs[1].Level, hs[2].Level})
	assert.Equal(t, 4, hs[1].Line)
	assert.True(t, doc.Anchors.Has("heading-2"))
}

func TestParseHeadingLevelsFollowFirstSeenStyle(t *testing.T) {
	src := "=====\nTitle\n=====\n\nSection\n=======\n\nSub\n---\n\nOther\n=======\n"
	doc, err := Parse(src)
	require.NoError(t, err)

	hs := headings(doc)
	require.Len(t, hs, 4)
	levels := []int{hs[0].Level, hs[1].Level, hs[2].Level, hs[3].Level}
	assert.Equal(t, []int{1, 2, 3, 2}, levels)
}

func TestParseHeadingUnderlineTooShortIsParagraph(t *testing.T) {
	doc, err := Parse("Long title\n===\n")
	require.NoError(t, err)
	require.Len(t, doc.Children, 1)
	_, ok := doc.Children[0].(*Paragraph)
	assert.True(t, ok)
}

func TestParseHeadingSlugStripsAccents(t *testing.T) {
	doc, err := Parse("Café Überblick!\n===============\n")
	require.NoError(t, err)
	assert.Equal(t, "cafe-uberblick", headings(doc)[0].Anchor)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		line   int
		reason string
	}{
		{
			name:   "overline without underline",
			src:    "=====\nTitle\n-----\n",
			line:   1,
			reason: "section title overline without matching underline",
		},
		{
			name:   "bad directive option",
			src:    ".. code-block:: go\n   :caption Example\n\n   x := 1\n",
			line:   2,
			reason: "unterminated directive option block",
		},
		{
			name:   "badly indented list continuation",
			src:    "- item\n bad\n",
			line:   2,
			reason: "badly indented list item continuation",
		},
		{
			name:   "table without closing border",
			src:    "=====  =====\na      b\n",
			line:   2,
			reason: "simple table not terminated",
		},
		{
			name:   "table text in column margin",
			src:    "=====  =====\nA      B\nabcdef\n=====  =====\n",
			line:   3,
			reason: "text in column margin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, WithPath("guide/intro.rst"))
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "guide/intro.rst", pe.Path)
			assert.Equal(t, tt.line, pe.Line)
			assert.Contains(t, pe.Reason, tt.reason)
		})
	}
}

func TestParseLineOffset(t *testing.T) {
	_, err := Parse("- item\n bad\n", WithLineOffset(4))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 6, pe.Line)
	assert.Equal(t, "line 6: "+pe.Reason, pe.Error())
}

func TestParseDirective(t *testing.T) {
	src := ".. code-block:: python\n   :line-numbers:\n   :caption: Example\n\n   print(\"hi\")\n   x = 1\n"
	doc, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, doc.Children, 1)

	d, ok := doc.Children[0].(*Directive)
	require.True(t, ok)
	assert.Equal(t, "code-block", d.Name)
	assert.Equal(t, "python", d.Argument)
	assert.True(t, d.Options.Has("line-numbers"))
	caption, _ := d.Options.Get("caption")
	assert.Equal(t, "Example", caption)
	assert.Equal(t, "print(\"hi\")\nx = 1", d.Body)
	assert.Equal(t, 5, d.BodyLine)
	assert.Nil(t, d.Children)
}

func TestParseNestedDirectiveBody(t *testing.T) {
	modes := func(name string) BodyMode {
		if name == "note" {
			return BodyNestedArgument
		}
		return BodyRaw
	}
	src := ".. note:: Remember this.\n\n   Second paragraph.\n\n   Inner\n   -----\n"
	doc, err := Parse("Top\n===\n\n"+src, WithBodyModes(modes))
	require.NoError(t, err)
	require.Len(t, doc.Children, 2)

	d := doc.Children[1].(*Directive)
	require.Len(t, d.Children, 3)
	p1 := d.Children[0].(*Paragraph)
	assert.Equal(t, "Remember this.", PlainText(p1.Inlines))
	h := d.Children[2].(*Heading)
	assert.Equal(t, 2, h.Level)
	assert.Equal(t, "inner", h.Anchor)
}

func TestParseLists(t *testing.T) {
	src := "- one\n- two\n\n  continued para\n\n- three\n\n3. first\n4. second\n"
	doc, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, doc.Children, 2)

	bullets := doc.Children[0].(*List)
	assert.False(t, bullets.Ordered)
	require.Len(t, bullets.Items, 3)
	assert.Len(t, bullets.Items[1].Children, 2)

	enum := doc.Children[1].(*List)
	assert.True(t, enum.Ordered)
	assert.Equal(t, 3, enum.Start)
	assert.Len(t, enum.Items, 2)
}

func TestParseNestedList(t *testing.T) {
	src := "- outer\n\n  - inner a\n  - inner b\n"
	doc, err := Parse(src)
	require.NoError(t, err)

	outer := doc.Children[0].(*List)
	require.Len(t, outer.Items, 1)
	require.Len(t, outer.Items[0].Children, 2)
	inner := outer.Items[0].Children[1].(*List)
	assert.Len(t, inner.Items, 2)
}

func TestParseLiteralBlock(t *testing.T) {
	tests := []struct {
		name string
		src  string
		para string
	}{
		{name: "expanded", src: "Example::\n\n    code here\n", para: "Example:"},
		{name: "partially minimized", src: "Example: ::\n\n    code here\n", para: "Example:"},
		{name: "standalone", src: "::\n\n    code here\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.src)
			require.NoError(t, err)
			last := doc.Children[len(doc.Children)-1].(*LiteralBlock)
			assert.Equal(t, "code here", last.Code)
			if tt.para == "" {
				assert.Len(t, doc.Children, 1)
				return
			}
			assert.Equal(t, tt.para, PlainText(doc.Children[0].(*Paragraph).Inlines))
		})
	}
}

func TestParseSimpleTable(t *testing.T) {
	src := "=====  =====\nName   Value\n=====  =====\na      1\nb      two\n       words\n=====  =====\n"
	doc, err := Parse(src)
	require.NoError(t, err)

	tbl := doc.Children[0].(*Table)
	require.Len(t, tbl.Header, 2)
	assert.Equal(t, "Value", PlainText(tbl.Header[1].Inlines))
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "two words", PlainText(tbl.Rows[1][1].Inlines))
}

func TestParseSimpleTableNonASCII(t *testing.T) {
	src := "=====  =====\nééééé  ààààà\nçà     ü\n=====  =====\n"
	doc, err := Parse(src)
	require.NoError(t, err)

	tbl := doc.Children[0].(*Table)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "ééééé", PlainText(tbl.Rows[0][0].Inlines))
	assert.Equal(t, "ààààà", PlainText(tbl.Rows[0][1].Inlines))
	assert.Equal(t, "çà", PlainText(tbl.Rows[1][0].Inlines))
	assert.Equal(t, "ü", PlainText(tbl.Rows[1][1].Inlines))
}

func TestParseTargets(t *testing.T) {
	src := ".. _install-guide:\n\nInstallation\n============\n\nText.\n\n.. _Orphan Label:\n\nJust a paragraph.\n\n.. _go: https://go.dev\n"
	doc, err := Parse(src)
	require.NoError(t, err)

	install := doc.Targets["install-guide"]
	require.NotNil(t, install)
	assert.True(t, install.Attached)
	assert.Equal(t, "installation", install.Anchor)
	assert.Equal(t, []string{"install-guide"}, headings(doc)[0].Labels)

	orphan := doc.Targets["orphan label"]
	require.NotNil(t, orphan)
	assert.False(t, orphan.Attached)
	assert.Equal(t, "orphan-label", orphan.Anchor)

	assert.Equal(t, "https://go.dev", doc.Targets["go"].URL)
}

func TestParseTransitionAndComment(t *testing.T) {
	doc, err := Parse("Para.\n\n----\n\n.. a comment\n   spanning lines\n")
	require.NoError(t, err)
	require.Len(t, doc.Children, 3)
	_, isTransition := doc.Children[1].(*Transition)
	assert.True(t, isTransition)
	c := doc.Children[2].(*Comment)
	assert.Contains(t, c.Text, "spanning lines")
}

func TestAnchorSetUnique(t *testing.T) {
	a := NewAnchorSet()
	assert.Equal(t, "x", a.Unique("x"))
	assert.Equal(t, "x-1", a.Unique("x"))
	c := a.Clone()
	assert.Equal(t, "x-2", c.Unique("x"))
	assert.False(t, a.Has("x-2"))
	assert.Equal(t, "section", a.Unique(""))
}
