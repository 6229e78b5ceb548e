package xref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
)

func parse(t *testing.T, p, src string) DocLabels {
	t.Helper()
	doc, err := rst.Parse(src, rst.WithPath(p))
	require.NoError(t, err)
	return DocLabels{Path: p, Doc: doc}
}

func link(docPath, anchor string) string {
	return urlbuilder.Anchor(urlbuilder.Build("/site", urlbuilder.PageURL(docPath)), anchor)
}

func references(doc *rst.Document) []*rst.Reference {
	var out []*rst.Reference
	rst.Walk(doc.Children, func(b rst.Block) bool {
		for _, slot := range rst.InlineSlots(b) {
			for _, in := range *slot {
				if r, ok := in.(*rst.Reference); ok {
					out = append(out, r)
				}
			}
		}
		return true
	})
	return out
}

func TestResolveExplicitLabelAcrossDocuments(t *testing.T) {
	guide := parse(t, "guide/install.rst", ".. _install-guide:\n\nInstallation\n============\n\nSteps.\n")
	index := parse(t, "index.rst", "Home\n====\n\nSee :ref:`install-guide` or :ref:`the guide <Install-Guide>`.\n")

	labels, errs := Collect([]DocLabels{guide, index})
	require.Empty(t, errs)

	errs = Resolve(index.Path, index.Doc, labels, link)
	require.Empty(t, errs)

	refs := references(index.Doc)
	require.Len(t, refs, 2)
	assert.Equal(t, "/site/guide/install.html#installation", refs[0].URL)
	assert.Equal(t, "Installation", refs[0].Text)
	assert.Equal(t, "the guide", refs[1].Text)
	assert.Equal(t, refs[0].URL, refs[1].URL)
}

func TestResolveMissingLabelIsReported(t *testing.T) {
	doc := parse(t, "a.rst", "Title\n=====\n\nBroken :ref:`unknown-label` here.\n")
	labels, errs := Collect([]DocLabels{doc})
	require.Empty(t, errs)

	errs = Resolve(doc.Path, doc.Doc, labels, link)
	require.Len(t, errs, 1)
	assert.Equal(t, Unresolved, errs[0].Kind)
	assert.Equal(t, "unknown-label", errs[0].Label)
	assert.Equal(t, "a.rst", errs[0].Path)
	assert.Equal(t, 4, errs[0].Line)
	assert.Contains(t, errs[0].Error(), "unknown-label")
	assert.Contains(t, errs[0].Error(), "a.rst")

	refs := references(doc.Doc)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].Missing)
}

func TestCollectDuplicateLabels(t *testing.T) {
	a := parse(t, "a.rst", ".. _shared:\n\nAlpha\n=====\n")
	b := parse(t, "b.rst", "Intro.\n\n.. _Shared:\n\nBeta\n====\n")

	labels, errs := Collect([]DocLabels{a, b})
	require.Len(t, errs, 1)
	assert.Equal(t, DuplicateLabel, errs[0].Kind)
	assert.Equal(t, "a.rst", errs[0].First.Path)
	assert.Equal(t, "b.rst", errs[0].Path)
	assert.Contains(t, errs[0].Error(), "a.rst:1")
	assert.Contains(t, errs[0].Error(), "b.rst:3")

	lb, ok := labels.Lookup("shared", "x.rst")
	require.True(t, ok)
	assert.Equal(t, "a.rst", lb.Path)
}

func TestImplicitHeadingLabels(t *testing.T) {
	doc := parse(t, "guide/setup.rst", "Setup\n=====\n\nUsage\n-----\n\nSee :ref:`Usage` and :ref:`guide/setup#setup`.\n")
	other := parse(t, "other.rst", "Other\n=====\n\nJump to :ref:`guide/setup.rst#usage`.\n")
	labels, errs := Collect([]DocLabels{doc, other})
	require.Empty(t, errs)

	require.Empty(t, Resolve(doc.Path, doc.Doc, labels, link))
	refs := references(doc.Doc)
	require.Len(t, refs, 2)
	assert.Equal(t, "/site/guide/setup.html#usage", refs[0].URL)
	assert.Equal(t, "/site/guide/setup.html#setup", refs[1].URL)

	require.Empty(t, Resolve(other.Path, other.Doc, labels, link))
	assert.Equal(t, "/site/guide/setup.html#usage", references(other.Doc)[0].URL)
}

func TestResolveDocRole(t *testing.T) {
	intro := parse(t, "guide/intro.rst", "Introduction\n============\n")
	setup := parse(t, "guide/setup.rst", "Setup\n=====\n\nRead :doc:`intro` then :doc:`Home </index>`.\n")
	index := parse(t, "index.rst", "Welcome\n=======\n")

	labels, errs := Collect([]DocLabels{intro, setup, index})
	require.Empty(t, errs)
	require.Empty(t, Resolve(setup.Path, setup.Doc, labels, link))

	refs := references(setup.Doc)
	require.Len(t, refs, 2)
	assert.Equal(t, "Introduction", refs[0].Text)
	assert.Equal(t, "/site/guide/intro.html", refs[0].URL)
	assert.Equal(t, "Home", refs[1].Text)
	assert.Equal(t, "/site/index.html", refs[1].URL)

	lb, ok := labels.Doc("../index.rst", "guide/setup.rst")
	require.True(t, ok)
	assert.Equal(t, "Welcome", lb.Title)
}

func TestResolveNamedReferences(t *testing.T) {
	doc := parse(t, "a.rst", ".. _go: https://go.dev\n\nUse Go_ and `the section <local_>`_ and missing_.\n\n.. _local:\n\nLocal\n=====\n")
	labels, errs := Collect([]DocLabels{doc})
	require.Empty(t, errs)

	errs = Resolve(doc.Path, doc.Doc, labels, link)
	require.Len(t, errs, 1)
	assert.Equal(t, "missing", errs[0].Label)

	refs := references(doc.Doc)
	require.Len(t, refs, 3)
	assert.Equal(t, "https://go.dev", refs[0].URL)
	assert.Equal(t, "#local", refs[1].URL)
	assert.True(t, refs[2].Missing)
}

func TestResolveScopedSnippetLabels(t *testing.T) {
	index := parse(t, "index.rst", ".. _home:\n\nHome\n====\n")
	snip := parse(t, "snippets/setup.rst", ".. _setup-steps:\n\nSteps\n-----\n\nFollow steps_, :ref:`setup-steps` or :ref:`home`.\n")

	labels, errs := Collect([]DocLabels{index})
	require.Empty(t, errs)
	scoped, errs := labels.Scoped(snip)
	require.Empty(t, errs)

	require.Empty(t, Resolve(snip.Path, snip.Doc, scoped, link))
	refs := references(snip.Doc)
	require.Len(t, refs, 3)
	assert.Equal(t, "#steps", refs[0].URL)
	assert.Equal(t, "#steps", refs[1].URL)
	assert.Equal(t, "/site/index.html#home", refs[2].URL)

	_, ok := labels.Lookup("setup-steps", "index.rst")
	assert.False(t, ok)
	lb, ok := scoped.Lookup("setup-steps", snip.Path)
	require.True(t, ok)
	assert.True(t, lb.Local)
}

func TestResolveLeavesOtherRoles(t *testing.T) {
	doc := parse(t, "a.rst", "Press :kbd:`Ctrl` then see :ref:`a#anchor`.\n\nAnchor\n======\n")
	labels, _ := Collect([]DocLabels{doc})
	require.Empty(t, Resolve(doc.Path, doc.Doc, labels, link))

	p := doc.Doc.Children[0].(*rst.Paragraph)
	var roles []*rst.Role
	var refs []*rst.Reference
	for _, in := range p.Inlines {
		switch n := in.(type) {
		case *rst.Role:
			roles = append(roles, n)
		case *rst.Reference:
			refs = append(refs, n)
		}
	}
	require.Len(t, roles, 1)
	assert.Equal(t, "kbd", roles[0].Name)
	require.Len(t, refs, 1)
	assert.Equal(t, "/site/a.html#anchor", refs[0].URL)
	assert.Equal(t, "Anchor", refs[0].Text)
}

func TestOutlineAndDocs(t *testing.T) {
	a := parse(t, "b/guide.rst", "Guide\n=====\n\nPart\n----\n")
	b := parse(t, "a.rst", "Intro.\n")
	labels, errs := Collect([]DocLabels{a, b})
	require.Empty(t, errs)

	out := labels.Outline("b/guide")
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[1].Level)
	assert.Equal(t, "part", out[1].Anchor)

	docs := labels.Docs()
	require.Len(t, docs, 2)
	assert.Equal(t, "a.rst", docs[0].Path)
	assert.Equal(t, "a", docs[0].Title, "documents without a heading fall back to the file name")
	assert.Equal(t, 2+2, labels.Len())
}
