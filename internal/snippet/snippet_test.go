package snippet

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/rst"
	"git.home.luguber.info/inful/rstsite/internal/xref"
)

func source(t *testing.T, id, p, src string) Source {
	t.Helper()
	doc, err := rst.Parse(src, rst.WithPath(p))
	require.NoError(t, err)
	return Source{ID: id, Path: p, Doc: doc}
}

// headingsOnly renders headings as "h<level>#<anchor>" lines.
func headingsOnly(blocks []rst.Block, _ Context) (string, error) {
	var b strings.Builder
	rst.Walk(blocks, func(bl rst.Block) bool {
		if h, ok := bl.(*rst.Heading); ok {
			fmt.Fprintf(&b, "h%d#%s\n", h.Level, h.Anchor)
		}
		return true
	})
	return b.String(), nil
}

func TestNewRegistryOutline(t *testing.T) {
	reg, err := NewRegistry([]Source{
		source(t, "install", "snippets/install.rst", "Install\n=======\n\nRun the *installer*.\n\nVerify\n------\n"),
		source(t, "plain", "snippets/plain.rst", "Just text.\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"install", "plain"}, reg.IDs())

	e, ok := reg.Get("install")
	require.True(t, ok)
	assert.Equal(t, "Install", e.Title)
	assert.Equal(t, "Run the installer.", e.Summary)
	assert.Equal(t, 1, e.TopLevel)
	assert.Equal(t, []Heading{{Level: 1, Text: "Install", Anchor: "install"}, {Level: 2, Text: "Verify", Anchor: "verify"}}, e.Outline)

	plain, _ := reg.Get("plain")
	assert.Equal(t, "plain", plain.Title)
}

func TestNewRegistryDuplicateID(t *testing.T) {
	_, err := NewRegistry([]Source{
		source(t, "dup", "a.rst", "A.\n"),
		source(t, "dup", "b.rst", "B.\n"),
	})
	var de *DuplicateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "a.rst", de.First)
	assert.Equal(t, "b.rst", de.Second)
}

func TestEmbedShiftsHeadings(t *testing.T) {
	reg, err := NewRegistry([]Source{
		source(t, "setup", "s.rst", "Setup\n=====\n\nText.\n\nDetails\n-------\n"),
	})
	require.NoError(t, err)

	host, err := rst.Parse("Guide\n=====\n\nSetup\n-----\n")
	require.NoError(t, err)
	anchors := host.Anchors.Clone()

	out, err := reg.Embed("setup", Context{HostPath: "guide.rst", Depth: 2, Anchors: anchors}, headingsOnly)
	require.NoError(t, err)
	assert.Equal(t, "h3#setup-setup\nh4#details-setup\n", out)
	assert.True(t, anchors.Has("setup"))
	assert.True(t, anchors.Has("setup-setup"))

	again, err := reg.Embed("setup", Context{HostPath: "guide.rst", Depth: 2, Anchors: anchors}, headingsOnly)
	require.NoError(t, err)
	assert.Equal(t, "h3#setup-setup-1\nh4#details-setup-1\n", again, "a second embed on the same page gets fresh anchors")

	e, _ := reg.Get("setup")
	assert.Equal(t, 1, e.Doc.Children[0].(*rst.Heading).Level, "the registered tree is not modified")
}

func TestEmbedNormalizesAndClampsLevels(t *testing.T) {
	reg, err := NewRegistry([]Source{
		source(t, "deep", "d.rst", "Top\n===\n\nSub\n---\n\nSubsub\n~~~~~~\n"),
	})
	require.NoError(t, err)

	out, err := reg.Embed("deep", Context{Depth: 5}, headingsOnly)
	require.NoError(t, err)
	assert.Equal(t, "h6#top-deep\nh6#sub-deep\nh6#subsub-deep\n", out)

	out, err = reg.Embed("deep", Context{}, headingsOnly)
	require.NoError(t, err)
	assert.Equal(t, "h1#top-deep\nh2#sub-deep\nh3#subsub-deep\n", out)
}

func TestEmbedMissingAndRecursive(t *testing.T) {
	reg, err := NewRegistry([]Source{source(t, "a", "a.rst", "A.\n")})
	require.NoError(t, err)

	_, err = reg.Embed("nope", Context{HostPath: "page.rst", Line: 7}, headingsOnly)
	var ee *EmbedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "nope", ee.ID)
	assert.Equal(t, "page.rst", ee.HostPath)
	assert.Equal(t, "page.rst:7: embed snippet \"nope\": snippet not found", ee.Error())

	_, err = reg.Embed("a", Context{Stack: []string{"b", "a", "c"}}, headingsOnly)
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Reason, "b -> a -> c -> a")
}

func TestEmbedPassesStackToNestedRender(t *testing.T) {
	reg, err := NewRegistry([]Source{source(t, "outer", "o.rst", "Outer.\n")})
	require.NoError(t, err)

	var seen Context
	_, err = reg.Embed("outer", Context{Stack: []string{"root"}}, func(_ []rst.Block, ctx Context) (string, error) {
		seen = ctx
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "outer"}, seen.Stack)
	assert.NotNil(t, seen.Anchors)
}

func TestShiftRenamesTargets(t *testing.T) {
	doc, err := rst.Parse(".. _intro:\n\nIntro\n=====\n\n.. _loose:\n\nText.\n")
	require.NoError(t, err)

	out := Shift(doc.Children, 1, "x", rst.NewAnchorSet())
	var targets []*rst.Target
	var heading *rst.Heading
	for _, b := range out {
		switch n := b.(type) {
		case *rst.Target:
			targets = append(targets, n)
		case *rst.Heading:
			heading = n
		}
	}
	require.Len(t, targets, 2)
	require.NotNil(t, heading)
	assert.Equal(t, 2, heading.Level)
	assert.Equal(t, "intro-x", heading.Anchor)
	assert.Equal(t, heading.Anchor, targets[0].Anchor)
	assert.Equal(t, "loose-x", targets[1].Anchor)
	assert.Equal(t, "intro", doc.Children[0].(*rst.Target).Anchor)
}

func TestEmbedRewritesInternalReferences(t *testing.T) {
	const p = "snippets/setup.rst"
	src := source(t, "setup", p, "Follow steps_ first.\n\n.. _setup-steps:\n\nSteps\n-----\n\nSee :ref:`setup-steps`.\n")

	site, errs := xref.Collect(nil)
	require.Empty(t, errs)
	scoped, errs := site.Scoped(xref.DocLabels{Path: p, Doc: src.Doc})
	require.Empty(t, errs)
	require.Empty(t, xref.Resolve(p, src.Doc, scoped, func(string, string) string { return "/elsewhere" }))

	reg, err := NewRegistry([]Source{src})
	require.NoError(t, err)

	var anchor string
	var urls []string
	_, err = reg.Embed("setup", Context{HostPath: "guide.rst", Depth: 1}, func(blocks []rst.Block, _ Context) (string, error) {
		rst.Walk(blocks, func(b rst.Block) bool {
			if h, ok := b.(*rst.Heading); ok {
				anchor = h.Anchor
			}
			for _, slot := range rst.InlineSlots(b) {
				for _, in := range *slot {
					if r, ok := in.(*rst.Reference); ok {
						urls = append(urls, r.URL)
					}
				}
			}
			return true
		})
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "steps-setup", anchor)
	assert.Equal(t, []string{"#steps-setup", "#steps-setup"}, urls)

	first := src.Doc.Children[0].(*rst.Paragraph).Inlines[1].(*rst.Reference)
	assert.Equal(t, "#steps", first.URL)
}
