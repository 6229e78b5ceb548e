package site

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/config"
	"git.home.luguber.info/inful/rstsite/internal/content"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/theme"
)

var siteFiles = map[string]string{
	"index.rst": "---\ntitle: Home\nweight: 1\n---\nHome\n====\n\nStart with :ref:`install-guide`.\n\n.. toctree::\n\n   guide/install\n",
	"guide/install.rst": "---\ntitle: Install\ntags: [setup, go]\ndescription: Getting it running.\n---\n" +
		".. _install-guide:\n\nInstallation\n============\n\nRequirements\n------------\n\n.. snippet:: prereq\n\n" +
		".. code-block:: go\n\n   package main\n\nSee the $E = mc^2$ note and ``literal``.\n\n.. image:: img/shot.png\n",
	"guide/img/shot.png":  "png",
	"notes.md":            "---\ntitle: Notes\ntags: [go]\n---\n# Notes\n\nSee [home](index.rst).\n",
	"snippets/prereq.rst": "---\nsnippet_id: prereq\ntitle: Prerequisites\n---\nPrerequisites\n=============\n\nYou need :ref:`install-guide`.\n",
	"draft.rst":           "---\ndraft: true\n---\nDraft\n=====\n",
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func newConfig(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	root := t.TempDir()
	writeTree(t, filepath.Join(root, "content"), files)
	cfg := config.Default()
	cfg.SetBaseDir(root)
	cfg.Site.Title = "Test Site"
	cfg.Site.BaseURL = "/docs"
	cfg.Site.URL = "https://example.org"
	cfg.Content.GitDates = new(bool)
	cfg.Build.Workers = 2
	return cfg
}

func newTestBuilder(t *testing.T, cfg *config.Config) *Builder {
	t.Helper()
	th, err := theme.Default()
	require.NoError(t, err)
	return NewBuilder(cfg, "", WithTheme(th))
}

func readOut(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestBuildSite(t *testing.T) {
	cfg := newConfig(t, siteFiles)
	b := newTestBuilder(t, cfg)

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 4, report.Documents)
	assert.Equal(t, 1, report.Snippets)
	assert.Positive(t, report.Labels)
	assert.Positive(t, report.Assets)

	out := b.OutputDir()
	install := readOut(t, out, "guide/install.html")
	assert.Contains(t, install, `<title>Install | Test Site</title>`)
	assert.Contains(t, install, `data-snippet-id="prereq"`)
	assert.Contains(t, install, `href="/docs/guide/install.html#installation"`)
	assert.Contains(t, install, `<div class="highlight" data-language="go">`)
	assert.Contains(t, install, `href="/docs/_static/css/chroma.css"`)
	assert.Contains(t, install, `data-formula="E = mc^2"`)
	assert.Contains(t, install, `href="/docs/tags/setup.html"`)
	assert.Contains(t, install, `<aside class="page-toc">`)
	assert.NotContains(t, install, "<x-component")

	home := readOut(t, out, "index.html")
	assert.Contains(t, home, `href="/docs/guide/install.html#installation"`)

	notes := readOut(t, out, "notes.html")
	assert.Contains(t, notes, "<title>Notes | Test Site</title>")
	assert.Contains(t, notes, `href="/docs/index.html"`)

	tag := readOut(t, out, "tags/go.html")
	assert.Contains(t, tag, "/docs/guide/install.html")
	assert.Contains(t, tag, "/docs/notes.html")
	assert.FileExists(t, filepath.Join(out, "tags", "index.html"))

	assert.NoFileExists(t, filepath.Join(out, "snippets", "prereq.html"))
	assert.NoFileExists(t, filepath.Join(out, "draft.html"))
	assert.FileExists(t, filepath.Join(out, "guide", "img", "shot.png"))
	assert.FileExists(t, filepath.Join(out, "_static", "css", "site.css"))
	assert.FileExists(t, filepath.Join(out, "_static", "css", "chroma.css"))

	sitemap := readOut(t, out, SitemapFile)
	assert.Contains(t, sitemap, "<loc>https://example.org/docs/guide/install.html</loc>")
	assert.Contains(t, sitemap, "<loc>https://example.org/docs/tags/go.html</loc>")

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(readOut(t, out, cfg.Search.File)), &entries))
	assert.Len(t, entries, 3)

	var persisted map[string]any
	require.NoError(t, json.Unmarshal([]byte(readOut(t, out, ReportJSON)), &persisted))
	assert.Equal(t, "success", persisted["outcome"])
	assert.NoDirExists(t, out+".staging")
}

func TestBuildGeneratesSiteIndex(t *testing.T) {
	cfg := newConfig(t, map[string]string{
		"a.rst": "---\ndescription: First page.\n---\nAlpha\n=====\n",
		"b.rst": "Beta\n====\n",
	})
	b := newTestBuilder(t, cfg)

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pages)

	index := readOut(t, b.OutputDir(), "index.html")
	assert.Contains(t, index, `<h3 class="card-title"><a href="/docs/a.html">Alpha</a></h3>`)
	assert.Contains(t, index, "First page.")
	assert.Contains(t, index, "/docs/b.html")
}

func TestBuildDocuments(t *testing.T) {
	cfg := newConfig(t, nil)
	b := newTestBuilder(t, cfg)
	docs := []*content.Document{
		{
			File:     content.File{Rel: "hello.rst", Kind: content.KindRST},
			Meta:     content.Meta{Title: "Hello"},
			Body:     []byte("Hello\n=====\n\nWorld.\n"),
			BodyLine: 1,
		},
	}

	report, err := b.BuildDocuments(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Contains(t, readOut(t, b.OutputDir(), "hello.html"), "<p>World.</p>")
}

func TestBuildSnippetLocalReferences(t *testing.T) {
	cfg := newConfig(t, map[string]string{
		"guide.rst":          "Guide\n=====\n\n.. snippet:: setup\n",
		"snippets/setup.rst": "---\nsnippet_id: setup\n---\n.. _setup-steps:\n\nSteps\n-----\n\nFollow steps_ or :ref:`setup-steps`.\n",
	})
	b := newTestBuilder(t, cfg)

	report, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)

	guide := readOut(t, b.OutputDir(), "guide.html")
	assert.Contains(t, guide, `id="steps-setup"`)
	assert.Contains(t, guide, `href="#steps-setup"`)
	assert.NotContains(t, guide, `href="#steps"`)
}

func TestBuildUnresolvedReferencePolicy(t *testing.T) {
	files := map[string]string{"a.rst": "A\n=\n\nSee :ref:`missing`.\n"}

	t.Run("fatal", func(t *testing.T) {
		cfg := newConfig(t, files)
		b := newTestBuilder(t, cfg)
		report, err := b.Build(context.Background())
		require.Error(t, err)
		assert.Equal(t, ferrors.CategoryReference, ferrors.GetCategory(err))
		assert.Equal(t, OutcomeFailed, report.Outcome)
		require.NotEmpty(t, report.Issues)
		assert.Equal(t, IssueUnresolvedReference, report.Issues[0].Code)
		assert.Equal(t, 4, report.Issues[0].Line)
		assert.NoFileExists(t, filepath.Join(b.OutputDir(), "a.html"))
	})

	t.Run("warn", func(t *testing.T) {
		cfg := newConfig(t, files)
		cfg.Build.References = config.ReferencesWarn
		b := newTestBuilder(t, cfg)
		report, err := b.Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeWarning, report.Outcome)
		assert.Equal(t, 1, report.Warnings())
		assert.Contains(t, readOut(t, b.OutputDir(), "a.html"), `class="reference missing"`)
	})
}

func TestBuildDuplicateSnippet(t *testing.T) {
	cfg := newConfig(t, map[string]string{
		"a.rst": "---\nsnippet_id: shared\n---\nA.\n",
		"b.rst": "---\nsnippet_id: shared\n---\nB.\n",
	})
	report, err := newTestBuilder(t, cfg).Build(context.Background())
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryReference, ferrors.GetCategory(err))
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, IssueDuplicateSnippet, report.Issues[0].Code)
}

func TestBuildParseErrorPolicy(t *testing.T) {
	files := map[string]string{
		"good.rst": "Good\n====\n",
		"bad.rst":  "Bad\n===\n\n- item\n bad\n",
	}

	t.Run("lenient skips the document", func(t *testing.T) {
		cfg := newConfig(t, files)
		b := newTestBuilder(t, cfg)
		report, err := b.Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeWarning, report.Outcome)
		assert.FileExists(t, filepath.Join(b.OutputDir(), "good.html"))
		assert.NoFileExists(t, filepath.Join(b.OutputDir(), "bad.html"))
	})

	t.Run("strict keeps the previous output", func(t *testing.T) {
		cfg := newConfig(t, files)
		b := newTestBuilder(t, cfg)
		_, err := b.Build(context.Background())
		require.NoError(t, err)
		before := readOut(t, b.OutputDir(), "good.html")

		cfg.Build.Strict = true
		report, err := b.Build(context.Background())
		require.Error(t, err)
		assert.Equal(t, ferrors.CategoryParse, ferrors.GetCategory(err))
		assert.Equal(t, OutcomeFailed, report.Outcome)
		assert.Equal(t, before, readOut(t, b.OutputDir(), "good.html"))
		assert.NoDirExists(t, b.OutputDir()+".staging")

		var persisted map[string]any
		require.NoError(t, json.Unmarshal([]byte(readOut(t, b.OutputDir(), ReportJSON)), &persisted))
		assert.Equal(t, "failed", persisted["outcome"])
	})
}

func TestBuildCanceled(t *testing.T) {
	cfg := newConfig(t, siteFiles)
	b := newTestBuilder(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := b.Build(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Equal(t, ferrors.CategoryRuntime, ferrors.GetCategory(err))
	assert.NoDirExists(t, b.OutputDir()+".staging")
}

func TestEnabledComponents(t *testing.T) {
	th, err := theme.Default()
	require.NoError(t, err)
	all := enabledComponents(th.Components, nil)
	assert.Len(t, all, len(th.Components))

	kept := enabledComponents(th.Components, []string{"atomic/badge", "card"})
	assert.Len(t, kept, len(th.Components)-2)
	for _, d := range kept {
		assert.NotEqual(t, "badge", d.Name)
		assert.NotEqual(t, "card", d.Name)
	}
}
