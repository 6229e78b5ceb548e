package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
}

func rels(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Rel)
	}
	return out
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{
		"index.rst":            "Home\n====\n",
		"guide/intro.rst":      "Intro\n=====\n",
		"guide/notes.md":       "# Notes\n",
		"guide/img/plot.png":   "png",
		"drafts/wip.rst":       "WIP\n===\n",
		"build.log":            "log",
		".hidden/secret.rst":   "x",
		"guide/.swap.rst":      "x",
		"snippets/install.rst": "---\nsnippet_id: install\n---\nRun it.\n",
		IgnoreFile:             "drafts/\n*.log\n",
	})

	files, err := NewDiscovery(root, []string{"guide/img/*.psd"}, nil).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"guide/img/plot.png", "guide/intro.rst", "guide/notes.md", "index.rst", "snippets/install.rst"}, rels(files))

	assert.Equal(t, KindAsset, files[0].Kind)
	assert.Equal(t, "guide", files[0].Section)
	assert.Equal(t, KindMarkdown, files[2].Kind)
	assert.Equal(t, "", files[3].Section)
	assert.Equal(t, "guide/intro.html", files[1].OutputPath())
	assert.Equal(t, "guide/img/plot.png", files[0].OutputPath())
	assert.Len(t, Documents(files), 4)
	assert.Len(t, Assets(files), 1)
}

func TestDiscoverExcludeWithoutIgnoreFile(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{"a.rst": "A\n=\n", "tmp/b.rst": "B\n"})
	files, err := NewDiscovery(root, []string{"tmp/"}, nil).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rst"}, rels(files))
}

func TestDiscoverErrors(t *testing.T) {
	_, err := NewDiscovery(filepath.Join(t.TempDir(), "missing"), nil, nil).Discover(context.Background())
	assert.True(t, errors.Is(err, ErrContentDirNotFound))

	root := t.TempDir()
	write(t, root, map[string]string{"intro.rst": "x", "intro.md": "x"})
	_, err = NewDiscovery(root, nil, nil).Discover(context.Background())
	require.True(t, errors.Is(err, ErrPathCollision))
	assert.Contains(t, err.Error(), "intro.html")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDiscovery(root, nil, nil).Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		fm      string
		body    string
		line    int
		wantErr bool
	}{
		{"none", "Title\n=====\n", "", "Title\n=====\n", 1, false},
		{"yaml", "---\ntitle: X\n---\nBody\n", "title: X\n", "Body\n", 4, false},
		{"empty", "---\n---\nBody", "", "Body", 3, false},
		{"trailing spaces", "--- \na: 1\nb: 2\n---  \nBody", "a: 1\nb: 2\n", "Body", 5, false},
		{"no body", "---\na: 1\n---", "a: 1\n", "", 4, false},
		{"transition is not front matter", "----\nx\n", "", "----\nx\n", 1, false},
		{"unclosed", "---\na: 1\n", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body, line, err := SplitFrontMatter([]byte(tt.src))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.fm, string(fm))
			assert.Equal(t, tt.body, string(body))
			assert.Equal(t, tt.line, line)
		})
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	write(t, root, map[string]string{
		"guide/intro.rst": "---\r\ntitle: Introduction\r\ntags: [go, rst]\r\ndate: 2025-03-01\r\nhero: true\r\n---\r\nIntro\r\n=====\r\n",
		"bad.rst":         "---\ntitle: [\n---\n",
	})

	doc, err := Load(File{Path: filepath.Join(root, "guide", "intro.rst"), Rel: "guide/intro.rst", Kind: KindRST})
	require.NoError(t, err)
	assert.Equal(t, "Introduction", doc.Meta.Title)
	assert.Equal(t, []string{"go", "rst"}, doc.Meta.Tags)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), doc.Meta.Date)
	assert.Equal(t, true, doc.Params["hero"])
	assert.Equal(t, "Intro\n=====\n", string(doc.Body))
	assert.Equal(t, 7, doc.BodyLine)
	assert.False(t, doc.Modified.IsZero())
	assert.False(t, doc.IsSnippet())

	_, err = Load(File{Path: filepath.Join(root, "bad.rst"), Rel: "bad.rst"})
	assert.ErrorIs(t, err, ErrFrontMatter)

	_, err = Load(File{Path: filepath.Join(root, "gone.rst"), Rel: "gone.rst"})
	assert.ErrorIs(t, err, ErrFileReadFailed)
}

func TestFormatFrontMatter(t *testing.T) {
	out, err := FormatFrontMatter(map[string]any{"title": "Home", "tags": []string{"a"}}, []byte("Home\n====\n"))
	require.NoError(t, err)
	assert.Equal(t, "---\ntags:\n    - a\ntitle: Home\n---\nHome\n====\n", string(out))

	doc, err := Parse(File{Rel: "x.rst"}, out)
	require.NoError(t, err)
	assert.Equal(t, "Home", doc.Meta.Title)
}

func TestGitLastModified(t *testing.T) {
	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(when time.Time, files map[string]string) {
		write(t, repoDir, files)
		for rel := range files {
			_, err := wt.Add(rel)
			require.NoError(t, err)
		}
		sig := &object.Signature{Name: "Docs", Email: "docs@example.org", When: when}
		_, err := wt.Commit("update", &git.CommitOptions{Author: sig, Committer: sig})
		require.NoError(t, err)
	}
	t1 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	commit(t1, map[string]string{"docs/a.rst": "A\n", "docs/b.rst": "B\n", "README": "r"})
	commit(t2, map[string]string{"docs/b.rst": "B2\n"})
	write(t, repoDir, map[string]string{"docs/new.rst": "N\n"})

	dates, err := GitLastModified(filepath.Join(repoDir, "docs"), []string{"a.rst", "b.rst", "new.rst"}, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"a.rst": t1, "b.rst": t2}, dates)

	dates, err = GitLastModified(filepath.Join(repoDir, "docs"), []string{"a.rst", "b.rst"}, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"b.rst": t2}, dates)

	_, err = GitLastModified(t.TempDir(), []string{"a.rst"}, 0)
	assert.ErrorIs(t, err, ErrNoRepository)
}
