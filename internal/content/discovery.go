// Package content finds the documents and assets of a site and loads them with their
// front matter and last-modified dates.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
)

// IgnoreFile holds gitignore-style patterns, relative to the content root, for files
// that are not part of the site.
const IgnoreFile = ".siteignore"

// Kind classifies a discovered file.
type Kind string

const (
	KindRST      Kind = "rst"
	KindMarkdown Kind = "markdown"
	KindAsset    Kind = "asset"
)

// File is a discovered content file.
type File struct {
	Path    string // Absolute path
	Rel     string // Slash-separated path relative to the content root
	Kind    Kind
	Section string // First directory of Rel, empty at the root
}

// IsDocument reports whether f is parsed into a page.
func (f File) IsDocument() bool { return f.Kind == KindRST || f.Kind == KindMarkdown }

// OutputPath is the site-relative path f is written to.
func (f File) OutputPath() string {
	if f.IsDocument() {
		return urlbuilder.PageURL(f.Rel)
	}
	return f.Rel
}

// Discovery walks a content directory.
type Discovery struct {
	root    string
	exclude []string
	logger  *slog.Logger
}

// NewDiscovery returns a Discovery for root. exclude adds patterns to those in
// .siteignore.
func NewDiscovery(root string, exclude []string, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{root: root, exclude: exclude, logger: logger}
}

// Discover returns every document and asset below the root, sorted by Rel. Hidden files
// and directories are skipped.
func (d *Discovery) Discover(ctx context.Context) ([]File, error) {
	if st, err := os.Stat(d.root); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrContentDirNotFound, d.root)
	}
	gi, err := d.ignoreRules()
	if err != nil {
		return nil, err
	}

	var files []File
	err = filepath.WalkDir(d.root, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == d.root {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if gi.MatchesPath(rel) {
			d.logger.Debug("Ignored content path", logfields.Path(rel))
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			return nil
		}
		files = append(files, File{Path: p, Rel: rel, Kind: kindOf(rel), Section: section(rel)})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrWalkFailed, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	if err := checkCollisions(files); err != nil {
		return nil, err
	}
	d.logger.Info("Content discovered", logfields.Path(d.root), logfields.Count(len(files)))
	return files, nil
}

func (d *Discovery) ignoreRules() (*ignore.GitIgnore, error) {
	p := filepath.Join(d.root, IgnoreFile)
	if _, err := os.Stat(p); err == nil {
		gi, err := ignore.CompileIgnoreFileAndLines(p, d.exclude...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFileReadFailed, IgnoreFile, err)
		}
		return gi, nil
	}
	return ignore.CompileIgnoreLines(d.exclude...), nil
}

func kindOf(rel string) Kind {
	switch strings.ToLower(path.Ext(rel)) {
	case ".rst", ".rest":
		return KindRST
	case ".md", ".markdown":
		return KindMarkdown
	}
	return KindAsset
}

func section(rel string) string {
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return ""
}

// checkCollisions rejects files whose output paths coincide, for example intro.rst and
// intro.md, or intro.rst and a literal intro.html asset.
func checkCollisions(files []File) error {
	seen := make(map[string]string, len(files))
	for _, f := range files {
		out := f.OutputPath()
		if prev, ok := seen[out]; ok {
			return fmt.Errorf("%w: %s and %s both produce %s", ErrPathCollision, prev, f.Rel, out)
		}
		seen[out] = f.Rel
	}
	return nil
}

// Documents filters files down to documents.
func Documents(files []File) []File {
	var out []File
	for _, f := range files {
		if f.IsDocument() {
			out = append(out, f)
		}
	}
	return out
}

// Assets filters files down to assets.
func Assets(files []File) []File {
	var out []File
	for _, f := range files {
		if !f.IsDocument() {
			out = append(out, f)
		}
	}
	return out
}
