package commands

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/rstsite/internal/config"
	"git.home.luguber.info/inful/rstsite/internal/content"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force     bool `help:"Overwrite existing configuration file"`
	NoContent bool `name:"no-content" help:"Only write the configuration file"`
}

type sampleMeta struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description,omitempty"`
	Weight      int      `yaml:"weight,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	SnippetID   string   `yaml:"snippet_id,omitempty"`
}

type sampleFile struct {
	rel  string
	meta sampleMeta
	body string
}

var sampleContent = []sampleFile{
	{
		rel:  "index.rst",
		meta: sampleMeta{Title: "Welcome", Weight: 1},
		body: "Welcome\n=======\n\nThis site is built from reStructuredText. Start with :ref:`getting-started`.\n\n" +
			".. toctree::\n\n   getting-started\n",
	},
	{
		rel:  "getting-started.rst",
		meta: sampleMeta{Title: "Getting started", Description: "Build and preview the site.", Weight: 2, Tags: []string{"guide"}},
		body: ".. _getting-started:\n\nGetting started\n===============\n\n.. snippet:: requirements\n\n" +
			"Build the site:\n\n.. code-block:: bash\n\n   rstsite build\n\nPreview it with live reload:\n\n" +
			".. code-block:: bash\n\n   rstsite serve\n\n.. note::\n\n   Math works inline, as in :math:`a^2 + b^2 = c^2`.\n",
	},
	{
		rel:  "snippets/requirements.rst",
		meta: sampleMeta{Title: "Requirements", SnippetID: "requirements"},
		body: "Requirements\n------------\n\nAll you need is the ``rstsite`` binary.\n",
	},
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	return RunInit(g, root.Config, i.Force, !i.NoContent)
}

// RunInit writes the configuration to configPath and, when withContent is set, sample
// documents into the content directory next to it. Existing documents are kept.
func RunInit(g *Global, configPath string, force, withContent bool) error {
	g.printf("Initializing rstsite project\n")
	g.printf("Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		g.printf("Initialization failed\n")
		return err
	}
	if withContent {
		dir := filepath.Join(filepath.Dir(configPath), config.DefaultContentDir)
		n, err := writeSampleContent(dir)
		if err != nil {
			g.printf("Initialization failed\n")
			return err
		}
		g.printf("Wrote %d sample documents to %s\n", n, dir)
	}
	g.printf("initialized successfully\n")
	return nil
}

func writeSampleContent(dir string) (int, error) {
	n := 0
	for _, f := range sampleContent {
		p := filepath.Join(dir, filepath.FromSlash(f.rel))
		if _, err := os.Stat(p); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return n, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat sample document").WithContext("path", p).Build()
		}
		data, err := content.FormatFrontMatter(f.meta, []byte(f.body))
		if err != nil {
			return n, ferrors.WrapError(err, ferrors.CategoryInternal, "encode front matter").WithContext("path", f.rel).Build()
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return n, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create content directory").WithContext("path", p).Build()
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return n, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write sample document").WithContext("path", p).Build()
		}
		n++
	}
	return n, nil
}
