// Package theme loads page layouts, static assets and component definitions from a
// theme directory or the embedded default theme.
//
// Layout:
//
//	theme.yaml
//	layouts/*.html                          html/template layouts (page.html is required)
//	static/**                               copied to <output>/_static/
//	components/<category>/<name>/component.yaml
//
// Version 1 manifests list their components explicitly; version 2 discovers every
// component.yaml under components/.
package theme

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/rstsite/internal/component"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
)

//go:embed all:default
var defaultFS embed.FS

const (
	ManifestFile  = "theme.yaml"
	ComponentFile = "component.yaml"
	// StaticDir is the output directory theme and component assets are copied to.
	StaticDir = "_static"

	LayoutPage  = "page.html"
	LayoutIndex = "index.html"
	LayoutTag   = "tag.html"
)

// Manifest is theme.yaml.
type Manifest struct {
	Name        string   `yaml:"name"`
	Version     int      `yaml:"version"`
	Description string   `yaml:"description"`
	Components  []string `yaml:"components"`
}

// StaticFile maps a theme file to its site-relative output path.
type StaticFile struct {
	Src string
	Dst string
}

// Theme is a loaded theme. It is read-only and safe for concurrent use.
type Theme struct {
	Manifest   Manifest
	Components []component.Definition

	fsys    fs.FS
	layouts *template.Template
	static  []StaticFile
}

// Default loads the embedded default theme.
func Default() (*Theme, error) {
	sub, err := fs.Sub(defaultFS, "default")
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "embedded theme").Build()
	}
	return LoadFS(sub)
}

// Load loads the theme in dir, or the default theme when dir is empty.
func Load(dir string) (*Theme, error) {
	if dir == "" {
		return Default()
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, ferrors.ThemeError("theme directory not found").WithContext("path", dir).Fatal().Build()
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS loads a theme rooted at fsys.
func LoadFS(fsys fs.FS) (*Theme, error) {
	raw, err := fs.ReadFile(fsys, ManifestFile)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTheme, "read theme manifest").WithContext("file", ManifestFile).Build()
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTheme, "parse theme manifest").WithContext("file", ManifestFile).Build()
	}
	if m.Version == 0 {
		m.Version = 1
	}

	t := &Theme{Manifest: m, fsys: fsys}
	if t.layouts, err = parseLayouts(fsys); err != nil {
		return nil, err
	}

	var dirs []string
	switch m.Version {
	case 1:
		for _, c := range m.Components {
			dirs = append(dirs, path.Join("components", strings.Trim(c, "/")))
		}
	case 2:
		if dirs, err = discoverComponents(fsys); err != nil {
			return nil, err
		}
	default:
		return nil, ferrors.ThemeError(fmt.Sprintf("unsupported theme version %d", m.Version)).WithContext("theme", m.Name).Build()
	}
	for _, dir := range dirs {
		def, files, err := loadComponent(fsys, dir)
		if err != nil {
			return nil, err
		}
		t.Components = append(t.Components, def)
		t.static = append(t.static, files...)
	}

	static, err := staticFiles(fsys)
	if err != nil {
		return nil, err
	}
	t.static = append(static, t.static...)
	return t, nil
}

func parseLayouts(fsys fs.FS) (*template.Template, error) {
	if _, err := fs.Stat(fsys, path.Join("layouts", LayoutPage)); err != nil {
		return nil, ferrors.ThemeError("theme has no layouts/" + LayoutPage).Build()
	}
	tmpl, err := template.New("layouts").Funcs(layoutFuncs("")).ParseFS(fsys, "layouts/*.html")
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTheme, "parse layouts").Build()
	}
	return tmpl, nil
}

// discoverComponents returns every components/<category>/<name> directory holding a
// component.yaml, sorted.
func discoverComponents(fsys fs.FS) ([]string, error) {
	var dirs []string
	err := fs.WalkDir(fsys, "components", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "components" && os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || d.Name() != ComponentFile {
			return nil
		}
		dir := path.Dir(p)
		if strings.Count(dir, "/") != 2 {
			return ferrors.ThemeError("component.yaml must live at components/<category>/<name>/").WithContext("file", p).Build()
		}
		dirs = append(dirs, dir)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

type componentFile struct {
	Name     string           `yaml:"name"`
	Props    []component.Prop `yaml:"props"`
	Slots    []string         `yaml:"slots"`
	Template string           `yaml:"template"`
	Styles   []string         `yaml:"styles"`
	Scripts  []string         `yaml:"scripts"`
}

// loadComponent reads dir/component.yaml. The category comes from the directory.
func loadComponent(fsys fs.FS, dir string) (component.Definition, []StaticFile, error) {
	file := path.Join(dir, ComponentFile)
	raw, err := fs.ReadFile(fsys, file)
	if err != nil {
		return component.Definition{}, nil, ferrors.WrapError(err, ferrors.CategoryTheme, "read component").WithContext("file", file).Build()
	}
	var cf componentFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return component.Definition{}, nil, ferrors.WrapError(err, ferrors.CategoryTheme, "parse component").WithContext("file", file).Build()
	}
	parts := strings.Split(dir, "/")
	category, name := parts[len(parts)-2], parts[len(parts)-1]
	if cf.Name != "" && cf.Name != name {
		return component.Definition{}, nil, ferrors.ThemeError(fmt.Sprintf("component name %q does not match directory %q", cf.Name, name)).WithContext("file", file).Build()
	}
	if cf.Template == "" {
		cf.Template = "template.html"
	}
	tmpl, err := fs.ReadFile(fsys, path.Join(dir, cf.Template))
	if err != nil {
		return component.Definition{}, nil, ferrors.WrapError(err, ferrors.CategoryTheme, "read component template").WithContext("file", file).Build()
	}

	def := component.Definition{
		Name:     name,
		Category: component.Category(category),
		Props:    cf.Props,
		Slots:    cf.Slots,
		Template: string(tmpl),
	}
	var files []StaticFile
	asset := func(rel string) string {
		src := path.Join(dir, rel)
		dst := path.Join(StaticDir, src)
		files = append(files, StaticFile{Src: src, Dst: dst})
		return dst
	}
	for _, s := range cf.Styles {
		def.Styles = append(def.Styles, asset(s))
	}
	for _, s := range cf.Scripts {
		def.Scripts = append(def.Scripts, asset(s))
	}
	for _, f := range files {
		if _, err := fs.Stat(fsys, f.Src); err != nil {
			return component.Definition{}, nil, ferrors.ThemeError("component asset not found").WithContext("file", f.Src).Build()
		}
	}
	return def, files, nil
}

func staticFiles(fsys fs.FS) ([]StaticFile, error) {
	var files []StaticFile
	err := fs.WalkDir(fsys, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "static" && os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			files = append(files, StaticFile{Src: p, Dst: path.Join(StaticDir, strings.TrimPrefix(p, "static/"))})
		}
		return nil
	})
	return files, err
}

// Name returns the manifest name.
func (t *Theme) Name() string { return t.Manifest.Name }

// StaticFiles lists the files to copy into the output tree.
func (t *Theme) StaticFiles() []StaticFile { return t.static }

// Open opens a theme file.
func (t *Theme) Open(name string) (fs.File, error) { return t.fsys.Open(name) }

// HasLayout reports whether layouts/<name> exists.
func (t *Theme) HasLayout(name string) bool { return t.layouts.Lookup(name) != nil }

// Render executes layout with data. A missing optional layout falls back to page.html.
func (t *Theme) Render(w io.Writer, layout string, data *PageData) error {
	if !t.HasLayout(layout) {
		layout = LayoutPage
	}
	tmpl, err := t.layouts.Clone()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRender, "clone layouts").Build()
	}
	tmpl.Funcs(layoutFuncs(data.Site.BaseURL))
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, layout, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRender, "render layout").
			WithContext("layout", layout).WithContext("page", data.Path).Build()
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func layoutFuncs(baseURL string) template.FuncMap {
	return template.FuncMap{
		"url": func(p string) string { return urlbuilder.Build(baseURL, p) },
		"static": func(p string) string {
			return urlbuilder.Build(baseURL, path.Join(StaticDir, p))
		},
	}
}
