package component

import (
	"bytes"
	"fmt"
	"html/template"
	"slices"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/rstsite/internal/urlbuilder"
	"git.home.luguber.info/inful/rstsite/internal/util/sets"
)

// AssetKind distinguishes stylesheets from scripts.
type AssetKind string

const (
	AssetStyle  AssetKind = "style"
	AssetScript AssetKind = "script"
)

// Asset is a stylesheet or script a rendered component needs on the page.
type Asset struct {
	Kind      AssetKind
	Path      string
	Component string
}

// RenderContext is the per-page state threaded through recursive component rendering.
type RenderContext struct {
	baseURL string
	stack   []string
	assets  []Asset
	seen    sets.Set[string]
}

// NewRenderContext returns an empty context. baseURL prefixes every URL a component
// template produces.
func NewRenderContext(baseURL string) *RenderContext {
	return &RenderContext{baseURL: baseURL, seen: sets.New[string]()}
}

func (rc *RenderContext) BaseURL() string { return rc.baseURL }

// Stack returns the keys of the components currently being rendered, outermost first.
func (rc *RenderContext) Stack() []string { return slices.Clone(rc.stack) }

// Assets returns the collected assets in first-use order.
func (rc *RenderContext) Assets() []Asset { return slices.Clone(rc.assets) }

func (rc *RenderContext) addAsset(kind AssetKind, p, component string) {
	key := string(kind) + "\x00" + p
	if rc.seen.Has(key) {
		return
	}
	rc.seen.Add(key)
	rc.assets = append(rc.assets, Asset{Kind: kind, Path: p, Component: component})
}

// ErrorKind classifies a RenderError.
type ErrorKind string

const (
	UnknownComponent ErrorKind = "unknown_component"
	MissingProp      ErrorKind = "missing_prop"
	InvalidProp      ErrorKind = "invalid_prop"
	CyclicComponent  ErrorKind = "cyclic_component"
	TemplateError    ErrorKind = "template_error"
)

// RenderError reports a failed component render. Stack is the component stack at the
// point of failure; for a cycle it ends with the repeated name.
type RenderError struct {
	Kind      ErrorKind
	Component string
	Prop      string
	Stack     []string
	Err       error
}

func (e *RenderError) Error() string {
	var msg string
	switch e.Kind {
	case UnknownComponent:
		msg = fmt.Sprintf("unknown component %q", e.Component)
	case MissingProp:
		msg = fmt.Sprintf("component %q: missing required prop %q", e.Component, e.Prop)
	case InvalidProp:
		msg = fmt.Sprintf("component %q: invalid prop %q: %v", e.Component, e.Prop, e.Err)
	case CyclicComponent:
		return "cyclic component reference: " + strings.Join(e.Stack, " -> ")
	default:
		msg = fmt.Sprintf("component %q: %v", e.Component, e.Err)
	}
	if len(e.Stack) > 0 {
		msg += " (in " + strings.Join(e.Stack, " -> ") + ")"
	}
	return msg
}

func (e *RenderError) Unwrap() error { return e.Err }

// Renderer renders components from a Registry.
type Renderer struct {
	reg *Registry
}

func NewRenderer(reg *Registry) *Renderer {
	return &Renderer{reg: reg}
}

// Registry returns the registry the renderer was built with.
func (r *Renderer) Registry() *Registry { return r.reg }

// templateData is what component templates see as ".".
type templateData struct {
	Name    string
	Props   map[string]any
	Slots   map[string]template.HTML
	BaseURL string
}

// Render renders one component. Slot values are trusted HTML that has already been
// expanded in the caller's context. Component markers in the template output are
// expanded with the component's "category/name" key pushed on the stack.
func (r *Renderer) Render(name string, props, slots map[string]string, rc *RenderContext) (string, error) {
	e, ok := r.reg.lookup(name)
	if !ok {
		return "", &RenderError{Kind: UnknownComponent, Component: name, Stack: rc.Stack()}
	}
	key := e.def.Key()
	if slices.Contains(rc.stack, key) {
		return "", &RenderError{Kind: CyclicComponent, Component: name, Stack: append(rc.Stack(), key)}
	}
	values, err := bindProps(e.def, props, rc)
	if err != nil {
		return "", err
	}

	data := templateData{
		Name:    e.def.Name,
		Props:   values,
		Slots:   make(map[string]template.HTML, len(slots)),
		BaseURL: rc.baseURL,
	}
	for k, v := range slots {
		data.Slots[k] = template.HTML(v) //nolint:gosec // slot content is rendered page HTML
	}

	tmpl, err := e.tmpl.Clone()
	if err != nil {
		return "", &RenderError{Kind: TemplateError, Component: name, Stack: rc.Stack(), Err: err}
	}
	tmpl.Funcs(template.FuncMap{
		"url": func(p string) string { return assetURL(rc.baseURL, p) },
	})
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &RenderError{Kind: TemplateError, Component: name, Stack: rc.Stack(), Err: err}
	}

	for _, s := range e.def.Styles {
		rc.addAsset(AssetStyle, s, e.def.Name)
	}
	for _, s := range e.def.Scripts {
		rc.addAsset(AssetScript, s, e.def.Name)
	}

	rc.stack = append(rc.stack, key)
	defer func() { rc.stack = rc.stack[:len(rc.stack)-1] }()
	return r.Expand(buf.String(), rc)
}

func bindProps(def Definition, props map[string]string, rc *RenderContext) (map[string]any, error) {
	values := make(map[string]any, len(def.Props))
	for k, v := range props {
		values[k] = v
	}
	for _, p := range def.Props {
		raw, ok := props[p.Name]
		if !ok {
			if p.Required {
				return nil, &RenderError{Kind: MissingProp, Component: def.Name, Prop: p.Name, Stack: rc.Stack()}
			}
			if p.Default == "" {
				values[p.Name] = zeroValue(p.Type)
				continue
			}
			raw = p.Default
		}
		v, err := convertProp(p, raw, rc.baseURL)
		if err != nil {
			return nil, &RenderError{Kind: InvalidProp, Component: def.Name, Prop: p.Name, Stack: rc.Stack(), Err: err}
		}
		values[p.Name] = v
	}
	return values, nil
}

func zeroValue(typ string) any {
	switch typ {
	case TypeBool:
		return false
	case TypeInt:
		return 0
	case TypeNumber:
		return 0.0
	}
	return ""
}

func convertProp(p Prop, raw, baseURL string) (any, error) {
	switch p.Type {
	case TypeBool:
		if raw == "" {
			return true, nil
		}
		return strconv.ParseBool(raw)
	case TypeInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case TypeNumber:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case TypeURL:
		return assetURL(baseURL, raw), nil
	case TypeEnum:
		if !slices.Contains(p.Values, raw) {
			return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(p.Values, ", "))
		}
	}
	return raw, nil
}

// assetURL prefixes site-relative paths with the base URL. Rooted paths are taken as
// already built, and absolute URLs, fragments and data URIs are left alone.
func assetURL(baseURL, p string) string {
	switch {
	case p == "", strings.HasPrefix(p, "#"), strings.HasPrefix(p, "/"), strings.HasPrefix(p, "data:"), strings.Contains(p, "://"):
		return p
	}
	return urlbuilder.Build(baseURL, p)
}
