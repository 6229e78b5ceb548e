// Package component renders theme components: named html/template fragments with
// typed props and named slots.
//
// Definitions are loaded by the theme package and handed to NewRegistry; the registry
// is immutable afterwards. A Renderer expands <x-component> markers found in page HTML,
// recursively and with cycle detection, collecting each component's style and script
// assets once per RenderContext.
package component

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
)

// Category is the namespace a component name is unique in.
type Category string

const (
	Atomic    Category = "atomic"
	Composite Category = "composite"
	Content   Category = "content"
)

// Categories lists the categories in bare-name resolution order.
func Categories() []Category {
	return []Category{Atomic, Composite, Content}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case Atomic, Composite, Content:
		return true
	}
	return false
}

// Prop types.
const (
	TypeString = "string"
	TypeBool   = "bool"
	TypeInt    = "int"
	TypeNumber = "number"
	TypeURL    = "url"
	TypeEnum   = "enum"
)

// Prop declares one component input.
type Prop struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	Default  string   `yaml:"default"`
	Values   []string `yaml:"values"`
}

// Definition describes a component. Styles and Scripts are site-relative asset paths.
type Definition struct {
	Name     string   `yaml:"name"`
	Category Category `yaml:"category"`
	Props    []Prop   `yaml:"props"`
	Slots    []string `yaml:"slots"`
	Template string   `yaml:"-"`
	Styles   []string `yaml:"styles"`
	Scripts  []string `yaml:"scripts"`
}

// Key is "category/name".
func (d Definition) Key() string {
	return string(d.Category) + "/" + d.Name
}

type entry struct {
	def  Definition
	tmpl *template.Template
}

// Registry holds parsed component definitions. It is read-only after NewRegistry.
type Registry struct {
	byKey map[string]*entry
}

// templateFuncs are bound per render; the placeholders let templates parse.
var templateFuncs = template.FuncMap{
	"url": func(string) string { return "" },
}

// NewRegistry validates defs and parses their templates. Names must be unique within
// a category.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{byKey: make(map[string]*entry, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("component definition without a name")
		}
		if strings.ContainsAny(d.Name, "/ \t") {
			return nil, fmt.Errorf("component name %q must not contain slashes or spaces", d.Name)
		}
		if !d.Category.Valid() {
			return nil, fmt.Errorf("component %q: unknown category %q", d.Name, d.Category)
		}
		if _, dup := r.byKey[d.Key()]; dup {
			return nil, fmt.Errorf("component %q is defined twice in category %s", d.Name, d.Category)
		}
		for _, p := range d.Props {
			if err := checkPropType(p); err != nil {
				return nil, fmt.Errorf("component %s: %w", d.Key(), err)
			}
		}
		tmpl, err := template.New(d.Key()).Funcs(templateFuncs).Parse(d.Template)
		if err != nil {
			return nil, fmt.Errorf("component %s: parse template: %w", d.Key(), err)
		}
		r.byKey[d.Key()] = &entry{def: d, tmpl: tmpl}
	}
	return r, nil
}

func checkPropType(p Prop) error {
	switch p.Type {
	case "", TypeString, TypeBool, TypeInt, TypeNumber, TypeURL:
		return nil
	case TypeEnum:
		if len(p.Values) == 0 {
			return fmt.Errorf("enum prop %q has no values", p.Name)
		}
		return nil
	}
	return fmt.Errorf("prop %q has unknown type %q", p.Name, p.Type)
}

// lookup resolves "category/name" or a bare name. Bare names are tried in the order of
// Categories.
func (r *Registry) lookup(name string) (*entry, bool) {
	if strings.Contains(name, "/") {
		e, ok := r.byKey[name]
		return e, ok
	}
	for _, c := range Categories() {
		if e, ok := r.byKey[string(c)+"/"+name]; ok {
			return e, true
		}
	}
	return nil, false
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// Definitions returns all definitions sorted by key.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.byKey))
	for _, e := range r.byKey {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns the number of components.
func (r *Registry) Len() int { return len(r.byKey) }
