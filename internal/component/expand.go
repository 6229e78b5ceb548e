package component

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

const (
	componentTag = "x-component"
	slotTag      = "x-slot"
	defaultSlot  = "default"
)

// Expand replaces every <x-component name="..."> marker in src with the rendered
// component. Attributes other than name become props; <x-slot name="..."> children
// become named slots and any other content becomes the default slot. Slot content is
// expanded in the caller's context before the component renders.
func (r *Renderer) Expand(src string, rc *RenderContext) (string, error) {
	if !strings.Contains(src, "<"+componentTag) {
		return src, nil
	}
	z := html.NewTokenizer(strings.NewReader(src))
	var out strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return out.String(), nil
			}
			return "", z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := string(z.Raw())
			tag, hasAttr := z.TagName()
			if string(tag) != componentTag {
				out.WriteString(raw)
				continue
			}
			attrs := readAttrs(z, hasAttr)
			inner := ""
			if tt == html.StartTagToken {
				var err error
				if inner, err = captureUntilClose(z, componentTag); err != nil {
					return "", &RenderError{Kind: TemplateError, Component: attrs.name, Stack: rc.Stack(), Err: err}
				}
			}
			rendered, err := r.invoke(attrs, inner, rc)
			if err != nil {
				return "", err
			}
			out.WriteString(rendered)
		default:
			out.Write(z.Raw())
		}
	}
}

type markerAttrs struct {
	name  string
	props map[string]string
}

func readAttrs(z *html.Tokenizer, more bool) markerAttrs {
	a := markerAttrs{props: map[string]string{}}
	for more {
		var k, v []byte
		k, v, more = z.TagAttr()
		if string(k) == "name" {
			a.name = string(v)
			continue
		}
		a.props[string(k)] = string(v)
	}
	return a
}

// captureUntilClose returns the raw markup up to the end tag matching an already
// consumed start tag, honoring nesting of the same tag.
func captureUntilClose(z *html.Tokenizer, tag string) (string, error) {
	var b strings.Builder
	depth := 1
	for {
		tt := z.Next()
		raw := string(z.Raw())
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", errors.New("unterminated <" + tag + ">")
			}
			return "", z.Err()
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == tag {
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == tag {
				depth--
				if depth == 0 {
					return b.String(), nil
				}
			}
		}
		b.WriteString(raw)
	}
}

func (r *Renderer) invoke(attrs markerAttrs, inner string, rc *RenderContext) (string, error) {
	if attrs.name == "" {
		return "", &RenderError{Kind: UnknownComponent, Stack: rc.Stack()}
	}
	slots, err := splitSlots(inner)
	if err != nil {
		return "", &RenderError{Kind: TemplateError, Component: attrs.name, Stack: rc.Stack(), Err: err}
	}
	for k, v := range slots {
		if slots[k], err = r.Expand(v, rc); err != nil {
			return "", err
		}
	}
	return r.Render(attrs.name, attrs.props, slots, rc)
}

// splitSlots separates <x-slot> children of a component body. Slots belonging to
// nested components stay inside those components' markup.
func splitSlots(inner string) (map[string]string, error) {
	slots := map[string]string{}
	if strings.TrimSpace(inner) == "" {
		return slots, nil
	}
	z := html.NewTokenizer(strings.NewReader(inner))
	var loose strings.Builder
	nested := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if !errors.Is(z.Err(), io.EOF) {
				return nil, z.Err()
			}
			break
		}
		raw := string(z.Raw())
		if tt == html.StartTagToken || tt == html.EndTagToken {
			tag, hasAttr := z.TagName()
			switch {
			case string(tag) == componentTag && tt == html.StartTagToken:
				nested++
			case string(tag) == componentTag:
				nested--
			case string(tag) == slotTag && tt == html.StartTagToken && nested == 0:
				name := readAttrs(z, hasAttr).name
				if name == "" {
					name = defaultSlot
				}
				body, err := captureUntilClose(z, slotTag)
				if err != nil {
					return nil, err
				}
				slots[name] += body
				continue
			}
		}
		loose.WriteString(raw)
	}
	if s := strings.TrimSpace(loose.String()); s != "" {
		slots[defaultSlot] += s
	}
	return slots, nil
}
