// Package dom is the host-environment abstraction the mutation engine and
// selector resolver work against. In a browser this role is played by the
// real DOM; here it is an in-process element tree with just enough surface
// for the pipeline: attribute and style access, content replacement, and
// resolution of the selector grammar the resolver emits.
package dom

import (
	"sort"
	"strings"
)

// Element is one node in the document tree.
type Element struct {
	tag      string
	attrs    map[string]string
	styles   map[string]string
	text     string
	parent   *Element
	children []*Element
	reloads  int
}

// Document owns an element tree rooted at a body container.
type Document struct {
	body *Element
}

// NewDocument returns an empty document with a body root.
func NewDocument() *Document {
	return &Document{body: NewElement("body")}
}

// NewElement returns a detached element with the given tag.
func NewElement(tag string) *Element {
	return &Element{
		tag:    strings.ToLower(tag),
		attrs:  map[string]string{},
		styles: map[string]string{},
	}
}

// Body returns the document's root content container.
func (d *Document) Body() *Element { return d.body }

// Append attaches child as the last child of e and returns child.
func (e *Element) Append(child *Element) *Element {
	child.parent = e
	e.children = append(e.children, child)
	return child
}

func (e *Element) Tag() string      { return e.tag }
func (e *Element) Parent() *Element { return e.parent }

// Children returns the element children in document order.
func (e *Element) Children() []*Element { return e.children }

func (e *Element) ID() string { return e.attrs["id"] }

func (e *Element) Classes() []string {
	raw := strings.Fields(e.attrs["class"])
	return raw
}

func (e *Element) HasClass(name string) bool {
	for _, c := range e.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

func (e *Element) AddClass(name string) {
	if e.HasClass(name) {
		return
	}
	cur := e.attrs["class"]
	if cur == "" {
		e.attrs["class"] = name
	} else {
		e.attrs["class"] = cur + " " + name
	}
}

func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *Element) SetAttr(name, value string) { e.attrs[name] = value }

// Style returns the element's inline style for a property ("" when unset).
func (e *Element) Style(prop string) string { return e.styles[prop] }

func (e *Element) SetStyle(prop, value string) { e.styles[prop] = value }

// ComputedStyle resolves display and position the way layout would: inline
// style wins, otherwise the tag's default.
func (e *Element) ComputedStyle(prop string) string {
	if v, ok := e.styles[prop]; ok && v != "" {
		return v
	}
	switch prop {
	case "display":
		return defaultDisplay(e.tag)
	case "position":
		return "static"
	case "opacity":
		return "1"
	}
	return ""
}

// Text returns the concatenated text content of the element and its
// descendants.
func (e *Element) Text() string {
	var b strings.Builder
	e.collectText(&b)
	return b.String()
}

func (e *Element) collectText(b *strings.Builder) {
	b.WriteString(e.text)
	for _, c := range e.children {
		c.collectText(b)
	}
}

// SetText replaces the element's entire content with a text node.
func (e *Element) SetText(s string) {
	e.text = s
	e.children = nil
}

// HTML serializes the element's content: its own text followed by its
// children rendered as markup. Markup set via SetHTML is stored opaque.
func (e *Element) HTML() string {
	var b strings.Builder
	b.WriteString(e.text)
	for _, c := range e.children {
		c.render(&b)
	}
	return b.String()
}

// SetHTML replaces the element's content with raw markup. The markup is not
// re-parsed into child elements; it is carried as an opaque payload, which
// is all the mutation pipeline needs.
func (e *Element) SetHTML(s string) {
	e.text = s
	e.children = nil
}

func (e *Element) render(b *strings.Builder) {
	b.WriteString("<")
	b.WriteString(e.tag)
	keys := make([]string, 0, len(e.attrs))
	for k := range e.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(e.attrs[k])
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(e.HTML())
	b.WriteString("</")
	b.WriteString(e.tag)
	b.WriteString(">")
}

// Find returns the first descendant with the given tag, depth-first.
func (e *Element) Find(tag string) *Element {
	for _, c := range e.children {
		if c.tag == tag {
			return c
		}
		if found := c.Find(tag); found != nil {
			return found
		}
	}
	return nil
}

// Reload marks a media element as needing a source refresh. A loaded video
// does not pick up a source change on its own; the engine calls this after
// swapping srcs, and tests observe it through ReloadCount.
func (e *Element) Reload() { e.reloads++ }

func (e *Element) ReloadCount() int { return e.reloads }

// NthOfType returns the element's 1-based position among same-tag siblings.
func (e *Element) NthOfType() int {
	if e.parent == nil {
		return 1
	}
	n := 0
	for _, sib := range e.parent.children {
		if sib.tag == e.tag {
			n++
			if sib == e {
				return n
			}
		}
	}
	return 1
}

// SameTagSiblingCount counts siblings (including e) sharing e's tag.
func (e *Element) SameTagSiblingCount() int {
	if e.parent == nil {
		return 1
	}
	n := 0
	for _, sib := range e.parent.children {
		if sib.tag == e.tag {
			n++
		}
	}
	return n
}

func defaultDisplay(tag string) string {
	switch tag {
	case "span", "a", "b", "i", "em", "strong", "label", "small", "source":
		return "inline"
	case "img", "button", "input", "select", "video", "iframe":
		return "inline-block"
	default:
		return "block"
	}
}
