package dom

import (
	"strconv"
	"strings"
)

// Selector support covers exactly the grammar the resolver produces and the
// authoring flows record: #id, tag, tag.class..., [attr="value"], compound
// forms of those with :nth-of-type(n), and child (>) / descendant (space)
// combinators between them. Anything unparseable matches nothing; a bad
// selector must never take the pipeline down.

type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrVal string
	hasAttr bool
	nth     int // 0 means no :nth-of-type constraint
}

// Select returns all elements matching the selector, in document order.
func (d *Document) Select(selector string) []*Element {
	parts, ok := parseSelector(selector)
	if !ok || len(parts) == 0 {
		return nil
	}

	// Candidate set starts as every element (the body root included, so
	// "body"-prefixed paths anchor correctly), then narrows per part.
	current := matchAll(d.body, parts[0].sel)
	for _, part := range parts[1:] {
		var next []*Element
		seen := map[*Element]bool{}
		for _, el := range current {
			var pool []*Element
			if part.child {
				pool = el.children
			} else {
				pool = descendants(el)
			}
			for _, cand := range pool {
				if !seen[cand] && matches(cand, part.sel) {
					seen[cand] = true
					next = append(next, cand)
				}
			}
		}
		current = next
	}
	return current
}

type selectorPart struct {
	sel   simpleSelector
	child bool // reached via > from the previous part
}

func parseSelector(selector string) ([]selectorPart, bool) {
	fields := strings.Fields(selector)
	if len(fields) == 0 {
		return nil, false
	}

	var parts []selectorPart
	child := false
	for _, f := range fields {
		if f == ">" {
			if len(parts) == 0 {
				return nil, false
			}
			child = true
			continue
		}
		sel, ok := parseSimple(f)
		if !ok {
			return nil, false
		}
		parts = append(parts, selectorPart{sel: sel, child: child})
		child = false
	}
	if child {
		return nil, false
	}
	return parts, true
}

func parseSimple(s string) (simpleSelector, bool) {
	var sel simpleSelector

	if i := strings.Index(s, ":nth-of-type("); i >= 0 {
		rest := s[i+len(":nth-of-type("):]
		j := strings.Index(rest, ")")
		if j < 0 {
			return sel, false
		}
		n, err := strconv.Atoi(rest[:j])
		if err != nil || n < 1 {
			return sel, false
		}
		sel.nth = n
		s = s[:i] + rest[j+1:]
	}

	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return sel, false
		}
		body := s[1 : len(s)-1]
		key, val, found := strings.Cut(body, "=")
		if !found {
			sel.attrKey = body
			sel.hasAttr = true
			return sel, key != ""
		}
		val = strings.Trim(val, `"'`)
		sel.attrKey = key
		sel.attrVal = val
		sel.hasAttr = true
		return sel, key != ""
	}

	if strings.HasPrefix(s, "#") {
		sel.id = s[1:]
		return sel, sel.id != ""
	}

	segs := strings.Split(s, ".")
	sel.tag = strings.ToLower(segs[0])
	for _, c := range segs[1:] {
		if c == "" {
			return sel, false
		}
		sel.classes = append(sel.classes, c)
	}
	if sel.tag == "" && len(sel.classes) == 0 {
		return sel, false
	}
	return sel, true
}

func matches(e *Element, sel simpleSelector) bool {
	if sel.id != "" {
		return e.ID() == sel.id
	}
	if sel.hasAttr {
		v, ok := e.Attr(sel.attrKey)
		if !ok {
			return false
		}
		return sel.attrVal == "" || v == sel.attrVal
	}
	if sel.tag != "" && e.tag != sel.tag {
		return false
	}
	for _, c := range sel.classes {
		if !e.HasClass(c) {
			return false
		}
	}
	if sel.nth != 0 && e.NthOfType() != sel.nth {
		return false
	}
	return true
}

func matchAll(root *Element, sel simpleSelector) []*Element {
	var out []*Element
	if matches(root, sel) {
		out = append(out, root)
	}
	for _, d := range descendants(root) {
		if matches(d, sel) {
			out = append(out, d)
		}
	}
	return out
}

func descendants(e *Element) []*Element {
	var out []*Element
	for _, c := range e.children {
		out = append(out, c)
		out = append(out, descendants(c)...)
	}
	return out
}
