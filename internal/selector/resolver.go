// Package selector computes stable locators for document elements and
// re-checks them later. A resolved selector is best-effort: page structure
// can drift between authoring and serving, so callers that round-trip
// selectors should use Verify to surface drift instead of trusting a match
// blindly.
package selector

import (
	"fmt"
	"strings"

	"github.com/ab-optimizer/ab-optimizer/internal/dom"
)

// identityAttrs are recognized data-identity attributes, in preference
// order.
var identityAttrs = []string{"data-id", "data-ab"}

// Resolve returns a selector for el, the first satisfied of: a unique #id,
// a unique tag+class compound, a data-identity attribute selector, or a
// structural path of tag:nth-of-type segments walked toward the body and
// cut short as soon as it matches uniquely. The result is always non-empty
// and valid as a query selector.
func Resolve(doc *dom.Document, el *dom.Element) string {
	if id := el.ID(); id != "" {
		sel := "#" + id
		if unique(doc, sel, el) {
			return sel
		}
	}

	if classes := el.Classes(); len(classes) > 0 {
		sel := el.Tag() + "." + strings.Join(classes, ".")
		if unique(doc, sel, el) {
			return sel
		}
	}

	for _, attr := range identityAttrs {
		if v, ok := el.Attr(attr); ok && v != "" {
			return fmt.Sprintf(`[%s="%s"]`, attr, v)
		}
	}

	return structuralPath(doc, el)
}

// structuralPath builds tag segments from el upward, qualifying with
// :nth-of-type only when same-tag siblings exist, and stops as soon as the
// accumulated path pins down exactly this element. Reaching the top yields
// a body-prefixed path.
func structuralPath(doc *dom.Document, el *dom.Element) string {
	var segments []string

	for cur := el; cur != nil; cur = cur.Parent() {
		if cur == doc.Body() || cur.Parent() == nil {
			segments = append([]string{"body"}, segments...)
			break
		}

		seg := cur.Tag()
		if cur.SameTagSiblingCount() > 1 {
			seg = fmt.Sprintf("%s:nth-of-type(%d)", seg, cur.NthOfType())
		}
		segments = append([]string{seg}, segments...)

		if unique(doc, strings.Join(segments, " > "), el) {
			break
		}
	}

	return strings.Join(segments, " > ")
}

// Verify reports whether sel still resolves on doc, and whether its first
// match carries the expected tag. A found-but-retagged selector is the
// drift signal callers should log rather than silently act on.
func Verify(doc *dom.Document, sel, wantTag string) (found, tagMatches bool) {
	matched := doc.Select(sel)
	if len(matched) == 0 {
		return false, false
	}
	if wantTag == "" {
		return true, true
	}
	return true, matched[0].Tag() == strings.ToLower(wantTag)
}

func unique(doc *dom.Document, sel string, el *dom.Element) bool {
	matched := doc.Select(sel)
	return len(matched) == 1 && matched[0] == el
}
