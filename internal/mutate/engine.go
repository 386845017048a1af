// Package mutate applies a variation's element changes to a document and
// can undo them. Original state is captured on the element itself, once,
// before the first edit; later edits never overwrite it, so revert always
// lands on the true pre-variation state.
package mutate

import (
	"fmt"
	"log/slog"

	"github.com/ab-optimizer/ab-optimizer/internal/dom"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

// Mode selects live serving behavior or authoring preview behavior.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeDesign Mode = "design"
)

// Attributes recording captured original state. Presence of the capture
// marker is the idempotency guard.
const (
	attrCaptured         = "data-abo-captured"
	attrOriginalContent  = "data-abo-original-content"
	attrOriginalSrc      = "data-abo-original-src"
	attrOriginalAlt      = "data-abo-original-alt"
	attrOriginalDisplay  = "data-abo-original-display"
	attrOriginalPosition = "data-abo-original-position"
)

// Report summarizes one Apply pass. Missing selectors are the drift signal
// worth watching; Failed entries isolate bad changes without blocking their
// siblings.
type Report struct {
	Applied []string
	Missing []string
	Failed  []Failure
}

// Failure names a change that could not be applied.
type Failure struct {
	Selector string
	Err      error
}

// Engine applies and reverts variation changes.
type Engine struct {
	Logger *slog.Logger
}

// Apply walks the variation's changes and mutates every element each
// selector resolves to. A selector matching nothing is a logged no-op; a
// change that errors is recorded and skipped; the rest still apply.
func (e *Engine) Apply(doc *dom.Document, changes []variation.Change, mode Mode) Report {
	var rep Report
	for _, change := range changes {
		matched := doc.Select(change.Selector)
		if len(matched) == 0 {
			e.logger().Warn("selector matched no elements", "selector", change.Selector)
			rep.Missing = append(rep.Missing, change.Selector)
			continue
		}

		if err := e.applyToAll(matched, change, mode); err != nil {
			e.logger().Warn("change failed", "selector", change.Selector, "error", err)
			rep.Failed = append(rep.Failed, Failure{Selector: change.Selector, Err: err})
			continue
		}
		rep.Applied = append(rep.Applied, change.Selector)
	}
	return rep
}

func (e *Engine) applyToAll(matched []*dom.Element, change variation.Change, mode Mode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic applying change: %v", r)
		}
	}()

	for _, el := range matched {
		switch change.Type {
		case variation.ChangeText:
			e.applyText(el, change, mode)
		case variation.ChangeImage, variation.ChangeVideo, variation.ChangeIframe:
			e.applyMedia(el, change, mode)
		case variation.ChangeSection:
			e.applySection(el, change, mode)
		default:
			return fmt.Errorf("unsupported change type %q", change.Type)
		}
	}
	return nil
}

func (e *Engine) applyText(el *dom.Element, change variation.Change, mode Mode) {
	captureContent(el)

	if !change.Visible {
		captureLayout(el)
		hide(el, mode, change.Legacy)
		return
	}

	show(el)
	switch {
	case isHeading(el):
		// Headings take plain text; injected markup there can break
		// layout.
		el.SetText(change.Content)
	case isButtonLike(el):
		// Keep decorative child nodes (icons and the like): pull them
		// out, set the new text, put them back.
		kept := append([]*dom.Element(nil), el.Children()...)
		el.SetText(change.Content)
		for _, child := range kept {
			el.Append(child)
		}
	default:
		el.SetHTML(change.Content)
	}
}

func (e *Engine) applyMedia(el *dom.Element, change variation.Change, mode Mode) {
	target := el
	if change.Type == variation.ChangeVideo {
		if source := el.Find("source"); source != nil {
			target = source
		}
	}

	captureSrc(target)
	target.SetAttr("src", change.Src)
	if change.Type == variation.ChangeVideo {
		// A loaded video does not pick up a source swap on its own.
		el.Reload()
	}
	if change.Type == variation.ChangeImage && change.Alt != "" {
		captureAlt(el)
		el.SetAttr("alt", change.Alt)
	}

	captureLayout(el)
	if change.Visible {
		show(el)
	} else {
		hide(el, mode, change.Legacy)
	}
}

func (e *Engine) applySection(el *dom.Element, change variation.Change, mode Mode) {
	captureLayout(el)
	if change.Visible {
		show(el)
	} else {
		hide(el, mode, change.Legacy)
	}
}

// hide dims or removes an element per the mode. Design mode keeps the
// element visible enough to re-select and edit. Live mode distinguishes the
// two content schemas: the legacy boolean sections form removes the element
// from layout, the unified form fades it and disables interaction.
func hide(el *dom.Element, mode Mode, legacy bool) {
	if mode == ModeDesign {
		el.SetStyle("opacity", "0.3")
		el.SetStyle("pointer-events", "auto")
		el.SetStyle("outline", "2px dashed currentColor")
		return
	}
	if legacy {
		el.SetStyle("display", "none")
		return
	}
	el.SetStyle("opacity", "0.3")
	el.SetStyle("pointer-events", "none")
}

// show restores the captured layout values and clears hide styling.
func show(el *dom.Element) {
	el.SetStyle("opacity", "")
	el.SetStyle("pointer-events", "")
	el.SetStyle("outline", "")
	if display, ok := el.Attr(attrOriginalDisplay); ok {
		el.SetStyle("display", display)
	}
	if position, ok := el.Attr(attrOriginalPosition); ok {
		el.SetStyle("position", position)
	}
}

// Revert restores every element touched by the changes to its captured
// original state and drops the capture markers.
func (e *Engine) Revert(doc *dom.Document, changes []variation.Change) {
	for _, change := range changes {
		for _, el := range doc.Select(change.Selector) {
			revertElement(el)
			if change.Type == variation.ChangeVideo {
				if source := el.Find("source"); source != nil {
					revertElement(source)
				}
			}
		}
	}
}

func revertElement(el *dom.Element) {
	if content, ok := el.Attr(attrOriginalContent); ok {
		if isHeading(el) {
			el.SetText(content)
		} else {
			el.SetHTML(content)
		}
	}
	if src, ok := el.Attr(attrOriginalSrc); ok {
		el.SetAttr("src", src)
	}
	if alt, ok := el.Attr(attrOriginalAlt); ok {
		el.SetAttr("alt", alt)
	}
	show(el)
	el.SetAttr(attrCaptured, "")
}

// captureContent records the element's pre-edit content once. Headings are
// captured as text, everything else as markup.
func captureContent(el *dom.Element) {
	if _, ok := el.Attr(attrOriginalContent); ok {
		return
	}
	if isHeading(el) {
		el.SetAttr(attrOriginalContent, el.Text())
	} else {
		el.SetAttr(attrOriginalContent, el.HTML())
	}
	el.SetAttr(attrCaptured, "1")
}

func captureSrc(el *dom.Element) {
	if _, ok := el.Attr(attrOriginalSrc); ok {
		return
	}
	src, _ := el.Attr("src")
	el.SetAttr(attrOriginalSrc, src)
	el.SetAttr(attrCaptured, "1")
}

func captureAlt(el *dom.Element) {
	if _, ok := el.Attr(attrOriginalAlt); ok {
		return
	}
	alt, _ := el.Attr("alt")
	el.SetAttr(attrOriginalAlt, alt)
}

// captureLayout records computed display and position once, before any
// visibility styling lands.
func captureLayout(el *dom.Element) {
	if _, ok := el.Attr(attrOriginalDisplay); ok {
		return
	}
	el.SetAttr(attrOriginalDisplay, el.ComputedStyle("display"))
	el.SetAttr(attrOriginalPosition, el.ComputedStyle("position"))
	el.SetAttr(attrCaptured, "1")
}

func isHeading(el *dom.Element) bool {
	switch el.Tag() {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func isButtonLike(el *dom.Element) bool {
	switch el.Tag() {
	case "button", "a":
		return true
	}
	return el.HasClass("btn") || el.HasClass("button")
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
