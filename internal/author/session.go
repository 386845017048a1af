// Package author builds variation records the way the visual editor does:
// pick an element, describe the edit, preview it in design mode, and save
// the accumulated changes through the API. All UI chrome stays with the
// host; this is the data flow underneath it.
package author

import (
	"context"
	"errors"
	"fmt"

	"github.com/ab-optimizer/ab-optimizer/internal/dom"
	"github.com/ab-optimizer/ab-optimizer/internal/mutate"
	"github.com/ab-optimizer/ab-optimizer/internal/selector"
	"github.com/ab-optimizer/ab-optimizer/internal/transport"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

// Session accumulates element edits into a variation draft.
type Session struct {
	WebsiteID string
	PageURL   string

	doc    *dom.Document
	client *transport.Client
	engine *mutate.Engine

	name        string
	variationID string // set when editing an existing variation
	allocation  float64
	changes     []variation.Change
}

// New starts an authoring session against doc.
func New(doc *dom.Document, client *transport.Client, websiteID, pageURL string) *Session {
	return &Session{
		WebsiteID: websiteID,
		PageURL:   pageURL,
		doc:       doc,
		client:    client,
		engine:    &mutate.Engine{},
	}
}

// LoadExisting seeds the session from a saved variation and previews its
// changes in design mode.
func (s *Session) LoadExisting(ctx context.Context, id string) error {
	v := s.client.FetchVariationByID(ctx, id)
	if v == nil {
		return fmt.Errorf("variation %s could not be loaded", id)
	}
	s.variationID = v.ID
	s.name = v.Name
	s.allocation = v.TrafficAllocation
	s.changes = v.Changes
	s.engine.Apply(s.doc, s.changes, mutate.ModeDesign)
	return nil
}

func (s *Session) Name() string        { return s.name }
func (s *Session) SetName(name string) { s.name = name }

func (s *Session) Allocation() float64       { return s.allocation }
func (s *Session) SetAllocation(pct float64) { s.allocation = pct }

// Changes returns the accumulated edits.
func (s *Session) Changes() []variation.Change { return s.changes }

// EditText records a text/HTML replacement for el and previews it.
func (s *Session) EditText(el *dom.Element, content string, visible bool) variation.Change {
	c := variation.Change{
		Selector:        selector.Resolve(s.doc, el),
		Type:            variation.ChangeText,
		Content:         content,
		Visible:         visible,
		OriginalContent: el.HTML(),
	}
	return s.add(c)
}

// EditMedia records a source swap for an image, video, or iframe.
func (s *Session) EditMedia(el *dom.Element, typ variation.ChangeType, src string, visible bool) variation.Change {
	original, _ := el.Attr("src")
	if typ == variation.ChangeVideo {
		if source := el.Find("source"); source != nil {
			original, _ = source.Attr("src")
		}
	}
	c := variation.Change{
		Selector:        selector.Resolve(s.doc, el),
		Type:            typ,
		Src:             src,
		Visible:         visible,
		OriginalContent: original,
	}
	return s.add(c)
}

// ToggleSection records a visibility change for a whole section. Newly
// authored changes always use the unified visible-flag form; the legacy
// boolean schema is read-compatibility only.
func (s *Session) ToggleSection(el *dom.Element, visible bool) variation.Change {
	c := variation.Change{
		Selector: selector.Resolve(s.doc, el),
		Type:     variation.ChangeSection,
		Visible:  visible,
	}
	return s.add(c)
}

// Add records a fully specified change, for callers that already have a
// selector in hand instead of a live element.
func (s *Session) Add(c variation.Change) variation.Change {
	return s.add(c)
}

// RemoveChange drops the change at index and reverts its preview.
func (s *Session) RemoveChange(index int) error {
	if index < 0 || index >= len(s.changes) {
		return fmt.Errorf("no change at index %d", index)
	}
	removed := s.changes[index]
	s.changes = append(s.changes[:index], s.changes[index+1:]...)
	s.engine.Revert(s.doc, []variation.Change{removed})
	return nil
}

// Save persists the draft: a create for new sessions, an update when an
// existing variation was loaded. This is the one flow with a live operator,
// so failures surface instead of degrading silently.
func (s *Session) Save(ctx context.Context) (*variation.Variation, error) {
	if s.name == "" {
		return nil, errors.New("variation name required")
	}
	if len(s.changes) == 0 {
		return nil, errors.New("at least one element change required")
	}

	v := &variation.Variation{
		ID:                s.variationID,
		Name:              s.name,
		WebsiteID:         s.WebsiteID,
		URL:               s.PageURL,
		TrafficAllocation: s.allocation,
		Changes:           s.changes,
	}

	var (
		saved *variation.Variation
		err   error
	)
	if s.variationID != "" {
		saved, err = s.client.UpdateVariation(ctx, v)
	} else {
		saved, err = s.client.SaveVariation(ctx, v)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save variation: %w", err)
	}
	s.variationID = saved.ID
	return saved, nil
}

func (s *Session) add(c variation.Change) variation.Change {
	s.changes = append(s.changes, c)
	s.engine.Apply(s.doc, []variation.Change{c}, mutate.ModeDesign)
	return c
}
