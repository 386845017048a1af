package author_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ab-optimizer/ab-optimizer/internal/author"
	"github.com/ab-optimizer/ab-optimizer/internal/dom"
	"github.com/ab-optimizer/ab-optimizer/internal/server"
	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/transport"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

func setupAuthor(t *testing.T) (*store.SQLiteStore, *transport.Client) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	srv := httptest.NewServer(server.New(s, 0, "").Handler())
	t.Cleanup(srv.Close)

	return s, transport.New(srv.URL)
}

func landingPage() (*dom.Document, *dom.Element, *dom.Element) {
	d := dom.NewDocument()
	h1 := dom.NewElement("h1")
	h1.SetAttr("id", "headline")
	h1.SetText("Original")
	d.Body().Append(h1)

	promo := dom.NewElement("section")
	promo.AddClass("promo")
	d.Body().Append(promo)
	return d, h1, promo
}

func TestEditText_RecordsAndPreviews(t *testing.T) {
	_, client := setupAuthor(t)
	doc, h1, _ := landingPage()

	sess := author.New(doc, client, "site-1", "https://example.com/")
	c := sess.EditText(h1, "New headline", true)

	if c.Selector != "#headline" {
		t.Errorf("got selector %q", c.Selector)
	}
	if c.OriginalContent != "Original" {
		t.Errorf("got original %q", c.OriginalContent)
	}
	// The edit previews immediately in the authoring document.
	if h1.Text() != "New headline" {
		t.Errorf("got %q, want live preview", h1.Text())
	}
	if len(sess.Changes()) != 1 {
		t.Errorf("got %d changes", len(sess.Changes()))
	}
}

func TestToggleSection_UsesUnifiedForm(t *testing.T) {
	_, client := setupAuthor(t)
	doc, _, promo := landingPage()

	sess := author.New(doc, client, "site-1", "https://example.com/")
	c := sess.ToggleSection(promo, false)

	if c.Type != variation.ChangeSection || c.Visible || c.Legacy {
		t.Errorf("got %+v, want a unified (non-legacy) section hide", c)
	}
	// Design-mode preview keeps the section visible but dimmed.
	if promo.Style("opacity") != "0.3" || promo.Style("display") == "none" {
		t.Errorf("unexpected preview styling: opacity=%q display=%q",
			promo.Style("opacity"), promo.Style("display"))
	}
}

func TestRemoveChange_RevertsPreview(t *testing.T) {
	_, client := setupAuthor(t)
	doc, h1, _ := landingPage()

	sess := author.New(doc, client, "site-1", "https://example.com/")
	sess.EditText(h1, "Edited", true)

	if err := sess.RemoveChange(0); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(sess.Changes()) != 0 {
		t.Errorf("got %d changes, want 0", len(sess.Changes()))
	}
	if h1.Text() != "Original" {
		t.Errorf("got %q, want the preview reverted", h1.Text())
	}

	if err := sess.RemoveChange(5); err == nil {
		t.Error("out-of-range remove should error")
	}
}

func TestSave_CreatesThenUpdates(t *testing.T) {
	s, client := setupAuthor(t)
	doc, h1, _ := landingPage()
	ctx := context.Background()

	sess := author.New(doc, client, "site-1", "https://example.com/")
	sess.EditText(h1, "New headline", true)
	sess.SetName("Homepage test")
	sess.SetAllocation(25)

	saved, err := sess.Save(ctx)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected assigned id")
	}

	stored, err := s.GetVariation(ctx, saved.ID)
	if err != nil {
		t.Fatalf("saved variation not in store: %v", err)
	}
	if stored.Name != "Homepage test" || stored.TrafficAllocation != 25 {
		t.Errorf("got %q/%v", stored.Name, stored.TrafficAllocation)
	}

	// A second save on the same session is an update, not a new record.
	sess.SetName("Homepage test v2")
	again, err := sess.Save(ctx)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if again.ID != saved.ID {
		t.Errorf("got new id %q, want update of %q", again.ID, saved.ID)
	}
}

func TestSave_Validation(t *testing.T) {
	_, client := setupAuthor(t)
	doc, h1, _ := landingPage()
	ctx := context.Background()

	sess := author.New(doc, client, "site-1", "https://example.com/")
	if _, err := sess.Save(ctx); err == nil {
		t.Error("save without a name should fail")
	}

	sess.SetName("Named")
	if _, err := sess.Save(ctx); err == nil {
		t.Error("save without changes should fail")
	}

	sess.EditText(h1, "x", true)
	if _, err := sess.Save(ctx); err != nil {
		t.Errorf("valid save failed: %v", err)
	}
}

func TestLoadExisting(t *testing.T) {
	s, client := setupAuthor(t)
	ctx := context.Background()

	seeded := &variation.Variation{
		Name:              "Existing",
		WebsiteID:         "site-1",
		TrafficAllocation: 40,
		Changes: []variation.Change{
			{Selector: "#headline", Type: variation.ChangeText, Content: "From server", Visible: true},
		},
	}
	if err := s.SaveVariation(ctx, seeded); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	doc, h1, _ := landingPage()
	sess := author.New(doc, client, "site-1", "https://example.com/")
	if err := sess.LoadExisting(ctx, seeded.ID); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if sess.Name() != "Existing" || sess.Allocation() != 40 {
		t.Errorf("got %q/%v", sess.Name(), sess.Allocation())
	}
	if len(sess.Changes()) != 1 {
		t.Fatalf("got %d changes", len(sess.Changes()))
	}
	if h1.Text() != "From server" {
		t.Error("loaded changes should preview in the document")
	}
}

func TestLoadExisting_Missing(t *testing.T) {
	_, client := setupAuthor(t)
	doc, _, _ := landingPage()

	sess := author.New(doc, client, "site-1", "https://example.com/")
	if err := sess.LoadExisting(context.Background(), "missing"); err == nil {
		t.Error("loading an unknown variation should fail")
	}
}

func TestAdd_ManualChange(t *testing.T) {
	_, client := setupAuthor(t)
	doc, _, promo := landingPage()

	sess := author.New(doc, client, "site-1", "https://example.com/")
	sess.Add(variation.Change{
		Selector: "section.promo",
		Type:     variation.ChangeSection,
		Visible:  false,
	})

	if len(sess.Changes()) != 1 {
		t.Fatalf("got %d changes", len(sess.Changes()))
	}
	if promo.Style("opacity") != "0.3" {
		t.Error("manually added change should preview too")
	}
}
