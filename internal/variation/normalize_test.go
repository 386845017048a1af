package variation_test

import (
	"testing"

	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

func TestParseVariationList_BareArray(t *testing.T) {
	payload := []byte(`[
		{"id": "v1", "name": "Variant A", "trafficAllocation": 30},
		{"id": "v2", "name": "Variant B", "trafficAllocation": 70}
	]`)

	got := variation.ParseVariationList(payload)
	if len(got) != 2 {
		t.Fatalf("got %d variations, want 2", len(got))
	}
	if got[0].ID != "v1" || got[0].TrafficAllocation != 30 {
		t.Errorf("got %s/%v, want v1/30", got[0].ID, got[0].TrafficAllocation)
	}
}

func TestParseVariationList_Envelope(t *testing.T) {
	payload := []byte(`{"variations": [{"id": "v1", "name": "A"}]}`)

	got := variation.ParseVariationList(payload)
	if len(got) != 1 || got[0].ID != "v1" {
		t.Fatalf("got %v, want one variation v1", got)
	}
}

func TestParseVariationList_SingleObject(t *testing.T) {
	payload := []byte(`{"id": "v1", "name": "Solo"}`)

	got := variation.ParseVariationList(payload)
	if len(got) != 1 || got[0].Name != "Solo" {
		t.Fatalf("got %v, want the single object wrapped in a list", got)
	}
}

func TestParseVariationList_Garbage(t *testing.T) {
	if got := variation.ParseVariationList([]byte(`"not a list"`)); got != nil {
		t.Errorf("got %v, want nil for a non-list payload", got)
	}
}

func TestParseVariation_ElementData(t *testing.T) {
	payload := []byte(`{"variations": [{
		"id": "v1",
		"elementData": [
			{"selector": "h1.hero", "type": "text", "newContent": "New headline"},
			{"selector": "img.logo", "type": "image", "newContent": "https://cdn/x.png"},
			{"selector": "div.banner", "action": "hide", "newContent": ""},
			{"type": "text", "newContent": "no selector, dropped"}
		]
	}]}`)

	got := variation.ParseVariationList(payload)
	if len(got) != 1 {
		t.Fatalf("got %d variations, want 1", len(got))
	}
	changes := got[0].Changes
	if len(changes) != 3 {
		t.Fatalf("got %d changes, want 3 (selector-less entry dropped)", len(changes))
	}

	if changes[0].Type != variation.ChangeText || changes[0].Content != "New headline" || !changes[0].Visible {
		t.Errorf("unexpected text change: %+v", changes[0])
	}
	if changes[1].Type != variation.ChangeImage || changes[1].Src != "https://cdn/x.png" {
		t.Errorf("unexpected image change: %+v", changes[1])
	}
	if changes[2].Visible {
		t.Errorf("hide action should yield Visible=false: %+v", changes[2])
	}
}

func TestParseVariation_CanonicalChanges(t *testing.T) {
	payload := []byte(`[{
		"id": "v1",
		"changes": [
			{"selector": "h1", "type": "text", "content": "Hi", "visible": true},
			{"selector": "section.old", "type": "section", "visible": false, "legacy": true}
		]
	}]`)

	got := variation.ParseVariationList(payload)
	if len(got) != 1 || len(got[0].Changes) != 2 {
		t.Fatalf("got %+v, want one variation with two changes", got)
	}
	if c := got[0].Changes[0]; c.Type != variation.ChangeText || c.Content != "Hi" || !c.Visible {
		t.Errorf("round-tripped text change: %+v", c)
	}
	if c := got[0].Changes[1]; !c.Legacy || c.Visible {
		t.Errorf("legacy flag should round-trip: %+v", c)
	}
}

func TestParseVariation_TextsMap(t *testing.T) {
	payload := []byte(`{"variations": [{
		"id": "v1",
		"content": {
			"texts": {
				"h1": "Plain headline",
				"p.sub": {"content": "Object form", "visible": false},
				"img.hero": {"type": "image", "src": "https://cdn/a.jpg", "alt": "Hero"}
			}
		}
	}]}`)

	got := variation.ParseVariationList(payload)
	if len(got) != 1 {
		t.Fatalf("got %d variations, want 1", len(got))
	}

	bySel := map[string]variation.Change{}
	for _, c := range got[0].Changes {
		bySel[c.Selector] = c
	}

	if c := bySel["h1"]; c.Type != variation.ChangeText || c.Content != "Plain headline" || !c.Visible {
		t.Errorf("string entry: %+v", c)
	}
	if c := bySel["p.sub"]; c.Content != "Object form" || c.Visible {
		t.Errorf("object entry: %+v", c)
	}
	if c := bySel["img.hero"]; c.Type != variation.ChangeImage || c.Src != "https://cdn/a.jpg" || c.Alt != "Hero" {
		t.Errorf("media entry: %+v", c)
	}
}

func TestParseVariation_SectionsMap(t *testing.T) {
	payload := []byte(`{"variations": [{
		"id": "v1",
		"content": {
			"sections": {
				"section.promo": {"visible": false},
				"section.old": false,
				"section.kept": true
			}
		}
	}]}`)

	got := variation.ParseVariationList(payload)
	if len(got) != 1 {
		t.Fatalf("got %d variations, want 1", len(got))
	}

	bySel := map[string]variation.Change{}
	for _, c := range got[0].Changes {
		bySel[c.Selector] = c
	}

	if c := bySel["section.promo"]; c.Type != variation.ChangeSection || c.Visible || c.Legacy {
		t.Errorf("unified entry should not be legacy: %+v", c)
	}
	if c := bySel["section.old"]; !c.Legacy || c.Visible {
		t.Errorf("bare boolean should be legacy: %+v", c)
	}
	if c := bySel["section.kept"]; !c.Legacy || !c.Visible {
		t.Errorf("bare true should be legacy and visible: %+v", c)
	}
}

func TestParseExperimentList_TrafficSettings(t *testing.T) {
	payload := []byte(`{"experiments": [{
		"id": "exp-1",
		"name": "Hero test",
		"variations": [{"id": "v1"}, {"id": "v2"}],
		"trafficSettings": {"v1": 25, "v2": 25}
	}]}`)

	got := variation.ParseExperimentList(payload)
	if len(got) != 1 {
		t.Fatalf("got %d experiments, want 1", len(got))
	}
	if got[0].TrafficSettings["v1"] != 25 {
		t.Errorf("got %v, want v1=25", got[0].TrafficSettings)
	}
}

func TestParseExperimentList_PercentageListSkipsControl(t *testing.T) {
	payload := []byte(`{"experiments": [{
		"id": "exp-1",
		"variations": [{"id": "v1"}],
		"trafficAllocation": {
			"variations": [
				{"id": "control", "percentage": 70, "isControl": true},
				{"id": "v1", "percentage": 30}
			]
		}
	}]}`)

	got := variation.ParseExperimentList(payload)
	if len(got) != 1 {
		t.Fatalf("got %d experiments, want 1", len(got))
	}
	ts := got[0].TrafficSettings
	if ts["v1"] != 30 {
		t.Errorf("got %v, want v1=30", ts)
	}
	if _, ok := ts["control"]; ok {
		t.Error("control entry should not appear in traffic settings")
	}
}

func TestParseVariation_Timestamps(t *testing.T) {
	unix := variation.ParseVariationList([]byte(`[{"id": "v1", "createdAt": 1700000000}]`))
	if unix[0].CreatedAt.Unix() != 1700000000 {
		t.Errorf("got %v, want unix 1700000000", unix[0].CreatedAt)
	}

	rfc := variation.ParseVariationList([]byte(`[{"id": "v1", "createdAt": "2024-03-01T12:00:00Z"}]`))
	if rfc[0].CreatedAt.IsZero() {
		t.Error("RFC3339 timestamp should parse")
	}

	bad := variation.ParseVariationList([]byte(`[{"id": "v1", "createdAt": "yesterday"}]`))
	if !bad[0].CreatedAt.IsZero() {
		t.Errorf("got %v, want zero time for unparseable timestamp", bad[0].CreatedAt)
	}
}
