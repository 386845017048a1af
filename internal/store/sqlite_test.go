package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

func setupTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(variationID string, ttl time.Duration) store.AssignmentRecord {
	now := time.Now()
	return store.AssignmentRecord{
		ExperimentID: "exp-1",
		VariationID:  variationID,
		AssignedAt:   now,
		ExpiresAt:    now.Add(ttl),
	}
}

func TestAssignment_RoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	key := store.AssignmentKey("site-1", "/pricing", "abc123")
	if err := s.PutAssignment(ctx, key, record("v1", store.AssignmentTTL)); err != nil {
		t.Fatalf("failed to put assignment: %v", err)
	}

	rec, err := s.GetAssignment(ctx, key)
	if err != nil {
		t.Fatalf("failed to get assignment: %v", err)
	}
	if rec == nil || rec.VariationID != "v1" {
		t.Fatalf("got %+v, want variation v1", rec)
	}
}

func TestAssignment_Miss(t *testing.T) {
	s := setupTestDB(t)

	rec, err := s.GetAssignment(context.Background(), "no|such|key")
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if rec != nil {
		t.Errorf("got %+v, want nil", rec)
	}
}

func TestAssignment_ExpiredTreatedAsAbsent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	key := store.AssignmentKey("site-1", "/", "sig")
	if err := s.PutAssignment(ctx, key, record("v1", -time.Hour)); err != nil {
		t.Fatalf("failed to put assignment: %v", err)
	}

	rec, err := s.GetAssignment(ctx, key)
	if err != nil {
		t.Fatalf("expired read should not error: %v", err)
	}
	if rec != nil {
		t.Errorf("got %+v, want nil for expired record", rec)
	}
}

func TestAssignment_Upsert(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	key := store.AssignmentKey("site-1", "/", "sig")
	_ = s.PutAssignment(ctx, key, record("v1", store.AssignmentTTL))
	if err := s.PutAssignment(ctx, key, record("v2", store.AssignmentTTL)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	rec, _ := s.GetAssignment(ctx, key)
	if rec == nil || rec.VariationID != "v2" {
		t.Fatalf("got %+v, want overwritten record v2", rec)
	}
}

func TestClearPrefix_KeepsDesignatedKey(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	prefix := store.KeyPrefix("site-1", "/")
	keep := prefix + "current"
	stale := prefix + "stale"
	other := store.KeyPrefix("site-2", "/") + "sig"

	_ = s.PutAssignment(ctx, keep, record("v1", store.AssignmentTTL))
	_ = s.PutAssignment(ctx, stale, record("v2", store.AssignmentTTL))
	_ = s.PutAssignment(ctx, other, record("v3", store.AssignmentTTL))

	if err := s.ClearPrefix(ctx, prefix, keep); err != nil {
		t.Fatalf("failed to clear prefix: %v", err)
	}

	if rec, _ := s.GetAssignment(ctx, keep); rec == nil {
		t.Error("kept key should survive the sweep")
	}
	if rec, _ := s.GetAssignment(ctx, stale); rec != nil {
		t.Error("stale key under the prefix should be gone")
	}
	if rec, _ := s.GetAssignment(ctx, other); rec == nil {
		t.Error("other website's assignment should be untouched")
	}
}

func TestClearAll(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	key := store.AssignmentKey("site-1", "/", "sig")
	_ = s.PutAssignment(ctx, key, record("v1", store.AssignmentTTL))

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if rec, _ := s.GetAssignment(ctx, key); rec != nil {
		t.Errorf("got %+v, want empty store", rec)
	}
}

func TestListAssignments_SkipsExpired(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_ = s.PutAssignment(ctx, "a|/|live", record("v1", store.AssignmentTTL))
	_ = s.PutAssignment(ctx, "a|/|dead", record("v2", -time.Hour))

	got, err := s.ListAssignments(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d assignments, want 1", len(got))
	}
	if _, ok := got["a|/|live"]; !ok {
		t.Error("live assignment missing from listing")
	}
}

func TestCachedPayload(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.GetCachedPayload(ctx, "experiments:site-1"); err != store.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound for cold cache", err)
	}

	payload := []byte(`{"experiments":[]}`)
	if err := s.PutCachedPayload(ctx, "experiments:site-1", payload); err != nil {
		t.Fatalf("failed to cache: %v", err)
	}

	got, err := s.GetCachedPayload(ctx, "experiments:site-1")
	if err != nil {
		t.Fatalf("failed to read cache: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %s, want %s", got, payload)
	}

	// Overwrite replaces the payload.
	_ = s.PutCachedPayload(ctx, "experiments:site-1", []byte(`[]`))
	got, _ = s.GetCachedPayload(ctx, "experiments:site-1")
	if string(got) != "[]" {
		t.Errorf("got %s, want refreshed payload", got)
	}
}

func TestSaveVariation_AssignsID(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	v := &variation.Variation{
		Name:      "Variant A",
		WebsiteID: "Site-1",
		Changes:   []variation.Change{{Selector: "h1", Type: variation.ChangeText, Content: "Hi", Visible: true}},
	}
	if err := s.SaveVariation(ctx, v); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if v.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.GetVariation(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.WebsiteID != "site-1" {
		t.Errorf("got website %q, want normalized site-1", got.WebsiteID)
	}
	if len(got.Changes) != 1 || got.Changes[0].Content != "Hi" {
		t.Errorf("changes did not round-trip: %+v", got.Changes)
	}
}

func TestUpdateVariation(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	v := &variation.Variation{Name: "A", WebsiteID: "site-1", Changes: []variation.Change{}}
	if err := s.SaveVariation(ctx, v); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	v.Name = "A2"
	v.TrafficAllocation = 40
	if err := s.UpdateVariation(ctx, v); err != nil {
		t.Fatalf("failed to update: %v", err)
	}

	got, _ := s.GetVariation(ctx, v.ID)
	if got.Name != "A2" || got.TrafficAllocation != 40 {
		t.Errorf("got %q/%v, want A2/40", got.Name, got.TrafficAllocation)
	}
}

func TestUpdateVariation_NotFound(t *testing.T) {
	s := setupTestDB(t)

	err := s.UpdateVariation(context.Background(), &variation.Variation{ID: "missing", Changes: []variation.Change{}})
	if err != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestGetVariation_NotFound(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.GetVariation(context.Background(), "missing")
	if err != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestListVariations_FiltersByWebsite(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_ = s.SaveVariation(ctx, &variation.Variation{Name: "A", WebsiteID: "site-1", Changes: []variation.Change{}})
	_ = s.SaveVariation(ctx, &variation.Variation{Name: "B", WebsiteID: "site-1", Changes: []variation.Change{}})
	_ = s.SaveVariation(ctx, &variation.Variation{Name: "C", WebsiteID: "site-2", Changes: []variation.Change{}})

	got, err := s.ListVariations(ctx, "SITE-1")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d variations, want 2 (lookup normalized)", len(got))
	}
}

func TestRecordAndListEvents(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	ev := &store.TrackedEvent{
		WebsiteID:    "site-1",
		ExperimentID: "exp-1",
		VariationID:  "v1",
		EventType:    "impression",
		URL:          "https://example.com/",
		UTM:          store.UTMFields{Source: "newsletter"},
	}
	if err := s.RecordEvent(ctx, ev); err != nil {
		t.Fatalf("failed to record: %v", err)
	}
	if ev.ID == 0 {
		t.Error("expected assigned event id")
	}

	_ = s.RecordEvent(ctx, &store.TrackedEvent{WebsiteID: "site-2", EventType: "conversion"})

	events, err := s.ListEvents(ctx, "site-1")
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].UTM.Source != "newsletter" {
		t.Errorf("got UTM source %q, want newsletter", events[0].UTM.Source)
	}
}
