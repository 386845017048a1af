package store_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

func TestAssignmentKey(t *testing.T) {
	got := store.AssignmentKey("Site-1", "/pricing", "abcd1234")
	if got != "site-1|/pricing|abcd1234" {
		t.Errorf("got %q", got)
	}
}

func TestKeyPrefix_DefaultsPath(t *testing.T) {
	got := store.KeyPrefix("site-1", "")
	if got != "site-1|/|" {
		t.Errorf("got %q, want root path default", got)
	}
}

func TestNormalizeWebsiteID(t *testing.T) {
	if got := store.NormalizeWebsiteID("  My-Site "); got != "my-site" {
		t.Errorf("got %q, want my-site", got)
	}
}

func TestAssignmentKey_PrefixRelation(t *testing.T) {
	key := store.AssignmentKey("site-1", "/p", "sig")
	if !strings.HasPrefix(key, store.KeyPrefix("site-1", "/p")) {
		t.Error("key should extend its prefix")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	rec := store.AssignmentRecord{ExpiresAt: now.Add(time.Hour)}
	if rec.Expired(now) {
		t.Error("future expiry should not be expired")
	}
	if !rec.Expired(now.Add(time.Hour)) {
		t.Error("expiry instant itself counts as expired")
	}
	if !rec.Expired(now.Add(2 * time.Hour)) {
		t.Error("past expiry should be expired")
	}
}
