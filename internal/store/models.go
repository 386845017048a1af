package store

import (
	"strings"
	"time"
)

// DefaultExperiment is the experiment id persisted when the allocator lands
// on the unmodified control page. Persisting the default decision keeps it
// as sticky as any variant decision.
const DefaultExperiment = "default"

// AssignmentTTL is how long a persisted bucket decision is honored.
const AssignmentTTL = 30 * 24 * time.Hour

// AssignmentRecord binds a visitor to a variation (or to the default page)
// for the TTL window. Stored as JSON under an assignment key.
type AssignmentRecord struct {
	ExperimentID     string    `json:"experimentId"`
	VariationID      string    `json:"variationId,omitempty"`
	AssignedAt       time.Time `json:"assignedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	IsFullAllocation bool      `json:"isFullAllocation"`
}

// Expired reports whether the record should be treated as absent.
func (r *AssignmentRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// AssignmentKey builds the composite key an assignment lives under. The
// signature covers the candidate set, so a configuration change strands the
// old key instead of honoring a stale decision.
func AssignmentKey(websiteID, pagePath, signature string) string {
	return KeyPrefix(websiteID, pagePath) + signature
}

// KeyPrefix is the (website, path) portion of an assignment key. The
// full-allocation sweep clears everything under one prefix.
func KeyPrefix(websiteID, pagePath string) string {
	if pagePath == "" {
		pagePath = "/"
	}
	return NormalizeWebsiteID(websiteID) + "|" + pagePath + "|"
}

// NormalizeWebsiteID canonicalizes a website identifier for keying.
func NormalizeWebsiteID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// TrackedEvent is one impression or conversion accepted by the dev server.
type TrackedEvent struct {
	ID           int64     `json:"id"`
	WebsiteID    string    `json:"websiteId,omitempty"`
	ExperimentID string    `json:"experimentId,omitempty"`
	VariationID  string    `json:"variationId,omitempty"`
	EventType    string    `json:"eventType"`
	URL          string    `json:"url,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	UTM          UTMFields `json:"utm"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UTMFields carries the campaign attribution parameters forwarded with
// every tracked event.
type UTMFields struct {
	Source   string `json:"utmSource,omitempty"`
	Medium   string `json:"utmMedium,omitempty"`
	Campaign string `json:"utmCampaign,omitempty"`
	Term     string `json:"utmTerm,omitempty"`
	Content  string `json:"utmContent,omitempty"`
}
