package store

import (
	"context"

	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

// AssignmentStore is the persistence the allocator and session depend on.
type AssignmentStore interface {
	// GetAssignment returns the record under key, or nil when the key is
	// absent, expired, or unreadable.
	GetAssignment(ctx context.Context, key string) (*AssignmentRecord, error)
	PutAssignment(ctx context.Context, key string, rec AssignmentRecord) error

	// ClearPrefix removes every assignment under prefix except keepKey.
	// Used to enforce the 100%-allocation invariant against leftovers.
	ClearPrefix(ctx context.Context, prefix, keepKey string) error
	ClearAll(ctx context.Context) error
}

// ResponseCache is the transport's last-resort fallback: the most recent
// good payload for each fetch, served when every live strategy fails.
type ResponseCache interface {
	GetCachedPayload(ctx context.Context, key string) ([]byte, error)
	PutCachedPayload(ctx context.Context, key string, payload []byte) error
}

// VariationStore backs the dev API server.
type VariationStore interface {
	SaveVariation(ctx context.Context, v *variation.Variation) error
	UpdateVariation(ctx context.Context, v *variation.Variation) error
	GetVariation(ctx context.Context, id string) (*variation.Variation, error)
	ListVariations(ctx context.Context, websiteID string) ([]variation.Variation, error)
	RecordEvent(ctx context.Context, ev *TrackedEvent) error
	ListEvents(ctx context.Context, websiteID string) ([]TrackedEvent, error)
}
