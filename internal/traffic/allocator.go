// Package traffic implements the bucketing decision: which variation, if
// any, a visitor is shown. Decisions are deterministic where the
// configuration demands it (forced ids, single 100% allocations), sticky
// where a prior decision exists, and weighted-random otherwise.
package traffic

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

// Allocator selects one variation from a candidate set, consulting and
// updating the assignment store so repeat visits stay in the same bucket.
type Allocator struct {
	Store  store.AssignmentStore
	Logger *slog.Logger

	// Rand returns a uniform value in [0, 1). Defaults to math/rand;
	// injectable for tests.
	Rand func() float64

	// Now defaults to time.Now; injectable for TTL tests.
	Now func() time.Time
}

// New returns an allocator backed by s with default randomness.
func New(s store.AssignmentStore) *Allocator {
	return &Allocator{Store: s}
}

// Select picks a variation (nil means default/control), in precedence
// order: a forced id present among candidates; the single candidate at
// 100% allocation; a valid stored assignment; a weighted random draw.
// Every non-forced decision is persisted before it is returned.
func (a *Allocator) Select(ctx context.Context, websiteID, pagePath string, candidates []variation.Variation, forcedID string) (*variation.Variation, error) {
	// Forced selection bypasses persistence and randomization entirely.
	// Used by preview/force-view links.
	if forcedID != "" {
		if v := variation.FindByID(candidates, forcedID); v != nil {
			return v, nil
		}
	}

	sig := variation.Signature(candidates)
	key := store.AssignmentKey(websiteID, pagePath, sig)
	prefix := store.KeyPrefix(websiteID, pagePath)

	// A lone 100% candidate is shown to all traffic, deterministically.
	// Assignments left over from before the 100% rule was set could defeat
	// that, so everything else under the prefix is swept.
	if full := variation.FullAllocation(candidates); full != nil {
		rec := a.newRecord(experimentOf(full), full.ID, true)
		if err := a.Store.PutAssignment(ctx, key, rec); err != nil {
			return nil, fmt.Errorf("failed to persist full-allocation assignment: %w", err)
		}
		if err := a.Store.ClearPrefix(ctx, prefix, key); err != nil {
			return nil, fmt.Errorf("failed to sweep stale assignments: %w", err)
		}
		return full, nil
	}

	stored, err := a.Store.GetAssignment(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read assignment: %w", err)
	}
	if stored != nil {
		if stored.ExperimentID == store.DefaultExperiment && stored.VariationID == "" {
			return nil, nil
		}
		if v := variation.FindByID(candidates, stored.VariationID); v != nil {
			return v, nil
		}
		// The assigned candidate is gone; fall through to a fresh draw.
	}

	chosen := a.draw(candidates)

	var rec store.AssignmentRecord
	if chosen == nil {
		rec = a.newRecord(store.DefaultExperiment, "", false)
	} else {
		rec = a.newRecord(experimentOf(chosen), chosen.ID, false)
	}
	if err := a.Store.PutAssignment(ctx, key, rec); err != nil {
		return nil, fmt.Errorf("failed to persist assignment: %w", err)
	}
	return chosen, nil
}

// draw performs the weighted random selection. The unallocated remainder
// of the 0-100 range maps to default/control; the allocated remainder is
// remapped to a 0-100 sub-range walked against normalized shares.
func (a *Allocator) draw(candidates []variation.Variation) *variation.Variation {
	var total float64
	for _, c := range candidates {
		if c.TrafficAllocation > 0 {
			total += c.TrafficAllocation
		}
	}
	if total == 0 {
		return nil
	}

	r := a.rand() * 100
	if r <= 100-total {
		return nil
	}

	rPrime := (r - (100 - total)) / total * 100
	var cum float64
	for i := range candidates {
		alloc := candidates[i].TrafficAllocation
		if alloc <= 0 {
			continue
		}
		cum += alloc / total * 100
		if cum >= rPrime {
			return &candidates[i]
		}
	}

	// Unreachable under correct math; floating-point edge only.
	for i := range candidates {
		if candidates[i].TrafficAllocation > 0 {
			a.logger().Warn("weighted draw exhausted without selection, using first positive candidate",
				"r", r, "total", total, "fallback", candidates[i].ID)
			return &candidates[i]
		}
	}
	return nil
}

// experimentOf resolves the experiment id recorded for a chosen variation:
// the owning experiment, or the variation's own id for standalone
// variations from the legacy list endpoints.
func experimentOf(v *variation.Variation) string {
	if v.ExperimentID != "" {
		return v.ExperimentID
	}
	return v.ID
}

func (a *Allocator) newRecord(experimentID, variationID string, full bool) store.AssignmentRecord {
	now := a.now()
	if experimentID == "" {
		experimentID = store.DefaultExperiment
	}
	return store.AssignmentRecord{
		ExperimentID:     experimentID,
		VariationID:      variationID,
		AssignedAt:       now,
		ExpiresAt:        now.Add(store.AssignmentTTL),
		IsFullAllocation: full,
	}
}

func (a *Allocator) rand() float64 {
	if a.Rand != nil {
		return a.Rand()
	}
	return rand.Float64()
}

func (a *Allocator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *Allocator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
