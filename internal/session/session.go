// Package session ties the pipeline together: one Session per page load,
// owning the transport, allocator, mutation engine, and reporter, and
// guaranteeing the ordering the impression event depends on: the bucket
// decision is persisted before mutation, and mutation finishes before the
// impression fires.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ab-optimizer/ab-optimizer/internal/config"
	"github.com/ab-optimizer/ab-optimizer/internal/dom"
	"github.com/ab-optimizer/ab-optimizer/internal/mutate"
	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/traffic"
	"github.com/ab-optimizer/ab-optimizer/internal/track"
	"github.com/ab-optimizer/ab-optimizer/internal/transport"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

// Session is the per-page-load context object. It is built once, run once
// (further Run calls are no-ops), and discarded on navigation.
type Session struct {
	Config    config.Config
	Page      config.PageURL
	Store     *store.SQLiteStore
	Transport *transport.Client
	Allocator *traffic.Allocator
	Engine    *mutate.Engine
	Reporter  *track.Reporter
	Logger    *slog.Logger

	applied      atomic.Bool
	experimentID string
	variationID  string
}

// Result describes what a Run did.
type Result struct {
	// Variation is nil when the default/control page was shown.
	Variation *variation.Variation
	Report    mutate.Report

	// AlreadyApplied is set when a duplicate invocation was ignored.
	AlreadyApplied bool
	DesignMode     bool
}

// New wires a session from config and an opened store.
func New(cfg config.Config, pageURL string, st *store.SQLiteStore) *Session {
	page := config.ParsePageURL(pageURL)

	tc := transport.New(cfg.APIURL)
	tc.Token = cfg.Token
	tc.Cache = st

	return &Session{
		Config:    cfg,
		Page:      page,
		Store:     st,
		Transport: tc,
		Allocator: traffic.New(st),
		Engine:    &mutate.Engine{},
		Reporter:  track.New(cfg.APIURL),
	}
}

// Run executes the load -> allocate -> apply -> report pipeline against
// doc. It never returns an error to the host: a failure at any stage
// degrades to "default content, no event". Duplicate invocations (double
// script inclusion, re-entrant calls) are no-ops; first writer wins.
func (s *Session) Run(ctx context.Context, doc *dom.Document) Result {
	if !s.applied.CompareAndSwap(false, true) {
		return Result{AlreadyApplied: true}
	}

	if s.Page.ResetAssignments {
		if err := s.Store.ClearAll(ctx); err != nil {
			s.logger().Warn("failed to clear assignments", "error", err)
		}
	}

	if s.Page.DesignMode {
		return s.runDesign(ctx, doc)
	}

	candidates := s.loadCandidates(ctx)
	forced := s.Page.ForcedVariationID

	var chosen *variation.Variation
	if forced != "" && variation.FindByID(candidates, forced) == nil {
		// Preview links may point at a variation outside the active set
		// (not yet published); fetch it directly, bypassing allocation.
		chosen = s.Transport.FetchVariationByID(ctx, forced)
	}
	if chosen == nil {
		var err error
		chosen, err = s.Allocator.Select(ctx, s.Config.WebsiteID, s.Page.Path, candidates, forced)
		if err != nil {
			s.logger().Warn("allocation failed, showing default content", "error", err)
			return Result{}
		}
	}
	if chosen == nil {
		return Result{}
	}

	s.experimentID = experimentOf(chosen)
	s.variationID = chosen.ID

	rep := s.Engine.Apply(doc, chosen.Changes, mutate.ModeLive)

	// Impression means "visitor was shown variant X", so it fires only
	// after the mutations are in place.
	s.Reporter.ReportImpression(ctx, s.experimentID, s.variationID, s.Page)

	return Result{Variation: chosen, Report: rep}
}

// runDesign applies the variation under edit, if any, with design-mode
// visibility semantics and no tracking.
func (s *Session) runDesign(ctx context.Context, doc *dom.Document) Result {
	res := Result{DesignMode: true}

	id := s.Page.EditVariationID
	if id == "" {
		return res
	}
	v := s.Transport.FetchVariationByID(ctx, id)
	if v == nil {
		s.logger().Warn("variation under edit could not be loaded", "id", id)
		return res
	}

	res.Variation = v
	res.Report = s.Engine.Apply(doc, v.Changes, mutate.ModeDesign)
	return res
}

// Convert reports a conversion for the variation this session applied.
// A no-op when nothing was applied: conversions on the control page carry
// no variation to credit.
func (s *Session) Convert(ctx context.Context) {
	if !s.applied.Load() || s.variationID == "" {
		return
	}
	s.Reporter.ReportConversion(ctx, s.experimentID, s.variationID, s.Page)
}

// loadCandidates fetches the active experiments and flattens them into one
// candidate set; when no experiments exist it falls back to the legacy
// standalone-variation list, mirroring the fallback order of the fetch
// chain itself.
func (s *Session) loadCandidates(ctx context.Context) []variation.Variation {
	if experiments := s.Transport.FetchActiveExperiments(ctx, s.Config.WebsiteID); len(experiments) > 0 {
		return variation.Flatten(experiments)
	}
	return s.Transport.FetchVariations(ctx, s.Config.WebsiteID)
}

func experimentOf(v *variation.Variation) string {
	if v.ExperimentID != "" {
		return v.ExperimentID
	}
	return v.ID
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
