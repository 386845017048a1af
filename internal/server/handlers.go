package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleListVariations(w http.ResponseWriter, r *http.Request) {
	websiteID := mux.Vars(r)["websiteID"]

	variations, err := s.store.ListVariations(r.Context(), websiteID)
	if err != nil {
		http.Error(w, "Failed to list variations", http.StatusInternalServerError)
		return
	}
	if variations == nil {
		variations = []variation.Variation{}
	}
	writeJSON(w, variations)
}

func (s *Server) handleListVariationsJSONP(w http.ResponseWriter, r *http.Request) {
	websiteID := mux.Vars(r)["websiteID"]

	variations, err := s.store.ListVariations(r.Context(), websiteID)
	if err != nil {
		http.Error(w, "Failed to list variations", http.StatusInternalServerError)
		return
	}
	if variations == nil {
		variations = []variation.Variation{}
	}
	writeJSONP(w, r, variations)
}

// handleActiveExperiments groups the website's variations into a single
// experiment envelope, the newer wire shape the client normalizes.
func (s *Server) handleActiveExperiments(w http.ResponseWriter, r *http.Request) {
	exps, ok := s.activeExperiments(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{"experiments": exps})
}

func (s *Server) handleActiveExperimentsJSONP(w http.ResponseWriter, r *http.Request) {
	exps, ok := s.activeExperiments(w, r)
	if !ok {
		return
	}
	writeJSONP(w, r, map[string]any{"experiments": exps})
}

func (s *Server) activeExperiments(w http.ResponseWriter, r *http.Request) ([]variation.Experiment, bool) {
	websiteID := mux.Vars(r)["websiteID"]

	variations, err := s.store.ListVariations(r.Context(), websiteID)
	if err != nil {
		http.Error(w, "Failed to list variations", http.StatusInternalServerError)
		return nil, false
	}
	if len(variations) == 0 {
		return []variation.Experiment{}, true
	}

	exp := variation.Experiment{
		ID:              "site-" + store.NormalizeWebsiteID(websiteID),
		Name:            "Active variations",
		Variations:      variations,
		TrafficSettings: map[string]float64{},
	}
	for _, v := range variations {
		exp.TrafficSettings[v.ID] = v.TrafficAllocation
	}
	return []variation.Experiment{exp}, true
}

func (s *Server) handleGetVariation(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetVariation(r.Context(), mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		http.Error(w, "Variation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load variation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleGetVariationJSONP(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetVariation(r.Context(), mux.Vars(r)["id"])
	if err == store.ErrNotFound {
		http.Error(w, "Variation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load variation", http.StatusInternalServerError)
		return
	}
	writeJSONP(w, r, v)
}

func (s *Server) handleCreateVariation(w http.ResponseWriter, r *http.Request) {
	var v variation.Variation
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if v.Name == "" || v.WebsiteID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	v.ID = "" // server-assigned
	if err := s.store.SaveVariation(r.Context(), &v); err != nil {
		http.Error(w, "Failed to save variation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSONBody(w, v)
}

func (s *Server) handleUpdateVariation(w http.ResponseWriter, r *http.Request) {
	var v variation.Variation
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	v.ID = mux.Vars(r)["id"]

	err := s.store.UpdateVariation(r.Context(), &v)
	if err == store.ErrNotFound {
		http.Error(w, "Variation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to update variation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, v)
}

type trackRequest struct {
	ExperimentID string `json:"experimentId"`
	VariationID  string `json:"variationId"`
	EventType    string `json:"eventType"`
	URL          string `json:"url"`
	Referrer     string `json:"referrer"`
	UserAgent    string `json:"userAgent"`
	store.UTMFields
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	s.recordEvent(w, r, req)
}

// handleTrackPing accepts the reporter's GET fallback.
func (s *Server) handleTrackPing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.recordEvent(w, r, trackRequest{
		ExperimentID: q.Get("experimentId"),
		VariationID:  q.Get("variationId"),
		EventType:    q.Get("eventType"),
		URL:          q.Get("url"),
	})
}

func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request, req trackRequest) {
	if req.EventType != "impression" && req.EventType != "conversion" {
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" && req.VariationID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}

	ev := store.TrackedEvent{
		WebsiteID:    r.URL.Query().Get("websiteId"),
		ExperimentID: req.ExperimentID,
		VariationID:  req.VariationID,
		EventType:    req.EventType,
		URL:          req.URL,
		Referrer:     req.Referrer,
		UserAgent:    ua,
		UTM:          req.UTMFields,
	}
	if err := s.store.RecordEvent(r.Context(), &ev); err != nil {
		http.Error(w, "Failed to record event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var callbackNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSONBody(w, v)
}

func writeJSONBody(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONP wraps the payload in the requested callback. Callback names
// are validated so the endpoint cannot be used to reflect script.
func writeJSONP(w http.ResponseWriter, r *http.Request, v any) {
	callback := r.URL.Query().Get("callback")
	if !callbackNamePattern.MatchString(callback) {
		http.Error(w, "Invalid callback", http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	fmt.Fprintf(w, "%s(%s);", callback, payload)
}
