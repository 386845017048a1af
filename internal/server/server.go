// Package server is a local stand-in for the remote A/B service: the same
// endpoint surface the transport's strategy chain walks, backed by the
// embedded store. It exists for development and for exercising the client
// end to end without the hosted service.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

// Server serves the dev API.
type Server struct {
	store     *store.SQLiteStore
	port      int
	token     string
	router    *mux.Router
	startTime time.Time
}

// New builds a server. An empty token leaves the authenticated surface
// open, which is the usual dev setup.
func New(s *store.SQLiteStore, port int, token string) *Server {
	srv := &Server{
		store:     s,
		port:      port,
		token:     token,
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Use(corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Read surface, in the same shape the transport's chain probes it:
	// authenticated endpoint, public twin, JSONP twin.
	s.router.Handle("/api/websites/{websiteID}/variations",
		s.auth(http.HandlerFunc(s.handleListVariations))).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/websites/{websiteID}/variations/public", s.handleListVariations).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/websites/{websiteID}/variations/jsonp", s.handleListVariationsJSONP).Methods(http.MethodGet)

	s.router.Handle("/api/websites/{websiteID}/active-experiments",
		s.auth(http.HandlerFunc(s.handleActiveExperiments))).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/websites/{websiteID}/active-experiments/public", s.handleActiveExperiments).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/websites/{websiteID}/active-experiments/jsonp", s.handleActiveExperimentsJSONP).Methods(http.MethodGet)

	s.router.HandleFunc("/api/variations/{id}", s.handleGetVariation).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/variations/{id}/public", s.handleGetVariation).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/variations/{id}/jsonp", s.handleGetVariationJSONP).Methods(http.MethodGet)

	// Authoring writes.
	s.router.Handle("/api/variations",
		s.auth(http.HandlerFunc(s.handleCreateVariation))).Methods(http.MethodPost, http.MethodOptions)
	s.router.Handle("/api/variations/{id}",
		s.auth(http.HandlerFunc(s.handleUpdateVariation))).Methods(http.MethodPut, http.MethodPatch)

	// Event intake: beacon POST plus the query-parameter ping fallback.
	s.router.HandleFunc("/api/track", s.handleTrack).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/api/track/ping", s.handleTrackPing).Methods(http.MethodGet)
}

// Start blocks serving the API.
func (s *Server) Start() error {
	fmt.Printf("ab-optimizer dev API running on http://localhost:%d\n", s.port)
	fmt.Println("Press Ctrl+C to stop")
	return http.ListenAndServe(fmt.Sprintf(":%d", s.port), s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// auth gates a handler behind the bearer token when one is configured.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflights and opens the surface to any origin:
// the real service is consumed cross-origin by customer pages.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
